package storefront

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validHeaders(secret string, body []byte) map[string]string {
	return map[string]string{
		HeaderSignature:  signBody(secret, body),
		HeaderTopic:      "order.created",
		HeaderDeliveryID: "delivery-1",
	}
}

func TestVerifyAcceptsSignedDelivery(t *testing.T) {
	body := []byte(`{"id":101}`)
	verifier := NewWebhookVerifier(DefaultWebhookConfig("secret"))

	if err := verifier.Verify(context.Background(), body, validHeaders("secret", body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"id":101}`)
	headers := validHeaders("secret", body)
	verifier := NewWebhookVerifier(DefaultWebhookConfig("secret"))

	if err := verifier.Verify(context.Background(), []byte(`{"id":999}`), headers); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"id":101}`)
	headers := validHeaders("other", body)
	verifier := NewWebhookVerifier(DefaultWebhookConfig("secret"))

	if err := verifier.Verify(context.Background(), body, headers); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestVerifyRequiresDeliveryID(t *testing.T) {
	body := []byte(`{"id":101}`)
	headers := validHeaders("secret", body)
	delete(headers, HeaderDeliveryID)
	verifier := NewWebhookVerifier(DefaultWebhookConfig("secret"))

	if err := verifier.Verify(context.Background(), body, headers); err == nil {
		t.Fatal("expected delivery id failure")
	}
}

func TestVerifyReplayWindow(t *testing.T) {
	body := []byte(`{"id":101}`)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultWebhookConfig("secret")
	cfg.Now = func() time.Time { return now }
	verifier := NewWebhookVerifier(cfg)

	headers := validHeaders("secret", body)
	headers[HeaderEventTime] = now.Add(-time.Minute).Format(time.RFC3339Nano)
	if err := verifier.Verify(context.Background(), body, headers); err != nil {
		t.Fatalf("unexpected error inside window: %v", err)
	}

	headers[HeaderEventTime] = now.Add(-time.Hour).Format(time.RFC3339Nano)
	if err := verifier.Verify(context.Background(), body, headers); err == nil {
		t.Fatal("expected replay window rejection")
	}
}

func TestHeaderLookupIsCaseInsensitive(t *testing.T) {
	headers := map[string]string{"x-wc-webhook-topic": "order.paid"}
	topic, err := ExtractTopic(headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topic != "order.paid" {
		t.Fatalf("expected order.paid, got %s", topic)
	}
}
