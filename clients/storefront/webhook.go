// Package storefront verifies and describes WooCommerce-style webhook
// deliveries before they reach normalization.
package storefront

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	HeaderSignature  = "X-WC-Webhook-Signature"
	HeaderTopic      = "X-WC-Webhook-Topic"
	HeaderDeliveryID = "X-WC-Webhook-Delivery-ID"
	HeaderEventTime  = "X-WC-Webhook-Event-Time"
)

const defaultReplayWindow = 5 * time.Minute

type WebhookConfig struct {
	Secret           string
	ReplayWindow     time.Duration
	Now              func() time.Time
	RequireEventTime bool
}

func DefaultWebhookConfig(secret string) WebhookConfig {
	return WebhookConfig{
		Secret:       strings.TrimSpace(secret),
		ReplayWindow: defaultReplayWindow,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WebhookVerifier checks the base64 HMAC-SHA256 signature, requires a
// delivery id for dedupe, and rejects deliveries stamped outside the
// replay window.
type WebhookVerifier struct {
	Secret           string
	ReplayWindow     time.Duration
	Now              func() time.Time
	RequireEventTime bool
}

func NewWebhookVerifier(cfg WebhookConfig) WebhookVerifier {
	return WebhookVerifier{
		Secret:           strings.TrimSpace(cfg.Secret),
		ReplayWindow:     cfg.ReplayWindow,
		Now:              cfg.Now,
		RequireEventTime: cfg.RequireEventTime,
	}
}

func (v WebhookVerifier) Verify(_ context.Context, body []byte, headers map[string]string) error {
	header := strings.TrimSpace(HeaderValue(headers, HeaderSignature))
	if header == "" {
		return fmt.Errorf("storefront: %s signature header is required", HeaderSignature)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("storefront: signature secret is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return fmt.Errorf("storefront: decode base64 signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("storefront: signature verification failed")
	}

	if _, err := ExtractDeliveryID(headers); err != nil {
		return err
	}

	stamped := strings.TrimSpace(HeaderValue(headers, HeaderEventTime))
	if stamped == "" {
		if v.RequireEventTime {
			return fmt.Errorf("storefront: %s header is required", HeaderEventTime)
		}
		return nil
	}
	eventTime, err := time.Parse(time.RFC3339Nano, stamped)
	if err != nil {
		return fmt.Errorf("storefront: parse %s: %w", HeaderEventTime, err)
	}

	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	window := v.ReplayWindow
	if window <= 0 {
		window = defaultReplayWindow
	}
	delta := now.Sub(eventTime.UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return fmt.Errorf("storefront: webhook event time outside replay window")
	}
	return nil
}

func ExtractDeliveryID(headers map[string]string) (string, error) {
	deliveryID := strings.TrimSpace(HeaderValue(headers, HeaderDeliveryID))
	if deliveryID == "" {
		return "", fmt.Errorf("storefront: %s header is required for dedupe", HeaderDeliveryID)
	}
	return deliveryID, nil
}

func ExtractTopic(headers map[string]string) (string, error) {
	topic := strings.TrimSpace(HeaderValue(headers, HeaderTopic))
	if topic == "" {
		return "", fmt.Errorf("storefront: %s header is required", HeaderTopic)
	}
	return topic, nil
}

func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
