package core

import (
	"testing"
	"time"
)

func TestEnvelopeParametersRoundTrip(t *testing.T) {
	occurred := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	received := occurred.Add(2 * time.Second)
	envelope := EventEnvelope{
		EventID:        "evt-1",
		EventType:      EventOrderPaid,
		Source:         SourceStorefront,
		EntityKey:      "101",
		OccurredAt:     occurred,
		ReceivedAt:     received,
		IdempotencyKey: "storefront:101:storefront.order.paid:v2",
		Payload:        map[string]any{"id": float64(101), "total": "49.90"},
	}

	restored, err := EnvelopeFromParameters(EnvelopeToParameters(envelope))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.EventID != envelope.EventID ||
		restored.EventType != envelope.EventType ||
		restored.Source != envelope.Source ||
		restored.EntityKey != envelope.EntityKey ||
		restored.IdempotencyKey != envelope.IdempotencyKey {
		t.Fatalf("envelope identity changed: %+v", restored)
	}
	if !restored.OccurredAt.Equal(occurred) || !restored.ReceivedAt.Equal(received) {
		t.Fatalf("timestamps changed: %+v", restored)
	}
	if restored.Payload["total"] != "49.90" {
		t.Fatalf("payload changed: %+v", restored.Payload)
	}
}

func TestEnvelopeFromParametersRejectsInvalid(t *testing.T) {
	if _, err := EnvelopeFromParameters(nil); err == nil {
		t.Fatal("expected error for empty parameters")
	}

	params := EnvelopeToParameters(EventEnvelope{
		EventID:        "evt-2",
		EventType:      EventOrderCreated,
		Source:         SourceStorefront,
		EntityKey:      "202",
		ReceivedAt:     time.Now().UTC(),
		IdempotencyKey: "storefront:202:storefront.order.created:v1",
	})
	delete(params, "received_at")
	if _, err := EnvelopeFromParameters(params); err == nil {
		t.Fatal("expected error for missing received_at")
	}
}
