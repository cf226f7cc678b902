package core

import (
	"fmt"
	"strings"
	"time"
)

// EnvelopeToParameters flattens an envelope into the string-keyed map
// shape the queue transport carries.
func EnvelopeToParameters(envelope EventEnvelope) map[string]any {
	return map[string]any{
		"event_id":        envelope.EventID,
		"event_type":      string(envelope.EventType),
		"source":          string(envelope.Source),
		"entity_key":      envelope.EntityKey,
		"occurred_at":     envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		"received_at":     envelope.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"idempotency_key": envelope.IdempotencyKey,
		"payload":         copyAnyMap(envelope.Payload),
	}
}

// EnvelopeFromParameters rebuilds an envelope from queue parameters and
// validates it before returning.
func EnvelopeFromParameters(params map[string]any) (EventEnvelope, error) {
	if len(params) == 0 {
		return EventEnvelope{}, fmt.Errorf("core: envelope parameters are required")
	}
	envelope := EventEnvelope{
		EventID:        paramString(params, "event_id"),
		EventType:      EventType(paramString(params, "event_type")),
		Source:         Source(paramString(params, "source")),
		EntityKey:      paramString(params, "entity_key"),
		IdempotencyKey: paramString(params, "idempotency_key"),
	}
	if occurredAt, err := paramTime(params, "occurred_at"); err == nil {
		envelope.OccurredAt = occurredAt
	}
	receivedAt, err := paramTime(params, "received_at")
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("core: received_at is invalid: %w", err)
	}
	envelope.ReceivedAt = receivedAt
	if payload, ok := params["payload"].(map[string]any); ok {
		envelope.Payload = copyAnyMap(payload)
	}
	if err := envelope.Validate(); err != nil {
		return EventEnvelope{}, err
	}
	return envelope, nil
}

func paramString(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func paramTime(params map[string]any, key string) (time.Time, error) {
	text := paramString(params, key)
	if text == "" {
		return time.Time{}, fmt.Errorf("core: %s is missing", key)
	}
	return time.Parse(time.RFC3339Nano, text)
}
