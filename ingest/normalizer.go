// Package ingest normalizes raw source notifications into canonical event
// envelopes. Extraction is rule-table driven per source; adding a source
// means adding a rule, not a code branch.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ordersync/clients/storefront"
	"github.com/goliatone/go-ordersync/core"
	"github.com/google/uuid"
)

// extractionRule describes where a source keeps the three identity facts:
// which entity, which kind of event, and which source-side revision stamp.
type extractionRule struct {
	entityFields  []string
	topicHeader   string
	topicFields   []string
	versionFields []string
	eventTypes    map[string]core.EventType
}

var extractionRules = map[core.Source]extractionRule{
	core.SourceStorefront: {
		entityFields:  []string{"id", "order_id"},
		topicHeader:   storefront.HeaderTopic,
		versionFields: []string{"date_modified", "timestamp", "date_created"},
		eventTypes: map[string]core.EventType{
			"order.created":   core.EventOrderCreated,
			"order.paid":      core.EventOrderPaid,
			"order.cancelled": core.EventOrderCancelled,
		},
	},
	core.SourceERP: {
		entityFields:  []string{"record_id"},
		topicFields:   []string{"event_type"},
		versionFields: []string{"write_date"},
		eventTypes: map[string]core.EventType{
			"confirmed":            core.EventERPConfirmed,
			"sale.order.confirmed": core.EventERPConfirmed,
		},
	},
}

type Normalizer struct {
	Now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		Now: func() time.Time { return time.Now().UTC() },
	}
}

func (n *Normalizer) Normalize(
	_ context.Context,
	source core.Source,
	payload []byte,
	headers map[string]string,
) (core.EventEnvelope, error) {
	if err := source.Validate(); err != nil {
		return core.EventEnvelope{}, ingestBadInput(err.Error(), nil)
	}
	rule, ok := extractionRules[source]
	if !ok {
		return core.EventEnvelope{}, ingestBadInput(
			fmt.Sprintf("ingest: no extraction rule for source %q", source), nil)
	}

	body, err := decodeBody(payload)
	if err != nil {
		return core.EventEnvelope{}, ingestUnidentifiable("ingest: payload is not a JSON object", map[string]any{
			"source": string(source),
		})
	}

	entityKey := firstField(body, rule.entityFields)
	if entityKey == "" {
		return core.EventEnvelope{}, ingestUnidentifiable("ingest: missing entity identity in payload", map[string]any{
			"source": string(source),
			"fields": strings.Join(rule.entityFields, ","),
		})
	}

	topic := ""
	if rule.topicHeader != "" {
		topic = strings.TrimSpace(storefront.HeaderValue(headers, rule.topicHeader))
	}
	if topic == "" {
		topic = firstField(body, rule.topicFields)
	}
	if topic == "" {
		return core.EventEnvelope{}, ingestUnidentifiable("ingest: missing event topic", map[string]any{
			"source":     string(source),
			"entity_key": entityKey,
		})
	}
	eventType, ok := rule.eventTypes[strings.ToLower(topic)]
	if !ok {
		return core.EventEnvelope{}, ingestBadInput(fmt.Sprintf("ingest: unsupported topic %q", topic), map[string]any{
			"source":     string(source),
			"entity_key": entityKey,
		})
	}

	version := firstField(body, rule.versionFields)
	if version == "" {
		return core.EventEnvelope{}, ingestUnidentifiable("ingest: missing source version stamp", map[string]any{
			"source":     string(source),
			"entity_key": entityKey,
			"fields":     strings.Join(rule.versionFields, ","),
		})
	}

	now := n.now()
	envelope := core.EventEnvelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		Source:         source,
		EntityKey:      entityKey,
		OccurredAt:     parseStamp(version, now),
		ReceivedAt:     now,
		IdempotencyKey: IdempotencyKey(source, entityKey, eventType, version),
		Payload:        body,
	}
	if err := envelope.Validate(); err != nil {
		return core.EventEnvelope{}, ingestBadInput(err.Error(), nil)
	}
	return envelope, nil
}

// IdempotencyKey derives the deterministic dedupe key. The same delivery
// always produces the same key; a new source revision produces a new one.
func IdempotencyKey(source core.Source, entityKey string, eventType core.EventType, version string) string {
	return fmt.Sprintf("%s:%s:%s:%s", source, entityKey, eventType, version)
}

func decodeBody(payload []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var body map[string]any
	if err := decoder.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func firstField(body map[string]any, fields []string) string {
	for _, field := range fields {
		value, ok := body[field]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				return trimmed
			}
		case json.Number:
			return typed.String()
		}
	}
	return ""
}

func parseStamp(stamp string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, stamp); err == nil {
			return parsed.UTC()
		}
	}
	return fallback
}

func (n *Normalizer) now() time.Time {
	if n != nil && n.Now != nil {
		return n.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.Normalizer = (*Normalizer)(nil)
