package sqlstore

import (
	"time"

	"github.com/goliatone/go-ordersync/core"
	"github.com/uptrace/bun"
)

type orderMappingRecord struct {
	bun.BaseModel `bun:"table:order_mappings,alias:om"`

	ID                string    `bun:"id,pk"`
	StorefrontOrderID string    `bun:"storefront_order_id,notnull"`
	ErpOrderID        string    `bun:"erp_order_id"`
	State             string    `bun:"state,notnull"`
	Version           int64     `bun:"version,notnull"`
	LastError         string    `bun:"last_error"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *orderMappingRecord) toDomain() core.OrderMapping {
	if r == nil {
		return core.OrderMapping{}
	}
	return core.OrderMapping{
		StorefrontOrderID: r.StorefrontOrderID,
		ErpOrderID:        r.ErpOrderID,
		State:             core.MappingState(r.State),
		Version:           r.Version,
		LastError:         r.LastError,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type idempotencyClaimRecord struct {
	bun.BaseModel `bun:"table:idempotency_claims,alias:ic"`

	ID             string         `bun:"id,pk"`
	IdempotencyKey string         `bun:"idempotency_key,notnull"`
	ClaimID        string         `bun:"claim_id,notnull"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	LeaseExpiresAt time.Time      `bun:"lease_expires_at,nullzero"`
	RetryAt        *time.Time     `bun:"retry_at,nullzero"`
	Result         map[string]any `bun:"result,type:jsonb"`
	LastError      string         `bun:"last_error"`
	CompletedAt    *time.Time     `bun:"completed_at,nullzero"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type timelineEntryRecord struct {
	bun.BaseModel `bun:"table:order_timeline_entries,alias:ote"`

	ID         string         `bun:"id,pk"`
	EntityKey  string         `bun:"entity_key,notnull"`
	Sequence   int64          `bun:"sequence,notnull"`
	EventID    string         `bun:"event_id,notnull"`
	EventType  string         `bun:"event_type,notnull"`
	Source     string         `bun:"source,notnull"`
	Outcome    string         `bun:"outcome,notnull"`
	Error      string         `bun:"error"`
	Attempt    int            `bun:"attempt,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,nullzero"`
	ReceivedAt time.Time      `bun:"received_at,nullzero,notnull"`
	LatencyMS  int64          `bun:"latency_ms,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *timelineEntryRecord) toDomain() core.TimelineEntry {
	if r == nil {
		return core.TimelineEntry{}
	}
	return core.TimelineEntry{
		ID:         r.ID,
		EntityKey:  r.EntityKey,
		Sequence:   r.Sequence,
		EventID:    r.EventID,
		EventType:  core.EventType(r.EventType),
		Source:     core.Source(r.Source),
		Outcome:    core.Outcome(r.Outcome),
		Error:      r.Error,
		Attempt:    r.Attempt,
		OccurredAt: r.OccurredAt,
		ReceivedAt: r.ReceivedAt,
		LatencyMS:  r.LatencyMS,
		Metadata:   copyAnyMap(r.Metadata),
	}
}

type deadLetterRecord struct {
	bun.BaseModel `bun:"table:dead_letters,alias:dl"`

	ID             string         `bun:"id,pk"`
	EntityKey      string         `bun:"entity_key,notnull"`
	EventID        string         `bun:"event_id,notnull"`
	EventType      string         `bun:"event_type,notnull"`
	Source         string         `bun:"source,notnull"`
	IdempotencyKey string         `bun:"idempotency_key,notnull"`
	OccurredAt     time.Time      `bun:"occurred_at,nullzero"`
	ReceivedAt     time.Time      `bun:"received_at,nullzero"`
	Payload        map[string]any `bun:"payload,type:jsonb"`
	Reason         string         `bun:"reason,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	LastError      string         `bun:"last_error"`
	FailedAt       time.Time      `bun:"failed_at,nullzero,notnull"`
	Resubmitted    bool           `bun:"resubmitted,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *deadLetterRecord) toDomain() core.DeadLetterRecord {
	if r == nil {
		return core.DeadLetterRecord{}
	}
	return core.DeadLetterRecord{
		ID: r.ID,
		Envelope: core.EventEnvelope{
			EventID:        r.EventID,
			EventType:      core.EventType(r.EventType),
			Source:         core.Source(r.Source),
			EntityKey:      r.EntityKey,
			OccurredAt:     r.OccurredAt,
			ReceivedAt:     r.ReceivedAt,
			IdempotencyKey: r.IdempotencyKey,
			Payload:        copyAnyMap(r.Payload),
		},
		Reason:      core.DeadLetterReason(r.Reason),
		Attempts:    r.Attempts,
		LastError:   r.LastError,
		FailedAt:    r.FailedAt,
		Resubmitted: r.Resubmitted,
	}
}
