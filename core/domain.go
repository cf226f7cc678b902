package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidSource            = errors.New("core: invalid event source")
	ErrInvalidEventType         = errors.New("core: invalid event type")
	ErrInvalidMappingTransition = errors.New("core: invalid mapping state transition")
	ErrVersionConflict          = errors.New("core: mapping version conflict")
	ErrMappingNotFound          = errors.New("core: order mapping not found")
	ErrMappingNotReady          = errors.New("core: order mapping not yet created")
	ErrManualReviewRequired     = errors.New("core: transition requires manual review")
	ErrDeadLetterNotFound       = errors.New("core: dead letter not found")
	ErrReservationNotFound      = errors.New("core: idempotency reservation not found")
	ErrEntityLockUnavailable    = errors.New("core: entity lock unavailable")
	ErrRetryBudgetExhausted     = errors.New("core: retry budget exhausted")
)

type Source string

const (
	SourceStorefront Source = "storefront"
	SourceERP        Source = "erp"
)

func (s Source) Validate() error {
	switch s {
	case SourceStorefront, SourceERP:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidSource, string(s))
}

type EventType string

const (
	EventOrderCreated   EventType = "storefront.order.created"
	EventOrderPaid      EventType = "storefront.order.paid"
	EventOrderCancelled EventType = "storefront.order.cancelled"
	EventERPConfirmed   EventType = "erp.order.confirmed"
)

func (t EventType) Validate() error {
	switch t {
	case EventOrderCreated, EventOrderPaid, EventOrderCancelled, EventERPConfirmed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidEventType, string(t))
}

// EventEnvelope is the canonical form of an inbound notification. EventID
// is assigned at ingestion, never taken from the source. OccurredAt is the
// source-reported timestamp and is retained for audit only; ReceivedAt and
// the per-entity timeline sequence are the ordering authority.
type EventEnvelope struct {
	EventID        string
	EventType      EventType
	Source         Source
	EntityKey      string
	OccurredAt     time.Time
	ReceivedAt     time.Time
	IdempotencyKey string
	Payload        map[string]any
}

func (e EventEnvelope) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("core: event id is required")
	}
	if err := e.Source.Validate(); err != nil {
		return err
	}
	if err := e.EventType.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.EntityKey) == "" {
		return fmt.Errorf("core: entity key is required")
	}
	if strings.TrimSpace(e.IdempotencyKey) == "" {
		return fmt.Errorf("core: idempotency key is required")
	}
	return nil
}

type MappingState string

const (
	MappingStatePending   MappingState = "pending"
	MappingStateLinked    MappingState = "linked"
	MappingStateConfirmed MappingState = "confirmed"
	MappingStateAbandoned MappingState = "abandoned"
)

// OrderMapping links one storefront order to its ERP counterpart. Version
// is a fencing token: every mutation increments it and every conditional
// write carries the caller's last observed value.
type OrderMapping struct {
	StorefrontOrderID string
	ErpOrderID        string
	State             MappingState
	Version           int64
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (m *OrderMapping) TransitionTo(state MappingState, now time.Time) error {
	if m == nil {
		return nil
	}
	if m.State == state {
		m.UpdatedAt = now
		return nil
	}
	if !mappingTransitionAllowed(m.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidMappingTransition, m.State, state)
	}
	m.State = state
	m.UpdatedAt = now
	return nil
}

func (m OrderMapping) Terminal() bool {
	return m.State == MappingStateConfirmed || m.State == MappingStateAbandoned
}

func mappingTransitionAllowed(current, next MappingState) bool {
	allowed := map[MappingState]map[MappingState]struct{}{
		MappingStatePending: {
			MappingStateLinked:    {},
			MappingStateAbandoned: {},
		},
		MappingStateLinked: {
			MappingStateConfirmed: {},
			MappingStateAbandoned: {},
		},
		MappingStateConfirmed: {},
		MappingStateAbandoned: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// Outcome classifies the terminal result of dispatching one envelope.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDeduped      Outcome = "deduped"
	OutcomeStalled      Outcome = "stalled"
	OutcomeNoop         Outcome = "noop"
	OutcomeFlagged      Outcome = "flagged"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// TimelineEntry records one envelope applied to an entity, including no-op
// and stalled outcomes. Sequence is assigned by the timeline store on
// append and is monotonic per entity key.
type TimelineEntry struct {
	ID         string
	EntityKey  string
	Sequence   int64
	EventID    string
	EventType  EventType
	Source     Source
	Outcome    Outcome
	Error      string
	Attempt    int
	OccurredAt time.Time
	ReceivedAt time.Time
	LatencyMS  int64
	Metadata   map[string]any
}

type DeadLetterReason string

const (
	DeadLetterReasonMaxRetries   DeadLetterReason = "max_retries_exceeded"
	DeadLetterReasonPermanent    DeadLetterReason = "permanent_failure"
	DeadLetterReasonManualReview DeadLetterReason = "manual_review"
)

// DeadLetterRecord holds an envelope that exhausted its retry budget or
// failed permanently. Records stay enumerable and resubmittable; the
// engine never drops an envelope without a record.
type DeadLetterRecord struct {
	ID          string
	Envelope    EventEnvelope
	Reason      DeadLetterReason
	Attempts    int
	LastError   string
	FailedAt    time.Time
	Resubmitted bool
}
