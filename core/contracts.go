package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type ReservationOutcome string

const (
	ReservationAcquired         ReservationOutcome = "acquired"
	ReservationAlreadyCompleted ReservationOutcome = "already_completed"
	ReservationAlreadyReserved  ReservationOutcome = "already_reserved"
)

// Reservation is the result of attempting to claim an idempotency key.
// CachedResult is populated only for AlreadyCompleted so duplicate
// deliveries can answer with the original outcome.
type Reservation struct {
	Outcome      ReservationOutcome
	ClaimID      string
	Attempt      int
	CachedResult map[string]any
	LeaseUntil   time.Time
}

// IdempotencyLedger is an atomic check-and-set per key. A reservation
// carries a lease so a crashed holder is reclaimable once the lease
// expires. Completed keys retain the cached result for the dedupe window.
type IdempotencyLedger interface {
	Reserve(ctx context.Context, key string, lease time.Duration) (Reservation, error)
	Complete(ctx context.Context, claimID string, result map[string]any) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
	// Release forgets a key entirely so the next Reserve starts fresh.
	// Dead letter resubmission uses it to re-run an envelope whose claim
	// was settled with the dead letter result.
	Release(ctx context.Context, key string) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// EntityLocker serializes work per entity key only. It makes no promise
// across entities and no promise about source order.
type EntityLocker interface {
	Acquire(ctx context.Context, entityKey string, ttl time.Duration) (LockHandle, error)
}

type CreateSaleOrderInput struct {
	PartnerRef string
	Reference  string
	Lines      []SaleOrderLine
	Metadata   map[string]any
}

type SaleOrderLine struct {
	ProductRef string
	Quantity   float64
	UnitPrice  float64
}

// ErpClient is the outbound edge. Implementations classify failures as
// transient or permanent through the error taxonomy; the engine retries
// only transient ones.
type ErpClient interface {
	CreateSaleOrder(ctx context.Context, in CreateSaleOrderInput) (erpOrderID string, err error)
	ConfirmSaleOrder(ctx context.Context, erpOrderID string) error
	CancelSaleOrder(ctx context.Context, erpOrderID string) error
}

type MappingStore interface {
	Get(ctx context.Context, storefrontOrderID string) (OrderMapping, error)
	// GetByErpOrderID resolves the mapping from the ERP side. ERP events
	// identify the entity by ERP order id, which only exists once the
	// storefront order has been linked.
	GetByErpOrderID(ctx context.Context, erpOrderID string) (OrderMapping, error)
	CreatePending(ctx context.Context, storefrontOrderID string) (OrderMapping, bool, error)
	AttachErpOrder(ctx context.Context, storefrontOrderID, erpOrderID string, expectedVersion int64) (OrderMapping, error)
	Transition(ctx context.Context, storefrontOrderID string, from, to MappingState, expectedVersion int64) (OrderMapping, error)
	RecordError(ctx context.Context, storefrontOrderID, cause string, expectedVersion int64) (OrderMapping, error)
}

type TimelineStore interface {
	Append(ctx context.Context, entry TimelineEntry) (TimelineEntry, error)
	Timeline(ctx context.Context, entityKey string) ([]TimelineEntry, error)
}

type DeadLetterFilter struct {
	EntityKey string
	Reason    DeadLetterReason
	Limit     int
}

type DeadLetterStore interface {
	Record(ctx context.Context, record DeadLetterRecord) (DeadLetterRecord, error)
	Get(ctx context.Context, id string) (DeadLetterRecord, error)
	List(ctx context.Context, filter DeadLetterFilter) ([]DeadLetterRecord, error)
	MarkResubmitted(ctx context.Context, id string) (DeadLetterRecord, error)
}

// Normalizer turns a raw source payload into the canonical envelope or
// rejects it at the boundary.
type Normalizer interface {
	Normalize(ctx context.Context, source Source, payload []byte, headers map[string]string) (EventEnvelope, error)
}

type DispatchResult struct {
	Outcome   Outcome
	Mapping   OrderMapping
	Result    map[string]any
	Attempt   int
	RetryAt   time.Time
	LastError string
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, envelope EventEnvelope) (DispatchResult, error)
}

type RetryScheduler interface {
	NextDelay(attempt int) time.Duration
}

type StoreProvider interface {
	MappingStore() MappingStore
	IdempotencyLedger() IdempotencyLedger
	TimelineStore() TimelineStore
	DeadLetterStore() DeadLetterStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type DispatchStats struct {
	Dispatched   int
	Deduped      int
	Stalled      int
	DeadLettered int
}
