package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-ordersync/core"
	"github.com/goliatone/go-ordersync/gate"
	"github.com/google/uuid"
)

// Dispatcher runs one envelope through the full pipeline: ledger reserve,
// entity lock, machine apply, timeline append, ledger settle. Transient
// failures schedule a retry with exponential backoff; permanent failures
// and exhausted budgets dead-letter exactly once.
type Dispatcher struct {
	Machine     *Machine
	Ledger      core.IdempotencyLedger
	Locker      core.EntityLocker
	Timeline    core.TimelineStore
	DeadLetters core.DeadLetterStore
	Scheduler   core.RetryScheduler
	Logger      core.Logger
	MaxAttempts int
	ClaimLease  time.Duration
	LockTTL     time.Duration
	LockWait    time.Duration
	Now         func() time.Time
}

func NewDispatcher(
	machine *Machine,
	ledger core.IdempotencyLedger,
	locker core.EntityLocker,
	timeline core.TimelineStore,
	deadLetters core.DeadLetterStore,
) *Dispatcher {
	return &Dispatcher{
		Machine:     machine,
		Ledger:      ledger,
		Locker:      locker,
		Timeline:    timeline,
		DeadLetters: deadLetters,
		Scheduler:   ExponentialBackoffScheduler{},
		MaxAttempts: 5,
		ClaimLease:  30 * time.Second,
		LockTTL:     15 * time.Second,
		LockWait:    5 * time.Second,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, envelope core.EventEnvelope) (core.DispatchResult, error) {
	if d == nil || d.Machine == nil || d.Ledger == nil || d.Locker == nil {
		return core.DispatchResult{}, fmt.Errorf("engine: dispatcher is not fully configured")
	}
	if err := envelope.Validate(); err != nil {
		return core.DispatchResult{}, err
	}

	reservation, err := d.Ledger.Reserve(ctx, envelope.IdempotencyKey, d.claimLease())
	if err != nil {
		return core.DispatchResult{}, err
	}

	switch reservation.Outcome {
	case core.ReservationAlreadyCompleted:
		d.appendTimeline(ctx, envelope, core.OutcomeDeduped, reservation.Attempt, "")
		return core.DispatchResult{
			Outcome: core.OutcomeDeduped,
			Result:  reservation.CachedResult,
			Attempt: reservation.Attempt,
		}, nil
	case core.ReservationAlreadyReserved:
		// another worker holds the claim; it settles or its lease expires.
		// Concurrent duplicates are success shaped, same as deduped ones.
		return core.DispatchResult{
			Outcome: core.OutcomeStalled,
			Attempt: reservation.Attempt,
			RetryAt: reservation.LeaseUntil,
		}, nil
	}

	// ERP envelopes carry the ERP order id; lock and apply on the
	// storefront key so both sources serialize on the same entity.
	entityKey, resolveErr := d.Machine.ResolveEntityKey(ctx, envelope)
	if resolveErr != nil {
		return d.settleFailure(ctx, envelope, reservation, ApplyResult{}, resolveErr)
	}
	envelope.EntityKey = entityKey

	var applied ApplyResult
	lockErr := gate.WithEntityLock(ctx, d.Locker, envelope.EntityKey, d.lockTTL(), d.lockWait(), func(ctx context.Context) error {
		var applyErr error
		applied, applyErr = d.Machine.Apply(ctx, envelope)
		return applyErr
	})

	if lockErr != nil {
		return d.settleFailure(ctx, envelope, reservation, applied, lockErr)
	}

	d.appendTimeline(ctx, envelope, applied.Outcome, reservation.Attempt, "")

	if applied.Outcome == core.OutcomeFlagged {
		record := d.recordDeadLetter(ctx, envelope, core.DeadLetterReasonManualReview, reservation.Attempt, applied.Result["reason"])
		applied.Result["dead_letter_id"] = record.ID
	}

	if err := d.Ledger.Complete(ctx, reservation.ClaimID, applied.Result); err != nil {
		return core.DispatchResult{}, err
	}
	return core.DispatchResult{
		Outcome: applied.Outcome,
		Mapping: applied.Mapping,
		Result:  applied.Result,
		Attempt: reservation.Attempt,
	}, nil
}

func (d *Dispatcher) settleFailure(
	ctx context.Context,
	envelope core.EventEnvelope,
	reservation core.Reservation,
	applied ApplyResult,
	cause error,
) (core.DispatchResult, error) {
	if !core.Transient(cause) {
		return d.deadLetter(ctx, envelope, reservation, applied, core.DeadLetterReasonPermanent, cause)
	}
	if reservation.Attempt >= d.maxAttempts() {
		return d.deadLetter(ctx, envelope, reservation, applied, core.DeadLetterReasonMaxRetries, cause)
	}

	retryAt := d.now().Add(d.scheduler().NextDelay(reservation.Attempt))
	if err := d.Ledger.Fail(ctx, reservation.ClaimID, cause, retryAt); err != nil {
		return core.DispatchResult{}, err
	}
	d.appendTimeline(ctx, envelope, core.OutcomeStalled, reservation.Attempt, cause.Error())
	return core.DispatchResult{
		Outcome:   core.OutcomeStalled,
		Mapping:   applied.Mapping,
		Attempt:   reservation.Attempt,
		RetryAt:   retryAt,
		LastError: cause.Error(),
	}, cause
}

func (d *Dispatcher) deadLetter(
	ctx context.Context,
	envelope core.EventEnvelope,
	reservation core.Reservation,
	applied ApplyResult,
	reason core.DeadLetterReason,
	cause error,
) (core.DispatchResult, error) {
	record := d.recordDeadLetter(ctx, envelope, reason, reservation.Attempt, cause.Error())

	// settle the claim so later duplicates dedupe instead of re-dead-lettering
	result := map[string]any{
		"outcome":        string(core.OutcomeDeadLettered),
		"reason":         string(reason),
		"dead_letter_id": record.ID,
		"error":          cause.Error(),
	}
	if err := d.Ledger.Complete(ctx, reservation.ClaimID, result); err != nil {
		return core.DispatchResult{}, err
	}
	d.appendTimeline(ctx, envelope, core.OutcomeDeadLettered, reservation.Attempt, cause.Error())
	return core.DispatchResult{
		Outcome:   core.OutcomeDeadLettered,
		Mapping:   applied.Mapping,
		Result:    result,
		Attempt:   reservation.Attempt,
		LastError: cause.Error(),
	}, nil
}

func (d *Dispatcher) recordDeadLetter(
	ctx context.Context,
	envelope core.EventEnvelope,
	reason core.DeadLetterReason,
	attempts int,
	lastError any,
) core.DeadLetterRecord {
	record := core.DeadLetterRecord{
		ID:        uuid.NewString(),
		Envelope:  envelope,
		Reason:    reason,
		Attempts:  attempts,
		LastError: fmt.Sprint(lastError),
		FailedAt:  d.now(),
	}
	if d.DeadLetters == nil {
		d.logError(ctx, "dead letter store is not configured", envelope, nil)
		return record
	}
	stored, err := d.DeadLetters.Record(ctx, record)
	if err != nil {
		d.logError(ctx, "dead letter record failed", envelope, err)
		return record
	}
	return stored
}

// appendTimeline never fails the dispatch: the ERP side effect may already
// have landed, so a retry here would break the single side effect rule.
func (d *Dispatcher) appendTimeline(
	ctx context.Context,
	envelope core.EventEnvelope,
	outcome core.Outcome,
	attempt int,
	cause string,
) {
	if d.Timeline == nil {
		return
	}
	now := d.now()
	entry := core.TimelineEntry{
		EntityKey:  envelope.EntityKey,
		EventID:    envelope.EventID,
		EventType:  envelope.EventType,
		Source:     envelope.Source,
		Outcome:    outcome,
		Error:      cause,
		Attempt:    attempt,
		OccurredAt: envelope.OccurredAt,
		ReceivedAt: envelope.ReceivedAt,
	}
	if !envelope.ReceivedAt.IsZero() {
		entry.LatencyMS = now.Sub(envelope.ReceivedAt).Milliseconds()
	}
	if _, err := d.Timeline.Append(ctx, entry); err != nil {
		d.logError(ctx, "timeline append failed", envelope, err)
	}
}

func (d *Dispatcher) logError(ctx context.Context, message string, envelope core.EventEnvelope, cause error) {
	if d == nil || d.Logger == nil {
		return
	}
	logger := d.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"entity_key", envelope.EntityKey,
		"event_id", envelope.EventID,
	}
	if cause != nil {
		args = append(args, "error", cause.Error())
	}
	logger.Error(message, args...)
}

func (d *Dispatcher) claimLease() time.Duration {
	if d != nil && d.ClaimLease > 0 {
		return d.ClaimLease
	}
	return 30 * time.Second
}

func (d *Dispatcher) lockTTL() time.Duration {
	if d != nil && d.LockTTL > 0 {
		return d.LockTTL
	}
	return 15 * time.Second
}

func (d *Dispatcher) lockWait() time.Duration {
	if d != nil && d.LockWait > 0 {
		return d.LockWait
	}
	return 5 * time.Second
}

func (d *Dispatcher) maxAttempts() int {
	if d != nil && d.MaxAttempts > 0 {
		return d.MaxAttempts
	}
	return 5
}

func (d *Dispatcher) scheduler() core.RetryScheduler {
	if d != nil && d.Scheduler != nil {
		return d.Scheduler
	}
	return ExponentialBackoffScheduler{}
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.EventDispatcher = (*Dispatcher)(nil)
