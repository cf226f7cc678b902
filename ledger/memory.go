package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ordersync/core"
)

type claimStatus string

const (
	claimStatusReserved   claimStatus = "reserved"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusCompleted  claimStatus = "completed"
)

type claimEntry struct {
	Key            string
	Status         claimStatus
	ClaimID        string
	Attempts       int
	LeaseExpiresAt time.Time
	RetryAt        time.Time
	CompletedAt    time.Time
	Result         map[string]any
}

// MemoryLedger is a process-local idempotency ledger for tests and single
// instance deployments. Completed keys are retained for DedupWindow so
// duplicates answer with the cached result.
type MemoryLedger struct {
	mu          sync.Mutex
	entries     map[string]claimEntry
	claims      map[string]string
	nextID      int
	DedupWindow time.Duration
	Now         func() time.Time
}

func NewMemoryLedger(dedupWindow time.Duration) *MemoryLedger {
	if dedupWindow <= 0 {
		dedupWindow = 24 * time.Hour
	}
	return &MemoryLedger{
		entries:     map[string]claimEntry{},
		claims:      map[string]string{},
		DedupWindow: dedupWindow,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) Reserve(
	_ context.Context,
	key string,
	lease time.Duration,
) (core.Reservation, error) {
	if l == nil {
		return core.Reservation{}, ledgerInternal("ledger: memory ledger is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Reservation{}, ledgerBadInput("ledger: idempotency key is required", nil)
	}
	now := l.now()
	if lease <= 0 {
		lease = 30 * time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpiredLocked(now)
	entry, exists := l.entries[key]
	if !exists {
		claimID := l.nextClaimID()
		l.entries[key] = claimEntry{
			Key:            key,
			Status:         claimStatusReserved,
			ClaimID:        claimID,
			Attempts:       1,
			LeaseExpiresAt: now.Add(lease),
		}
		l.claims[claimID] = key
		return core.Reservation{
			Outcome:    core.ReservationAcquired,
			ClaimID:    claimID,
			Attempt:    1,
			LeaseUntil: now.Add(lease),
		}, nil
	}

	switch entry.Status {
	case claimStatusCompleted:
		return core.Reservation{
			Outcome:      core.ReservationAlreadyCompleted,
			CachedResult: copyResult(entry.Result),
		}, nil
	case claimStatusReserved:
		if now.Before(entry.LeaseExpiresAt) {
			return core.Reservation{
				Outcome:    core.ReservationAlreadyReserved,
				LeaseUntil: entry.LeaseExpiresAt,
			}, nil
		}
	case claimStatusRetryReady:
		if !entry.RetryAt.IsZero() && now.Before(entry.RetryAt) {
			return core.Reservation{
				Outcome:    core.ReservationAlreadyReserved,
				LeaseUntil: entry.RetryAt,
			}, nil
		}
	}

	if entry.ClaimID != "" {
		delete(l.claims, entry.ClaimID)
	}
	claimID := l.nextClaimID()
	entry.Status = claimStatusReserved
	entry.ClaimID = claimID
	entry.Attempts++
	entry.LeaseExpiresAt = now.Add(lease)
	entry.RetryAt = time.Time{}
	l.entries[key] = entry
	l.claims[claimID] = key
	return core.Reservation{
		Outcome:    core.ReservationAcquired,
		ClaimID:    claimID,
		Attempt:    entry.Attempts,
		LeaseUntil: now.Add(lease),
	}, nil
}

func (l *MemoryLedger) Complete(_ context.Context, claimID string, result map[string]any) error {
	if l == nil {
		return ledgerInternal("ledger: memory ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return ledgerBadInput("ledger: claim id is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.claims[claimID]
	if !ok {
		return core.ErrReservationNotFound
	}
	entry, exists := l.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusReserved {
		delete(l.claims, claimID)
		return core.ErrReservationNotFound
	}
	now := l.now()
	entry.Status = claimStatusCompleted
	entry.CompletedAt = now
	entry.LeaseExpiresAt = now.Add(l.dedupWindow())
	entry.RetryAt = time.Time{}
	entry.Result = copyResult(result)
	l.entries[key] = entry
	delete(l.claims, claimID)
	return nil
}

func (l *MemoryLedger) Fail(_ context.Context, claimID string, _ error, retryAt time.Time) error {
	if l == nil {
		return ledgerInternal("ledger: memory ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return ledgerBadInput("ledger: claim id is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.claims[claimID]
	if !ok {
		return core.ErrReservationNotFound
	}
	entry, exists := l.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusReserved {
		delete(l.claims, claimID)
		return core.ErrReservationNotFound
	}
	if retryAt.IsZero() {
		retryAt = l.now()
	}
	entry.Status = claimStatusRetryReady
	entry.RetryAt = retryAt.UTC()
	entry.LeaseExpiresAt = time.Time{}
	l.entries[key] = entry
	delete(l.claims, claimID)
	return nil
}

// Release drops the entry for a key so the next Reserve acquires fresh.
// Settled results are forgotten; callers own the decision to replay.
func (l *MemoryLedger) Release(_ context.Context, key string) error {
	if l == nil {
		return ledgerInternal("ledger: memory ledger is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ledgerBadInput("ledger: idempotency key is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry, exists := l.entries[key]
	if !exists {
		return nil
	}
	if entry.ClaimID != "" {
		delete(l.claims, entry.ClaimID)
	}
	delete(l.entries, key)
	return nil
}

// Attempts reports how many reservations a key has seen. Diagnostics only.
func (l *MemoryLedger) Attempts(key string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[strings.TrimSpace(key)].Attempts
}

func (l *MemoryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryLedger) dedupWindow() time.Duration {
	if l != nil && l.DedupWindow > 0 {
		return l.DedupWindow
	}
	return 24 * time.Hour
}

func (l *MemoryLedger) nextClaimID() string {
	l.nextID++
	return fmt.Sprintf("claim_%d", l.nextID)
}

func (l *MemoryLedger) evictExpiredLocked(now time.Time) {
	for key, entry := range l.entries {
		if entry.Status != claimStatusCompleted {
			continue
		}
		if entry.LeaseExpiresAt.IsZero() || !now.Before(entry.LeaseExpiresAt) {
			if entry.ClaimID != "" {
				delete(l.claims, entry.ClaimID)
			}
			delete(l.entries, key)
		}
	}
}

func copyResult(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.IdempotencyLedger = (*MemoryLedger)(nil)
