package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ordersync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	claimStatusReserved   = "reserved"
	claimStatusRetryReady = "retry_ready"
	claimStatusCompleted  = "completed"
)

// IdempotencyStore is the durable check-and-set ledger. One row per
// idempotency key; the claim id rotates on every acquisition so a settle
// from a stale holder is rejected.
type IdempotencyStore struct {
	db          *bun.DB
	repo        repository.Repository[*idempotencyClaimRecord]
	dedupWindow time.Duration
}

func NewIdempotencyStore(db *bun.DB, dedupWindow time.Duration) (*IdempotencyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if dedupWindow <= 0 {
		dedupWindow = 24 * time.Hour
	}
	repo := repository.NewRepository[*idempotencyClaimRecord](db, idempotencyClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid idempotency claim repository wiring: %w", err)
		}
	}
	return &IdempotencyStore{
		db:          db,
		repo:        repo,
		dedupWindow: dedupWindow,
	}, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string, lease time.Duration) (core.Reservation, error) {
	if s == nil || s.db == nil {
		return core.Reservation{}, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Reservation{}, fmt.Errorf("sqlstore: idempotency key is required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := time.Now().UTC()

	var out core.Reservation
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findClaimByKeyTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &idempotencyClaimRecord{
				ID:             uuid.NewString(),
				IdempotencyKey: key,
				ClaimID:        uuid.NewString(),
				Status:         claimStatusReserved,
				Attempts:       1,
				LeaseExpiresAt: now.Add(lease),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					record, err = findClaimByKeyTx(ctx, tx, key)
					if err != nil {
						return err
					}
					if record == nil {
						return insertErr
					}
					out = reservationFrom(record)
					return nil
				}
				return insertErr
			}
			out = core.Reservation{
				Outcome:    core.ReservationAcquired,
				ClaimID:    record.ClaimID,
				Attempt:    record.Attempts,
				LeaseUntil: record.LeaseExpiresAt,
			}
			return nil
		}

		switch record.Status {
		case claimStatusCompleted:
			if now.Before(record.LeaseExpiresAt) {
				out = core.Reservation{
					Outcome:      core.ReservationAlreadyCompleted,
					ClaimID:      record.ClaimID,
					Attempt:      record.Attempts,
					CachedResult: copyAnyMap(record.Result),
					LeaseUntil:   record.LeaseExpiresAt,
				}
				return nil
			}
			// Dedup window elapsed; the key is reclaimable as fresh work.
			record.ClaimID = uuid.NewString()
			record.Status = claimStatusReserved
			record.Attempts = 1
			record.LeaseExpiresAt = now.Add(lease)
			record.RetryAt = nil
			record.Result = nil
			record.LastError = ""
			record.CompletedAt = nil
		case claimStatusRetryReady:
			if record.RetryAt != nil && now.Before(*record.RetryAt) {
				out = core.Reservation{
					Outcome:    core.ReservationAlreadyReserved,
					ClaimID:    record.ClaimID,
					Attempt:    record.Attempts,
					LeaseUntil: *record.RetryAt,
				}
				return nil
			}
			record.ClaimID = uuid.NewString()
			record.Status = claimStatusReserved
			record.Attempts++
			record.LeaseExpiresAt = now.Add(lease)
			record.RetryAt = nil
		default:
			if now.Before(record.LeaseExpiresAt) {
				out = core.Reservation{
					Outcome:    core.ReservationAlreadyReserved,
					ClaimID:    record.ClaimID,
					Attempt:    record.Attempts,
					LeaseUntil: record.LeaseExpiresAt,
				}
				return nil
			}
			// Lease expired without a settle; reclaim from the crashed holder.
			record.ClaimID = uuid.NewString()
			record.Attempts++
			record.LeaseExpiresAt = now.Add(lease)
		}

		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = core.Reservation{
			Outcome:    core.ReservationAcquired,
			ClaimID:    record.ClaimID,
			Attempt:    record.Attempts,
			LeaseUntil: record.LeaseExpiresAt,
		}
		return nil
	})
	if err != nil {
		return core.Reservation{}, err
	}
	return out, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, claimID string, result map[string]any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findClaimByClaimIDTx(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: claim %s", core.ErrReservationNotFound, claimID)
		}
		record.Status = claimStatusCompleted
		record.Result = copyAnyMap(result)
		record.CompletedAt = &now
		record.LeaseExpiresAt = now.Add(s.dedupWindow)
		record.RetryAt = nil
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return updateErr
	})
}

func (s *IdempotencyStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findClaimByClaimIDTx(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: claim %s", core.ErrReservationNotFound, claimID)
		}
		record.Status = claimStatusRetryReady
		retry := retryAt.UTC()
		record.RetryAt = &retry
		if cause != nil {
			record.LastError = cause.Error()
		}
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return updateErr
	})
}

// Release deletes the claim row for a key so the next Reserve inserts a
// fresh one. Used by dead letter resubmission to replay a settled key.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: idempotency key is required")
	}
	_, err := s.db.NewDelete().
		Model((*idempotencyClaimRecord)(nil)).
		Where("?TableAlias.idempotency_key = ?", key).
		Exec(ctx)
	return err
}

// reservationFrom maps an existing row found after losing the insert race.
func reservationFrom(record *idempotencyClaimRecord) core.Reservation {
	if record.Status == claimStatusCompleted {
		return core.Reservation{
			Outcome:      core.ReservationAlreadyCompleted,
			ClaimID:      record.ClaimID,
			Attempt:      record.Attempts,
			CachedResult: copyAnyMap(record.Result),
			LeaseUntil:   record.LeaseExpiresAt,
		}
	}
	return core.Reservation{
		Outcome:    core.ReservationAlreadyReserved,
		ClaimID:    record.ClaimID,
		Attempt:    record.Attempts,
		LeaseUntil: record.LeaseExpiresAt,
	}
}

func findClaimByKeyTx(ctx context.Context, tx bun.Tx, key string) (*idempotencyClaimRecord, error) {
	record := &idempotencyClaimRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func findClaimByClaimIDTx(ctx context.Context, tx bun.Tx, claimID string) (*idempotencyClaimRecord, error) {
	record := &idempotencyClaimRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.claim_id = ?", claimID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

var _ core.IdempotencyLedger = (*IdempotencyStore)(nil)
