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

const defaultDeadLetterListLimit = 100

// DeadLetterStore persists parked envelopes. Payloads are redacted before
// they hit the row; dead letters outlive the original delivery and may be
// inspected by operators.
type DeadLetterStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterRecord]
}

func NewDeadLetterStore(db *bun.DB) (*DeadLetterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deadLetterRecord](db, deadLetterHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dead letter repository wiring: %w", err)
		}
	}
	return &DeadLetterStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *DeadLetterStore) Record(ctx context.Context, in core.DeadLetterRecord) (core.DeadLetterRecord, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	if strings.TrimSpace(in.Envelope.EntityKey) == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter entity key is required")
	}
	now := time.Now().UTC()
	if in.FailedAt.IsZero() {
		in.FailedAt = now
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}

	record := &deadLetterRecord{
		ID:             in.ID,
		EntityKey:      in.Envelope.EntityKey,
		EventID:        in.Envelope.EventID,
		EventType:      string(in.Envelope.EventType),
		Source:         string(in.Envelope.Source),
		IdempotencyKey: in.Envelope.IdempotencyKey,
		OccurredAt:     in.Envelope.OccurredAt,
		ReceivedAt:     in.Envelope.ReceivedAt,
		Payload:        RedactPayload(in.Envelope.Payload),
		Reason:         string(in.Reason),
		Attempts:       in.Attempts,
		LastError:      in.LastError,
		FailedAt:       in.FailedAt,
		Resubmitted:    in.Resubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.DeadLetterRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *DeadLetterStore) Get(ctx context.Context, id string) (core.DeadLetterRecord, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter id is required")
	}

	record := &deadLetterRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.DeadLetterRecord{}, fmt.Errorf("%w: %s", core.ErrDeadLetterNotFound, id)
		}
		return core.DeadLetterRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *DeadLetterStore) List(ctx context.Context, filter core.DeadLetterFilter) ([]core.DeadLetterRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeadLetterListLimit
	}

	var records []*deadLetterRecord
	query := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.failed_at DESC").
		Limit(limit)
	if entityKey := strings.TrimSpace(filter.EntityKey); entityKey != "" {
		query = query.Where("?TableAlias.entity_key = ?", entityKey)
	}
	if reason := strings.TrimSpace(string(filter.Reason)); reason != "" {
		query = query.Where("?TableAlias.reason = ?", reason)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.DeadLetterRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *DeadLetterStore) MarkResubmitted(ctx context.Context, id string) (core.DeadLetterRecord, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter id is required")
	}
	now := time.Now().UTC()

	var out core.DeadLetterRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &deadLetterRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", core.ErrDeadLetterNotFound, id)
			}
			return err
		}
		record.Resubmitted = true
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.DeadLetterRecord{}, err
	}
	return out, nil
}

var _ core.DeadLetterStore = (*DeadLetterStore)(nil)
