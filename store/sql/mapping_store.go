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

// MappingStore persists order mappings with a version fencing token. Every
// conditional write re-reads the row inside a transaction and compares the
// caller's expected version before touching it.
type MappingStore struct {
	db   *bun.DB
	repo repository.Repository[*orderMappingRecord]
}

func NewMappingStore(db *bun.DB) (*MappingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderMappingRecord](db, orderMappingHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order mapping repository wiring: %w", err)
		}
	}
	return &MappingStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *MappingStore) Get(ctx context.Context, storefrontOrderID string) (core.OrderMapping, error) {
	if s == nil || s.db == nil {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	storefrontOrderID = strings.TrimSpace(storefrontOrderID)
	if storefrontOrderID == "" {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: storefront order id is required")
	}

	record := &orderMappingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.storefront_order_id = ?", storefrontOrderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.OrderMapping{}, fmt.Errorf("%w: %s", core.ErrMappingNotFound, storefrontOrderID)
		}
		return core.OrderMapping{}, err
	}
	return record.toDomain(), nil
}

// GetByErpOrderID resolves a mapping from the ERP order id. Only linked
// rows carry one, so an unlinked order reads as not found.
func (s *MappingStore) GetByErpOrderID(ctx context.Context, erpOrderID string) (core.OrderMapping, error) {
	if s == nil || s.db == nil {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	erpOrderID = strings.TrimSpace(erpOrderID)
	if erpOrderID == "" {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: erp order id is required")
	}

	record := &orderMappingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.erp_order_id = ?", erpOrderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.OrderMapping{}, fmt.Errorf("%w: erp order %s", core.ErrMappingNotFound, erpOrderID)
		}
		return core.OrderMapping{}, err
	}
	return record.toDomain(), nil
}

// CreatePending inserts the pending row for a storefront order. The second
// return value reports whether this call created the row; a concurrent
// creator losing the insert race gets the winner's row back instead.
func (s *MappingStore) CreatePending(ctx context.Context, storefrontOrderID string) (core.OrderMapping, bool, error) {
	if s == nil || s.db == nil {
		return core.OrderMapping{}, false, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	storefrontOrderID = strings.TrimSpace(storefrontOrderID)
	if storefrontOrderID == "" {
		return core.OrderMapping{}, false, fmt.Errorf("sqlstore: storefront order id is required")
	}
	now := time.Now().UTC()

	var out core.OrderMapping
	created := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findMappingTx(ctx, tx, storefrontOrderID)
		if err != nil {
			return err
		}
		if record != nil {
			out = record.toDomain()
			return nil
		}

		record = &orderMappingRecord{
			ID:                uuid.NewString(),
			StorefrontOrderID: storefrontOrderID,
			State:             string(core.MappingStatePending),
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if isUniqueViolation(insertErr) {
				record, err = findMappingTx(ctx, tx, storefrontOrderID)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
				out = record.toDomain()
				return nil
			}
			return insertErr
		}
		created = true
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.OrderMapping{}, false, err
	}
	return out, created, nil
}

func (s *MappingStore) AttachErpOrder(
	ctx context.Context,
	storefrontOrderID string,
	erpOrderID string,
	expectedVersion int64,
) (core.OrderMapping, error) {
	erpOrderID = strings.TrimSpace(erpOrderID)
	if erpOrderID == "" {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: erp order id is required")
	}
	return s.mutate(ctx, storefrontOrderID, expectedVersion, func(mapping *core.OrderMapping, now time.Time) error {
		if err := mapping.TransitionTo(core.MappingStateLinked, now); err != nil {
			return err
		}
		mapping.ErpOrderID = erpOrderID
		mapping.LastError = ""
		return nil
	})
}

func (s *MappingStore) Transition(
	ctx context.Context,
	storefrontOrderID string,
	from core.MappingState,
	to core.MappingState,
	expectedVersion int64,
) (core.OrderMapping, error) {
	return s.mutate(ctx, storefrontOrderID, expectedVersion, func(mapping *core.OrderMapping, now time.Time) error {
		if mapping.State != from {
			return fmt.Errorf("%w: expected %s, found %s", core.ErrInvalidMappingTransition, from, mapping.State)
		}
		if err := mapping.TransitionTo(to, now); err != nil {
			return err
		}
		mapping.LastError = ""
		return nil
	})
}

func (s *MappingStore) RecordError(
	ctx context.Context,
	storefrontOrderID string,
	cause string,
	expectedVersion int64,
) (core.OrderMapping, error) {
	return s.mutate(ctx, storefrontOrderID, expectedVersion, func(mapping *core.OrderMapping, now time.Time) error {
		mapping.LastError = strings.TrimSpace(cause)
		mapping.UpdatedAt = now
		return nil
	})
}

func (s *MappingStore) mutate(
	ctx context.Context,
	storefrontOrderID string,
	expectedVersion int64,
	apply func(mapping *core.OrderMapping, now time.Time) error,
) (core.OrderMapping, error) {
	if s == nil || s.db == nil {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	storefrontOrderID = strings.TrimSpace(storefrontOrderID)
	if storefrontOrderID == "" {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: storefront order id is required")
	}
	now := time.Now().UTC()

	var out core.OrderMapping
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findMappingTx(ctx, tx, storefrontOrderID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: %s", core.ErrMappingNotFound, storefrontOrderID)
		}
		if record.Version != expectedVersion {
			return fmt.Errorf("%w: expected %d, found %d", core.ErrVersionConflict, expectedVersion, record.Version)
		}

		mapping := record.toDomain()
		if err := apply(&mapping, now); err != nil {
			return err
		}

		record.ErpOrderID = mapping.ErpOrderID
		record.State = string(mapping.State)
		record.LastError = mapping.LastError
		record.Version = expectedVersion + 1
		record.UpdatedAt = now

		result, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Where("version = ?", expectedVersion).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		affected, affectedErr := result.RowsAffected()
		if affectedErr == nil && affected == 0 {
			return fmt.Errorf("%w: %s", core.ErrVersionConflict, storefrontOrderID)
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.OrderMapping{}, err
	}
	return out, nil
}

func findMappingTx(ctx context.Context, tx bun.Tx, storefrontOrderID string) (*orderMappingRecord, error) {
	record := &orderMappingRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.storefront_order_id = ?", strings.TrimSpace(storefrontOrderID)).
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

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.MappingStore = (*MappingStore)(nil)
