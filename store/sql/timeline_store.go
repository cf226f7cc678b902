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

// TimelineStore persists the per-entity append log. The sequence is
// allocated inside the append transaction from the current per-entity
// maximum; the unique (entity_key, sequence) constraint backstops
// concurrent appenders.
type TimelineStore struct {
	db   *bun.DB
	repo repository.Repository[*timelineEntryRecord]
}

func NewTimelineStore(db *bun.DB) (*TimelineStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*timelineEntryRecord](db, timelineEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid timeline repository wiring: %w", err)
		}
	}
	return &TimelineStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *TimelineStore) Append(ctx context.Context, entry core.TimelineEntry) (core.TimelineEntry, error) {
	if s == nil || s.db == nil {
		return core.TimelineEntry{}, fmt.Errorf("sqlstore: timeline store is not configured")
	}
	entry.EntityKey = strings.TrimSpace(entry.EntityKey)
	if entry.EntityKey == "" {
		return core.TimelineEntry{}, fmt.Errorf("sqlstore: entity key is required")
	}
	now := time.Now().UTC()
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = now
	}

	var out core.TimelineEntry
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var maxSequence sql.NullInt64
			if err := tx.NewSelect().
				Model((*timelineEntryRecord)(nil)).
				ColumnExpr("MAX(?TableAlias.sequence)").
				Where("?TableAlias.entity_key = ?", entry.EntityKey).
				Scan(ctx, &maxSequence); err != nil && err != sql.ErrNoRows {
				return err
			}

			record := &timelineEntryRecord{
				ID:         uuid.NewString(),
				EntityKey:  entry.EntityKey,
				Sequence:   maxSequence.Int64 + 1,
				EventID:    entry.EventID,
				EventType:  string(entry.EventType),
				Source:     string(entry.Source),
				Outcome:    string(entry.Outcome),
				Error:      entry.Error,
				Attempt:    entry.Attempt,
				OccurredAt: entry.OccurredAt,
				ReceivedAt: entry.ReceivedAt,
				LatencyMS:  entry.LatencyMS,
				Metadata:   copyAnyMap(entry.Metadata),
				CreatedAt:  now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isUniqueViolation(err) {
			return core.TimelineEntry{}, err
		}
	}
	return core.TimelineEntry{}, fmt.Errorf("sqlstore: allocate timeline sequence for %q: %w", entry.EntityKey, lastErr)
}

func (s *TimelineStore) Timeline(ctx context.Context, entityKey string) ([]core.TimelineEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: timeline store is not configured")
	}
	entityKey = strings.TrimSpace(entityKey)
	if entityKey == "" {
		return nil, fmt.Errorf("sqlstore: entity key is required")
	}

	var records []*timelineEntryRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.entity_key = ?", entityKey).
		OrderExpr("?TableAlias.sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]core.TimelineEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.toDomain())
	}
	return entries, nil
}

var _ core.TimelineStore = (*TimelineStore)(nil)
