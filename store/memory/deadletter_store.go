package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ordersync/core"
	"github.com/google/uuid"
)

const defaultDeadLetterListLimit = 100

// DeadLetterStore keeps dead letters in memory, newest first on List.
type DeadLetterStore struct {
	mu      sync.Mutex
	records map[string]core.DeadLetterRecord
	Now     func() time.Time
}

func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{
		records: map[string]core.DeadLetterRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *DeadLetterStore) Record(_ context.Context, record core.DeadLetterRecord) (core.DeadLetterRecord, error) {
	if s == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("memory: dead letter store is not configured")
	}
	if strings.TrimSpace(record.Envelope.EntityKey) == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("memory: dead letter entity key is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.FailedAt.IsZero() {
		record.FailedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record, nil
}

func (s *DeadLetterStore) Get(_ context.Context, id string) (core.DeadLetterRecord, error) {
	if s == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("memory: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("memory: dead letter id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return core.DeadLetterRecord{}, fmt.Errorf("%w: %s", core.ErrDeadLetterNotFound, id)
	}
	return record, nil
}

func (s *DeadLetterStore) List(_ context.Context, filter core.DeadLetterFilter) ([]core.DeadLetterRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: dead letter store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeadLetterListLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	matches := make([]core.DeadLetterRecord, 0, len(s.records))
	for _, record := range s.records {
		if filter.EntityKey != "" && record.Envelope.EntityKey != filter.EntityKey {
			continue
		}
		if filter.Reason != "" && record.Reason != filter.Reason {
			continue
		}
		matches = append(matches, record)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].FailedAt.After(matches[j].FailedAt)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *DeadLetterStore) MarkResubmitted(_ context.Context, id string) (core.DeadLetterRecord, error) {
	if s == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("memory: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("memory: dead letter id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return core.DeadLetterRecord{}, fmt.Errorf("%w: %s", core.ErrDeadLetterNotFound, id)
	}
	record.Resubmitted = true
	s.records[id] = record
	return record, nil
}

func (s *DeadLetterStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.DeadLetterStore = (*DeadLetterStore)(nil)
