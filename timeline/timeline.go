// Package timeline records what happened to each entity, in the order it
// was applied. Sequence numbers are assigned on append and are the
// per-entity ordering authority; the reader is diagnostics only.
package timeline

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

// MemoryStore is a process-local timeline for tests and single instance
// deployments.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string][]core.TimelineEntry
	sequences map[string]int64
	Now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   map[string][]core.TimelineEntry{},
		sequences: map[string]int64{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryStore) Append(_ context.Context, entry core.TimelineEntry) (core.TimelineEntry, error) {
	if s == nil {
		return core.TimelineEntry{}, fmt.Errorf("timeline: memory store is nil")
	}
	entityKey := strings.TrimSpace(entry.EntityKey)
	if entityKey == "" {
		return core.TimelineEntry{}, fmt.Errorf("timeline: entity key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[entityKey]++
	entry.EntityKey = entityKey
	entry.Sequence = s.sequences[entityKey]
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = s.now()
	}
	s.entries[entityKey] = append(s.entries[entityKey], entry)
	return entry, nil
}

func (s *MemoryStore) Timeline(_ context.Context, entityKey string) ([]core.TimelineEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("timeline: memory store is nil")
	}
	entityKey = strings.TrimSpace(entityKey)
	if entityKey == "" {
		return nil, fmt.Errorf("timeline: entity key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.entries[entityKey]
	out := make([]core.TimelineEntry, len(stored))
	copy(out, stored)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Reader is the diagnostics-facing view over any timeline store.
type Reader struct {
	store core.TimelineStore
}

func NewReader(store core.TimelineStore) *Reader {
	return &Reader{store: store}
}

func (r *Reader) Timeline(ctx context.Context, entityKey string) ([]core.TimelineEntry, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("timeline: reader is not configured")
	}
	return r.store.Timeline(ctx, entityKey)
}

// LastOutcome reports the most recent outcome for an entity, if any.
func (r *Reader) LastOutcome(ctx context.Context, entityKey string) (core.Outcome, bool, error) {
	entries, err := r.Timeline(ctx, entityKey)
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[len(entries)-1].Outcome, true, nil
}

var _ core.TimelineStore = (*MemoryStore)(nil)
