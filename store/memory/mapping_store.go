// Package memory holds process-local store implementations used by tests
// and single instance deployments that do not need a database.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ordersync/core"
)

// MappingStore keeps order mappings in a map guarded by a mutex. Version
// fencing matches the SQL store: every mutation checks the caller's last
// observed version and increments on success.
type MappingStore struct {
	mu       sync.Mutex
	mappings map[string]core.OrderMapping
	Now      func() time.Time
}

func NewMappingStore() *MappingStore {
	return &MappingStore{
		mappings: map[string]core.OrderMapping{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MappingStore) Get(_ context.Context, storefrontOrderID string) (core.OrderMapping, error) {
	if s == nil {
		return core.OrderMapping{}, fmt.Errorf("memory: mapping store is not configured")
	}
	storefrontOrderID = strings.TrimSpace(storefrontOrderID)
	if storefrontOrderID == "" {
		return core.OrderMapping{}, fmt.Errorf("memory: storefront order id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[storefrontOrderID]
	if !ok {
		return core.OrderMapping{}, fmt.Errorf("%w: %s", core.ErrMappingNotFound, storefrontOrderID)
	}
	return mapping, nil
}

func (s *MappingStore) GetByErpOrderID(_ context.Context, erpOrderID string) (core.OrderMapping, error) {
	if s == nil {
		return core.OrderMapping{}, fmt.Errorf("memory: mapping store is not configured")
	}
	erpOrderID = strings.TrimSpace(erpOrderID)
	if erpOrderID == "" {
		return core.OrderMapping{}, fmt.Errorf("memory: erp order id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings {
		if mapping.ErpOrderID == erpOrderID {
			return mapping, nil
		}
	}
	return core.OrderMapping{}, fmt.Errorf("%w: erp order %s", core.ErrMappingNotFound, erpOrderID)
}

func (s *MappingStore) CreatePending(_ context.Context, storefrontOrderID string) (core.OrderMapping, bool, error) {
	if s == nil {
		return core.OrderMapping{}, false, fmt.Errorf("memory: mapping store is not configured")
	}
	storefrontOrderID = strings.TrimSpace(storefrontOrderID)
	if storefrontOrderID == "" {
		return core.OrderMapping{}, false, fmt.Errorf("memory: storefront order id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.mappings[storefrontOrderID]; ok {
		return existing, false, nil
	}
	now := s.now()
	mapping := core.OrderMapping{
		StorefrontOrderID: storefrontOrderID,
		State:             core.MappingStatePending,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.mappings[storefrontOrderID] = mapping
	return mapping, true, nil
}

func (s *MappingStore) AttachErpOrder(
	ctx context.Context,
	storefrontOrderID, erpOrderID string,
	expectedVersion int64,
) (core.OrderMapping, error) {
	if strings.TrimSpace(erpOrderID) == "" {
		return core.OrderMapping{}, fmt.Errorf("memory: erp order id is required")
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
	from, to core.MappingState,
	expectedVersion int64,
) (core.OrderMapping, error) {
	return s.mutate(ctx, storefrontOrderID, expectedVersion, func(mapping *core.OrderMapping, now time.Time) error {
		if mapping.State != from {
			return fmt.Errorf("%w: expected %s, found %s", core.ErrInvalidMappingTransition, from, mapping.State)
		}
		return mapping.TransitionTo(to, now)
	})
}

func (s *MappingStore) RecordError(
	ctx context.Context,
	storefrontOrderID, cause string,
	expectedVersion int64,
) (core.OrderMapping, error) {
	return s.mutate(ctx, storefrontOrderID, expectedVersion, func(mapping *core.OrderMapping, now time.Time) error {
		mapping.LastError = cause
		mapping.UpdatedAt = now
		return nil
	})
}

func (s *MappingStore) mutate(
	_ context.Context,
	storefrontOrderID string,
	expectedVersion int64,
	apply func(mapping *core.OrderMapping, now time.Time) error,
) (core.OrderMapping, error) {
	if s == nil {
		return core.OrderMapping{}, fmt.Errorf("memory: mapping store is not configured")
	}
	storefrontOrderID = strings.TrimSpace(storefrontOrderID)
	if storefrontOrderID == "" {
		return core.OrderMapping{}, fmt.Errorf("memory: storefront order id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[storefrontOrderID]
	if !ok {
		return core.OrderMapping{}, fmt.Errorf("%w: %s", core.ErrMappingNotFound, storefrontOrderID)
	}
	if mapping.Version != expectedVersion {
		return core.OrderMapping{}, fmt.Errorf(
			"%w: expected version %d, found %d",
			core.ErrVersionConflict, expectedVersion, mapping.Version,
		)
	}
	now := s.now()
	if err := apply(&mapping, now); err != nil {
		return core.OrderMapping{}, err
	}
	mapping.Version = expectedVersion + 1
	mapping.UpdatedAt = now
	s.mappings[storefrontOrderID] = mapping
	return mapping, nil
}

func (s *MappingStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.MappingStore = (*MappingStore)(nil)
