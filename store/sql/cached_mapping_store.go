package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-ordersync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const mappingCacheKeyPrefix = "go-ordersync::order_mapping::v1"

// CachedMappingStore serves mapping reads through a cache and invalidates
// on every fenced write. Dispatch is read-heavy: most envelopes only need
// to know the current state and version.
type CachedMappingStore struct {
	base  core.MappingStore
	cache repositorycache.CacheService
}

func NewCachedMappingStore(
	base core.MappingStore,
	cacheService repositorycache.CacheService,
) (*CachedMappingStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base mapping store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: mapping cache service is required")
	}
	return &CachedMappingStore{base: base, cache: cacheService}, nil
}

// MappingCacheKey returns the deterministic cache key contract for mapping
// reads: go-ordersync::order_mapping::v1::<storefront_order_id> with the id
// URL-path escaped.
func MappingCacheKey(storefrontOrderID string) (string, error) {
	storefrontOrderID = strings.TrimSpace(storefrontOrderID)
	if storefrontOrderID == "" {
		return "", fmt.Errorf("sqlstore: storefront order id is required")
	}
	return mappingCacheKeyPrefix + "::" + url.PathEscape(storefrontOrderID), nil
}

func (s *CachedMappingStore) Get(ctx context.Context, storefrontOrderID string) (core.OrderMapping, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	cacheKey, err := MappingCacheKey(storefrontOrderID)
	if err != nil {
		return core.OrderMapping{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.OrderMapping, error) {
		return s.base.Get(ctx, storefrontOrderID)
	})
}

// GetByErpOrderID always reads through to the base store. The cache is
// keyed by storefront order id and the reverse lookup has no fixed key
// to invalidate on write.
func (s *CachedMappingStore) GetByErpOrderID(ctx context.Context, erpOrderID string) (core.OrderMapping, error) {
	if s == nil || s.base == nil {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	return s.base.GetByErpOrderID(ctx, erpOrderID)
}

func (s *CachedMappingStore) CreatePending(ctx context.Context, storefrontOrderID string) (core.OrderMapping, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OrderMapping{}, false, fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	mapping, created, err := s.base.CreatePending(ctx, storefrontOrderID)
	if err != nil {
		return core.OrderMapping{}, false, err
	}
	if err := s.invalidate(ctx, storefrontOrderID); err != nil {
		return core.OrderMapping{}, false, err
	}
	return mapping, created, nil
}

func (s *CachedMappingStore) AttachErpOrder(
	ctx context.Context,
	storefrontOrderID string,
	erpOrderID string,
	expectedVersion int64,
) (core.OrderMapping, error) {
	return s.write(ctx, storefrontOrderID, func(ctx context.Context) (core.OrderMapping, error) {
		return s.base.AttachErpOrder(ctx, storefrontOrderID, erpOrderID, expectedVersion)
	})
}

func (s *CachedMappingStore) Transition(
	ctx context.Context,
	storefrontOrderID string,
	from core.MappingState,
	to core.MappingState,
	expectedVersion int64,
) (core.OrderMapping, error) {
	return s.write(ctx, storefrontOrderID, func(ctx context.Context) (core.OrderMapping, error) {
		return s.base.Transition(ctx, storefrontOrderID, from, to, expectedVersion)
	})
}

func (s *CachedMappingStore) RecordError(
	ctx context.Context,
	storefrontOrderID string,
	cause string,
	expectedVersion int64,
) (core.OrderMapping, error) {
	return s.write(ctx, storefrontOrderID, func(ctx context.Context) (core.OrderMapping, error) {
		return s.base.RecordError(ctx, storefrontOrderID, cause, expectedVersion)
	})
}

func (s *CachedMappingStore) write(
	ctx context.Context,
	storefrontOrderID string,
	mutate func(ctx context.Context) (core.OrderMapping, error),
) (core.OrderMapping, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OrderMapping{}, fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	mapping, err := mutate(ctx)
	if err != nil {
		return core.OrderMapping{}, err
	}
	if err := s.invalidate(ctx, storefrontOrderID); err != nil {
		return core.OrderMapping{}, err
	}
	return mapping, nil
}

func (s *CachedMappingStore) invalidate(ctx context.Context, storefrontOrderID string) error {
	cacheKey, err := MappingCacheKey(storefrontOrderID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.MappingStore = (*CachedMappingStore)(nil)
