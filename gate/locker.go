package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ordersync/core"
)

const (
	defaultLockTTL     = 15 * time.Second
	defaultAcquireWait = 5 * time.Second
	acquirePollStep    = 10 * time.Millisecond
)

// MemoryEntityLocker is a lease-based in-process locker. Leases expire so
// a crashed holder cannot wedge an entity. Each lease carries a fencing
// token so a stale handle cannot release a successor's lease after a
// takeover.
type MemoryEntityLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLease
	seq   uint64
	nowFn func() time.Time
}

type memoryLease struct {
	token uint64
	until time.Time
}

func NewMemoryEntityLocker() *MemoryEntityLocker {
	return &MemoryEntityLocker{
		locks: make(map[string]memoryLease),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryEntityLocker) Acquire(_ context.Context, entityKey string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("gate: entity locker is not configured")
	}
	entityKey = strings.TrimSpace(entityKey)
	if entityKey == "" {
		return nil, fmt.Errorf("gate: entity key is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.locks[entityKey]; ok && now.Before(lease.until) {
		return nil, fmt.Errorf("%w: %q", core.ErrEntityLockUnavailable, entityKey)
	}
	l.seq++
	l.locks[entityKey] = memoryLease{token: l.seq, until: now.Add(ttl)}
	return &memoryLockHandle{locker: l, entityKey: entityKey, token: l.seq}, nil
}

type memoryLockHandle struct {
	locker    *MemoryEntityLocker
	entityKey string
	token     uint64
	once      sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		if lease, ok := h.locker.locks[h.entityKey]; ok && lease.token == h.token {
			delete(h.locker.locks, h.entityKey)
		}
		h.locker.mu.Unlock()
	})
	return nil
}

// WithEntityLock acquires the entity lock with a bounded wait, runs fn,
// and releases the lock. A wait timeout surfaces as the transient
// ErrEntityLockUnavailable so dispatchers schedule a retry instead of
// failing the envelope.
func WithEntityLock(
	ctx context.Context,
	locker core.EntityLocker,
	entityKey string,
	ttl time.Duration,
	wait time.Duration,
	fn func(ctx context.Context) error,
) error {
	if locker == nil {
		return fmt.Errorf("gate: entity locker is required")
	}
	if fn == nil {
		return fmt.Errorf("gate: lock callback is required")
	}
	if wait < 0 {
		wait = defaultAcquireWait
	}

	deadline := time.Now().Add(wait)
	var handle core.LockHandle
	for {
		var err error
		handle, err = locker.Acquire(ctx, entityKey, ttl)
		if err == nil {
			break
		}
		if ctx != nil && ctx.Err() != nil {
			return fmt.Errorf("%w: %v", core.ErrEntityLockUnavailable, ctx.Err())
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: wait exhausted for %q", core.ErrEntityLockUnavailable, entityKey)
		}
		time.Sleep(acquirePollStep)
	}
	defer handle.Unlock(ctx)

	return fn(ctx)
}

var _ core.EntityLocker = (*MemoryEntityLocker)(nil)
