package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/core/port"
)

const (
	// DefaultSnapshotTTL bounds how long a cached snapshot is served without a network call.
	DefaultSnapshotTTL = 5 * time.Minute

	snapshotFlightKey = "permissions"
)

type cacheEntry struct {
	value     domain.PermissionSnapshot
	fetchedAt time.Time
	stale     bool
}

// SnapshotCache serves the last known permission snapshot and collapses concurrent
// fetches into a single network call.
type SnapshotCache struct {
	fetcher port.SnapshotFetcher
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	entry    *cacheEntry
	fetching bool
	epoch    uint64
}

// NewSnapshotCache constructs a cache in front of fetcher. A non-positive ttl selects DefaultSnapshotTTL.
func NewSnapshotCache(fetcher port.SnapshotFetcher, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{
		fetcher: fetcher,
		ttl:     ttl,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
}

// WithLogger attaches a structured logger.
func (c *SnapshotCache) WithLogger(logger *zap.Logger) *SnapshotCache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithNow overrides the clock, primarily for deterministic testing.
func (c *SnapshotCache) WithNow(now func() time.Time) *SnapshotCache {
	if now != nil {
		c.now = now
	}
	return c
}

// Read returns a best-effort snapshot. ok is false only when no snapshot was ever fetched.
func (c *SnapshotCache) Read(ctx context.Context, ignoreCache bool) (domain.PermissionSnapshot, bool) {
	c.mu.RLock()
	if !ignoreCache && !c.fetching && c.freshLocked() {
		value := c.entry.value
		c.mu.RUnlock()
		return value, true
	}
	c.mu.RUnlock()

	snapshot, err := c.Fetch(ctx)
	if err == nil {
		return snapshot, true
	}

	c.logger.Debug("snapshot read fell back to cached value", zap.Error(err))
	return c.Peek()
}

// Fetch forces a network fetch, joining any fetch already in flight, and stores the result.
func (c *SnapshotCache) Fetch(ctx context.Context) (domain.PermissionSnapshot, error) {
	// The request outlives callers that stop waiting; only the HTTP timeout bounds it.
	detached := context.WithoutCancel(ctx)
	resultCh := c.group.DoChan(snapshotFlightKey, func() (interface{}, error) {
		epoch := c.beginFetch()
		defer c.setFetching(false)

		payload, err := c.fetcher.FetchSnapshot(detached)
		if err != nil {
			return nil, err
		}
		return c.store(payload, epoch), nil
	})

	select {
	case <-ctx.Done():
		return domain.PermissionSnapshot{}, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return domain.PermissionSnapshot{}, res.Err
		}
		return res.Val.(domain.PermissionSnapshot), nil
	}
}

// Peek returns the last known snapshot without any I/O.
func (c *SnapshotCache) Peek() (domain.PermissionSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return domain.PermissionSnapshot{}, false
	}
	return c.entry.value, true
}

// FetchedAt returns when the cached snapshot was retrieved.
func (c *SnapshotCache) FetchedAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return time.Time{}, false
	}
	return c.entry.fetchedAt, true
}

// Invalidate forces the next Read to hit the network while keeping the last value.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry != nil {
		c.entry.stale = true
	}
}

// Clear drops the cached snapshot entirely. Fetches already in flight do not repopulate it.
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
	c.epoch++
}

func (c *SnapshotCache) store(payload domain.SnapshotPayload, epoch uint64) domain.PermissionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return domain.SnapshotFromPayload(payload, nil)
	}

	var previous *domain.PermissionSnapshot
	if c.entry != nil {
		prev := c.entry.value
		previous = &prev
	}
	snapshot := domain.SnapshotFromPayload(payload, previous)
	c.entry = &cacheEntry{value: snapshot, fetchedAt: c.now()}
	return snapshot
}

func (c *SnapshotCache) beginFetch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetching = true
	return c.epoch
}

func (c *SnapshotCache) setFetching(v bool) {
	c.mu.Lock()
	c.fetching = v
	c.mu.Unlock()
}

func (c *SnapshotCache) freshLocked() bool {
	if c.entry == nil || c.entry.stale {
		return false
	}
	return c.now().Sub(c.entry.fetchedAt) < c.ttl
}
