// Package cache keeps tombstones for orphaned pointers so the enforcement
// guard can deny repeat resolves without a database round trip.
//
// Orphaning is terminal, so a tombstone can never become stale. Tombstones
// expire after a TTL to bound memory; an absent or expired one falls through
// to the authoritative store.
package cache

import (
	"context"
	"sync"
	"time"

	id "veto/pkg/domain"
)

// Tombstones records orphaned pointers.
type Tombstones interface {
	MarkOrphaned(ctx context.Context, pointerID id.PointerID, orphanedAt time.Time) error
	// OrphanedAt reports the orphan time when a tombstone exists.
	OrphanedAt(ctx context.Context, pointerID id.PointerID) (time.Time, bool, error)
}

// sweepEvery is how many writes pass between full scans for expired entries.
const sweepEvery = 256

// Memory is an in-process Tombstones for single-instance deployments and
// tests. Entries expire after the TTL, like the Redis keys, so the map stays
// bounded by the orphans of one TTL window.
type Memory struct {
	mu         sync.RWMutex
	ttl        time.Duration
	clock      func() time.Time
	tombstones map[id.PointerID]memoryEntry
	writes     int
}

type memoryEntry struct {
	orphanedAt time.Time
	expiresAt  time.Time
}

// MemoryOption configures a Memory tombstone cache.
type MemoryOption func(*Memory)

// WithMemoryTTL bounds how long a tombstone is kept. Non-positive values keep
// the default.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ttl:        defaultTombstoneTTL,
		clock:      time.Now,
		tombstones: make(map[id.PointerID]memoryEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) MarkOrphaned(_ context.Context, pointerID id.PointerID, orphanedAt time.Time) error {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tombstones[pointerID] = memoryEntry{orphanedAt: orphanedAt.UTC(), expiresAt: now.Add(m.ttl)}
	m.writes++
	if m.writes >= sweepEvery {
		m.writes = 0
		for key, e := range m.tombstones {
			if !now.Before(e.expiresAt) {
				delete(m.tombstones, key)
			}
		}
	}
	return nil
}

func (m *Memory) OrphanedAt(_ context.Context, pointerID id.PointerID) (time.Time, bool, error) {
	now := m.clock()
	m.mu.RLock()
	e, ok := m.tombstones[pointerID]
	m.mu.RUnlock()
	if !ok {
		return time.Time{}, false, nil
	}
	if now.Before(e.expiresAt) {
		return e.orphanedAt, true, nil
	}

	m.mu.Lock()
	if cur, still := m.tombstones[pointerID]; still && !now.Before(cur.expiresAt) {
		delete(m.tombstones, pointerID)
	}
	m.mu.Unlock()
	return time.Time{}, false, nil
}

// Len reports the number of stored tombstones, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tombstones)
}
