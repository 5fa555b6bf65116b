package cache

import (
	"context"
	"sync"
	"time"

	"prtrack/internal/types"
)

// MemoryCache is a process-local Cache with per-entry expiry. Suitable for
// tests and single-process deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   types.Clock
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty MemoryCache using the real clock.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(types.RealClock{})
}

// NewMemoryCacheWithClock creates a MemoryCache with an injected clock.
// Tests use this to exercise expiry without sleeping.
func NewMemoryCacheWithClock(clock types.Clock) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

// Get implements Cache. Expired entries are dropped lazily on access.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if m.clock.Now().After(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry meanwhile.
		if cur, stillThere := m.entries[key]; stillThere && m.clock.Now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache. Last write wins.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: m.clock.Now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of live entries. Intended for tests.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Compile-time assertion that MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
