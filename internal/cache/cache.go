// Package cache stores analyzer responses for a bounded time.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Store is a TTL key/value cache.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	Clear()
	Size() int
}

// Key builds the cache key for an analyzer and its normalized target.
func Key(analyzer, target string) string {
	return analyzer + ":" + strings.TrimSpace(target)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Expired entries are dropped lazily on
// Get, or in bulk by Sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore returns an empty store on the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an empty store reading time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get returns the value for key if present and not expired.
func (m *MemoryStore) Get(key string) (any, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check: a concurrent Set may have refreshed it.
		if cur, still := m.entries[key]; still && m.now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (m *MemoryStore) Set(key string, value any, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Delete removes key.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Clear removes every entry.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
}

// Size returns the number of stored entries, expired ones included.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops every expired entry and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// NoopStore never stores anything.
type NoopStore struct{}

func (NoopStore) Get(string) (any, bool)         { return nil, false }
func (NoopStore) Set(string, any, time.Duration) {}
func (NoopStore) Delete(string)                  {}
func (NoopStore) Clear()                         {}
func (NoopStore) Size() int                      { return 0 }
