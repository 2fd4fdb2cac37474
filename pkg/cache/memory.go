package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store. Entries are replaced atomically under the
// write lock; expired entries are evicted lazily on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the value stored under key, or ErrCacheMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a fresh value may have landed.
		if current, ok := m.entries[key]; ok && time.Now().After(current.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry.value, nil
}

// Set stores value under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache set %q: ttl must be positive", key)
	}

	copied := make([]byte, len(value))
	copy(copied, value)

	m.mu.Lock()
	m.entries[key] = memoryEntry{value: copied, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()

	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Close implements Store. The in-process store holds no resources.
func (m *Memory) Close() error {
	return nil
}

// Len reports the number of entries, including not-yet-evicted expired ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
