package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Expired entries are evicted on read
// and on every sweep triggered by Set.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry

	// sweepEvery bounds how many Sets happen between full expiry sweeps
	sweepEvery int
	sets       int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*Entry),
		sweepEvery: 64,
	}
}

// Get retrieves a cache entry by key.
func (m *MemoryStore) Get(_ context.Context, key CacheKey) (*Entry, error) {
	k := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[k]
	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}
	if entry.IsExpired() {
		delete(m.entries, k)
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	cp := *entry
	return &cp, nil
}

// Set stores a cache entry until it expires.
func (m *MemoryStore) Set(_ context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL() <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.entries[key.String()] = &cp

	m.sets++
	if m.sets >= m.sweepEvery {
		m.sets = 0
		for k, e := range m.entries {
			if e.IsExpired() {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

// DeletePrefix removes all entries under prefix.
func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
