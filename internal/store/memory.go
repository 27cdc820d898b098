package store

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Statuses are keyed by beta key, with new results replacing previous
// values. All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]KeyStatus
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string]KeyStatus),
	}
}

// Update stores a [KeyStatus], replacing any previous value for its key.
func (m *MemoryStore) Update(status KeyStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.Key] = status
}

// Get returns the stored status for key.
func (m *MemoryStore) Get(key string) (KeyStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[key]
	return status, ok
}

// GetAll returns a snapshot of all stored statuses, sorted by key so the
// API output is stable across calls.
func (m *MemoryStore) GetAll() []KeyStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]KeyStatus, 0, len(m.statuses))
	for _, status := range m.statuses {
		results = append(results, status)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results
}
