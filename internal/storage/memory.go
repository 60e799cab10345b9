package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory LocalStore. It is used in tests and as a
// fallback when no database path is configured; it does not survive
// restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ LocalStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns the stored document for the named collection.
func (m *MemoryStore) Get(_ context.Context, collection string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[collection]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Put overwrites the named collection with data.
func (m *MemoryStore) Put(_ context.Context, collection string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[collection] = cp
	return nil
}

// Delete removes the named collection.
func (m *MemoryStore) Delete(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, collection)
	return nil
}

// Flush removes every collection.
func (m *MemoryStore) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
