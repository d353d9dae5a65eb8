package wallet

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get returns a copy of the stored record.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record.Clone(), nil
}

// Create inserts a new record, failing if the session already has one.
func (m *MemoryStore) Create(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.SessionID]; exists {
		return ErrWalletConflict
	}
	m.records[record.SessionID] = record.Clone()
	return nil
}

// Save overwrites an existing record.
func (m *MemoryStore) Save(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.SessionID]; !exists {
		return ErrNotFound
	}
	m.records[record.SessionID] = record.Clone()
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
