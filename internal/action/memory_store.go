package action

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory idempotency record store for
// demo/development mode.
type MemoryStore struct {
	records map[string]*IdempotencyRecord
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*IdempotencyRecord),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *record
	return &cp, nil
}

func (m *MemoryStore) Put(ctx context.Context, record *IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *record
	m.records[record.Key] = &cp
	return nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, record := range m.records {
		if record.ExpiresAt.Before(before) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}
