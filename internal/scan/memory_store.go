package scan

import (
	"context"
	"strings"
	"sync"
)

// maxHistoryPerAddress caps retained scans per address in memory mode.
const maxHistoryPerAddress = 50

// MemoryStore is an in-memory scan history store for demo/development
// mode. Newest first.
type MemoryStore struct {
	byAddress map[string][]*Result
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory scan history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byAddress: make(map[string][]*Result),
	}
}

func historyKey(address, network string) string {
	return network + ":" + strings.ToLower(address)
}

func (m *MemoryStore) Record(ctx context.Context, result *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := historyKey(result.Address, result.Network)
	history := append([]*Result{result}, m.byAddress[key]...)
	if len(history) > maxHistoryPerAddress {
		history = history[:maxHistoryPerAddress]
	}
	m.byAddress[key] = history
	return nil
}

func (m *MemoryStore) ListByAddress(ctx context.Context, address, network string, limit int) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.byAddress[historyKey(address, network)]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}

	out := make([]*Result, limit)
	copy(out, history[:limit])
	return out, nil
}
