package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// memEntry pairs a stored value with its metadata.
type memEntry struct {
	value json.RawMessage
	meta  Meta
}

// Memory is the in-process cache tier.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	stop    chan struct{}
	once    sync.Once
}

// gcGrace is how long past expiry an entry survives before the sweeper
// removes it. Entries are never removed on read (lazy expiry), the
// sweeper only bounds memory growth.
const gcGrace = 10 * time.Minute

// NewMemory creates an in-process cache tier with a background sweeper.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]memEntry),
		stop:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *Memory) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			for key, e := range m.entries {
				if e.meta.Age() > e.meta.TTL+gcGrace {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// Stop stops the sweeper goroutine.
func (m *Memory) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// Get returns the entry for key, stale or not. found=false only on a
// true miss.
func (m *Memory) Get(ctx context.Context, key string) (json.RawMessage, Meta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, Meta{}, false
	}
	return e.value, e.meta, true
}

// Set stores value under key, overwriting any previous entry.
func (m *Memory) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memEntry{
		value: value,
		meta: Meta{
			Source:    source,
			FetchedAt: time.Now(),
			TTL:       ttl,
		},
	}
}

var _ Tier = (*Memory)(nil)
