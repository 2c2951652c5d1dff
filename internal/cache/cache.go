// Package cache provides the TTL cache backing every probe.
//
// Lookups are pure signals: a miss or a stale entry never triggers a
// fetch, the probe decides what to do. Entries expire lazily on read.
// Two tiers are supported: a fast in-process tier and an optional shared
// Postgres tier for multi-instance deployments. Probes check memory →
// shared → upstream and back-fill both tiers on a miss.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/meghal86/guardian/internal/metrics"
)

// Meta carries provenance and freshness for a cache entry.
type Meta struct {
	Source    string        `json:"source"` // provider that produced the value
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"ttl"`
}

// Age returns how long ago the entry was fetched.
func (m Meta) Age() time.Duration {
	return time.Since(m.FetchedAt)
}

// Fresh reports whether the entry is within its TTL.
func (m Meta) Fresh() bool {
	return m.Age() <= m.TTL
}

// Remaining returns the TTL left on the entry, zero if expired.
func (m Meta) Remaining() time.Duration {
	if r := m.TTL - m.Age(); r > 0 {
		return r
	}
	return 0
}

// Tier is one cache storage layer.
type Tier interface {
	// Get returns the raw value and metadata for key. found=false on miss.
	// Stale entries are still returned with found=true; the caller checks
	// Meta.Fresh and decides.
	Get(ctx context.Context, key string) (value json.RawMessage, meta Meta, found bool)
	// Set stores value under key with the given TTL and source label.
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration, source string)
}

// Tiered chains a fast tier with an optional shared tier.
type Tiered struct {
	memory Tier
	shared Tier // may be nil
}

// NewTiered creates a tiered cache. shared may be nil for single-instance
// deployments.
func NewTiered(memory, shared Tier) *Tiered {
	return &Tiered{memory: memory, shared: shared}
}

// Get checks the memory tier first, then the shared tier. A fresh shared
// hit back-fills the memory tier with the remaining TTL.
func (t *Tiered) Get(ctx context.Context, key string) (json.RawMessage, Meta, bool) {
	if value, meta, ok := t.memory.Get(ctx, key); ok {
		result := "hit"
		if !meta.Fresh() {
			result = "stale"
		}
		metrics.CacheRequestsTotal.WithLabelValues("memory", result).Inc()
		return value, meta, true
	}
	metrics.CacheRequestsTotal.WithLabelValues("memory", "miss").Inc()

	if t.shared == nil {
		return nil, Meta{}, false
	}

	value, meta, ok := t.shared.Get(ctx, key)
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues("shared", "miss").Inc()
		return nil, Meta{}, false
	}

	result := "hit"
	if !meta.Fresh() {
		result = "stale"
	}
	metrics.CacheRequestsTotal.WithLabelValues("shared", result).Inc()

	if meta.Fresh() {
		t.memory.Set(ctx, key, value, meta.Remaining(), meta.Source)
	}
	return value, meta, true
}

// Set writes through both tiers.
func (t *Tiered) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration, source string) {
	t.memory.Set(ctx, key, value, ttl, source)
	if t.shared != nil {
		t.shared.Set(ctx, key, value, ttl, source)
	}
}
