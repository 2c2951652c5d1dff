package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	cfg := Config{
		Capacity:        5,
		RefillPerSecond: 1,
		CleanupInterval: time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "ip:test"

	// Should allow capacity requests immediately
	for i := 0; i < 5; i++ {
		if ok, _ := limiter.Allow(key); !ok {
			t.Errorf("Request %d should be allowed (within capacity)", i)
		}
	}

	// Next request should be denied with a retry hint
	ok, retryAfter := limiter.Allow(key)
	if ok {
		t.Error("Request after capacity should be denied")
	}
	if retryAfter < 1 {
		t.Errorf("Expected retryAfter >= 1, got %d", retryAfter)
	}

	// Wait for token replenishment (1 token/sec)
	time.Sleep(1100 * time.Millisecond)

	// Should allow again
	if ok, _ := limiter.Allow(key); !ok {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	cfg := Config{
		Capacity:        3,
		RefillPerSecond: 1,
		CleanupInterval: time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	// Client A uses up their tokens
	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}

	// Client A is now rate limited
	if ok, _ := limiter.Allow("client-a"); ok {
		t.Error("Client A should be rate limited")
	}

	// Client B should still have tokens
	if ok, _ := limiter.Allow("client-b"); !ok {
		t.Error("Client B should not be rate limited")
	}
}

func TestLimiterTokenReplenishment(t *testing.T) {
	cfg := Config{
		Capacity:        1,
		RefillPerSecond: 10,
		CleanupInterval: time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "test"

	// Use the one token
	if ok, _ := limiter.Allow(key); !ok {
		t.Error("First request should be allowed")
	}

	// Should be denied
	if ok, _ := limiter.Allow(key); ok {
		t.Error("Second immediate request should be denied")
	}

	// Wait 100ms (should get 1 token at 10/sec)
	time.Sleep(110 * time.Millisecond)

	// Should be allowed again
	if ok, _ := limiter.Allow(key); !ok {
		t.Error("Request after 100ms should be allowed")
	}
}

func TestLimiterRetryAfterHint(t *testing.T) {
	cfg := Config{
		Capacity:        2,
		RefillPerSecond: 0.5, // 1 token per 2s
		CleanupInterval: time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	limiter.Allow("k")
	limiter.Allow("k")

	ok, retryAfter := limiter.Allow("k")
	if ok {
		t.Fatal("Expected denial")
	}
	// Bucket is near 0 tokens; next token takes ~2s.
	if retryAfter < 2 {
		t.Errorf("Expected retryAfter >= 2 at 0.5 tokens/sec, got %d", retryAfter)
	}
}

type failingStore struct{}

func (failingStore) Take(key string, fn func(b *Bucket)) error {
	return errors.New("store unavailable")
}

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	limiter := NewWithStore(DefaultConfig(), failingStore{})

	// Every request must be allowed when the backing store is down.
	for i := 0; i < 100; i++ {
		if ok, _ := limiter.Allow("anyone"); !ok {
			t.Fatal("Limiter must fail open on store errors")
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10 {
		t.Errorf("Expected capacity 10, got %d", cfg.Capacity)
	}
	if cfg.RefillPerSecond != 1.0 {
		t.Errorf("Expected 1 token/sec, got %f", cfg.RefillPerSecond)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("Expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}
