// Package ratelimit provides token-bucket rate limiting for the scan entrypoint.
//
// Two buckets guard each request: a per-IP bucket for coarse abuse control
// and a per-API-key bucket for fair use. The limiter fails open when its
// backing store errors — scan availability beats strict quota enforcement.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meghal86/guardian/internal/metrics"
)

// Config configures rate limiting
type Config struct {
	// Capacity is the token bucket size per caller key
	Capacity int
	// RefillPerSecond is the token refill rate
	RefillPerSecond float64
	// CleanupInterval is how often to clean old entries
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Capacity:        10,
		RefillPerSecond: 1.0,
		CleanupInterval: time.Minute,
	}
}

// Store holds bucket state. The in-memory store never errors; a shared
// store (multi-instance deployments) may.
type Store interface {
	// Take loads the bucket for key, applies fn, and persists the result.
	Take(key string, fn func(b *Bucket)) error
}

// Bucket is the token-bucket state for one caller key.
type Bucket struct {
	Tokens    float64
	LastCheck time.Time
}

// memoryStore is the default in-process bucket store.
type memoryStore struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

func newMemoryStore() *memoryStore {
	return &memoryStore{buckets: make(map[string]*Bucket)}
}

func (s *memoryStore) Take(key string, fn func(b *Bucket)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &Bucket{}
		s.buckets[key] = b
	}
	fn(b)
	return nil
}

func (s *memoryStore) prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		if b.LastCheck.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}

// Limiter tracks rate limits by caller key
type Limiter struct {
	cfg   Config
	store Store
	mem   *memoryStore // non-nil when using the default store (for cleanup)
	stop  chan struct{}
	once  sync.Once
}

// New creates a new rate limiter backed by the in-memory store
func New(cfg Config) *Limiter {
	mem := newMemoryStore()
	l := &Limiter{
		cfg:   cfg,
		store: mem,
		mem:   mem,
		stop:  make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// NewWithStore creates a rate limiter on a custom bucket store.
func NewWithStore(cfg Config, store Store) *Limiter {
	return &Limiter{
		cfg:   cfg,
		store: store,
		stop:  make(chan struct{}),
	}
}

// cleanup removes stale entries periodically
func (l *Limiter) cleanup() {
	interval := l.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if l.mem != nil {
				l.mem.prune(time.Now().Add(-2 * time.Minute))
			}
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow checks if a request should be allowed. On denial, retryAfter is
// the number of whole seconds until a token becomes available.
// Fails open (allows) if the backing store errors.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter int) {
	err := l.store.Take(key, func(b *Bucket) {
		now := time.Now()

		if b.LastCheck.IsZero() {
			// First sighting: full bucket minus this request.
			b.Tokens = float64(l.cfg.Capacity) - 1
			b.LastCheck = now
			allowed = true
			return
		}

		// Token bucket algorithm
		elapsed := now.Sub(b.LastCheck).Seconds()
		b.Tokens += elapsed * l.cfg.RefillPerSecond
		if b.Tokens > float64(l.cfg.Capacity) {
			b.Tokens = float64(l.cfg.Capacity)
		}
		b.LastCheck = now

		if b.Tokens >= 1 {
			b.Tokens--
			allowed = true
			return
		}

		allowed = false
		retryAfter = int(math.Ceil((1 - b.Tokens) / l.cfg.RefillPerSecond))
		if retryAfter < 1 {
			retryAfter = 1
		}
	})
	if err != nil {
		// Store down. Fail open: quota enforcement is best-effort.
		return true, 0
	}
	return allowed, retryAfter
}

// Middleware returns a gin middleware enforcing both the per-IP and the
// per-API-key bucket. The key bucket only applies when an Authorization
// header is present.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ok, retryAfter := l.Allow("ip:" + c.ClientIP()); !ok {
			metrics.RateLimitedTotal.WithLabelValues("ip").Inc()
			reject(c, retryAfter)
			return
		}

		if apiKey := c.GetHeader("Authorization"); apiKey != "" {
			userKey := "user:" + apiKey[:min(20, len(apiKey))]
			if ok, retryAfter := l.Allow(userKey); !ok {
				metrics.RateLimitedTotal.WithLabelValues("user").Inc()
				reject(c, retryAfter)
				return
			}
		}

		c.Next()
	}
}

func reject(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":             "rate_limited",
		"message":           "Too many requests. Please slow down.",
		"retryAfterSeconds": retryAfter,
	})
	c.Abort()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
