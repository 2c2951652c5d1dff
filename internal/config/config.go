// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/meghal86/guardian/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL     string
	ChainID    int64
	PrivateKey string // Hex-encoded signer key for revoke submission (optional in demo mode)

	// Upstream provider endpoints. Empty endpoints switch the matching
	// probe to its simulated provider.
	ReputationAPIURL string
	ReputationAPIKey string
	MixerAPIURL      string
	MixerAPIKey      string
	ContractAPIURL   string
	ContractAPIKey   string

	// Scan engine tuning
	ProbeTimeout         time.Duration // per-probe upstream budget
	ScanDeadline         time.Duration // global scan ceiling
	CacheTTL             time.Duration // default probe cache TTL
	SharedCacheOpTimeout time.Duration // shared cache tier op timeout
	BreakerFailures      int           // consecutive failures before the circuit opens
	BreakerCooldown      time.Duration // open-state duration before half-open probe

	// Rate limiting
	RateLimitCapacity int     // token bucket capacity per caller key
	RateLimitRefill   float64 // tokens per second

	// Trust score tuning (documented defaults, iterated on in production)
	Weights Weights

	// Tracing
	OTLPEndpoint string
}

// Weights are the per-category base weights used by the trust score
// calculator. Exposed as configuration because these values get tuned.
type Weights struct {
	Approvals  float64
	Reputation float64
	Mixer      float64
	Contract   float64
}

// Defaults
const (
	DefaultRPCURL          = "https://eth.llamarpc.com"
	DefaultChainID         = 1
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultProbeTimeout    = 2 * time.Second
	DefaultScanDeadline    = 5 * time.Second
	DefaultCacheTTL        = 5 * time.Minute
	DefaultSharedCacheOp   = 200 * time.Millisecond
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
	DefaultRateCapacity    = 10
	DefaultRateRefill      = 1.0
)

// DefaultWeights returns the baseline scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Approvals:  5,
		Reputation: 10,
		Mixer:      10,
		Contract:   15,
	}
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:           getEnv("RPC_URL", DefaultRPCURL),
		ChainID:          getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:       os.Getenv("PRIVATE_KEY"),
		ReputationAPIURL: os.Getenv("REPUTATION_API_URL"),
		ReputationAPIKey: os.Getenv("REPUTATION_API_KEY"),
		MixerAPIURL:      os.Getenv("MIXER_API_URL"),
		MixerAPIKey:      os.Getenv("MIXER_API_KEY"),
		ContractAPIURL:   os.Getenv("CONTRACT_API_URL"),
		ContractAPIKey:   os.Getenv("CONTRACT_API_KEY"),

		ProbeTimeout:         getEnvDuration("PROBE_TIMEOUT", DefaultProbeTimeout),
		ScanDeadline:         getEnvDuration("SCAN_DEADLINE", DefaultScanDeadline),
		CacheTTL:             getEnvDuration("CACHE_TTL", DefaultCacheTTL),
		SharedCacheOpTimeout: getEnvDuration("SHARED_CACHE_OP_TIMEOUT", DefaultSharedCacheOp),
		BreakerFailures:      int(getEnvInt64("BREAKER_FAILURES", DefaultBreakerFailures)),
		BreakerCooldown:      getEnvDuration("BREAKER_COOLDOWN", DefaultBreakerCooldown),

		RateLimitCapacity: int(getEnvInt64("RATE_LIMIT_CAPACITY", DefaultRateCapacity)),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL", DefaultRateRefill),

		Weights: Weights{
			Approvals:  getEnvFloat("SCORE_WEIGHT_APPROVALS", DefaultWeights().Approvals),
			Reputation: getEnvFloat("SCORE_WEIGHT_REPUTATION", DefaultWeights().Reputation),
			Mixer:      getEnvFloat("SCORE_WEIGHT_MIXER", DefaultWeights().Mixer),
			Contract:   getEnvFloat("SCORE_WEIGHT_CONTRACT", DefaultWeights().Contract),
		},

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PrivateKey != "" {
		// Allow both with and without 0x prefix
		key := c.PrivateKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	if c.ProbeTimeout <= 0 || c.ScanDeadline <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT and SCAN_DEADLINE must be positive")
	}
	if c.ProbeTimeout >= c.ScanDeadline {
		return fmt.Errorf("PROBE_TIMEOUT (%s) must be below SCAN_DEADLINE (%s)", c.ProbeTimeout, c.ScanDeadline)
	}
	if c.RateLimitCapacity <= 0 || c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate limit capacity and refill must be positive")
	}

	// Provider endpoints are fetched server-side; in production they must
	// not point at internal addresses. Development allows local simulators.
	if c.IsProduction() {
		endpoints := map[string]string{
			"REPUTATION_API_URL": c.ReputationAPIURL,
			"MIXER_API_URL":      c.MixerAPIURL,
			"CONTRACT_API_URL":   c.ContractAPIURL,
		}
		for name, u := range endpoints {
			if u == "" {
				continue
			}
			if err := security.ValidateEndpointURL(u); err != nil {
				return fmt.Errorf("%s: %v", name, err)
			}
		}
	}

	return nil
}

// DemoMode reports whether the engine should run on simulated providers.
// Triggered when no upstream endpoints are configured at all.
func (c *Config) DemoMode() bool {
	return c.ReputationAPIURL == "" && c.MixerAPIURL == "" && c.ContractAPIURL == ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
