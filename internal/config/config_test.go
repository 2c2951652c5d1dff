package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 5*time.Second, cfg.ScanDeadline)
	assert.Equal(t, DefaultBreakerFailures, cfg.BreakerFailures)
	assert.Equal(t, DefaultWeights(), cfg.Weights)
}

func TestLoad_InvalidPrivateKeyLength(t *testing.T) {
	setEnv(t, "PRIVATE_KEY", "tooshort")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestLoad_ScoreWeightOverrides(t *testing.T) {
	setEnv(t, "SCORE_WEIGHT_CONTRACT", "20")
	setEnv(t, "SCORE_WEIGHT_MIXER", "12.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.Weights.Contract)
	assert.Equal(t, 12.5, cfg.Weights.Mixer)
	assert.Equal(t, DefaultWeights().Approvals, cfg.Weights.Approvals)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		ProbeTimeout:      2 * time.Second,
		ScanDeadline:      5 * time.Second,
		RateLimitCapacity: 10,
		RateLimitRefill:   1,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "private key optional",
			mutate:  func(c *Config) { c.PrivateKey = "" },
			wantErr: "",
		},
		{
			name:    "invalid private key length",
			mutate:  func(c *Config) { c.PrivateKey = "abc123" },
			wantErr: "64 hex characters",
		},
		{
			name:    "probe timeout above deadline",
			mutate:  func(c *Config) { c.ProbeTimeout = 6 * time.Second },
			wantErr: "below SCAN_DEADLINE",
		},
		{
			name:    "zero rate capacity",
			mutate:  func(c *Config) { c.RateLimitCapacity = 0 },
			wantErr: "rate limit",
		},
		{
			name: "production rejects internal provider endpoint",
			mutate: func(c *Config) {
				c.Env = "production"
				c.MixerAPIURL = "http://localhost:9000"
			},
			wantErr: "not allowed",
		},
		{
			name:    "development allows local provider endpoint",
			mutate:  func(c *Config) { c.MixerAPIURL = "http://localhost:9000" },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_DemoMode(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.DemoMode())

	cfg.ReputationAPIURL = "https://rep.example.com"
	assert.False(t, cfg.DemoMode())
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "750ms")
	setEnv(t, "TEST_INVALID", "not_a_duration")

	assert.Equal(t, 750*time.Millisecond, getEnvDuration("TEST_DUR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("NONEXISTENT_VAR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_INVALID", time.Second)) // Falls back on parse error
}
