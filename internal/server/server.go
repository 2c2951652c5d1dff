// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/meghal86/guardian/internal/action"
	"github.com/meghal86/guardian/internal/cache"
	"github.com/meghal86/guardian/internal/chain"
	"github.com/meghal86/guardian/internal/circuitbreaker"
	"github.com/meghal86/guardian/internal/config"
	"github.com/meghal86/guardian/internal/health"
	"github.com/meghal86/guardian/internal/idgen"
	"github.com/meghal86/guardian/internal/logging"
	"github.com/meghal86/guardian/internal/metrics"
	"github.com/meghal86/guardian/internal/probe"
	"github.com/meghal86/guardian/internal/ratelimit"
	"github.com/meghal86/guardian/internal/realtime"
	"github.com/meghal86/guardian/internal/scan"
	"github.com/meghal86/guardian/internal/security"
	"github.com/meghal86/guardian/internal/traces"
	"github.com/meghal86/guardian/internal/trustscore"
	"github.com/meghal86/guardian/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	memCache      *cache.Memory
	probeCache    *cache.Tiered
	breaker       *circuitbreaker.Breaker
	chainClient   *chain.Client
	orchestrator  *scan.Orchestrator
	scanStore     scan.Store
	actionService *action.Service
	realtimeHub   *realtime.Hub
	healthReg     *health.Registry
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	stopTracing   func(context.Context) error
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Injected for tests
	probes    []probe.Probe
	submitter action.Submitter

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProbes overrides the probe set (for testing)
func WithProbes(probes []probe.Probe) Option {
	return func(s *Server) {
		s.probes = probes
	}
}

// WithSubmitter overrides the revoke submitter (for testing)
func WithSubmitter(sub action.Submitter) Option {
	return func(s *Server) {
		s.submitter = sub
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set logger/probes/submitter)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Tracing (no-op when OTLP endpoint is unset)
	stopTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.stopTracing = stopTracing

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		sharedTier  cache.Tier
		actionStore action.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.scanStore = scan.NewPostgresStore(db)
		actionStore = action.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// Shared probe-cache tier so all instances see each other's
		// probe results
		pgCache := cache.NewPostgres(db, cfg.SharedCacheOpTimeout, s.logger)
		if err := pgCache.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate probe cache", "error", err)
		}
		sharedTier = pgCache
		s.logger.Info("shared probe cache enabled")
	} else {
		s.scanStore = scan.NewMemoryStore()
		actionStore = action.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Two-tier probe cache: per-instance memory in front, shared
	// Postgres behind it in multi-instance deployments
	s.memCache = cache.NewMemory()
	s.probeCache = cache.NewTiered(s.memCache, sharedTier)

	// Circuit breaker shared by all upstream providers
	s.breaker = circuitbreaker.New(cfg.BreakerFailures, cfg.BreakerCooldown)

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.breaker.OnTransition(func(provider string, from, to circuitbreaker.State) {
		s.logger.Warn("provider circuit transition",
			"provider", provider, "from", from.String(), "to", to.String())
		s.realtimeHub.ProviderHealthChanged(provider, from.String(), to.String())
	})
	s.logger.Info("realtime streaming enabled")

	// Probes (unless injected for tests)
	if s.probes == nil {
		runner := probe.NewRunner(s.probeCache, s.breaker, cfg.ProbeTimeout, cfg.CacheTTL, s.logger)
		s.probes = s.buildProbes(runner)
	}

	// Trust score calculator with tunable weights
	calc := trustscore.NewCalculator(trustscore.Weights(cfg.Weights))

	// Scan orchestrator
	s.orchestrator = scan.NewOrchestrator(s.probes, calc, s.scanStore, s.realtimeHub, cfg.ScanDeadline)

	// Revoke action pipeline: idempotency guard in front of the
	// on-chain (or simulated) submitter
	guard := action.NewGuard(actionStore, action.DefaultExpiry)
	if s.submitter == nil {
		s.submitter = s.buildSubmitter()
	}
	s.actionService = action.NewService(guard, s.submitter)

	// Health checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("database", health.DBChecker(s.db))
	}
	s.healthReg.Register("providers", health.BreakerChecker(s.breaker))

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// buildProbes wires the four risk probes. Each probe falls back to its
// simulated provider when no upstream is configured, so the engine
// always produces a full scan in demo deployments.
func (s *Server) buildProbes(runner *probe.Runner) []probe.Probe {
	cfg := s.cfg

	// Approvals read straight from the chain when an RPC endpoint is
	// available
	var approvals probe.Probe
	if !cfg.DemoMode() && cfg.RPCURL != "" {
		client, err := chain.Dial(cfg.RPCURL, "ethereum", cfg.ChainID)
		if err != nil {
			s.logger.Warn("failed to connect to RPC, approvals probe runs simulated", "error", err)
		} else {
			s.chainClient = client
		}
	}
	if s.chainClient != nil {
		approvals = probe.NewApprovalsProbe(runner, chain.NewApprovalsClient(s.chainClient), false)
		s.logger.Info("approvals probe using on-chain provider", "rpc", cfg.RPCURL)
	} else {
		approvals = probe.NewApprovalsProbe(runner, probe.SimulatedApprovals{}, true)
		s.logger.Info("approvals probe simulated")
	}

	var reputation probe.Probe
	if cfg.ReputationAPIURL != "" {
		reputation = probe.NewReputationProbe(runner, &probe.FailoverReputation{
			Primary:   &probe.HTTPReputationProvider{BaseURL: cfg.ReputationAPIURL, APIKey: cfg.ReputationAPIKey},
			Secondary: probe.SimulatedReputation{},
		}, false)
		s.logger.Info("reputation probe using upstream API")
	} else {
		reputation = probe.NewReputationProbe(runner, probe.SimulatedReputation{}, true)
		s.logger.Info("reputation probe simulated")
	}

	var mixer probe.Probe
	if cfg.MixerAPIURL != "" {
		mixer = probe.NewMixerProbe(runner, &probe.FailoverMixer{
			Primary:   &probe.HTTPMixerProvider{BaseURL: cfg.MixerAPIURL, APIKey: cfg.MixerAPIKey},
			Secondary: probe.SimulatedMixer{},
		}, false)
		s.logger.Info("mixer probe using upstream API")
	} else {
		mixer = probe.NewMixerProbe(runner, probe.SimulatedMixer{}, true)
		s.logger.Info("mixer probe simulated")
	}

	var contract probe.Probe
	if cfg.ContractAPIURL != "" {
		// Contract scanner falls back to raw on-chain code inspection
		// when the chain client is up, simulation otherwise
		var secondary probe.ContractProvider = probe.SimulatedContract{}
		if s.chainClient != nil {
			secondary = chain.NewContractClient(s.chainClient)
		}
		contract = probe.NewContractProbe(runner, &probe.FailoverContract{
			Primary:   &probe.HTTPContractProvider{BaseURL: cfg.ContractAPIURL, APIKey: cfg.ContractAPIKey},
			Secondary: secondary,
		}, false)
		s.logger.Info("contract probe using upstream API")
	} else {
		contract = probe.NewContractProbe(runner, probe.SimulatedContract{}, true)
		s.logger.Info("contract probe simulated")
	}

	return []probe.Probe{approvals, reputation, mixer, contract}
}

// buildSubmitter picks the revoke execution path: real EIP-155
// transactions when a signer key and RPC client are available,
// deterministic simulation otherwise.
func (s *Server) buildSubmitter() action.Submitter {
	if s.cfg.PrivateKey != "" && s.chainClient != nil {
		sub, err := chain.NewRevokeSubmitter(s.chainClient, s.cfg.PrivateKey)
		if err != nil {
			s.logger.Warn("invalid signer key, revoke actions run simulated", "error", err)
		} else {
			s.logger.Info("on-chain revoke submission enabled")
			return sub
		}
	}
	s.logger.Info("revoke actions simulated (no signer key or RPC)")
	return chain.SimulatedSubmitter{}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		Capacity:        s.cfg.RateLimitCapacity,
		RefillPerSecond: s.cfg.RateLimitRefill,
		CleanupInterval: time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time scan streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :address URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AddressParamMiddleware())

	// Scans: POST /v1/scan, GET /v1/scan/stream, GET /v1/scans/:address
	scanHandler := scan.NewHandler(s.orchestrator, s.scanStore)
	scanHandler.RegisterRoutes(v1)

	// Revoke actions: POST /v1/actions/revoke
	actionHandler := action.NewHandler(s.actionService)
	actionHandler.RegisterRoutes(v1)

	// Provider circuit status (ops visibility)
	v1.GET("/providers", s.providersHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Guardian",
		"description": "Wallet risk-scanning engine",
		"version":     "0.1.0",
		"probes":      probe.AllNames(),
		"demo_mode":   s.cfg.DemoMode(),
	})
}

// providersHandler returns the circuit state of every upstream provider
// seen since startup
func (s *Server) providersHandler(c *gin.Context) {
	snapshot := s.breaker.Snapshot()
	if snapshot == nil {
		snapshot = []circuitbreaker.Status{}
	}
	c.JSON(http.StatusOK, gin.H{"providers": snapshot})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"demo_mode", s.cfg.DemoMode(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Sample DB pool stats into Prometheus gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Stop the memory cache sweep goroutine
	if s.memCache != nil {
		s.memCache.Stop()
		s.logger.Info("probe cache stopped")
	}

	// Close RPC connection
	if s.chainClient != nil {
		s.chainClient.Close()
		s.logger.Info("RPC connection closed")
	}

	// Flush pending trace spans
	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	return idgen.Hex(16)
}
