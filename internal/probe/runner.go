package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meghal86/guardian/internal/cache"
	"github.com/meghal86/guardian/internal/circuitbreaker"
	"github.com/meghal86/guardian/internal/logging"
	"github.com/meghal86/guardian/internal/metrics"
	"github.com/meghal86/guardian/internal/traces"
)

// Runner holds the shared machinery every probe runs through:
// cache → circuit breaker → upstream with a bounded timeout.
type Runner struct {
	Cache   *cache.Tiered
	Breaker *circuitbreaker.Breaker
	Timeout time.Duration // per-probe upstream budget
	TTL     time.Duration // cache TTL for fresh fetches
	Logger  *slog.Logger
}

// NewRunner creates the shared probe runner.
func NewRunner(c *cache.Tiered, b *circuitbreaker.Breaker, timeout, ttl time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Runner{Cache: c, Breaker: b, Timeout: timeout, TTL: ttl, Logger: logger}
}

// cacheKey namespaces entries by probe, network, and address so scans of
// overlapping addresses share data across callers.
func cacheKey(probe Name, network, address string) string {
	return fmt.Sprintf("%s:%s:%s", probe, network, address)
}

// execute is the shared probe execution path. fetch runs the upstream
// call; simulated marks demo-mode providers so their results are never
// reported as real.
func execute[P any](ctx context.Context, r *Runner, probe Name, providerName string, simulated bool, address, network string, fetch func(context.Context) (P, error)) Result {
	timer := prometheus.NewTimer(metrics.ProbeDuration.WithLabelValues(string(probe)))
	defer timer.ObserveDuration()

	res := executeInner[P](ctx, r, probe, providerName, simulated, address, network, fetch)
	metrics.ProbeRunsTotal.WithLabelValues(string(probe), string(res.Status)).Inc()
	return res
}

func executeInner[P any](ctx context.Context, r *Runner, probe Name, providerName string, simulated bool, address, network string, fetch func(context.Context) (P, error)) Result {
	ctx, span := traces.StartSpan(ctx, "probe."+string(probe),
		traces.WalletAddr(address), traces.Network(network), traces.Provider(providerName))
	defer span.End()

	okStatus := StatusOK
	if simulated {
		okStatus = StatusSimulated
	}

	key := cacheKey(probe, network, address)

	// Cache first. A fresh hit short-circuits everything.
	if raw, meta, found := r.Cache.Get(ctx, key); found && meta.Fresh() {
		var payload P
		if err := json.Unmarshal(raw, &payload); err == nil {
			return Result{
				Probe:     probe,
				Status:    okStatus,
				Payload:   payload,
				Source:    meta.Source,
				FetchedAt: meta.FetchedAt,
				TTL:       meta.TTL,
				TTLSecs:   int(meta.Remaining().Seconds()),
				FromCache: true,
			}
		}
		// Corrupt entry: fall through to a refetch, the Set below overwrites it.
		logging.L(ctx).Warn("discarding undecodable cache entry", "probe", probe, "key", key)
	}

	// Circuit gate. An open circuit fails immediately without touching
	// upstream.
	if !r.Breaker.Allow(providerName) {
		return Result{
			Probe:     probe,
			Status:    StatusError,
			FetchedAt: time.Now(),
			Err:       ErrCircuitOpen,
		}
	}

	// Upstream call. The fetch runs on a detached context so a caller
	// disconnect mid-flight still lets the response land in the cache;
	// only this request's view of it is discarded.
	type outcome struct {
		payload P
		err     error
	}
	done := make(chan outcome, 1)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.Timeout)
	go func() {
		defer cancel()
		payload, err := fetch(fctx)
		if err == nil {
			if raw, merr := json.Marshal(payload); merr == nil {
				r.Cache.Set(fctx, key, raw, r.TTL, providerName)
			}
			r.Breaker.RecordSuccess(providerName)
		} else {
			r.Breaker.RecordFailure(providerName)
		}
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		// Caller gone or global deadline hit. The goroutine above keeps
		// running for cache warming.
		return Result{
			Probe:     probe,
			Status:    StatusTimeout,
			FetchedAt: time.Now(),
			Err:       ctx.Err(),
		}

	case out := <-done:
		now := time.Now()
		if out.err != nil {
			status := StatusError
			if errors.Is(out.err, context.DeadlineExceeded) {
				status = StatusTimeout
			}
			logging.L(ctx).Warn("probe upstream call failed",
				"probe", probe, "provider", providerName, "status", status, "error", out.err)
			return Result{
				Probe:     probe,
				Status:    status,
				FetchedAt: now,
				Err:       out.err,
			}
		}

		return Result{
			Probe:     probe,
			Status:    okStatus,
			Payload:   out.payload,
			Source:    providerName,
			FetchedAt: now,
			TTL:       r.TTL,
			TTLSecs:   int(r.TTL.Seconds()),
		}
	}
}

// -----------------------------------------------------------------------------
// The four probes
// -----------------------------------------------------------------------------

// ApprovalsProbe wraps an ApprovalsProvider.
type ApprovalsProbe struct {
	runner    *Runner
	provider  ApprovalsProvider
	simulated bool
}

// NewApprovalsProbe creates the approvals probe. simulated marks a
// demo-mode provider.
func NewApprovalsProbe(r *Runner, p ApprovalsProvider, simulated bool) *ApprovalsProbe {
	return &ApprovalsProbe{runner: r, provider: p, simulated: simulated}
}

func (p *ApprovalsProbe) Name() Name { return Approvals }

func (p *ApprovalsProbe) Run(ctx context.Context, address, network string) Result {
	return execute(ctx, p.runner, Approvals, p.provider.Name(), p.simulated, address, network,
		func(ctx context.Context) (*ApprovalsPayload, error) {
			return p.provider.ActiveApprovals(ctx, address, network)
		})
}

// ReputationProbe wraps a ReputationProvider.
type ReputationProbe struct {
	runner    *Runner
	provider  ReputationProvider
	simulated bool
}

func NewReputationProbe(r *Runner, p ReputationProvider, simulated bool) *ReputationProbe {
	return &ReputationProbe{runner: r, provider: p, simulated: simulated}
}

func (p *ReputationProbe) Name() Name { return Reputation }

func (p *ReputationProbe) Run(ctx context.Context, address, network string) Result {
	return execute(ctx, p.runner, Reputation, p.provider.Name(), p.simulated, address, network,
		func(ctx context.Context) (*ReputationPayload, error) {
			return p.provider.Lookup(ctx, address, network)
		})
}

// MixerProbe wraps a MixerProvider.
type MixerProbe struct {
	runner    *Runner
	provider  MixerProvider
	simulated bool
}

func NewMixerProbe(r *Runner, p MixerProvider, simulated bool) *MixerProbe {
	return &MixerProbe{runner: r, provider: p, simulated: simulated}
}

func (p *MixerProbe) Name() Name { return MixerProximity }

func (p *MixerProbe) Run(ctx context.Context, address, network string) Result {
	return execute(ctx, p.runner, MixerProximity, p.provider.Name(), p.simulated, address, network,
		func(ctx context.Context) (*MixerPayload, error) {
			return p.provider.Proximity(ctx, address, network)
		})
}

// ContractProbe wraps a ContractProvider.
type ContractProbe struct {
	runner    *Runner
	provider  ContractProvider
	simulated bool
}

func NewContractProbe(r *Runner, p ContractProvider, simulated bool) *ContractProbe {
	return &ContractProbe{runner: r, provider: p, simulated: simulated}
}

func (p *ContractProbe) Name() Name { return ContractSafety }

func (p *ContractProbe) Run(ctx context.Context, address, network string) Result {
	return execute(ctx, p.runner, ContractSafety, p.provider.Name(), p.simulated, address, network,
		func(ctx context.Context) (*ContractPayload, error) {
			return p.provider.Inspect(ctx, address, network)
		})
}
