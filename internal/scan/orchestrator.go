package scan

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meghal86/guardian/internal/idgen"
	"github.com/meghal86/guardian/internal/logging"
	"github.com/meghal86/guardian/internal/metrics"
	"github.com/meghal86/guardian/internal/probe"
	"github.com/meghal86/guardian/internal/traces"
	"github.com/meghal86/guardian/internal/trustscore"
)

// DefaultDeadline is the hard ceiling on scan latency. Probes still
// running when it fires are recorded as timed out.
const DefaultDeadline = 5 * time.Second

// Orchestrator fans a scan out across the four probes and folds the
// results into a scored, explainable summary.
type Orchestrator struct {
	probes      []probe.Probe
	calculator  *trustscore.Calculator
	store       Store
	broadcaster Broadcaster
	deadline    time.Duration
}

// NewOrchestrator wires the orchestrator. store and broadcaster may be
// nil; deadline <= 0 falls back to DefaultDeadline.
func NewOrchestrator(probes []probe.Probe, calc *trustscore.Calculator, store Store, broadcaster Broadcaster, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Orchestrator{
		probes:      probes,
		calculator:  calc,
		store:       store,
		broadcaster: broadcaster,
		deadline:    deadline,
	}
}

// Run executes one scan. onProgress, when non-nil, receives one event
// per probe completion with a monotonically non-decreasing percentage;
// it is called from the orchestration goroutine, so it must not block
// for long. Run always returns a result, even when every probe failed.
func (o *Orchestrator) Run(ctx context.Context, address, network string, onProgress func(ProgressEvent)) *Result {
	scanID := idgen.WithPrefix("scan_")
	ctx = logging.WithScanID(ctx, scanID)

	ctx, span := traces.StartSpan(ctx, "scan.run",
		traces.ScanID(scanID), traces.WalletAddr(address), traces.Network(network))
	defer span.End()

	metrics.ActiveScans.Inc()
	defer metrics.ActiveScans.Dec()
	timer := prometheus.NewTimer(metrics.ScanDuration)
	defer timer.ObserveDuration()

	log := logging.L(ctx)
	log.Info("scan started", "address", address, "network", network)
	if o.broadcaster != nil {
		o.broadcaster.ScanStarted(scanID, address, network)
	}

	startedAt := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	completions := make(chan probe.Result, len(o.probes))
	for _, p := range o.probes {
		go func(p probe.Probe) {
			completions <- p.Run(ctx, address, network)
		}(p)
	}

	results := make(map[probe.Name]probe.Result, len(o.probes))
	maxPercent := 0
	deadlineHit := false

collect:
	for len(results) < len(o.probes) {
		select {
		case res := <-completions:
			results[res.Probe] = res
			if pct := milestones[res.Probe]; pct > maxPercent {
				maxPercent = pct
			}
			o.emitProgress(ProgressEvent{
				ScanID:          scanID,
				Probe:           res.Probe,
				Status:          res.Status,
				PercentComplete: maxPercent,
			}, onProgress)

		case <-ctx.Done():
			deadlineHit = true
			break collect
		}
	}

	// Anything still outstanding missed the deadline. It is excluded
	// from scoring but reported so callers see what is missing.
	for _, name := range probe.AllNames() {
		if _, ok := results[name]; ok {
			continue
		}
		results[name] = probe.Result{
			Probe:  name,
			Status: probe.StatusTimeout,
			Err:    context.DeadlineExceeded,
		}
		o.emitProgress(ProgressEvent{
			ScanID:          scanID,
			Probe:           name,
			Status:          probe.StatusTimeout,
			PercentComplete: maxPercent,
		}, onProgress)
	}

	summary := o.calculator.Compute(results)

	state := StateCompleted
	outcome := "completed"
	if deadlineHit {
		state = StateCompletedDegraded
	}
	if summary.Degraded {
		state = StateCompletedDegraded
		outcome = "degraded"
	}
	metrics.ScansTotal.WithLabelValues(outcome).Inc()

	result := &Result{
		RequestID:   scanID,
		Address:     address,
		Network:     network,
		State:       state,
		Score:       summary.Score,
		Grade:       summary.Grade,
		Factors:     summary.Factors,
		Confidence:  summary.Confidence,
		Degraded:    summary.Degraded,
		Probes:      outcomes(results),
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}

	log.Info("scan finished",
		"state", result.State,
		"score", result.Score,
		"grade", result.Grade,
		"confidence", result.Confidence,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	if o.broadcaster != nil {
		o.broadcaster.ScanCompleted(result)
	}

	// Persist best-effort; history is an audit trail, not part of the
	// scan contract. Detached context: the caller may be gone already.
	if o.store != nil {
		go func() {
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer scancel()
			if err := o.store.Record(sctx, result); err != nil {
				log.Warn("failed to record scan history", "error", err)
			}
		}()
	}

	return result
}

func (o *Orchestrator) emitProgress(ev ProgressEvent, onProgress func(ProgressEvent)) {
	if onProgress != nil {
		onProgress(ev)
	}
	if o.broadcaster != nil {
		o.broadcaster.ScanProgress(ev)
	}
}

func outcomes(results map[probe.Name]probe.Result) map[probe.Name]ProbeOutcome {
	out := make(map[probe.Name]ProbeOutcome, len(results))
	for name, res := range results {
		out[name] = ProbeOutcome{
			Status:    res.Status,
			Source:    res.Source,
			FromCache: res.FromCache,
			AgeSecs:   int(res.Age().Seconds()),
		}
	}
	return out
}
