package trustscore

import (
	"math"
	"time"

	"github.com/meghal86/guardian/internal/probe"
)

// Calculator computes trust summaries from probe results. Pure in-memory
// computation, safe for concurrent use.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator with the given category weights.
// Zero-valued weights fall back to the documented defaults.
func NewCalculator(weights Weights) *Calculator {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Calculator{weights: weights}
}

// Compute derives factors from the probe results and folds them into a
// score, grade, and confidence. Results keyed by probe name; a missing
// or failed probe contributes no factors and zero freshness.
//
// An empty or all-failed result set yields score 100 with confidence 0:
// "unknown", not "safe".
func (c *Calculator) Compute(results map[probe.Name]probe.Result) Summary {
	factors := deriveFactors(results, c.weights)

	raw := 100.0
	for _, f := range factors {
		raw += f.delta()
	}
	score := int(math.Round(math.Min(100, math.Max(0, raw))))

	return Summary{
		Score:      score,
		Grade:      gradeFor(score),
		Factors:    factors,
		Confidence: confidence(results),
		Degraded:   !completed(results),
		ComputedAt: time.Now(),
	}
}

// confidence averages per-probe freshness over all four probe families.
// Freshness decays linearly from 1 (just fetched) to 0 (at TTL expiry);
// a missing, failed, or timed-out probe counts as 0. The denominator is
// always the full probe count so incomplete scans read as low
// confidence, not as high confidence over fewer inputs.
func confidence(results map[probe.Name]probe.Result) float64 {
	names := probe.AllNames()
	var sum float64
	for _, name := range names {
		if res, ok := results[name]; ok {
			sum += res.Freshness()
		}
	}
	conf := sum / float64(len(names))
	// Guard the invariant under float drift.
	return math.Min(1, math.Max(0, conf))
}
