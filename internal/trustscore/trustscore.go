// Package trustscore turns probe results into a wallet trust score.
//
// Scoring starts at 100 and applies weighted factor deductions (or
// bonuses) derived from each probe's payload. Severity multiplies a
// per-category base weight so a single critical finding (a honeypot, a
// sanctions hit) dominates, while a pile of low-severity findings only
// erodes the score. Confidence reports how fresh and complete the
// inputs were, independent of the score itself.
package trustscore

import (
	"time"

	"github.com/meghal86/guardian/internal/probe"
)

// Category ties a factor back to the probe family that produced it.
type Category string

const (
	CategoryApprovals  Category = "approvals"
	CategoryReputation Category = "reputation"
	CategoryMixer      Category = "mixer"
	CategoryContract   Category = "contract"
)

// Direction is the sign a factor applies to the score.
type Direction int

const (
	Penalty Direction = -1
	Bonus   Direction = 1
)

// Severity scales a factor's category weight.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Multiplier returns the severity's scoring multiplier.
func (s Severity) Multiplier() float64 {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2.5
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 8
	default:
		return 0
	}
}

// Factor is one explainable contribution to the trust score.
type Factor struct {
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	Weight      float64   `json:"weight"`
	Direction   Direction `json:"direction"`
	Severity    Severity  `json:"severity"`
	Explanation string    `json:"explanation"`
}

// delta is the factor's signed score contribution.
func (f Factor) delta() float64 {
	return float64(f.Direction) * f.Weight * f.Severity.Multiplier()
}

// Weights are the per-category base weights. Field layout matches
// config.Weights so the two convert directly.
type Weights struct {
	Approvals  float64
	Reputation float64
	Mixer      float64
	Contract   float64
}

// DefaultWeights returns the documented baseline.
func DefaultWeights() Weights {
	return Weights{Approvals: 5, Reputation: 10, Mixer: 10, Contract: 15}
}

func (w Weights) forCategory(c Category) float64 {
	switch c {
	case CategoryApprovals:
		return w.Approvals
	case CategoryReputation:
		return w.Reputation
	case CategoryMixer:
		return w.Mixer
	case CategoryContract:
		return w.Contract
	default:
		return 0
	}
}

// Summary is the aggregate output of a scoring run. Built once, then
// treated as a value.
type Summary struct {
	Score      int       `json:"score"` // clamped to [0,100]
	Grade      string    `json:"grade"` // A..F
	Factors    []Factor  `json:"factors"`
	Confidence float64   `json:"confidence"` // [0,1], freshness-weighted completeness
	Degraded   bool      `json:"degraded"`
	ComputedAt time.Time `json:"computedAt"`
}

// gradeFor maps a clamped score to its letter grade.
func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// completed reports whether every probe family produced a usable result.
func completed(results map[probe.Name]probe.Result) bool {
	for _, name := range probe.AllNames() {
		res, ok := results[name]
		if !ok || !res.Status.Completed() {
			return false
		}
	}
	return true
}
