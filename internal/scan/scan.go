// Package scan orchestrates wallet risk scans.
//
// A scan runs the four risk probes concurrently under a hard global
// deadline, streams deterministic progress milestones as probes finish,
// and always ends with a scored result. Probes that miss the deadline
// are recorded as timed out and excluded from scoring; they lower
// confidence instead of failing the scan.
package scan

import (
	"context"
	"errors"
	"time"

	"github.com/meghal86/guardian/internal/probe"
	"github.com/meghal86/guardian/internal/trustscore"
)

var ErrScanNotFound = errors.New("scan not found")

// State is the orchestration lifecycle state.
type State string

const (
	StatePending           State = "pending"
	StateRunning           State = "running"
	StateCompleted         State = "completed"
	StateCompletedDegraded State = "completed_degraded"
)

// milestones are the fixed progress percentages assigned per probe.
// Progress is deterministic regardless of finish order: the reported
// percentage is the maximum milestone among finished probes, so it
// never regresses.
var milestones = map[probe.Name]int{
	probe.Approvals:      25,
	probe.Reputation:     50,
	probe.MixerProximity: 75,
	probe.ContractSafety: 100,
}

// ProgressEvent is emitted once per probe completion.
type ProgressEvent struct {
	ScanID          string       `json:"scanId"`
	Probe           probe.Name   `json:"probe"`
	Status          probe.Status `json:"status"`
	PercentComplete int          `json:"percentComplete"`
}

// ProbeOutcome summarizes one probe's contribution to a finished scan.
type ProbeOutcome struct {
	Status    probe.Status `json:"status"`
	Source    string       `json:"source,omitempty"`
	FromCache bool         `json:"fromCache"`
	AgeSecs   int          `json:"ageSeconds"`
}

// Result is the immutable output of one scan run.
type Result struct {
	RequestID   string                      `json:"requestId"`
	Address     string                      `json:"targetAddress"`
	Network     string                      `json:"network"`
	State       State                       `json:"state"`
	Score       int                         `json:"score"`
	Grade       string                      `json:"grade"`
	Factors     []trustscore.Factor         `json:"factors"`
	Confidence  float64                     `json:"confidence"`
	Degraded    bool                        `json:"degraded"`
	Probes      map[probe.Name]ProbeOutcome `json:"probes"`
	StartedAt   time.Time                   `json:"startedAt"`
	CompletedAt time.Time                   `json:"completedAt"`
}

// Unavailable reports whether every probe failed outright (upstream
// error or open circuit, not timeout). Callers map this to a 503.
func (r *Result) Unavailable() bool {
	if len(r.Probes) == 0 {
		return true
	}
	for _, out := range r.Probes {
		if out.Status != probe.StatusError {
			return false
		}
	}
	return true
}

// Store persists finished scans for history queries.
type Store interface {
	Record(ctx context.Context, result *Result) error
	ListByAddress(ctx context.Context, address, network string, limit int) ([]*Result, error)
}

// Broadcaster pushes scan lifecycle events to live subscribers. The
// realtime hub implements this; a nil broadcaster disables it.
type Broadcaster interface {
	ScanStarted(scanID, address, network string)
	ScanProgress(ev ProgressEvent)
	ScanCompleted(result *Result)
}
