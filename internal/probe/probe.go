// Package probe implements the four risk probes behind a wallet scan.
//
// Every probe follows the same shape: check the cache, gate on the
// provider's circuit breaker, then call upstream under a bounded timeout.
// A probe never fails a scan — errors and timeouts surface as result
// statuses that the trust score calculator turns into reduced confidence.
package probe

import (
	"context"
	"errors"
	"time"
)

// Name identifies one risk probe.
type Name string

const (
	Approvals      Name = "approvals"
	Reputation     Name = "reputation"
	MixerProximity Name = "mixer_proximity"
	ContractSafety Name = "contract_safety"
)

// AllNames lists the probes in milestone order (the order the progress
// percentages are assigned, not the order they finish).
func AllNames() []Name {
	return []Name{Approvals, Reputation, MixerProximity, ContractSafety}
}

// Status is the outcome of one probe execution.
type Status string

const (
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusSimulated Status = "simulated" // demo-mode data, never conflated with ok
)

// Completed reports whether the probe produced a usable payload.
func (s Status) Completed() bool {
	return s == StatusOK || s == StatusSimulated
}

// ErrCircuitOpen is recorded on a result when the provider's circuit
// rejected the call before it reached upstream.
var ErrCircuitOpen = errors.New("probe: provider circuit open")

// Result is the immutable outcome of exactly one probe execution.
// A retry produces a new Result; nothing mutates one after creation.
type Result struct {
	Probe     Name          `json:"probe"`
	Status    Status        `json:"status"`
	Payload   any           `json:"payload,omitempty"` // typed per probe, nil unless Completed
	Source    string        `json:"source,omitempty"`  // provider that produced the payload
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"-"`
	TTLSecs   int           `json:"ttlSeconds"`
	FromCache bool          `json:"fromCache"`

	// Err carries the internal failure detail. Logged, never serialized
	// to callers.
	Err error `json:"-"`
}

// Age returns how old the underlying data is. Zero for a fresh fetch.
func (r Result) Age() time.Duration {
	if r.FetchedAt.IsZero() {
		return 0
	}
	return time.Since(r.FetchedAt)
}

// Freshness returns the [0,1] freshness weight feeding confidence:
// 1 for brand-new data decaying linearly to 0 at TTL expiry.
// Non-completed results are worth 0.
func (r Result) Freshness() float64 {
	if !r.Status.Completed() {
		return 0
	}
	if r.TTL <= 0 {
		return 0
	}
	f := 1 - float64(r.Age())/float64(r.TTL)
	if f < 0 {
		return 0
	}
	return f
}

// -----------------------------------------------------------------------------
// Payloads
// -----------------------------------------------------------------------------

// Approval is one active token approval held against the scanned wallet.
type Approval struct {
	Spender     string `json:"spender"`
	Token       string `json:"token"`
	Amount      string `json:"amount"` // raw token units, decimal string
	IsUnlimited bool   `json:"isUnlimited"`
}

// ApprovalsPayload is the Approvals probe output.
type ApprovalsPayload struct {
	Approvals []Approval `json:"approvals"`
}

// ReputationLevel buckets an address's standing.
type ReputationLevel string

const (
	LevelGood    ReputationLevel = "good"
	LevelNeutral ReputationLevel = "neutral"
	LevelCaution ReputationLevel = "caution"
	LevelBad     ReputationLevel = "bad"
)

// ReputationPayload is the Reputation probe output.
type ReputationPayload struct {
	IsSanctioned bool            `json:"isSanctioned"`
	Labels       []string        `json:"labels"`
	Level        ReputationLevel `json:"reputationLevel"`
}

// MixerPayload is the MixerProximity probe output. Hops is nil when the
// address has no known path to a mixer.
type MixerPayload struct {
	Hops           *int `json:"hops"`
	ProximityScore int  `json:"proximityScore"` // 0..100, decays with hop distance
}

// ContractPayload is the ContractSafety probe output.
type ContractPayload struct {
	IsContract bool    `json:"isContract"`
	IsVerified bool    `json:"isVerified"`
	IsHoneypot bool    `json:"isHoneypot"`
	HiddenMint bool    `json:"hiddenMint"`
	BuyTax     float64 `json:"buyTax"`  // percent
	SellTax    float64 `json:"sellTax"` // percent
}

// -----------------------------------------------------------------------------
// Provider interfaces — the engine's view of its upstream collaborators.
// Implementations live in internal/chain (on-chain) and in this package
// (HTTP and simulated providers).
// -----------------------------------------------------------------------------

// ApprovalsProvider answers "what active token approvals does this
// address hold".
type ApprovalsProvider interface {
	Name() string
	ActiveApprovals(ctx context.Context, address, network string) (*ApprovalsPayload, error)
}

// ReputationProvider answers "what labels and sanctions apply to this
// address".
type ReputationProvider interface {
	Name() string
	Lookup(ctx context.Context, address, network string) (*ReputationPayload, error)
}

// MixerProvider answers "how close is this address to a known mixer set".
type MixerProvider interface {
	Name() string
	Proximity(ctx context.Context, address, network string) (*MixerPayload, error)
}

// ContractProvider answers "is this contract verified / a honeypot, and
// what are its taxes".
type ContractProvider interface {
	Name() string
	Inspect(ctx context.Context, address, network string) (*ContractPayload, error)
}

// Probe is one runnable risk probe.
type Probe interface {
	Name() Name
	Run(ctx context.Context, address, network string) Result
}
