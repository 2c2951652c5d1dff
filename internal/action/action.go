// Package action implements the mutating "apply fix" path: submitting
// an approval revoke on chain, protected by an idempotency guard so a
// client retry or double-click never submits the same transaction twice.
package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	// ErrConflict means an idempotency key was reused with a different
	// payload. A client bug; surfaced as 409.
	ErrConflict = errors.New("idempotency key reused with a different payload")

	ErrRecordNotFound = errors.New("idempotency record not found")
)

// DefaultExpiry is how long an idempotency record blocks key reuse.
const DefaultExpiry = 24 * time.Hour

// Kind identifies the mutating action being performed.
type Kind string

const KindRevokeApproval Kind = "revoke_approval"

// Status is the outcome of an action request.
type Status string

const (
	StatusSubmitted        Status = "Submitted"
	StatusAlreadySubmitted Status = "AlreadySubmitted"
	StatusConflict         Status = "Conflict"
)

// Request is a mutating action request. Amount is always "0" for a
// revoke; it participates in the hash so a future allowance-edit action
// reuses the same shape.
type Request struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Address        string `json:"address"`
	Spender        string `json:"spender"`
	Token          string `json:"token"`
	Amount         string `json:"amount"`
	Network        string `json:"network"`
}

// Hash derives the canonical request hash stored alongside the
// idempotency key. Field order is part of the contract.
func (r Request) Hash() string {
	h := sha256.New()
	for _, part := range []string{
		strings.ToLower(r.Address),
		strings.ToLower(r.Spender),
		strings.ToLower(r.Token),
		r.Amount,
		string(KindRevokeApproval),
	} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Result is what the caller gets back, and what the guard replays.
type Result struct {
	Status      Status    `json:"status"`
	TxRef       string    `json:"txRef,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// IdempotencyRecord pins an idempotency key to the request hash and
// result of its first execution.
type IdempotencyRecord struct {
	Key         string    `json:"idempotencyKey"`
	RequestHash string    `json:"requestHash"`
	Result      Result    `json:"result"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the record's window has passed.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store persists idempotency records. Get returns ErrRecordNotFound for
// unknown keys; implementations may also treat expired records as
// missing.
type Store interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Put(ctx context.Context, record *IdempotencyRecord) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// Submitter performs the on-chain revoke. internal/chain provides the
// real implementation; demo mode uses a simulated one.
type Submitter interface {
	RevokeApproval(ctx context.Context, owner, token, spender string) (txRef string, err error)
}
