package action

import (
	"context"
	"time"

	"github.com/meghal86/guardian/internal/logging"
	"github.com/meghal86/guardian/internal/metrics"
	"github.com/meghal86/guardian/internal/retry"
	"github.com/meghal86/guardian/internal/traces"
)

// submitAttempts bounds retries of transient RPC failures when
// broadcasting the revoke transaction.
const submitAttempts = 3

// Service executes revoke actions through the idempotency guard.
type Service struct {
	guard     *Guard
	submitter Submitter
}

// NewService creates the action service.
func NewService(guard *Guard, submitter Submitter) *Service {
	return &Service{guard: guard, submitter: submitter}
}

// Revoke submits an approval revoke (allowance set to zero) at most
// once per idempotency key. A replayed key returns the original
// submission with StatusAlreadySubmitted.
func (s *Service) Revoke(ctx context.Context, req Request) (Result, error) {
	ctx, span := traces.StartSpan(ctx, "action.revoke",
		traces.WalletAddr(req.Address), traces.Network(req.Network))
	defer span.End()

	result, replayed, err := s.guard.Execute(ctx, req.IdempotencyKey, req.Hash(), func(ctx context.Context) (Result, error) {
		var txRef string
		err := retry.Do(ctx, submitAttempts, 200*time.Millisecond, func() error {
			var err error
			txRef, err = s.submitter.RevokeApproval(ctx, req.Address, req.Token, req.Spender)
			return err
		})
		if err != nil {
			return Result{}, err
		}
		return Result{
			Status:      StatusSubmitted,
			TxRef:       txRef,
			SubmittedAt: time.Now(),
		}, nil
	})

	switch {
	case err == ErrConflict:
		metrics.RevokeActionsTotal.WithLabelValues("conflict").Inc()
		return Result{}, err
	case err != nil:
		metrics.RevokeActionsTotal.WithLabelValues("error").Inc()
		logging.L(ctx).Error("revoke submission failed",
			"address", req.Address, "spender", req.Spender, "token", req.Token, "error", err)
		return Result{}, err
	case replayed:
		metrics.RevokeActionsTotal.WithLabelValues("replayed").Inc()
		result.Status = StatusAlreadySubmitted
		return result, nil
	}

	metrics.RevokeActionsTotal.WithLabelValues("submitted").Inc()
	logging.L(ctx).Info("revoke submitted",
		"address", req.Address, "spender", req.Spender, "token", req.Token, "tx_ref", result.TxRef)
	return result, nil
}
