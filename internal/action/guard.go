package action

import (
	"context"
	"time"

	"github.com/meghal86/guardian/internal/logging"
	"github.com/meghal86/guardian/internal/syncutil"
)

// Guard enforces at-most-once execution per idempotency key.
//
// Concurrent requests for the same key are serialized in-process, so a
// double-click cannot race past the record check. Multi-instance
// deployments additionally rely on the store's unique key constraint.
type Guard struct {
	store  Store
	expiry time.Duration
	locks  *syncutil.ContextShardedMutex
}

// NewGuard creates a guard over the given record store. expiry <= 0
// falls back to DefaultExpiry.
func NewGuard(store Store, expiry time.Duration) *Guard {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Guard{
		store:  store,
		expiry: expiry,
		locks:  syncutil.NewContextShardedMutex(),
	}
}

// Execute runs fn at most once per key. The second return reports a
// replay: the stored result was returned without running fn. A key
// reused with a different request hash fails with ErrConflict.
//
// fn errors are not recorded — a failed submission may be retried with
// the same key.
func (g *Guard) Execute(ctx context.Context, key, requestHash string, fn func(ctx context.Context) (Result, error)) (Result, bool, error) {
	unlock, err := g.locks.LockContext(ctx, key)
	if err != nil {
		return Result{}, false, err
	}
	defer unlock()

	now := time.Now()
	record, err := g.store.Get(ctx, key)
	switch {
	case err == nil:
		if record.Expired(now) {
			break // window passed, treat as a fresh key
		}
		if record.RequestHash != requestHash {
			return Result{}, false, ErrConflict
		}
		return record.Result, true, nil
	case err != ErrRecordNotFound:
		return Result{}, false, err
	}

	result, err := fn(ctx)
	if err != nil {
		return Result{}, false, err
	}

	if err := g.store.Put(ctx, &IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Result:      result,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.expiry),
	}); err != nil {
		// The action already happened; surfacing a store error here
		// would make the caller retry a submitted transaction.
		logging.L(ctx).Error("failed to persist idempotency record", "key", key, "error", err)
		return result, false, nil
	}
	return result, false, nil
}
