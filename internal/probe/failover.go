package probe

import (
	"context"

	"github.com/meghal86/guardian/internal/logging"
)

// Failover decorators try a primary provider and fall back to a
// secondary when the primary errors. The secondary's name is reported so
// provenance stays honest.

// FailoverReputation chains two reputation providers.
type FailoverReputation struct {
	Primary, Secondary ReputationProvider
}

func (f *FailoverReputation) Name() string { return f.Primary.Name() }

func (f *FailoverReputation) Lookup(ctx context.Context, address, network string) (*ReputationPayload, error) {
	payload, err := f.Primary.Lookup(ctx, address, network)
	if err == nil || ctx.Err() != nil {
		return payload, err
	}
	logging.L(ctx).Warn("reputation primary failed, trying fallback",
		"primary", f.Primary.Name(), "fallback", f.Secondary.Name(), "error", err)
	return f.Secondary.Lookup(ctx, address, network)
}

// FailoverMixer chains two mixer-proximity providers.
type FailoverMixer struct {
	Primary, Secondary MixerProvider
}

func (f *FailoverMixer) Name() string { return f.Primary.Name() }

func (f *FailoverMixer) Proximity(ctx context.Context, address, network string) (*MixerPayload, error) {
	payload, err := f.Primary.Proximity(ctx, address, network)
	if err == nil || ctx.Err() != nil {
		return payload, err
	}
	logging.L(ctx).Warn("mixer primary failed, trying fallback",
		"primary", f.Primary.Name(), "fallback", f.Secondary.Name(), "error", err)
	return f.Secondary.Proximity(ctx, address, network)
}

// FailoverContract chains two contract-safety providers.
type FailoverContract struct {
	Primary, Secondary ContractProvider
}

func (f *FailoverContract) Name() string { return f.Primary.Name() }

func (f *FailoverContract) Inspect(ctx context.Context, address, network string) (*ContractPayload, error) {
	payload, err := f.Primary.Inspect(ctx, address, network)
	if err == nil || ctx.Err() != nil {
		return payload, err
	}
	logging.L(ctx).Warn("contract primary failed, trying fallback",
		"primary", f.Primary.Name(), "fallback", f.Secondary.Name(), "error", err)
	return f.Secondary.Inspect(ctx, address, network)
}
