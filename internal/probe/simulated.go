package probe

import (
	"context"
	"hash/fnv"
	"strings"
)

// Simulated providers back demo mode when no upstream endpoints are
// configured. Results are deterministic per address so repeated demo
// scans look stable, and every result is labeled StatusSimulated by the
// probe wiring — simulated data is never presented as real.

// addrSeed hashes an address into a stable seed for deterministic
// simulated payloads.
func addrSeed(address string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(address)))
	return h.Sum64()
}

// SimulatedApprovals fabricates a plausible approvals set.
type SimulatedApprovals struct{}

func (SimulatedApprovals) Name() string { return "simulated" }

func (SimulatedApprovals) ActiveApprovals(ctx context.Context, address, network string) (*ApprovalsPayload, error) {
	seed := addrSeed(address)
	payload := &ApprovalsPayload{Approvals: []Approval{}}

	// Roughly half of demo wallets carry an unlimited approval.
	if seed%2 == 0 {
		payload.Approvals = append(payload.Approvals, Approval{
			Spender:     "0x000000000022d473030f116ddee9f6b43ac78ba3",
			Token:       "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			Amount:      "115792089237316195423570985008687907853269984665640564039457584007913129639935",
			IsUnlimited: true,
		})
	}
	if seed%3 == 0 {
		payload.Approvals = append(payload.Approvals, Approval{
			Spender:     "0x1111111254eeb25477b68fb85ed929f73a960582",
			Token:       "0xdac17f958d2ee523a2206206994597c13d831ec7",
			Amount:      "500000000",
			IsUnlimited: false,
		})
	}
	return payload, nil
}

// SimulatedReputation fabricates reputation labels.
type SimulatedReputation struct{}

func (SimulatedReputation) Name() string { return "simulated" }

func (SimulatedReputation) Lookup(ctx context.Context, address, network string) (*ReputationPayload, error) {
	seed := addrSeed(address)
	switch seed % 10 {
	case 0:
		return &ReputationPayload{
			IsSanctioned: true,
			Labels:       []string{"ofac-sdn"},
			Level:        LevelBad,
		}, nil
	case 1, 2:
		return &ReputationPayload{
			Labels: []string{"exchange", "verified-protocol"},
			Level:  LevelGood,
		}, nil
	default:
		return &ReputationPayload{Labels: []string{}, Level: LevelNeutral}, nil
	}
}

// SimulatedMixer fabricates mixer proximity.
type SimulatedMixer struct{}

func (SimulatedMixer) Name() string { return "simulated" }

func (SimulatedMixer) Proximity(ctx context.Context, address, network string) (*MixerPayload, error) {
	seed := addrSeed(address)
	switch seed % 12 {
	case 0:
		hops := 0
		return &MixerPayload{Hops: &hops, ProximityScore: 100}, nil
	case 1:
		hops := 1
		return &MixerPayload{Hops: &hops, ProximityScore: 70}, nil
	case 2:
		hops := 3
		return &MixerPayload{Hops: &hops, ProximityScore: 25}, nil
	default:
		return &MixerPayload{Hops: nil, ProximityScore: 0}, nil
	}
}

// SimulatedContract fabricates contract safety data.
type SimulatedContract struct{}

func (SimulatedContract) Name() string { return "simulated" }

func (SimulatedContract) Inspect(ctx context.Context, address, network string) (*ContractPayload, error) {
	seed := addrSeed(address)
	switch seed % 15 {
	case 0:
		return &ContractPayload{
			IsContract: true,
			IsVerified: false,
			IsHoneypot: true,
			BuyTax:     2,
			SellTax:    95,
		}, nil
	case 1, 2:
		return &ContractPayload{
			IsContract: true,
			IsVerified: false,
		}, nil
	case 3:
		return &ContractPayload{
			IsContract: true,
			IsVerified: true,
			BuyTax:     1,
			SellTax:    18,
		}, nil
	default:
		return &ContractPayload{
			IsContract: true,
			IsVerified: true,
		}, nil
	}
}
