package trustscore

import (
	"strings"
	"testing"

	"github.com/meghal86/guardian/internal/probe"
)

func intPtr(n int) *int { return &n }

func TestApprovalFactors_AllowlistedSpenderSkipped(t *testing.T) {
	p := &probe.ApprovalsPayload{Approvals: []probe.Approval{
		{Spender: "0x7a250d5630b4CF539739dF2C5dAcb4c659F2488D", IsUnlimited: true}, // mixed case on purpose
		{Spender: "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", IsUnlimited: true},
	}}

	factors := approvalFactors(p)

	if len(factors) != 1 {
		t.Fatalf("expected allow-listed spender to be skipped, got %d factors", len(factors))
	}
	if !strings.Contains(factors[0].Explanation, "0xdead") {
		t.Errorf("factor should name the risky spender, got %q", factors[0].Explanation)
	}
}

func TestApprovalFactors_SeverityScalesWithAmount(t *testing.T) {
	cases := []struct {
		name     string
		approval probe.Approval
		want     Severity
	}{
		{"unlimited", probe.Approval{Spender: "0xdead", IsUnlimited: true}, SeverityHigh},
		{"large finite", probe.Approval{Spender: "0xdead", Amount: "5000000000000000000000"}, SeverityMedium}, // 5000 tokens
		{"small", probe.Approval{Spender: "0xdead", Amount: "1000000000000000000"}, SeverityLow},             // 1 token
		{"garbage amount", probe.Approval{Spender: "0xdead", Amount: "not-a-number"}, SeverityLow},
	}

	for _, tc := range cases {
		factors := approvalFactors(&probe.ApprovalsPayload{Approvals: []probe.Approval{tc.approval}})
		if len(factors) != 1 {
			t.Fatalf("%s: expected 1 factor, got %d", tc.name, len(factors))
		}
		if factors[0].Severity != tc.want {
			t.Errorf("%s: expected severity %s, got %s", tc.name, tc.want, factors[0].Severity)
		}
	}
}

func TestMixerFactors_SeverityByHops(t *testing.T) {
	cases := []struct {
		name    string
		payload probe.MixerPayload
		want    Severity
	}{
		{"direct", probe.MixerPayload{Hops: intPtr(0), ProximityScore: 100}, SeverityCritical},
		{"one hop", probe.MixerPayload{Hops: intPtr(1), ProximityScore: 80}, SeverityHigh},
		{"near", probe.MixerPayload{Hops: intPtr(2), ProximityScore: 60}, SeverityMedium},
		{"distant", probe.MixerPayload{Hops: intPtr(5), ProximityScore: 10}, SeverityLow},
	}

	for _, tc := range cases {
		factors := mixerFactors(&tc.payload)
		if len(factors) != 1 {
			t.Fatalf("%s: expected 1 factor, got %d", tc.name, len(factors))
		}
		if factors[0].Severity != tc.want {
			t.Errorf("%s: expected severity %s, got %s", tc.name, tc.want, factors[0].Severity)
		}
	}
}

func TestMixerFactors_NoPathNoFactor(t *testing.T) {
	factors := mixerFactors(&probe.MixerPayload{Hops: nil})
	if len(factors) != 0 {
		t.Errorf("no mixer path should emit no factors, got %d", len(factors))
	}
}

func TestContractFactors_EOAIsNotPenalized(t *testing.T) {
	// Plain wallets are not contracts; "unverified" does not apply.
	factors := contractFactors(&probe.ContractPayload{IsContract: false})
	if len(factors) != 0 {
		t.Errorf("an EOA should produce no contract factors, got %d", len(factors))
	}
}

func TestContractFactors_TaxAsymmetry(t *testing.T) {
	factors := contractFactors(&probe.ContractPayload{
		IsContract: true,
		IsVerified: true,
		BuyTax:     1,
		SellTax:    45,
	})

	if len(factors) != 1 {
		t.Fatalf("expected 1 factor, got %d", len(factors))
	}
	if factors[0].Name != "suspicious_taxes" {
		t.Errorf("expected suspicious_taxes, got %s", factors[0].Name)
	}
}

func TestDeriveFactors_IgnoresFailedProbes(t *testing.T) {
	results := map[probe.Name]probe.Result{
		probe.Reputation: {
			Probe:  probe.Reputation,
			Status: probe.StatusError,
			// Payload present but the probe failed; it must not count.
			Payload: &probe.ReputationPayload{IsSanctioned: true},
		},
	}

	factors := deriveFactors(results, DefaultWeights())
	if len(factors) != 0 {
		t.Errorf("failed probes must contribute no factors, got %d", len(factors))
	}
}

func TestDeriveFactors_WeightFollowsCategory(t *testing.T) {
	weights := Weights{Approvals: 3, Reputation: 7, Mixer: 11, Contract: 13}
	results := map[probe.Name]probe.Result{
		probe.Approvals: {
			Probe:   probe.Approvals,
			Status:  probe.StatusOK,
			Payload: &probe.ApprovalsPayload{Approvals: []probe.Approval{{Spender: "0xdead", IsUnlimited: true}}},
		},
		probe.Reputation: {
			Probe:   probe.Reputation,
			Status:  probe.StatusOK,
			Payload: &probe.ReputationPayload{IsSanctioned: true},
		},
		probe.MixerProximity: {
			Probe:   probe.MixerProximity,
			Status:  probe.StatusOK,
			Payload: &probe.MixerPayload{Hops: intPtr(0), ProximityScore: 100},
		},
		probe.ContractSafety: {
			Probe:   probe.ContractSafety,
			Status:  probe.StatusOK,
			Payload: &probe.ContractPayload{IsContract: true, IsHoneypot: true, IsVerified: true},
		},
	}

	want := map[Category]float64{
		CategoryApprovals:  3,
		CategoryReputation: 7,
		CategoryMixer:      11,
		CategoryContract:   13,
	}
	for _, f := range deriveFactors(results, weights) {
		if f.Weight != want[f.Category] {
			t.Errorf("%s: weight = %f, want %f for category %s", f.Name, f.Weight, want[f.Category], f.Category)
		}
	}
}

func TestSeverityMultipliers(t *testing.T) {
	cases := map[Severity]float64{
		SeverityLow:      1,
		SeverityMedium:   2.5,
		SeverityHigh:     4,
		SeverityCritical: 8,
	}
	for sev, want := range cases {
		if got := sev.Multiplier(); got != want {
			t.Errorf("%s multiplier = %f, want %f", sev, got, want)
		}
	}
}
