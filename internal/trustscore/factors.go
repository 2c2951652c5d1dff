package trustscore

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/meghal86/guardian/internal/probe"
)

// largeApprovalThreshold separates "large finite" approvals from small
// ones: 1000 whole tokens at 18 decimals, in raw units.
var largeApprovalThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)

// allowedSpenders are widely-used protocol routers whose approvals are
// expected and not penalized. Lowercased addresses.
var allowedSpenders = map[string]string{
	"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": "Uniswap V2 Router",
	"0xe592427a0aece92de3edee1f18e0157c05861564": "Uniswap V3 Router",
	"0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45": "Uniswap V3 Router 2",
	"0x1111111254eeb25477b68fb85ed929f73a960582": "1inch V5 Router",
	"0xdef1c0ded9bec7f1a1670819833240f027b25eff": "0x Exchange Proxy",
	"0x000000000022d473030f116ddee9f6b43ac78ba3": "Permit2",
}

// deriveFactors maps completed probe results to explainable scoring
// factors. Failed, timed-out, or missing probes contribute nothing.
// Weights are assigned here from the factor's category so the per-factor
// builders stay weight-agnostic.
func deriveFactors(results map[probe.Name]probe.Result, weights Weights) []Factor {
	factors := []Factor{}

	if res, ok := results[probe.Approvals]; ok && res.Status.Completed() {
		if p, ok := res.Payload.(*probe.ApprovalsPayload); ok && p != nil {
			factors = append(factors, approvalFactors(p)...)
		}
	}
	if res, ok := results[probe.Reputation]; ok && res.Status.Completed() {
		if p, ok := res.Payload.(*probe.ReputationPayload); ok && p != nil {
			factors = append(factors, reputationFactors(p)...)
		}
	}
	if res, ok := results[probe.MixerProximity]; ok && res.Status.Completed() {
		if p, ok := res.Payload.(*probe.MixerPayload); ok && p != nil {
			factors = append(factors, mixerFactors(p)...)
		}
	}
	if res, ok := results[probe.ContractSafety]; ok && res.Status.Completed() {
		if p, ok := res.Payload.(*probe.ContractPayload); ok && p != nil {
			factors = append(factors, contractFactors(p)...)
		}
	}

	for i := range factors {
		factors[i].Weight = weights.forCategory(factors[i].Category)
	}
	return factors
}

// approvalFactors emits one penalty per risky approval. Allow-listed
// spenders are skipped entirely; everything else is scaled by how much
// spending power the approval grants.
func approvalFactors(p *probe.ApprovalsPayload) []Factor {
	var factors []Factor
	for _, a := range p.Approvals {
		if _, listed := allowedSpenders[strings.ToLower(a.Spender)]; listed {
			continue
		}

		severity := SeverityLow
		reason := "small active approval to an unrecognized spender"
		switch {
		case a.IsUnlimited:
			severity = SeverityHigh
			reason = "unlimited token approval to an unrecognized spender"
		case isLargeAmount(a.Amount):
			severity = SeverityMedium
			reason = "large token approval to an unrecognized spender"
		}

		factors = append(factors, Factor{
			Name:        "risky_approval",
			Category:    CategoryApprovals,
			Direction:   Penalty,
			Severity:    severity,
			Explanation: fmt.Sprintf("%s (spender %s, token %s)", reason, shortAddr(a.Spender), shortAddr(a.Token)),
		})
	}
	return factors
}

func reputationFactors(p *probe.ReputationPayload) []Factor {
	var factors []Factor

	if p.IsSanctioned {
		factors = append(factors, Factor{
			Name:        "sanctioned_address",
			Category:    CategoryReputation,
			Direction:   Penalty,
			Severity:    SeverityCritical,
			Explanation: "address appears on a sanctions list",
		})
	}

	switch p.Level {
	case probe.LevelBad:
		factors = append(factors, Factor{
			Name:        "bad_reputation",
			Category:    CategoryReputation,
			Direction:   Penalty,
			Severity:    SeverityHigh,
			Explanation: "address carries negative reputation labels: " + strings.Join(p.Labels, ", "),
		})
	case probe.LevelCaution:
		factors = append(factors, Factor{
			Name:        "caution_reputation",
			Category:    CategoryReputation,
			Direction:   Penalty,
			Severity:    SeverityLow,
			Explanation: "address carries caution labels: " + strings.Join(p.Labels, ", "),
		})
	case probe.LevelGood:
		factors = append(factors, Factor{
			Name:        "known_good_entity",
			Category:    CategoryReputation,
			Direction:   Bonus,
			Severity:    SeverityLow,
			Explanation: "address is a recognized entity: " + strings.Join(p.Labels, ", "),
		})
	}

	return factors
}

// mixerFactors penalizes proximity to known mixer addresses. Direct
// interaction is critical, one hop is high, anything further decays
// with the proximity score.
func mixerFactors(p *probe.MixerPayload) []Factor {
	if p.Hops == nil {
		return nil
	}

	var severity Severity
	var reason string
	switch hops := *p.Hops; {
	case hops == 0:
		severity = SeverityCritical
		reason = "direct interaction with a known mixer"
	case hops == 1:
		severity = SeverityHigh
		reason = "one hop removed from a known mixer"
	case p.ProximityScore >= 50:
		severity = SeverityMedium
		reason = fmt.Sprintf("%d hops removed from a known mixer", hops)
	default:
		severity = SeverityLow
		reason = fmt.Sprintf("distant mixer exposure (%d hops)", hops)
	}

	return []Factor{{
		Name:        "mixer_proximity",
		Category:    CategoryMixer,
		Direction:   Penalty,
		Severity:    severity,
		Explanation: reason,
	}}
}

func contractFactors(p *probe.ContractPayload) []Factor {
	var factors []Factor

	if p.IsHoneypot {
		factors = append(factors, Factor{
			Name:        "honeypot",
			Category:    CategoryContract,
			Direction:   Penalty,
			Severity:    SeverityCritical,
			Explanation: "contract blocks or punishes token sells",
		})
	}
	if p.HiddenMint {
		factors = append(factors, Factor{
			Name:        "hidden_mint",
			Category:    CategoryContract,
			Direction:   Penalty,
			Severity:    SeverityCritical,
			Explanation: "contract contains a concealed mint function",
		})
	}
	if p.IsContract && !p.IsVerified {
		factors = append(factors, Factor{
			Name:        "unverified_contract",
			Category:    CategoryContract,
			Direction:   Penalty,
			Severity:    SeverityMedium,
			Explanation: "contract source is not verified",
		})
	}
	if taxSuspicious(p.BuyTax, p.SellTax) {
		factors = append(factors, Factor{
			Name:        "suspicious_taxes",
			Category:    CategoryContract,
			Direction:   Penalty,
			Severity:    SeverityMedium,
			Explanation: fmt.Sprintf("unusual transfer taxes (buy %.1f%%, sell %.1f%%)", p.BuyTax, p.SellTax),
		})
	}

	return factors
}

// taxSuspicious flags high or asymmetric transfer taxes, the usual
// soft-honeypot signature.
func taxSuspicious(buy, sell float64) bool {
	return buy > 10 || sell > 10 || math.Abs(buy-sell) > 10
}

// isLargeAmount parses a raw-unit decimal amount and compares it to a
// fixed "large" threshold. Unparseable amounts are treated as small.
func isLargeAmount(amount string) bool {
	n, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return false
	}
	return n.Cmp(largeApprovalThreshold) >= 0
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
