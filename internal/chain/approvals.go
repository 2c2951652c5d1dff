package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/meghal86/guardian/internal/probe"
)

const (
	// approvalLookbackBlocks bounds the Approval event scan. Roughly
	// two months of Ethereum blocks; older approvals that are still
	// active almost always get re-approved within this window.
	approvalLookbackBlocks = uint64(400_000)

	// maxAllowanceChecks caps the per-scan allowance calls for wallets
	// with long approval histories.
	maxAllowanceChecks = 25
)

// ApprovalsClient discovers a wallet's active ERC-20 approvals from
// Approval event logs, confirming each candidate with a current
// allowance call so revoked approvals are not reported.
type ApprovalsClient struct {
	client *Client
}

// NewApprovalsClient creates the on-chain approvals provider.
func NewApprovalsClient(client *Client) *ApprovalsClient {
	return &ApprovalsClient{client: client}
}

func (a *ApprovalsClient) Name() string { return "onchain-approvals" }

// ActiveApprovals implements probe.ApprovalsProvider.
func (a *ApprovalsClient) ActiveApprovals(ctx context.Context, address, network string) (*probe.ApprovalsPayload, error) {
	if err := a.client.checkNetwork(network); err != nil {
		return nil, err
	}

	owner := common.HexToAddress(address)

	head, err := a.client.eth.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", err)
	}
	fromBlock := uint64(0)
	if head > approvalLookbackBlocks {
		fromBlock = head - approvalLookbackBlocks
	}

	logs, err := a.client.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Topics: [][]common.Hash{
			{approvalEventSig},
			{common.BytesToHash(owner.Bytes())}, // indexed owner
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter approval logs: %w", err)
	}

	// Deduplicate (token, spender) pairs keeping log order, newest
	// last, so the most recent approvals survive the check cap.
	type pair struct {
		token   common.Address
		spender common.Address
	}
	seen := make(map[pair]bool)
	var pairs []pair
	for i := len(logs) - 1; i >= 0; i-- {
		lg := logs[i]
		if len(lg.Topics) < 3 {
			continue
		}
		p := pair{
			token:   lg.Address,
			spender: common.BytesToAddress(lg.Topics[2].Bytes()),
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
		if len(pairs) >= maxAllowanceChecks {
			break
		}
	}

	payload := &probe.ApprovalsPayload{Approvals: []probe.Approval{}}
	for _, p := range pairs {
		allowance, err := a.allowance(ctx, p.token, owner, p.spender)
		if err != nil {
			return nil, err
		}
		if allowance.Sign() == 0 {
			continue // revoked since the event
		}
		payload.Approvals = append(payload.Approvals, probe.Approval{
			Spender:     p.spender.Hex(),
			Token:       p.token.Hex(),
			Amount:      allowance.String(),
			IsUnlimited: isUnlimited(allowance),
		})
	}
	return payload, nil
}

func (a *ApprovalsClient) allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := a.client.abi.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance call: %w", err)
	}

	result, err := a.client.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}
