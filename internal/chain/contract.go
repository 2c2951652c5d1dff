package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meghal86/guardian/internal/probe"
)

// ContractClient is the on-chain fallback contract-safety provider. It
// can only answer what the chain itself knows: whether the address has
// code. Verification status, honeypot detection, and taxes need an
// analysis service; when this client is the source, those fields stay
// at their zero values and derive no factors beyond "unverified".
type ContractClient struct {
	client *Client
}

// NewContractClient creates the on-chain contract provider.
func NewContractClient(client *Client) *ContractClient {
	return &ContractClient{client: client}
}

func (c *ContractClient) Name() string { return "onchain-code" }

// Inspect implements probe.ContractProvider.
func (c *ContractClient) Inspect(ctx context.Context, address, network string) (*probe.ContractPayload, error) {
	if err := c.client.checkNetwork(network); err != nil {
		return nil, err
	}

	code, err := c.client.eth.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read code: %w", err)
	}

	return &probe.ContractPayload{
		IsContract: len(code) > 0,
	}, nil
}
