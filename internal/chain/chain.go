// Package chain handles on-chain reads and transactions: discovering
// active ERC-20 approvals, classifying addresses as contracts, and
// submitting approval revokes.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrInvalidPrivateKey  = errors.New("chain: invalid private key")
	ErrRPCConnection      = errors.New("chain: RPC connection failed")
	ErrUnsupportedNetwork = errors.New("chain: network not served by this client")
	ErrSubmissionFailed   = errors.New("chain: transaction submission failed")
)

// ERC20 minimal ABI: approvals and the Approval event.
const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Approval","type":"event"}
]`

// approvalEventSig is keccak256("Approval(address,address,uint256)").
var approvalEventSig = common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925")

// unlimitedThreshold classifies an allowance as effectively unlimited:
// anything at or above 2^255 (MaxUint256 and the common 2^256-1 /
// 2^255-1 variants all clear it).
var unlimitedThreshold = new(big.Int).Lsh(big.NewInt(1), 255)

// DefaultGasLimit for approve calls when estimation fails.
const DefaultGasLimit = uint64(60000)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Client is the shared RPC connection plus the parsed ERC-20 ABI. One
// client serves one network.
type Client struct {
	eth     EthClient
	network string
	chainID *big.Int
	abi     abi.ABI
}

// Option configures the client.
type Option func(*Client)

// WithEthClient sets a custom Ethereum client (useful for testing).
func WithEthClient(eth EthClient) Option {
	return func(c *Client) {
		c.eth = eth
	}
}

// Dial connects to the given RPC endpoint.
func Dial(rpcURL, network string, chainID int64, opts ...Option) (*Client, error) {
	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	c := &Client{
		network: network,
		chainID: big.NewInt(chainID),
		abi:     parsedABI,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.eth == nil {
		eth, err := ethclient.Dial(rpcURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.eth = eth
	}
	return c, nil
}

// Network returns the network this client serves.
func (c *Client) Network() string { return c.network }

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

func (c *Client) checkNetwork(network string) error {
	if network != c.network {
		return fmt.Errorf("%w: have %s, want %s", ErrUnsupportedNetwork, c.network, network)
	}
	return nil
}

// isUnlimited classifies an allowance value.
func isUnlimited(allowance *big.Int) bool {
	return allowance.Cmp(unlimitedThreshold) >= 0
}
