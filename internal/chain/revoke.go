package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// RevokeSubmitter broadcasts approve(spender, 0) transactions. The
// configured key must be the wallet owner (or a session key authorized
// to act for it); the engine does not custody user keys in production,
// this signer backs the managed-wallet deployment.
type RevokeSubmitter struct {
	client     *Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewRevokeSubmitter creates a submitter signing with the given hex key.
func NewRevokeSubmitter(client *Client, privateKeyHex string) (*RevokeSubmitter, error) {
	key := strings.TrimPrefix(privateKeyHex, "0x")
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	return &RevokeSubmitter{
		client:     client,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the signer address.
func (r *RevokeSubmitter) Address() string {
	return r.address.Hex()
}

// RevokeApproval implements action.Submitter: it zeroes the allowance
// the owner granted the spender on the given token and returns the
// transaction hash.
func (r *RevokeSubmitter) RevokeApproval(ctx context.Context, owner, token, spender string) (string, error) {
	tokenAddr := common.HexToAddress(token)
	spenderAddr := common.HexToAddress(spender)

	data, err := r.client.abi.Pack("approve", spenderAddr, big.NewInt(0))
	if err != nil {
		return "", fmt.Errorf("failed to pack approve call: %w", err)
	}

	nonce, err := r.client.eth.PendingNonceAt(ctx, r.address)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrSubmissionFailed, err)
	}

	gasPrice, err := r.client.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", ErrSubmissionFailed, err)
	}

	gasLimit, err := r.client.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  r.address,
		To:    &tokenAddr,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, tokenAddr, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(r.client.chainID), r.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrSubmissionFailed, err)
	}

	if err := r.client.eth.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: send: %v", ErrSubmissionFailed, err)
	}

	return signedTx.Hash().Hex(), nil
}

// SimulatedSubmitter backs demo mode: it fabricates a deterministic
// transaction reference without touching a chain.
type SimulatedSubmitter struct{}

func (SimulatedSubmitter) RevokeApproval(ctx context.Context, owner, token, spender string) (string, error) {
	h := crypto.Keccak256Hash(
		[]byte(strings.ToLower(owner)),
		[]byte(strings.ToLower(token)),
		[]byte(strings.ToLower(spender)),
	)
	return h.Hex(), nil
}
