// Package chain is the per-network chain client (C2): read-only and write
// access to an EVM RPC endpoint — eth_call (balanceOf, authorizationState),
// gas estimation, transaction submission, and receipt polling.
package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/x402proto/facilitator/internal/x402types"
)

// Receipt is the subset of a transaction receipt the settler classifies on.
type Receipt struct {
	Status      uint64
	BlockNumber uint64
	TxHash      string
}

// Client is the chain-client operations the verifier and settler depend
// on. A single implementation serves both; the settler additionally
// requires a signing key (set at construction).
type Client interface {
	BalanceOf(ctx context.Context, asset, owner string) (*big.Int, error)
	AuthorizationState(ctx context.Context, asset, authorizer, nonce string) (bool, error)
	ChainID() *big.Int
	SubmitTransferWithAuthorization(ctx context.Context, asset string, auth x402types.Authorization, sig []byte) (txHash string, err error)
	WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVMClient is the production Client backed by go-ethereum's ethclient.
// Long-lived: one instance per configured network, shared across
// concurrent requests; connection pooling is delegated to the underlying
// rpc.Client.
type EVMClient struct {
	rpc        *ethclient.Client
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey // nil for a verify-only client
	address    common.Address
}

// NewEVMClient dials rpcURL and resolves the chain ID. privateKey may be
// nil if this client will only ever be used for read-only verification
// (authorizationState/balanceOf) and never for settlement.
func NewEVMClient(ctx context.Context, rpcURL string, privateKey *ecdsa.PrivateKey) (*EVMClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	c := &EVMClient{rpc: rpc, chainID: chainID, privateKey: privateKey}
	if privateKey != nil {
		c.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	}
	return c, nil
}

// ChainID returns the network's chain ID, resolved once at dial time.
func (c *EVMClient) ChainID() *big.Int { return c.chainID }

// BlockNumber reads the chain tip height. Used by the readiness probe to
// confirm the RPC endpoint is actually responsive, not just dialable.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// Address returns the facilitator's own settlement-signing address, or
// the zero address if this client holds no signing key.
func (c *EVMClient) Address() common.Address { return c.address }

func (c *EVMClient) call(ctx context.Context, asset string, abiJSON []byte, method string, args ...interface{}) ([]byte, error) {
	// Contract reads are bounded at 10s regardless of the caller's deadline.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	parsed, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := common.HexToAddress(asset)
	msg := ethereum.CallMsg{To: &to, Data: data}
	result, err := c.rpc.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return result, nil
}

// BalanceOf reads the ERC-20 balance of owner in asset.
func (c *EVMClient) BalanceOf(ctx context.Context, asset, owner string) (*big.Int, error) {
	result, err := c.call(ctx, asset, erc20BalanceOfABI, functionBalanceOf, common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return big.NewInt(0), nil
	}
	parsed, _ := abi.JSON(strings.NewReader(string(erc20BalanceOfABI)))
	out, err := parsed.Methods[functionBalanceOf].Outputs.Unpack(result)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf output type %T", out[0])
	}
	return balance, nil
}

// AuthorizationState reads whether an EIP-3009 nonce has already been
// consumed by authorizer on asset.
func (c *EVMClient) AuthorizationState(ctx context.Context, asset, authorizer, nonce string) (bool, error) {
	var nonceBytes [32]byte
	raw, err := hexDecode(nonce)
	if err != nil {
		return false, fmt.Errorf("decode nonce: %w", err)
	}
	copy(nonceBytes[:], raw)

	result, err := c.call(ctx, asset, authorizationStateABI, functionAuthorizationState,
		common.HexToAddress(authorizer), nonceBytes)
	if err != nil {
		return false, err
	}
	if len(result) == 0 {
		return false, nil
	}
	parsed, _ := abi.JSON(strings.NewReader(string(authorizationStateABI)))
	out, err := parsed.Methods[functionAuthorizationState].Outputs.Unpack(result)
	if err != nil {
		return false, fmt.Errorf("unpack authorizationState: %w", err)
	}
	used, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState output type %T", out[0])
	}
	return used, nil
}

// SubmitTransferWithAuthorization builds, signs, and broadcasts a
// transferWithAuthorization transaction. Requires a signing key.
func (c *EVMClient) SubmitTransferWithAuthorization(ctx context.Context, asset string, auth x402types.Authorization, sig []byte) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("chain client has no signing key configured")
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("invalid signature length: %d", len(sig))
	}

	parsed, err := abi.JSON(strings.NewReader(string(transferWithAuthorizationABI)))
	if err != nil {
		return "", fmt.Errorf("parse abi: %w", err)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return "", fmt.Errorf("invalid value: %s", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return "", fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return "", fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}
	nonceBytes, err := hexDecode(auth.Nonce)
	if err != nil {
		return "", fmt.Errorf("invalid nonce: %w", err)
	}
	var nonce32 [32]byte
	copy(nonce32[:], nonceBytes)

	r, s := sig[0:32], sig[32:64]
	v := sig[64]
	if v < 27 {
		v += 27
	}
	var r32, s32 [32]byte
	copy(r32[:], r)
	copy(s32[:], s)

	data, err := parsed.Pack(functionTransferWithAuthorization,
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		value, validAfter, validBefore, nonce32, v, r32, s32,
	)
	if err != nil {
		return "", fmt.Errorf("pack transferWithAuthorization: %w", err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	to := common.HexToAddress(asset)
	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From: c.address,
		To:   &to,
		Data: data,
	})
	if err != nil {
		// Fall back to a conservative fixed limit if estimation itself
		// fails (some RPCs refuse eth_estimateGas for unfamiliar methods).
		gasLimit = 150000
	} else {
		gasLimit = gasLimit * 12 / 10 // §4.5 step 3: 1.2x multiplier
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

// WaitForReceipt polls for a transaction receipt until timeout elapses.
func (c *EVMClient) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error) {
	hash := common.HexToHash(txHash)
	deadline := time.Now().Add(timeout)
	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &Receipt{
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				TxHash:      receipt.TxHash.Hex(),
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("receipt for %s not found after %s", txHash, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
