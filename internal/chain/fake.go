package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/x402proto/facilitator/internal/x402types"
)

// FakeClient is an in-memory Client used by verifier/settler unit tests.
// It never touches the network.
type FakeClient struct {
	mu sync.Mutex

	chainID *big.Int

	Balances map[string]*big.Int       // key: lower(owner)
	Used     map[string]bool           // key: lower(authorizer)+":"+lower(nonce)
	NextTx   string                    // tx hash to return from SubmitTransferWithAuthorization
	Receipt  *Receipt                  // receipt to return from WaitForReceipt
	SubmitErr error
	ReceiptErr error
	BalanceErr error
	AuthStateErr error
	BlockNumberErr error

	block uint64
}

// NewFakeClient constructs a FakeClient for the given chain ID.
func NewFakeClient(chainID *big.Int) *FakeClient {
	return &FakeClient{
		chainID:  chainID,
		Balances: map[string]*big.Int{},
		Used:     map[string]bool{},
		NextTx:   "0xfaketxhash",
		Receipt:  &Receipt{Status: TxStatusSuccess, BlockNumber: 1, TxHash: "0xfaketxhash"},
	}
}

func (f *FakeClient) ChainID() *big.Int { return f.chainID }

func (f *FakeClient) BalanceOf(ctx context.Context, asset, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if b, ok := f.Balances[strings.ToLower(owner)]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *FakeClient) AuthorizationState(ctx context.Context, asset, authorizer, nonce string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AuthStateErr != nil {
		return false, f.AuthStateErr
	}
	key := strings.ToLower(authorizer) + ":" + strings.ToLower(nonce)
	return f.Used[key], nil
}

func (f *FakeClient) SubmitTransferWithAuthorization(ctx context.Context, asset string, auth x402types.Authorization, sig []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	key := strings.ToLower(auth.From) + ":" + strings.ToLower(auth.Nonce)
	f.Used[key] = true
	return f.NextTx, nil
}

func (f *FakeClient) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReceiptErr != nil {
		return nil, f.ReceiptErr
	}
	return f.Receipt, nil
}

func (f *FakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BlockNumberErr != nil {
		return 0, f.BlockNumberErr
	}
	return f.block, nil
}

// SetBalance is a test helper to seed an owner's balance.
func (f *FakeClient) SetBalance(owner string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[strings.ToLower(owner)] = amount
}

// MarkUsed is a test helper to mark a nonce as already consumed.
func (f *FakeClient) MarkUsed(authorizer, nonce string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Used[strings.ToLower(authorizer)+":"+strings.ToLower(nonce)] = true
}

var _ Client = (*FakeClient)(nil)
