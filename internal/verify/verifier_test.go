package verify

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	gocrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402proto/facilitator/internal/chain"
	"github.com/x402proto/facilitator/internal/registry"
	"github.com/x402proto/facilitator/internal/x402types"
)

const (
	testAsset = "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	testNetwork = "base"
)

// signedFixture builds a valid, signed TransferWithAuthorization for the
// given key, payer, payee, value and timing window.
func signedFixture(t *testing.T, key *ecdsa.PrivateKey, to, value string, validAfter, validBefore int64, nonce string) (x402types.PaymentPayload, x402types.PaymentRequirements) {
	t.Helper()

	from := gocrypto.PubkeyToAddress(key.PublicKey).Hex()
	auth := x402types.Authorization{
		From:        from,
		To:          to,
		Value:       value,
		ValidAfter:  bigString(validAfter),
		ValidBefore: bigString(validBefore),
		Nonce:       nonce,
	}

	reg := registry.Default()
	entry, err := reg.Get(testNetwork)
	require.NoError(t, err)

	digest, err := transferWithAuthorizationDigest(auth, entry.ChainID, testAsset, "USD Coin", "2")
	require.NoError(t, err)

	sig, err := gocrypto.Sign(digest, key)
	require.NoError(t, err)

	payload := x402types.PaymentPayload{
		X402Version: x402types.X402Version,
		Scheme:      x402types.SchemeExact,
		Network:     testNetwork,
		Payload: x402types.ExactPayload{
			Signature:     "0x" + hex.EncodeToString(sig),
			Authorization: auth,
		},
	}
	requirements := x402types.PaymentRequirements{
		Scheme:            x402types.SchemeExact,
		Network:           testNetwork,
		MaxAmountRequired: "1000000",
		Resource:          "https://example.com/resource",
		PayTo:             to,
		MaxTimeoutSeconds: 60,
		Asset:             testAsset,
		Extra:             &x402types.Extra{Name: "USD Coin", Version: "2"},
	}
	return payload, requirements
}

func bigString(n int64) string {
	return big.NewInt(n).String()
}

func newFixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestVerifySuccess(t *testing.T) {
	key, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_100, 0)
	payTo := "0x2222222222222222222222222222222222222222"
	payload, requirements := signedFixture(t, key, payTo, "1000000", 1_700_000_000, 1_700_001_000, "0x"+hex64("01"))

	client := chain.NewFakeClient(big.NewInt(8453))
	client.SetBalance(payload.Payload.Authorization.From, big.NewInt(2_000_000))

	v := New(registry.Default(), map[string]chain.Client{testNetwork: client}).WithClock(newFixedClock(now))

	resp, err := v.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, payload.Payload.Authorization.From, resp.Payer)
}

func TestVerifyInsufficientValue(t *testing.T) {
	key, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_100, 0)
	payTo := "0x2222222222222222222222222222222222222222"
	payload, requirements := signedFixture(t, key, payTo, "500000", 1_700_000_000, 1_700_001_000, "0x"+hex64("02"))

	client := chain.NewFakeClient(big.NewInt(8453))
	v := New(registry.Default(), map[string]chain.Client{testNetwork: client}).WithClock(newFixedClock(now))

	resp, err := v.Verify(context.Background(), payload, requirements)
	require.Error(t, err) // not a transport fault: typed invalid response plus its classifying error
	assert.False(t, resp.IsValid)
	assert.Equal(t, x402types.ReasonInvalidScheme, resp.InvalidReason)
}

func TestVerifyInsufficientFunds(t *testing.T) {
	key, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_100, 0)
	payTo := "0x2222222222222222222222222222222222222222"
	payload, requirements := signedFixture(t, key, payTo, "1000000", 1_700_000_000, 1_700_001_000, "0x"+hex64("03"))

	client := chain.NewFakeClient(big.NewInt(8453))
	client.SetBalance(payload.Payload.Authorization.From, big.NewInt(100))
	v := New(registry.Default(), map[string]chain.Client{testNetwork: client}).WithClock(newFixedClock(now))

	resp, err := v.Verify(context.Background(), payload, requirements)
	require.Error(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, x402types.ReasonInsufficientFunds, resp.InvalidReason)
}

func TestVerifyNonceAlreadyUsed(t *testing.T) {
	key, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_100, 0)
	payTo := "0x2222222222222222222222222222222222222222"
	payload, requirements := signedFixture(t, key, payTo, "1000000", 1_700_000_000, 1_700_001_000, "0x"+hex64("04"))

	client := chain.NewFakeClient(big.NewInt(8453))
	client.SetBalance(payload.Payload.Authorization.From, big.NewInt(2_000_000))
	client.MarkUsed(payload.Payload.Authorization.From, payload.Payload.Authorization.Nonce)
	v := New(registry.Default(), map[string]chain.Client{testNetwork: client}).WithClock(newFixedClock(now))

	resp, err := v.Verify(context.Background(), payload, requirements)
	require.Error(t, err)
	assert.False(t, resp.IsValid)
}

func TestVerifyExpiredAuthorization(t *testing.T) {
	key, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_001_500, 0) // after validBefore - slack
	payTo := "0x2222222222222222222222222222222222222222"
	payload, requirements := signedFixture(t, key, payTo, "1000000", 1_700_000_000, 1_700_001_000, "0x"+hex64("05"))

	client := chain.NewFakeClient(big.NewInt(8453))
	client.SetBalance(payload.Payload.Authorization.From, big.NewInt(2_000_000))
	v := New(registry.Default(), map[string]chain.Client{testNetwork: client}).WithClock(newFixedClock(now))

	resp, err := v.Verify(context.Background(), payload, requirements)
	require.Error(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, x402types.ReasonInvalidScheme, resp.InvalidReason)
}

func TestVerifyReceiverMismatch(t *testing.T) {
	key, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_100, 0)
	payload, requirements := signedFixture(t, key, "0x3333333333333333333333333333333333333333", "1000000", 1_700_000_000, 1_700_001_000, "0x"+hex64("06"))
	requirements.PayTo = "0x2222222222222222222222222222222222222222" // different from signed `to`

	client := chain.NewFakeClient(big.NewInt(8453))
	v := New(registry.Default(), map[string]chain.Client{testNetwork: client}).WithClock(newFixedClock(now))

	resp, err := v.Verify(context.Background(), payload, requirements)
	require.Error(t, err)
	assert.False(t, resp.IsValid)
}

func TestVerifyUnsupportedNetwork(t *testing.T) {
	key, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_100, 0)
	payTo := "0x2222222222222222222222222222222222222222"
	payload, requirements := signedFixture(t, key, payTo, "1000000", 1_700_000_000, 1_700_001_000, "0x"+hex64("07"))
	payload.Network = "ethereum"
	requirements.Network = "ethereum"

	client := chain.NewFakeClient(big.NewInt(8453))
	v := New(registry.Default(), map[string]chain.Client{testNetwork: client}).WithClock(newFixedClock(now))

	resp, err := v.Verify(context.Background(), payload, requirements)
	require.Error(t, err) // every pipeline failure carries a non-nil error
	require.NotNil(t, resp)
	assert.False(t, resp.IsValid)
	assert.Equal(t, x402types.ReasonInvalidNetwork, resp.InvalidReason)
}

func hex64(suffix string) string {
	return "00000000000000000000000000000000000000000000000000000000000000"[:64-len(suffix)] + suffix
}
