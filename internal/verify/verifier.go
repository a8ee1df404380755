// Package verify implements the verifier (C4): the central, side-effect-free
// state machine that checks a PaymentPayload against PaymentRequirements.
package verify

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/x402proto/facilitator/internal/chain"
	"github.com/x402proto/facilitator/internal/registry"
	"github.com/x402proto/facilitator/internal/x402types"
)

// minSettlementSlack is the floor applied to settlementSlack regardless of
// maxTimeoutSeconds (§4.4 step 7).
const minSettlementSlack = 6 * time.Second

// Clock returns the current time; swappable in tests for timing scenarios.
type Clock func() time.Time

// Verifier runs the §4.4 pipeline. It never mutates chain state: steps 9
// and 10 only read.
type Verifier struct {
	registry *registry.Registry
	clients  map[string]chain.Client
	now      Clock
}

// New constructs a Verifier over the given registry and per-network chain
// clients (keyed by network identifier, matching registry.Entry.Network).
func New(reg *registry.Registry, clients map[string]chain.Client) *Verifier {
	return &Verifier{registry: reg, clients: clients, now: time.Now}
}

// WithClock overrides the clock used for the timing check (step 7); used
// by tests that need a fixed `now`.
func (v *Verifier) WithClock(clock Clock) *Verifier {
	v.now = clock
	return v
}

// Verify runs the full pipeline and returns a VerifyResponse together with
// the classifying error (nil on success). Callers that only need the wire
// response can ignore the error; callers that need to distinguish a 200
// "invalid" response from a 400 transport fault should inspect it.
func (v *Verifier) Verify(ctx context.Context, payload x402types.PaymentPayload, requirements x402types.PaymentRequirements) (*x402types.VerifyResponse, error) {
	resp, err := v.run(ctx, payload, requirements)
	if err == nil {
		return resp, nil
	}

	verr, ok := err.(*x402types.VerifyError)
	if !ok {
		return nil, err
	}
	if verr.Kind.IsTransportFault() {
		return nil, verr
	}
	return &x402types.VerifyResponse{
		IsValid:       false,
		Payer:         verr.Payer,
		InvalidReason: verr.Kind.Reason(),
	}, verr
}

func (v *Verifier) run(ctx context.Context, p x402types.PaymentPayload, r x402types.PaymentRequirements) (*x402types.VerifyResponse, error) {
	auth := p.Payload.Authorization

	// 1. Version check.
	if p.X402Version != x402types.X402Version {
		return nil, x402types.NewVerifyError(x402types.KindSchemeMismatch, "", r.Network, nil)
	}

	// 2. Scheme match.
	if p.Scheme != x402types.SchemeExact || r.Scheme != x402types.SchemeExact {
		return nil, x402types.NewVerifyError(x402types.KindSchemeMismatch, "", r.Network, nil)
	}

	// 3. Network match + known to C1.
	if p.Network != r.Network {
		return nil, x402types.NewVerifyError(x402types.KindNetworkMismatch, "", r.Network, nil)
	}
	entry, err := v.registry.Get(r.Network)
	if err != nil {
		return nil, x402types.NewVerifyError(x402types.KindUnsupportedNetwork, "", r.Network, err)
	}

	// 4. Asset match.
	if !v.registry.IsAsset(r.Network, r.Asset) {
		return nil, x402types.NewVerifyError(x402types.KindSchemeMismatch, "", r.Network, nil)
	}

	// 5. Receiver match.
	if !strings.EqualFold(auth.To, r.PayTo) {
		return nil, x402types.NewVerifyError(x402types.KindReceiverMismatch, "", r.Network, nil)
	}

	// 6. Value sufficiency.
	authValue, ok := parseBig(auth.Value)
	if !ok {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", r.Network, nil)
	}
	requiredValue, ok := parseBig(r.MaxAmountRequired)
	if !ok {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", r.Network, nil)
	}
	if authValue.Cmp(requiredValue) < 0 {
		return nil, x402types.NewVerifyError(x402types.KindInsufficientValue, "", r.Network, nil)
	}

	// 7. Timing.
	now := v.now()
	validAfter, ok := parseUnix(auth.ValidAfter)
	if !ok {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", r.Network, nil)
	}
	validBefore, ok := parseUnix(auth.ValidBefore)
	if !ok {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", r.Network, nil)
	}
	slack := time.Duration(r.MaxTimeoutSeconds) * time.Second
	if slack < minSettlementSlack {
		slack = minSettlementSlack
	}
	if validAfter.After(now) || now.After(validBefore.Add(-slack)) {
		return nil, x402types.NewVerifyError(x402types.KindInvalidTiming, "", r.Network, nil)
	}

	// 8. Signature recovery.
	if r.Extra == nil || r.Extra.Name == "" || r.Extra.Version == "" {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", r.Network, nil)
	}
	digest, err := transferWithAuthorizationDigest(auth, entry.ChainID, r.Asset, r.Extra.Name, r.Extra.Version)
	if err != nil {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", r.Network, err)
	}
	sigBytes, err := x402types.RawSignatureBytes(p.Payload.Signature)
	if err != nil {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", r.Network, err)
	}
	recovered, err := recoverSigner(digest, sigBytes)
	if err != nil || !strings.EqualFold(recovered.Hex(), auth.From) {
		return nil, x402types.NewVerifyError(x402types.KindInvalidSignature, "", r.Network, err)
	}

	// From this point on the payer is identified: every later failure
	// carries it.
	payer := auth.From

	client, ok := v.clients[r.Network]
	if !ok {
		return nil, x402types.NewVerifyError(x402types.KindContractCall, payer, r.Network, nil)
	}

	// 9. Balance check.
	balance, err := client.BalanceOf(ctx, r.Asset, auth.From)
	if err != nil {
		return nil, x402types.NewVerifyError(x402types.KindContractCall, payer, r.Network, err)
	}
	if balance.Cmp(authValue) < 0 {
		return nil, x402types.NewVerifyError(x402types.KindInsufficientFunds, payer, r.Network, nil)
	}

	// 10. Nonce unused.
	used, err := client.AuthorizationState(ctx, r.Asset, auth.From, auth.Nonce)
	if err != nil {
		return nil, x402types.NewVerifyError(x402types.KindContractCall, payer, r.Network, err)
	}
	if used {
		return nil, x402types.NewVerifyError(x402types.KindInvalidSignature, payer, r.Network, nil)
	}

	return &x402types.VerifyResponse{IsValid: true, Payer: payer}, nil
}

func parseBig(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

func parseUnix(s string) (time.Time, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(n.Int64(), 0), true
}
