// Package facilitator wires the network registry, chain clients, verifier,
// and settler into the single object the HTTP and WS surfaces call.
package facilitator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/x402proto/facilitator/internal/chain"
	"github.com/x402proto/facilitator/internal/registry"
	"github.com/x402proto/facilitator/internal/settle"
	"github.com/x402proto/facilitator/internal/verify"
	"github.com/x402proto/facilitator/internal/x402types"
)

// Facilitator is the top-level engine: verify/settle/supported over raw
// JSON bytes as received on the wire. The streaming protocol also goes
// through these byte-level calls, marshalling its in-memory requirements.
type Facilitator struct {
	Registry *registry.Registry
	Clients  map[string]chain.Client
	verifier *verify.Verifier
	settler  *settle.Settler
}

// New builds a Facilitator from a registry and a set of per-network chain
// clients (keyed by network identifier).
func New(reg *registry.Registry, clients map[string]chain.Client) *Facilitator {
	verifier := verify.New(reg, clients)
	return &Facilitator{
		Registry: reg,
		Clients:  clients,
		verifier: verifier,
		settler:  settle.New(verifier, clients),
	}
}

// verifyTyped runs the verifier pipeline on typed values. Called by Verify
// once the payload and requirements have been decoded.
func (f *Facilitator) verifyTyped(ctx context.Context, payload x402types.PaymentPayload, requirements x402types.PaymentRequirements) (*x402types.VerifyResponse, error) {
	return f.verifier.Verify(ctx, payload, requirements)
}

// settleTyped runs the settler on typed values.
func (f *Facilitator) settleTyped(ctx context.Context, payload x402types.PaymentPayload, requirements x402types.PaymentRequirements) (*x402types.SettleResponse, error) {
	return f.settler.Settle(ctx, payload, requirements)
}

// Verify decodes raw JSON payload/requirements and runs the verifier
// pipeline. This is what the HTTP and WS `x402.verify` surfaces call.
func (f *Facilitator) Verify(ctx context.Context, payloadBytes, requirementsBytes []byte) (*x402types.VerifyResponse, error) {
	payload, requirements, err := decode(payloadBytes, requirementsBytes)
	if err != nil {
		return nil, x402types.NewVerifyError(x402types.KindDecodingError, "", "", err)
	}
	return f.verifyTyped(ctx, *payload, *requirements)
}

// Settle decodes raw JSON payload/requirements and runs the settler.
func (f *Facilitator) Settle(ctx context.Context, payloadBytes, requirementsBytes []byte) (*x402types.SettleResponse, error) {
	payload, requirements, err := decode(payloadBytes, requirementsBytes)
	if err != nil {
		return nil, x402types.NewSettleError(x402types.KindDecodingError, "", "", "", err)
	}
	return f.settleTyped(ctx, *payload, *requirements)
}

// GetSupported enumerates every (scheme, network) pair known to C1.
func (f *Facilitator) GetSupported() x402types.SupportedResponse {
	return x402types.SupportedResponse{Kinds: f.Registry.SupportedKinds()}
}

// ChainClients exposes the per-network chain clients for readiness
// probing; not part of the narrower Verify/Settle/GetSupported surface
// the HTTP and WS handlers depend on.
func (f *Facilitator) ChainClients() map[string]chain.Client {
	return f.Clients
}

func decode(payloadBytes, requirementsBytes []byte) (*x402types.PaymentPayload, *x402types.PaymentRequirements, error) {
	var payload x402types.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, nil, fmt.Errorf("decode paymentPayload: %w", err)
	}
	var requirements x402types.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return nil, nil, fmt.Errorf("decode paymentRequirements: %w", err)
	}
	return &payload, &requirements, nil
}
