// Package settle implements the settler (C5): re-verifies a payload, then
// drives a transferWithAuthorization transaction to finality and
// classifies the outcome.
package settle

import (
	"context"
	"time"

	"github.com/x402proto/facilitator/internal/chain"
	"github.com/x402proto/facilitator/internal/verify"
	"github.com/x402proto/facilitator/internal/x402types"
)

const (
	minReceiptTimeout = 10 * time.Second
	maxReceiptTimeout = 60 * time.Second
)

// Settler settles payloads that have already been verified by the caller;
// it always re-verifies internally because chain state may have changed.
type Settler struct {
	verifier *verify.Verifier
	clients  map[string]chain.Client
}

// New constructs a Settler sharing the verifier's registry/client wiring.
func New(verifier *verify.Verifier, clients map[string]chain.Client) *Settler {
	return &Settler{verifier: verifier, clients: clients}
}

// Settle runs §4.5: re-verify, submit, poll, classify.
func (s *Settler) Settle(ctx context.Context, payload x402types.PaymentPayload, requirements x402types.PaymentRequirements) (*x402types.SettleResponse, error) {
	verifyResp, verr := s.verifier.Verify(ctx, payload, requirements)

	// A transport fault (400-class) from re-verification is surfaced the
	// same way the HTTP/WS layer surfaces it for a plain /verify call:
	// return the error, no typed response.
	if verifyResp == nil {
		return nil, verr
	}
	if !verifyResp.IsValid {
		return &x402types.SettleResponse{
			Success:     false,
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
			ErrorReason: verifyResp.InvalidReason,
		}, nil
	}

	client, ok := s.clients[requirements.Network]
	if !ok {
		return nil, x402types.NewSettleError(x402types.KindContractCall, verifyResp.Payer, requirements.Network, "", nil)
	}

	auth := payload.Payload.Authorization
	sigBytes, err := x402types.RawSignatureBytes(payload.Payload.Signature)
	if err != nil {
		return nil, x402types.NewSettleError(x402types.KindDecodingError, verifyResp.Payer, requirements.Network, "", err)
	}

	txHash, err := client.SubmitTransferWithAuthorization(ctx, requirements.Asset, auth, sigBytes)
	if err != nil {
		return &x402types.SettleResponse{
			Success:     false,
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
			ErrorReason: x402types.ReasonUnexpectedSettleError,
		}, nil
	}

	timeout := time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	if timeout < minReceiptTimeout {
		timeout = minReceiptTimeout
	}
	if timeout > maxReceiptTimeout {
		timeout = maxReceiptTimeout
	}

	receipt, err := client.WaitForReceipt(ctx, txHash, timeout)
	if err != nil {
		// Timeout or poll fault: caller may poll externally using the hash.
		return &x402types.SettleResponse{
			Success:     false,
			Transaction: txHash,
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
			ErrorReason: x402types.ReasonUnexpectedSettleError,
		}, nil
	}

	if receipt.Status != chain.TxStatusSuccess {
		return &x402types.SettleResponse{
			Success:     false,
			Transaction: txHash,
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
			ErrorReason: x402types.ReasonUnexpectedSettleError,
		}, nil
	}

	return &x402types.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       verifyResp.Payer,
	}, nil
}
