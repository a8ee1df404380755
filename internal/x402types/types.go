// Package x402types holds the wire data model for the x402 exact/EIP-3009
// payment scheme: payment requirements, signed payloads, and the verify/settle
// response shapes exchanged over both the HTTP and WS surfaces.
package x402types

import "encoding/json"

// SchemeExact is the only payment scheme this facilitator implements.
const SchemeExact = "exact"

// X402Version is the only payload version this facilitator accepts.
const X402Version = 1

// PaymentRequirements describes what a resource server demands for a request.
// Immutable once issued; the facilitator never mutates a requirements value.
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource"`
	Description       string          `json:"description,omitempty"`
	MimeType          string          `json:"mimeType,omitempty"`
	OutputSchema      json.RawMessage `json:"outputSchema,omitempty"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Asset             string          `json:"asset"`
	Extra             *Extra          `json:"extra,omitempty"`
}

// Extra carries the EIP-712 domain fields of the asset, when the deployment
// exposes them as part of its signing domain.
type Extra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Authorization is the EIP-3009 transferWithAuthorization message.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload is the `payload` field of a PaymentPayload for scheme `exact`.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the buyer's signed authorization, as sent in the
// X-PAYMENT header (base64-encoded JSON) or as a POST body field.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// VerifyResponse is the result of a verify call.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	Payer         string `json:"payer,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleResponse is the result of a settle call.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Wire values for VerifyResponse.InvalidReason / SettleResponse.ErrorReason.
const (
	ReasonInvalidScheme         = "invalidScheme"
	ReasonInvalidNetwork        = "invalidNetwork"
	ReasonInsufficientFunds     = "insufficientFunds"
	ReasonUnexpectedSettleError = "unexpectedSettleError"
)

// SupportedKind describes one (scheme, network) pair the facilitator can
// verify and settle.
type SupportedKind struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
	Extra   *Extra `json:"extra,omitempty"`
}

// SupportedResponse is the body of GET /supported and the result of
// x402.supported.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// PaymentRequired is the 402 challenge body emitted by resource servers.
// The facilitator never emits this itself; it is documented here because
// discovery responses and client SDKs share the shape.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// VerifyRequest is the body of POST /verify and the params of x402.verify.
type VerifyRequest struct {
	X402Version         int             `json:"x402Version"`
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}

// SettleRequest is the body of POST /settle and the params of x402.settle.
type SettleRequest struct {
	X402Version         int             `json:"x402Version"`
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}
