package x402types

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// XPaymentHeader is the canonical name of the header carrying a base64-
// encoded PaymentPayload.
const XPaymentHeader = "X-PAYMENT"

// EncodeXPayment renders a PaymentPayload as the base64 string carried in
// the X-PAYMENT header: base64 of the canonical (struct-ordered) JSON.
func EncodeXPayment(p PaymentPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeXPayment parses the base64 X-PAYMENT header value into a
// PaymentPayload.
func DecodeXPayment(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("decode X-PAYMENT base64: %w", err)
	}
	var p PaymentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode X-PAYMENT json: %w", err)
	}
	return &p, nil
}

// SplitSignature decodes a 65-byte hex signature (r||s||v) into its three
// components. v is normalized to {27, 28}; a v of {0, 1} is accepted and
// shifted by +27.
func SplitSignature(sigHex string) (r, s [32]byte, v uint8, err error) {
	cleaned := strings.TrimPrefix(sigHex, "0x")
	raw, decErr := hex.DecodeString(cleaned)
	if decErr != nil {
		err = fmt.Errorf("invalid signature hex: %w", decErr)
		return
	}
	if len(raw) != 65 {
		err = fmt.Errorf("invalid signature length: got %d, want 65", len(raw))
		return
	}
	copy(r[:], raw[0:32])
	copy(s[:], raw[32:64])
	v = raw[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		err = fmt.Errorf("invalid signature recovery id: %d", v)
		return
	}
	return r, s, v, nil
}

// RawSignatureBytes returns the 65 raw bytes (r||s||v) of a hex signature,
// with v left in its original on-wire form (not normalized), for callers
// that need to pass the exact bytes to ecrecover-style APIs.
func RawSignatureBytes(sigHex string) ([]byte, error) {
	cleaned := strings.TrimPrefix(sigHex, "0x")
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("invalid signature length: got %d, want 65", len(raw))
	}
	return raw, nil
}
