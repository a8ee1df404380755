// Package stream implements the per-connection streaming micropayment
// state machine layered on top of exact/EIP-3009: a buyer opens a stream,
// the seller (the facilitator, acting on the resource server's behalf)
// requires payment for each slice in turn, and prepays a short window
// ahead of consumption.
package stream

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/x402proto/facilitator/internal/x402types"
)

// State is the lifecycle stage of a single stream.
type State string

const (
	StateInit    State = "init"
	StateAwaiting State = "awaiting" // a stream.require has been sent, awaiting stream.pay
	StatePaying   State = "paying"   // a stream.pay is being verified/settled
	StateClosed   State = "closed"
)

// InitParams are the caller-supplied pricing parameters for stream.init.
// Per the resolved Open Question, pricing is always an input: the
// facilitator only drives the require/pay/accept bookkeeping, never
// chooses a price itself.
type InitParams struct {
	Network           string        `json:"network"`
	PricePerUnit      string        `json:"pricePerUnit"`
	UnitSeconds       int           `json:"unitSeconds"`
	PayTo             string        `json:"payTo"`
	Asset             string        `json:"asset"`
	MaxTimeoutSeconds int           `json:"maxTimeoutSeconds"`
	Extra             *x402types.Extra `json:"extra,omitempty"`
}

// RequireParams is the payload of a server-pushed stream.require message.
type RequireParams struct {
	StreamID     string                       `json:"streamId"`
	SliceIndex   int                          `json:"sliceIndex"`
	Requirements x402types.PaymentRequirements `json:"requirements"`
}

// AcceptParams is the result payload answering a successful stream.pay.
// Verify and Settle carry the outcomes of the facilitator calls that
// produced this acceptance; Settle is omitted when the pay was verifyOnly.
type AcceptParams struct {
	StreamID       string                    `json:"streamId"`
	SliceIndex     int                       `json:"sliceIndex"`
	PrepaidUntilMs int64                     `json:"prepaidUntilMs"`
	Verify         *x402types.VerifyResponse `json:"verify,omitempty"`
	Settle         *x402types.SettleResponse `json:"settle,omitempty"`
}

// PayParams is the payload of a client stream.pay message. Requirements is
// carried on the wire for parity with the documented shape but the
// facilitator re-derives it from the session's current slice rather than
// trusting the client's copy. VerifyOnly, when true, skips settlement:
// the slice is accepted on a valid verify alone.
type PayParams struct {
	StreamID     string                         `json:"streamId"`
	SliceIndex   int                            `json:"sliceIndex"`
	Payload      x402types.PaymentPayload       `json:"paymentPayload"`
	Requirements x402types.PaymentRequirements  `json:"requirements,omitempty"`
	VerifyOnly   bool                           `json:"verifyOnly,omitempty"`
}

// Session tracks one open stream for the lifetime of a WS connection.
// Sessions are not shared across connections: a new connection always
// starts a fresh stream, matching the resolved supplemented behavior
// that each slice carries a fully independent requirements payload.
type Session struct {
	mu sync.Mutex

	id     string
	params InitParams
	unitPrice *big.Int

	state          State
	sliceIndex     int
	prepaidUntilMs int64
	current        RequireParams
}

// NewSession mints a stream ID and opens a session in StateInit.
func NewSession(params InitParams) (*Session, error) {
	price, ok := new(big.Int).SetString(params.PricePerUnit, 10)
	if !ok {
		return nil, fmt.Errorf("invalid pricePerUnit: %q", params.PricePerUnit)
	}
	if params.UnitSeconds <= 0 {
		return nil, fmt.Errorf("unitSeconds must be positive")
	}
	id, err := newStreamID()
	if err != nil {
		return nil, err
	}
	return &Session{
		id:        id,
		params:    params,
		unitPrice: price,
		state:     StateInit,
	}, nil
}

// ID returns the stream identifier.
func (s *Session) ID() string { return s.id }

// Network returns the network this stream settles on, for tagging metrics
// and logs.
func (s *Session) Network() string { return s.params.Network }

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SliceIndex returns the index of the slice currently being required or paid.
func (s *Session) SliceIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sliceIndex
}

// NextRequirement builds the PaymentRequirements for the current slice.
// Every slice carries its own independent requirements payload; nothing
// is cached or reused from a prior slice except the static pricing
// parameters from stream.init.
func (s *Session) NextRequirement() RequireParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAwaiting
	req := x402types.PaymentRequirements{
		Scheme:            x402types.SchemeExact,
		Network:           s.params.Network,
		MaxAmountRequired: s.unitPrice.String(),
		Resource:          fmt.Sprintf("stream:%s:%d", s.id, s.sliceIndex),
		PayTo:             s.params.PayTo,
		MaxTimeoutSeconds: s.params.MaxTimeoutSeconds,
		Asset:             s.params.Asset,
		Extra:             s.params.Extra,
	}
	s.current = RequireParams{StreamID: s.id, SliceIndex: s.sliceIndex, Requirements: req}
	return s.current
}

// Current returns the requirements for the slice that is currently
// outstanding (the last one handed out by NextRequirement), without
// minting a new one. Used when verifying/settling a stream.pay against
// the slice it was actually issued for.
func (s *Session) Current() RequireParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// BeginPay transitions into StatePaying; returns an error if a pay is
// already in flight or the slice index doesn't match what was required
// (the facilitator enforces a single in-flight stream.pay per §5).
func (s *Session) BeginPay(sliceIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaiting {
		return fmt.Errorf("stream %s: pay received in state %s", s.id, s.state)
	}
	if sliceIndex != s.sliceIndex {
		return fmt.Errorf("stream %s: pay for slice %d, expected %d", s.id, sliceIndex, s.sliceIndex)
	}
	s.state = StatePaying
	return nil
}

// Accept records a successful verify (and, unless verifyOnly, settle):
// extends prepaidUntilMs by unitSeconds and advances to the next slice.
// settle is nil for a verifyOnly pay.
func (s *Session) Accept(now time.Time, verify *x402types.VerifyResponse, settle *x402types.SettleResponse) AcceptParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := now.UnixMilli()
	if s.prepaidUntilMs > base {
		base = s.prepaidUntilMs
	}
	s.prepaidUntilMs = base + int64(s.params.UnitSeconds)*1000
	accept := AcceptParams{
		StreamID:       s.id,
		SliceIndex:     s.sliceIndex,
		PrepaidUntilMs: s.prepaidUntilMs,
		Verify:         verify,
		Settle:         settle,
	}
	s.sliceIndex++
	s.state = StateAwaiting
	return accept
}

// Fail reverts a failed pay attempt back to StateAwaiting so the same
// slice can be retried.
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAwaiting
}

// Close marks the session terminal; no further require/pay is valid.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

func newStreamID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate stream id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
