package wsserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402proto/facilitator/internal/stream"
	"github.com/x402proto/facilitator/internal/x402types"
)

type fakeFacilitator struct {
	verifyResp *x402types.VerifyResponse
	verifyErr  error
	settleResp *x402types.SettleResponse
	settleErr  error
	supported  x402types.SupportedResponse
}

func (f *fakeFacilitator) Verify(ctx context.Context, _, _ []byte) (*x402types.VerifyResponse, error) {
	return f.verifyResp, f.verifyErr
}

func (f *fakeFacilitator) Settle(ctx context.Context, _, _ []byte) (*x402types.SettleResponse, error) {
	return f.settleResp, f.settleErr
}

func (f *fakeFacilitator) GetSupported() x402types.SupportedResponse {
	return f.supported
}

func rawID(id string) json.RawMessage {
	return json.RawMessage(`"` + id + `"`)
}

func TestDispatchUnknownMethod(t *testing.T) {
	c := &connection{facilitator: &fakeFacilitator{}}
	resp := c.dispatch(Request{ID: rawID("1"), Method: "bogus.method"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDispatchSupported(t *testing.T) {
	fac := &fakeFacilitator{supported: x402types.SupportedResponse{Kinds: []x402types.SupportedKind{{Scheme: "exact", Network: "base"}}}}
	c := &connection{facilitator: fac}
	resp := c.dispatch(Request{ID: rawID("1"), Method: "x402.supported"})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestDispatchVerifyInvalidParams(t *testing.T) {
	c := &connection{facilitator: &fakeFacilitator{}}
	resp := c.dispatch(Request{ID: rawID("1"), Method: "x402.verify", Params: json.RawMessage(`not-json`)})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestDispatchVerifyReturnsResultEvenWhenInvalid(t *testing.T) {
	fac := &fakeFacilitator{verifyResp: &x402types.VerifyResponse{IsValid: false, InvalidReason: x402types.ReasonInsufficientFunds}}
	c := &connection{facilitator: fac}
	params, _ := json.Marshal(x402types.VerifyRequest{
		PaymentPayload:      json.RawMessage(`{}`),
		PaymentRequirements: json.RawMessage(`{}`),
	})
	resp := c.dispatch(Request{ID: rawID("1"), Method: "x402.verify", Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestDispatchVerifyTransportFaultReturnsResult(t *testing.T) {
	fac := &fakeFacilitator{verifyResp: nil, verifyErr: assertError{}}
	c := &connection{facilitator: fac}
	params, _ := json.Marshal(x402types.VerifyRequest{
		PaymentPayload:      json.RawMessage(`{}`),
		PaymentRequirements: json.RawMessage(`{}`),
	})
	resp := c.dispatch(Request{ID: rawID("1"), Method: "x402.verify", Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
	result, ok := resp.Result.(*x402types.VerifyResponse)
	require.True(t, ok)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402types.ReasonUnexpectedSettleError, result.InvalidReason)
}

func TestDispatchSettleBusinessFailureIsError(t *testing.T) {
	fac := &fakeFacilitator{settleResp: &x402types.SettleResponse{Success: false, Payer: "0xabc", ErrorReason: x402types.ReasonInsufficientFunds}}
	c := &connection{facilitator: fac}
	params, _ := json.Marshal(x402types.SettleRequest{
		PaymentPayload:      json.RawMessage(`{}`),
		PaymentRequirements: json.RawMessage(`{}`),
	})
	resp := c.dispatch(Request{ID: rawID("1"), Method: "x402.settle", Params: params})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSettleFailure, resp.Error.Code)
	diag, ok := resp.Error.Data.(*x402types.VerifyResponse)
	require.True(t, ok)
	assert.Equal(t, "0xabc", diag.Payer)
	assert.Equal(t, x402types.ReasonInsufficientFunds, diag.InvalidReason)
}

func TestDispatchSettleTransportFaultIsError(t *testing.T) {
	fac := &fakeFacilitator{settleResp: nil, settleErr: assertError{}}
	c := &connection{facilitator: fac}
	params, _ := json.Marshal(x402types.SettleRequest{
		PaymentPayload:      json.RawMessage(`{}`),
		PaymentRequirements: json.RawMessage(`{}`),
	})
	resp := c.dispatch(Request{ID: rawID("1"), Method: "x402.settle", Params: params})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSettleFailure, resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
}

func TestDispatchStreamPayWithoutInitRejected(t *testing.T) {
	c := &connection{facilitator: &fakeFacilitator{}}
	resp := c.dispatch(Request{ID: rawID("1"), Method: "stream.pay", Params: json.RawMessage(`{}`)})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func newTestSession(t *testing.T) *stream.Session {
	t.Helper()
	s, err := stream.NewSession(stream.InitParams{
		Network:           "base",
		PricePerUnit:      "1000",
		UnitSeconds:       30,
		PayTo:             "0x2222222222222222222222222222222222222222",
		Asset:             "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		MaxTimeoutSeconds: 60,
	})
	require.NoError(t, err)
	s.NextRequirement()
	return s
}

func TestDispatchStreamPayVerifyOnlySkipsSettle(t *testing.T) {
	fac := &fakeFacilitator{verifyResp: &x402types.VerifyResponse{IsValid: true, Payer: "0xabc"}}
	c := &connection{facilitator: fac, session: newTestSession(t)}
	params, _ := json.Marshal(stream.PayParams{SliceIndex: 0, VerifyOnly: true})

	resp := c.dispatch(Request{ID: rawID("1"), Method: "stream.pay", Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	accept, ok := resp.Result.(stream.AcceptParams)
	require.True(t, ok)
	assert.NotNil(t, accept.Verify)
	assert.Nil(t, accept.Settle)
}

func TestDispatchStreamPaySettlesWhenNotVerifyOnly(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResp: &x402types.VerifyResponse{IsValid: true, Payer: "0xabc"},
		settleResp: &x402types.SettleResponse{Success: true, Transaction: "0xdead"},
	}
	c := &connection{facilitator: fac, session: newTestSession(t)}
	params, _ := json.Marshal(stream.PayParams{SliceIndex: 0})

	resp := c.dispatch(Request{ID: rawID("1"), Method: "stream.pay", Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	accept, ok := resp.Result.(stream.AcceptParams)
	require.True(t, ok)
	require.NotNil(t, accept.Settle)
	assert.True(t, accept.Settle.Success)
}

func TestDispatchStreamPaySettleFailureIsError(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResp: &x402types.VerifyResponse{IsValid: true, Payer: "0xabc"},
		settleResp: &x402types.SettleResponse{Success: false, Payer: "0xabc", ErrorReason: x402types.ReasonUnexpectedSettleError},
	}
	c := &connection{facilitator: fac, session: newTestSession(t)}
	params, _ := json.Marshal(stream.PayParams{SliceIndex: 0})

	resp := c.dispatch(Request{ID: rawID("1"), Method: "stream.pay", Params: params})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSettleFailure, resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
}

func TestPayParamsWireTagIsPaymentPayload(t *testing.T) {
	raw := []byte(`{"streamId":"abc","sliceIndex":0,"paymentPayload":{"x402Version":1,"scheme":"exact","network":"base"}}`)
	var params stream.PayParams
	require.NoError(t, json.Unmarshal(raw, &params))
	assert.Equal(t, "exact", params.Payload.Scheme)
}

type assertError struct{}

func (assertError) Error() string { return "transport fault" }
