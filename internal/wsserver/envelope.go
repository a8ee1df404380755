package wsserver

import (
	"encoding/json"

	"github.com/x402proto/facilitator/internal/x402types"
)

// Request is an inbound client-to-server message: {id, method, params}.
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound server-to-client message. Exactly one of
// Result/Error/Method is set: Result/Error answer a request by ID;
// Method+Params is a server-pushed notification (stream.require) that
// carries no ID.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params interface{}     `json:"params,omitempty"`
	Result interface{}     `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError mirrors a JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error codes used on the wire.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeSettleFailure  = 1001
)

func errorResponse(id json.RawMessage, code int, message string, data interface{}) Response {
	return Response{ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func resultResponse(id json.RawMessage, result interface{}) Response {
	return Response{ID: id, Result: result}
}

func notification(method string, params interface{}) Response {
	return Response{Method: method, Params: params}
}

// settleDiagnostic builds the verify-shaped object carried as the `data`
// field of a CodeSettleFailure error: a client reading a settlement failure
// gets the same payer/reason shape a verify call would have returned.
// settle takes precedence when present, since it reflects the actual
// failure; verify is used when the failure happened before any settle
// attempt existed (transport fault on settle, or a failed re-verify).
func settleDiagnostic(verify *x402types.VerifyResponse, settle *x402types.SettleResponse) *x402types.VerifyResponse {
	switch {
	case settle != nil:
		return &x402types.VerifyResponse{Payer: settle.Payer, InvalidReason: settle.ErrorReason}
	case verify != nil:
		reason := verify.InvalidReason
		if reason == "" {
			reason = x402types.ReasonUnexpectedSettleError
		}
		return &x402types.VerifyResponse{Payer: verify.Payer, InvalidReason: reason}
	default:
		return &x402types.VerifyResponse{InvalidReason: x402types.ReasonUnexpectedSettleError}
	}
}
