// Package wsserver implements the WebSocket mirror of the HTTP surface
// (x402.verify / x402.settle / x402.supported) plus the streaming
// micropayment sub-protocol (stream.init / stream.pay), framed as
// JSON-RPC-like {id, method, params} messages over a single connection.
package wsserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/x402proto/facilitator/internal/metrics"
	"github.com/x402proto/facilitator/internal/ratelimit"
	"github.com/x402proto/facilitator/internal/stream"
	"github.com/x402proto/facilitator/internal/x402types"
)

// Facilitator is the subset of the HTTP Facilitator interface the WS
// surface calls into. Defined locally (rather than imported from the
// server package) so wsserver has no dependency on server; any type
// satisfying this structurally, such as internal/facilitator.Facilitator,
// works without modification.
type Facilitator interface {
	Verify(ctx context.Context, payloadBytes, requirementsBytes []byte) (*x402types.VerifyResponse, error)
	Settle(ctx context.Context, payloadBytes, requirementsBytes []byte) (*x402types.SettleResponse, error)
	GetSupported() x402types.SupportedResponse
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP connections and runs the per-connection loop.
type Handler struct {
	facilitator Facilitator
	limiter     ratelimit.Limiter
	metrics     *metrics.Metrics
}

// NewHandler constructs a WS handler over the given facilitator. limiter
// and m may be nil, in which case settlement attempts over this socket go
// unlimited/unmeasured (used by tests exercising dispatch directly).
func NewHandler(facilitator Facilitator, limiter ratelimit.Limiter, m *metrics.Metrics) *Handler {
	return &Handler{facilitator: facilitator, limiter: limiter, metrics: m}
}

// Handle is the Gin route handler for GET /ws.
func (h *Handler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	newConnection(h.facilitator, conn, h.limiter, h.metrics, c.ClientIP()).run()
}

// connection owns one WS socket end-to-end; reading and dispatch run on a
// single goroutine (keepalive pings go out from a second one), which is
// what gives the streaming protocol its single-in-flight-pay-at-a-time
// serialization: the next message is never read until the previous one
// has been fully dispatched.
type connection struct {
	facilitator Facilitator
	conn        *websocket.Conn
	limiter     ratelimit.Limiter
	metrics     *metrics.Metrics
	clientIP    string
	session     *stream.Session
}

func newConnection(f Facilitator, conn *websocket.Conn, limiter ratelimit.Limiter, m *metrics.Metrics, clientIP string) *connection {
	return &connection{facilitator: f, conn: conn, limiter: limiter, metrics: m, clientIP: clientIP}
}

func (c *connection) recordStreamFailure(network, reason string) {
	if c.metrics != nil {
		c.metrics.RecordStreamPaymentFailure(network, reason)
	}
}

func (c *connection) recordStreamSlice(network string) {
	if c.metrics != nil {
		c.metrics.RecordStreamSlice(network)
	}
}

// allowSettle applies rate limiting to WS-driven settlement attempts
// (x402.settle and stream.pay), the same ip-keyed limiter the HTTP /settle
// route uses. A single long-lived WS connection can otherwise issue an
// unbounded number of settle attempts without ever re-entering the HTTP
// middleware stack.
func (c *connection) allowSettle(ctx context.Context) (bool, error) {
	if c.limiter == nil {
		return true, nil
	}
	allowed, _, err := c.limiter.Allow(ctx, "ws:"+c.clientIP)
	if err != nil {
		return true, err
	}
	return allowed, nil
}

func (c *connection) run() {
	defer c.conn.Close()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := make(chan struct{})
	go c.pingLoop(stop)
	defer close(stop)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.send(errorResponse(nil, CodeInvalidParams, "malformed envelope", nil))
			continue
		}

		resp := c.dispatch(req)
		if resp != nil {
			c.send(*resp)
		}
	}
}

func (c *connection) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// WriteControl may run concurrently with the read loop's writes.
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *connection) send(resp Response) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(resp); err != nil {
		log.Printf("ws write failed: %v", err)
	}
}

func (c *connection) dispatch(req Request) *Response {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch req.Method {
	case "x402.supported":
		resp := resultResponse(req.ID, c.facilitator.GetSupported())
		return &resp
	case "x402.verify":
		return c.handleVerify(ctx, req)
	case "x402.settle":
		return c.handleSettle(ctx, req)
	case "stream.init":
		return c.handleStreamInit(req)
	case "stream.pay":
		return c.handleStreamPay(ctx, req)
	default:
		resp := errorResponse(req.ID, CodeMethodNotFound, "unknown method: "+req.Method, nil)
		return &resp
	}
}

// handleVerify always answers with a result, never a protocol error: a
// transport fault (nil result: decode/chain/clock failure) is reported the
// same way a business-invalid payment is, as an IsValid: false result,
// never surfacing as a WS error (POST /verify answers a transport fault
// with 400 instead).
func (c *connection) handleVerify(ctx context.Context, req Request) *Response {
	var params x402types.VerifyRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errorResponse(req.ID, CodeInvalidParams, "invalid x402.verify params", nil)
		return &resp
	}
	result, err := c.facilitator.Verify(ctx, params.PaymentPayload, params.PaymentRequirements)
	if result == nil {
		reason := x402types.ReasonUnexpectedSettleError
		if err != nil {
			log.Printf("x402.verify transport fault: %v", err)
		}
		result = &x402types.VerifyResponse{IsValid: false, InvalidReason: reason}
	}
	resp := resultResponse(req.ID, result)
	return &resp
}

// handleSettle answers with a result only on a successful settlement; any
// other outcome, transport fault or business failure alike, is reported as
// a CodeSettleFailure error carrying a verify-shaped diagnostic in `data`.
func (c *connection) handleSettle(ctx context.Context, req Request) *Response {
	var params x402types.SettleRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errorResponse(req.ID, CodeInvalidParams, "invalid x402.settle params", nil)
		return &resp
	}
	if allowed, err := c.allowSettle(ctx); err != nil {
		log.Printf("ws rate limit check failed: %v", err)
	} else if !allowed {
		resp := errorResponse(req.ID, CodeSettleFailure, "rate limit exceeded", nil)
		return &resp
	}
	result, err := c.facilitator.Settle(ctx, params.PaymentPayload, params.PaymentRequirements)
	if result == nil {
		message := "settlement failed"
		if err != nil {
			message = err.Error()
		}
		resp := errorResponse(req.ID, CodeSettleFailure, message, settleDiagnostic(nil, nil))
		return &resp
	}
	if !result.Success {
		resp := errorResponse(req.ID, CodeSettleFailure, "settlement failed", settleDiagnostic(nil, result))
		return &resp
	}
	resp := resultResponse(req.ID, result)
	return &resp
}

func (c *connection) handleStreamInit(req Request) *Response {
	var params stream.InitParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errorResponse(req.ID, CodeInvalidParams, "invalid stream.init params", nil)
		return &resp
	}
	session, err := stream.NewSession(params)
	if err != nil {
		resp := errorResponse(req.ID, CodeInvalidParams, err.Error(), nil)
		return &resp
	}
	c.session = session

	require := session.NextRequirement()
	ack := resultResponse(req.ID, map[string]string{"streamId": session.ID()})
	// The require notification is sent right after the ack for the same
	// init call; both share the same dispatch turn.
	c.send(ack)
	req2 := notification("stream.require", require)
	return &req2
}

func (c *connection) handleStreamPay(ctx context.Context, req Request) *Response {
	if c.session == nil {
		resp := errorResponse(req.ID, CodeInvalidParams, "no open stream", nil)
		return &resp
	}
	var params stream.PayParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errorResponse(req.ID, CodeInvalidParams, "invalid stream.pay params", nil)
		return &resp
	}
	if err := c.session.BeginPay(params.SliceIndex); err != nil {
		resp := errorResponse(req.ID, CodeInvalidParams, err.Error(), nil)
		return &resp
	}

	network := c.session.Network()
	if allowed, err := c.allowSettle(ctx); err != nil {
		log.Printf("ws rate limit check failed: %v", err)
	} else if !allowed {
		c.session.Fail()
		c.recordStreamFailure(network, "rate_limited")
		resp := errorResponse(req.ID, CodeSettleFailure, "rate limit exceeded", nil)
		return &resp
	}

	require := c.session.Current()
	payloadBytes, err := json.Marshal(params.Payload)
	if err != nil {
		c.session.Fail()
		resp := errorResponse(req.ID, CodeInvalidParams, "invalid payload", nil)
		return &resp
	}
	requirementsBytes, err := json.Marshal(require.Requirements)
	if err != nil {
		c.session.Fail()
		resp := errorResponse(req.ID, CodeSettleFailure, "internal error", nil)
		return &resp
	}

	verifyResp, verr := c.facilitator.Verify(ctx, payloadBytes, requirementsBytes)
	if verr != nil && verifyResp == nil {
		c.session.Fail()
		c.recordStreamFailure(network, "verify_transport_fault")
		resp := errorResponse(req.ID, CodeSettleFailure, verr.Error(), settleDiagnostic(nil, nil))
		return &resp
	}
	if !verifyResp.IsValid {
		c.session.Fail()
		c.recordStreamFailure(network, verifyResp.InvalidReason)
		resp := errorResponse(req.ID, CodeSettleFailure, "verification failed", settleDiagnostic(verifyResp, nil))
		return &resp
	}

	// verifyOnly skips settlement entirely: the slice is accepted on a
	// valid verify alone, same as the reference seller's do_settle gate.
	var settleResp *x402types.SettleResponse
	if !params.VerifyOnly {
		var serr error
		settleResp, serr = c.facilitator.Settle(ctx, payloadBytes, requirementsBytes)
		if serr != nil && settleResp == nil {
			c.session.Fail()
			c.recordStreamFailure(network, "settle_transport_fault")
			resp := errorResponse(req.ID, CodeSettleFailure, serr.Error(), settleDiagnostic(verifyResp, nil))
			return &resp
		}
		if !settleResp.Success {
			c.session.Fail()
			c.recordStreamFailure(network, settleResp.ErrorReason)
			resp := errorResponse(req.ID, CodeSettleFailure, "settlement failed", settleDiagnostic(verifyResp, settleResp))
			return &resp
		}
	}

	if settleResp != nil {
		c.recordStreamSlice(network)
	}
	accept := c.session.Accept(time.Now(), verifyResp, settleResp)
	ack := resultResponse(req.ID, accept)
	c.send(ack)
	next := c.session.NextRequirement()

	requireNote := notification("stream.require", next)
	return &requireNote
}
