package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/x402proto/facilitator/internal/x402types"
)

// handleVerify handles POST /verify
func (s *Server) handleVerify(c *gin.Context) {
	var req x402types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	network, scheme := extractNetworkScheme(req.PaymentRequirements)

	result, err := s.facilitator.Verify(
		c.Request.Context(),
		req.PaymentPayload,
		req.PaymentRequirements,
	)

	if err != nil && result == nil {
		// A nil result means a transport fault (malformed input, chain RPC
		// failure, clock error): the caller's request itself is at fault.
		s.metrics.RecordVerify(network, scheme, false)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "verification failed",
			"details": err.Error(),
		})
		return
	}

	s.metrics.RecordVerify(network, scheme, result.IsValid)
	c.JSON(http.StatusOK, result)
}

// handleVerifyDiscovery handles GET /verify: describes the expected
// request shape for clients probing the endpoint before sending one.
func (s *Server) handleVerifyDiscovery(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint": "POST /verify",
		"body": gin.H{
			"x402Version":         x402types.X402Version,
			"paymentPayload":      "PaymentPayload, see GET /supported for accepted (scheme, network) pairs",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}

// handleSettle handles POST /settle
func (s *Server) handleSettle(c *gin.Context) {
	var req x402types.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	network, scheme := extractNetworkScheme(req.PaymentRequirements)

	result, err := s.facilitator.Settle(
		c.Request.Context(),
		req.PaymentPayload,
		req.PaymentRequirements,
	)

	if err != nil && result == nil {
		s.metrics.RecordSettle(network, scheme, false)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "settlement failed",
			"details": err.Error(),
		})
		return
	}

	s.metrics.RecordSettle(network, scheme, result.Success)

	// A protocol-level settle failure (invalid payment, reverted tx, chain
	// rejection) is still a successful call of the endpoint: it always
	// reports 200 with a typed result, the same as /verify.
	c.JSON(http.StatusOK, result)
}

// handleSettleDiscovery handles GET /settle.
func (s *Server) handleSettleDiscovery(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint": "POST /settle",
		"body": gin.H{
			"x402Version":         x402types.X402Version,
			"paymentPayload":      "PaymentPayload, see GET /supported for accepted (scheme, network) pairs",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}

// handleSupported handles GET /supported
func (s *Server) handleSupported(c *gin.Context) {
	supported := s.facilitator.GetSupported()
	c.JSON(http.StatusOK, supported)
}

// extractNetworkScheme extracts network and scheme from requirements JSON for metrics
func extractNetworkScheme(requirements json.RawMessage) (string, string) {
	var req struct {
		Network string `json:"network"`
		Scheme  string `json:"scheme"`
	}
	if err := json.Unmarshal(requirements, &req); err != nil {
		return "unknown", "unknown"
	}
	return req.Network, req.Scheme
}
