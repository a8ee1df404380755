package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/x402proto/facilitator/internal/cache"
	"github.com/x402proto/facilitator/internal/chain"
	"github.com/x402proto/facilitator/internal/config"
	"github.com/x402proto/facilitator/internal/health"
	"github.com/x402proto/facilitator/internal/metrics"
	"github.com/x402proto/facilitator/internal/ratelimit"
	"github.com/x402proto/facilitator/internal/wsserver"
	"github.com/x402proto/facilitator/internal/x402types"
)

// Version is the service version (set at build time)
var Version = "dev"

// Facilitator defines the interface the HTTP and WS surfaces call into.
type Facilitator interface {
	Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402types.VerifyResponse, error)
	Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402types.SettleResponse, error)
	GetSupported() x402types.SupportedResponse
}

// chainClients is implemented by *facilitator.Facilitator; readiness
// probing degrades gracefully (skips the chain checks) for any other
// Facilitator implementation, such as test doubles.
type chainClients interface {
	ChainClients() map[string]chain.Client
}

// Server is the HTTP server for the facilitator
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	facilitator Facilitator
	config      *config.Config
	metrics     *metrics.Metrics
	limiter     ratelimit.Limiter
	health      *health.Checker
	ws          *wsserver.Handler
}

// New creates a new facilitator server
func New(
	facilitator Facilitator,
	redisClient *cache.Client,
	cfg *config.Config,
) *Server {
	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create components
	m := metrics.New()
	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)
	var chains map[string]chain.Client
	if cc, ok := facilitator.(chainClients); ok {
		chains = cc.ChainClients()
	}
	healthChecker := health.NewChecker(redisClient, chains, Version)

	// Create router
	router := gin.New()

	s := &Server{
		router:      router,
		facilitator: facilitator,
		config:      cfg,
		metrics:     m,
		limiter:     limiter,
		health:      healthChecker,
		ws:          wsserver.NewHandler(facilitator, limiter, m),
	}

	// Setup middleware and routes
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Request ID middleware
	s.router.Use(RequestIDMiddleware())

	// Logging middleware
	s.router.Use(LoggingMiddleware())

	// CORS middleware
	s.router.Use(CORSMiddleware())

	// Metrics middleware
	s.router.Use(s.metrics.Middleware())

	// Rate limiting middleware (skip health/metrics endpoints)
	s.router.Use(RateLimitMiddleware(s.limiter))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health endpoints (no rate limiting)
	s.router.GET("/health", s.health.HealthHandler())
	s.router.GET("/ready", s.health.ReadyHandler())

	// Metrics endpoint
	s.router.GET("/metrics", s.metrics.Handler())

	// Facilitator endpoints
	s.router.POST("/verify", s.handleVerify)
	s.router.GET("/verify", s.handleVerifyDiscovery)
	s.router.POST("/settle", s.handleSettle)
	s.router.GET("/settle", s.handleSettleDiscovery)
	s.router.GET("/supported", s.handleSupported)

	// WebSocket mirror of the above, plus the streaming sub-protocol.
	s.router.GET("/ws", s.ws.Handle)
}

// Start starts the HTTP server
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting facilitator server on port %d", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	s.waitForShutdown()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down
func (s *Server) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
