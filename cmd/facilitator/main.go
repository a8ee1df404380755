package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/x402proto/facilitator/internal/cache"
	"github.com/x402proto/facilitator/internal/chain"
	"github.com/x402proto/facilitator/internal/config"
	"github.com/x402proto/facilitator/internal/facilitator"
	"github.com/x402proto/facilitator/internal/registry"
	"github.com/x402proto/facilitator/internal/server"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting x402 Facilitator Service")
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Port: %d", cfg.Port)

	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
		log.Printf("Continuing without Redis (rate limiting disabled)")
		redisClient = nil
	} else {
		log.Printf("Redis connected: %s", cfg.RedisURL)
	}

	fac, err := setupFacilitator(cfg)
	if err != nil {
		log.Fatalf("Failed to setup facilitator: %v", err)
	}

	srv := server.New(fac, redisClient, cfg)
	srv.Start()
}

// setupFacilitator builds the registry, dials a chain client for every
// registry network that has an RPC URL configured, and wires the
// verifier/settler into the facilitator engine.
func setupFacilitator(cfg *config.Config) (*facilitator.Facilitator, error) {
	reg := registry.Default()

	var privateKey *ecdsa.PrivateKey
	if cfg.EvmPrivateKey != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.EvmPrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse EVM_PRIVATE_KEY: %w", err)
		}
		privateKey = pk
	} else {
		log.Printf("Warning: EVM_PRIVATE_KEY not set, settlement (chain-writing) is disabled; verify-only mode")
	}

	clients := map[string]chain.Client{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var configured []string
	for _, network := range reg.Networks() {
		rpcURL := cfg.RPCURL(network)
		if rpcURL == "" {
			log.Printf("Warning: no RPC URL configured for network %s, skipping", network)
			continue
		}
		client, err := chain.NewEVMClient(ctx, rpcURL, privateKey)
		if err != nil {
			log.Printf("Warning: failed to dial %s (%s): %v", network, rpcURL, err)
			continue
		}
		clients[network] = client
		configured = append(configured, network)
	}

	if len(configured) == 0 {
		return nil, fmt.Errorf("no networks configured - at least one RPC URL is required")
	}
	log.Printf("Configured networks: %v", configured)
	if privateKey != nil {
		addr := crypto.PubkeyToAddress(privateKey.PublicKey)
		log.Printf("Facilitator address: %s", addr.Hex())
	}

	return facilitator.New(reg, clients), nil
}
