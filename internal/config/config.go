package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the facilitator service
type Config struct {
	// Server
	Port        int
	Environment string

	// Redis
	RedisURL string

	// Rate Limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// EVM Configuration: one signing key, one RPC URL per supported network.
	EvmPrivateKey  string
	BaseRPC        string
	BaseSepoliaRPC string
	PolygonRPC     string
	PolygonAmoyRPC string
}

// Load loads configuration from environment variables
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		// Server
		Port:        getEnvInt("PORT", 8080),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		// Rate Limiting
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 1000),
		RateLimitWindow:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		// EVM Configuration
		EvmPrivateKey:  getEnv("EVM_PRIVATE_KEY", ""),
		BaseRPC:        getEnv("BASE_RPC", "https://mainnet.base.org"),
		BaseSepoliaRPC: getEnv("BASE_SEPOLIA_RPC", "https://sepolia.base.org"),
		PolygonRPC:     getEnv("POLYGON_RPC", "https://polygon-rpc.com"),
		PolygonAmoyRPC: getEnv("POLYGON_AMOY_RPC", "https://rpc-amoy.polygon.technology"),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RPCURL returns the configured RPC endpoint for one of the registry's
// supported network identifiers, or "" if the network isn't recognized.
func (c *Config) RPCURL(network string) string {
	switch network {
	case "base":
		return c.BaseRPC
	case "base-sepolia":
		return c.BaseSepoliaRPC
	case "polygon":
		return c.PolygonRPC
	case "polygon-amoy":
		return c.PolygonAmoyRPC
	default:
		return ""
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
