// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Platform addresses
	PlatformWallet string // receives platform fees and the platform fund leg
	ChannelWallet  string // receives x402 channel fees
	TreasuryWallet string // receives the per-execution platform fee transfer

	// Roles
	OwnerAddress   string // owner of the settlement ledger (admin ops)
	RelayerAddress string // sole role allowed to execute splits

	// Blockchain settings (treasury transfers)
	RPCURL       string
	ChainID      int64
	PrivateKey   string // Hex-encoded, no 0x prefix; recording transferor when unset
	USDCContract string

	// Observability
	OTLPEndpoint string
}

// Base Sepolia defaults
const (
	DefaultRPCURL       = "https://sepolia.base.org"
	DefaultChainID      = int64(84532)                                 // Base Sepolia
	DefaultUSDCContract = "0x036CbD53842c5426634e7929541eC2318f3dCF7e" // Base Sepolia USDC
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"

	// Defaults used in development only; production deployments must set
	// real wallet addresses.
	DefaultPlatformWallet = "0x0000000000000000000000000000000000000100"
	DefaultChannelWallet  = "0x0000000000000000000000000000000000000101"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		PlatformWallet: getEnv("PLATFORM_WALLET", DefaultPlatformWallet),
		ChannelWallet:  getEnv("CHANNEL_WALLET", DefaultChannelWallet),
		TreasuryWallet: os.Getenv("TREASURY_WALLET"),
		OwnerAddress:   os.Getenv("OWNER_ADDRESS"),
		RelayerAddress: os.Getenv("RELAYER_ADDRESS"),
		RPCURL:         getEnv("RPC_URL", DefaultRPCURL),
		ChainID:        getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:     os.Getenv("PRIVATE_KEY"),
		USDCContract:   getEnv("USDC_CONTRACT", DefaultUSDCContract),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.TreasuryWallet == "" {
		cfg.TreasuryWallet = cfg.PlatformWallet
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.OwnerAddress == "" {
			return fmt.Errorf("OWNER_ADDRESS is required in production")
		}
		if c.RelayerAddress == "" {
			return fmt.Errorf("RELAYER_ADDRESS is required in production")
		}
		if c.PrivateKey == "" {
			return fmt.Errorf("PRIVATE_KEY is required in production")
		}
	}

	if c.PrivateKey != "" {
		// Allow both with and without 0x prefix
		key := c.PrivateKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
