// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the tracker.
type Config struct {
	// Chain RPC
	PolygonRPCURL   string
	ChainID         int64
	ExchangeAddress string

	// Polymarket CLOB API
	PolymarketHost string

	// Detection
	TradeThresholdUSD    float64
	NewWalletWindowHours float64
	WalletMaxAgeHours    float64

	// Scan window
	BlockBatchSize        uint64
	InitialLookbackBlocks uint64

	// Persistence
	DataDir          string
	StateFile        string
	MarketsCacheFile string
	MarketsCacheTTL  time.Duration
	MaxAlertHistory  int

	// Block explorer
	EtherscanAPIKey   string
	EtherscanChain    string
	EtherscanMinDelay time.Duration

	// Run logs
	ScanLogDir string

	// Logging
	LogLevel string
}

// DefaultExchangeAddress is the Polymarket CTF Exchange contract on Polygon.
const DefaultExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

// etherscanPlaceholderKey is the sample value from Etherscan's docs; treat it
// as unset so the tracker does not burn requests against a dummy key.
const etherscanPlaceholderKey = "YourApiKeyToken"

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	dataDir := getEnv("TRACKER_DATA_DIR", "./data")

	cfg := &Config{
		// Chain
		PolygonRPCURL:   getEnv("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		ChainID:         int64(getEnvInt("POLYMARKET_CHAIN_ID", 137)),
		ExchangeAddress: getEnv("EXCHANGE_ADDRESS", DefaultExchangeAddress),

		// CLOB
		PolymarketHost: getEnv("POLYMARKET_HOST", "https://clob.polymarket.com"),

		// Detection
		TradeThresholdUSD:    getEnvFloat("TRADE_THRESHOLD_USD", 10000),
		NewWalletWindowHours: getEnvFloat("NEW_WALLET_WINDOW_HOURS", 72),
		WalletMaxAgeHours:    getEnvFloat("WALLET_MAX_AGE_HOURS", 48),

		// Scan window
		BlockBatchSize:        uint64(getEnvInt("BLOCK_BATCH_SIZE", 30)),
		InitialLookbackBlocks: uint64(getEnvInt("INITIAL_LOOKBACK_BLOCKS", 90000)),

		// Persistence
		DataDir:          dataDir,
		StateFile:        getEnv("STATE_FILE", filepath.Join(dataDir, "state.json")),
		MarketsCacheFile: getEnv("MARKETS_CACHE_FILE", filepath.Join(dataDir, "markets.json")),
		MarketsCacheTTL:  time.Duration(getEnvFloat("MARKETS_CACHE_TTL_HOURS", 6) * float64(time.Hour)),
		MaxAlertHistory:  getEnvInt("MAX_ALERT_HISTORY", 500),

		// Explorer
		EtherscanAPIKey:   getEnv("ETHERSCAN_API_KEY", ""),
		EtherscanChain:    getEnv("ETHERSCAN_CHAIN", "polygon"),
		EtherscanMinDelay: time.Duration(getEnvInt("ETHERSCAN_RATE_LIMIT_MS", 300)) * time.Millisecond,

		// Run logs
		ScanLogDir: getEnv("SCAN_LOG_DIR", "./runs"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if cfg.EtherscanAPIKey == etherscanPlaceholderKey {
		cfg.EtherscanAPIKey = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.PolygonRPCURL == "" {
		return fmt.Errorf("POLYGON_RPC_URL is required")
	}

	if c.PolymarketHost == "" {
		return fmt.Errorf("POLYMARKET_HOST is required")
	}

	if c.ExchangeAddress == "" {
		return fmt.Errorf("EXCHANGE_ADDRESS is required")
	}

	if c.TradeThresholdUSD <= 0 {
		return fmt.Errorf("TRADE_THRESHOLD_USD must be positive")
	}

	if c.WalletMaxAgeHours <= 0 {
		return fmt.Errorf("WALLET_MAX_AGE_HOURS must be positive")
	}

	if c.BlockBatchSize < 1 {
		return fmt.Errorf("BLOCK_BATCH_SIZE must be at least 1")
	}

	if c.MaxAlertHistory < 1 {
		return fmt.Errorf("MAX_ALERT_HISTORY must be at least 1")
	}

	return nil
}

// MaskedEtherscanKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedEtherscanKey() string {
	return maskSecret(c.EtherscanAPIKey)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
