package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PolygonRPCURL != "https://polygon-rpc.com" {
		t.Errorf("Unexpected RPC URL: %s", cfg.PolygonRPCURL)
	}
	if cfg.ExchangeAddress != DefaultExchangeAddress {
		t.Errorf("Unexpected exchange address: %s", cfg.ExchangeAddress)
	}
	if cfg.TradeThresholdUSD != 10000 {
		t.Errorf("Unexpected threshold: %v", cfg.TradeThresholdUSD)
	}
	if cfg.WalletMaxAgeHours != 48 || cfg.NewWalletWindowHours != 72 {
		t.Errorf("Unexpected age windows: %v / %v", cfg.WalletMaxAgeHours, cfg.NewWalletWindowHours)
	}
	if cfg.BlockBatchSize != 30 || cfg.InitialLookbackBlocks != 90000 {
		t.Errorf("Unexpected scan window: %d / %d", cfg.BlockBatchSize, cfg.InitialLookbackBlocks)
	}
	if cfg.MarketsCacheTTL != 6*time.Hour {
		t.Errorf("Unexpected cache TTL: %v", cfg.MarketsCacheTTL)
	}
	if cfg.EtherscanMinDelay != 300*time.Millisecond {
		t.Errorf("Unexpected explorer delay: %v", cfg.EtherscanMinDelay)
	}
	if cfg.MaxAlertHistory != 500 {
		t.Errorf("Unexpected alert history cap: %d", cfg.MaxAlertHistory)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TRADE_THRESHOLD_USD", "25000")
	t.Setenv("BLOCK_BATCH_SIZE", "100")
	t.Setenv("STATE_FILE", "/tmp/custom-state.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TradeThresholdUSD != 25000 {
		t.Errorf("Expected threshold override 25000, got %v", cfg.TradeThresholdUSD)
	}
	if cfg.BlockBatchSize != 100 {
		t.Errorf("Expected batch size override 100, got %d", cfg.BlockBatchSize)
	}
	if cfg.StateFile != "/tmp/custom-state.json" {
		t.Errorf("Expected state file override, got %s", cfg.StateFile)
	}
}

func TestPlaceholderEtherscanKeyIsCleared(t *testing.T) {
	t.Setenv("ETHERSCAN_API_KEY", "YourApiKeyToken")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.EtherscanAPIKey != "" {
		t.Errorf("Expected placeholder key cleared, got %q", cfg.EtherscanAPIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc url", func(c *Config) { c.PolygonRPCURL = "" }},
		{"zero threshold", func(c *Config) { c.TradeThresholdUSD = 0 }},
		{"zero max age", func(c *Config) { c.WalletMaxAgeHours = 0 }},
		{"zero batch size", func(c *Config) { c.BlockBatchSize = 0 }},
		{"zero alert history", func(c *Config) { c.MaxAlertHistory = 0 }},
	} {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestMaskedEtherscanKey(t *testing.T) {
	for _, tc := range []struct {
		key  string
		want string
	}{
		{"", "(not set)"},
		{"short", "****"},
		{"ABCD1234WXYZ5678", "ABCD****5678"},
	} {
		cfg := Config{EtherscanAPIKey: tc.key}
		if got := cfg.MaskedEtherscanKey(); got != tc.want {
			t.Errorf("MaskedEtherscanKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
