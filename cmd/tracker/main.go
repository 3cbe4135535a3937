// Package main is the entry point for the fresh-wallet whale tracker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lmittmann/tint"

	"github.com/polywatch/tracker/internal/config"
	"github.com/polywatch/tracker/internal/explorer"
	"github.com/polywatch/tracker/internal/jsonfile"
	"github.com/polywatch/tracker/internal/markets"
	"github.com/polywatch/tracker/internal/runner"
	"github.com/polywatch/tracker/internal/scan"
	"github.com/polywatch/tracker/internal/store"
)

func main() {
	mode := flag.String("mode", "recent", "scan mode: recent, custom-range, calendar-day, resume")
	minutes := flag.Int("minutes", 60, "window size for recent mode (max 1440)")
	from := flag.String("from", "", "window start for custom-range mode (RFC 3339 UTC)")
	to := flag.String("to", "", "window end for custom-range mode (RFC 3339 UTC)")
	day := flag.String("day", "", "calendar day for calendar-day mode (YYYY-MM-DD, US-Eastern)")
	ageHours := flag.Float64("age-hours", 0, "wallet age cutoff in hours (0 = configured default)")
	noLog := flag.Bool("no-log", false, "skip writing the run log file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(setupLogger(cfg.LogLevel))

	slog.Info("tracker starting", "version", "1.0.0")

	slog.Info("config_loaded",
		"polygon_rpc_url", cfg.PolygonRPCURL,
		"polymarket_host", cfg.PolymarketHost,
		"exchange_address", cfg.ExchangeAddress,
		"trade_threshold_usd", cfg.TradeThresholdUSD,
		"wallet_max_age_hours", cfg.WalletMaxAgeHours,
		"block_batch_size", cfg.BlockBatchSize,
		"initial_lookback_blocks", cfg.InitialLookbackBlocks,
		"max_alert_history", cfg.MaxAlertHistory,
		"etherscan_key", cfg.MaskedEtherscanKey(),
		"state_file", cfg.StateFile,
		"markets_cache_file", cfg.MarketsCacheFile,
		"scan_log_dir", cfg.ScanLogDir,
	)

	if err := jsonfile.EnsureDir(cfg.DataDir); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Cancel the run on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := ethclient.DialContext(ctx, cfg.PolygonRPCURL)
	if err != nil {
		slog.Error("failed to connect to polygon rpc", "error", err)
		os.Exit(1)
	}
	defer chain.Close()

	stateStore := store.NewStore(cfg.StateFile, cfg.MaxAlertHistory)
	marketCache := markets.NewCache(markets.NewClient(cfg.PolymarketHost), cfg.MarketsCacheFile, cfg.MarketsCacheTTL)

	var explorerClient scan.ExplorerLookup
	if cfg.EtherscanAPIKey != "" {
		explorerClient = explorer.NewClient(cfg.EtherscanAPIKey, cfg.EtherscanMinDelay, cfg.EtherscanChain)
	} else {
		slog.Warn("etherscan_disabled", "reason", "no API key configured, wallet ages fall back to first observation")
	}

	defaultCutoff := cfg.WalletMaxAgeHours
	if defaultCutoff <= 0 {
		defaultCutoff = cfg.NewWalletWindowHours
	}

	engine := scan.New(chain, stateStore, marketCache, explorerClient, scan.Config{
		ExchangeAddress:       common.HexToAddress(cfg.ExchangeAddress),
		TradeThresholdUSD:     cfg.TradeThresholdUSD,
		WalletAgeHours:        defaultCutoff,
		BlockBatchSize:        cfg.BlockBatchSize,
		InitialLookbackBlocks: cfg.InitialLookbackBlocks,
	})

	run := runner.New(engine, cfg.ScanLogDir, defaultCutoff)

	opts := runner.Options{
		Mode:          runner.ScanMode(*mode),
		RecentMinutes: *minutes,
		From:          *from,
		To:            *to,
		CalendarDay:   *day,
		SaveLog:       !*noLog,
	}
	if *ageHours > 0 {
		opts.WalletAgeHours = ageHours
	}

	result, err := run.Run(ctx, opts)
	if err != nil {
		slog.Error("tracker execution failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(result.Message)
	if len(result.Alerts) > 0 {
		fmt.Printf("\n[ALERT] Detected %d high-value trades from newly created wallets:\n\n", len(result.Alerts))
		for _, alert := range result.Alerts {
			fmt.Println(alert.Summary)
			fmt.Printf("Transaction: %s\n", alert.TxHash)
			fmt.Printf("Direction: %s\n", alert.DirectionText)
			fmt.Printf("Implied Position: %s\n", alert.ImpliedPosition)
			fmt.Printf("Wallet First Seen: %s (%.1f hours old)\n", alert.WalletFirstSeen, alert.WalletAgeHours)
			fmt.Printf("Stake: %s %s\n", alert.Stake, alert.Currency)
			fmt.Printf("Market: %s -> %s\n", alert.Market.Question, alert.Market.Outcome)
			fmt.Printf("Block: %d @ %s\n", alert.BlockNumber, alert.BlockLocal)
			fmt.Printf("Slug: %s\n", alert.Market.Slug)
			fmt.Printf("Link: %s\n", alert.MarketURL)
			fmt.Println(strings.Repeat("-", 80))
		}
	}
	if result.LogPath != "" {
		fmt.Printf("\nRun archived at: %s\n", result.LogPath)
	}
}

// setupLogger creates a structured logger with the specified level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
	})
	return slog.New(handler)
}
