// Package scan implements the exchange scan engine: it resolves a time
// window to a block range, retrieves and orders exchange trade events,
// classifies taker wallets by age, and emits alerts while advancing the
// persisted scan cursor.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/polywatch/tracker/internal/format"
	"github.com/polywatch/tracker/internal/store"
)

// ChainClient is the slice of the Ethereum RPC surface the engine needs.
// *ethclient.Client satisfies it.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// MarketLookup resolves outcome tokens to their markets.
type MarketLookup interface {
	TokenInfo(ctx context.Context, tokenID string) (store.MarketTokenInfo, bool, error)
	Outcomes(conditionID string) []string
}

// ExplorerLookup resolves a wallet's first-ever transaction timestamp.
type ExplorerLookup interface {
	FirstTransactionTimestamp(ctx context.Context, address string) (int64, bool, error)
}

// Config carries the engine's scan parameters.
type Config struct {
	// ExchangeAddress is the exchange contract emitting OrdersMatched events
	ExchangeAddress common.Address

	// TradeThresholdUSD is the minimum trade size that can alert
	TradeThresholdUSD float64

	// WalletAgeHours is the default wallet-age cutoff
	WalletAgeHours float64

	// BlockBatchSize bounds each getLogs chunk to respect provider limits
	BlockBatchSize uint64

	// InitialLookbackBlocks is the range scanned on the very first run
	InitialLookbackBlocks uint64
}

// Window is an explicit UTC scan window. Supplying one makes the scan
// read-only: persisted progress is never mutated.
type Window struct {
	From time.Time
	To   time.Time
}

// Options control a single scan.
type Options struct {
	// Window, when set, is resolved to a block range via binary search and
	// the scan leaves persisted state untouched. When nil the engine resumes
	// from the persisted cursor and advances it on success.
	Window *Window

	// WalletAgeHours overrides the configured cutoff for this run
	WalletAgeHours *float64
}

// Engine runs scans. One scan at a time; the engine is not safe for
// concurrent Run calls against the same state store.
type Engine struct {
	chain    ChainClient
	state    *store.Store
	markets  MarketLookup
	explorer ExplorerLookup
	cfg      Config

	// block timestamps are cached per run, reset at the start of Run
	blockTimes map[uint64]int64
}

// New creates a scan engine. explorer may be nil when no explorer API key is
// configured; wallet ages then fall back to first-observation time.
func New(chain ChainClient, state *store.Store, markets MarketLookup, explorer ExplorerLookup, cfg Config) *Engine {
	return &Engine{
		chain:    chain,
		state:    state,
		markets:  markets,
		explorer: explorer,
		cfg:      cfg,
	}
}

// Run executes one scan and returns the emitted alerts in chronological
// order. Binary search over block timestamps assumes they are non-decreasing
// in block number; chains with timestamp drift are not guarded against.
func (e *Engine) Run(ctx context.Context, opts Options) ([]store.AlertRecord, error) {
	mutate := opts.Window == nil
	e.blockTimes = make(map[uint64]int64)

	if err := e.state.Init(); err != nil {
		return nil, err
	}

	head, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain head: %w", err)
	}

	toBlock := head
	if opts.Window != nil {
		toBlock, err = e.findBlockByTimestamp(ctx, opts.Window.To.Unix(), head)
		if err != nil {
			return nil, err
		}
	}

	var fromBlock uint64
	switch {
	case opts.Window != nil:
		fromBlock, err = e.findBlockByTimestamp(ctx, opts.Window.From.Unix(), toBlock)
		if err != nil {
			return nil, err
		}
	case e.state.LastProcessedBlock() == 0:
		if toBlock > e.cfg.InitialLookbackBlocks {
			fromBlock = toBlock - e.cfg.InitialLookbackBlocks
		}
	default:
		fromBlock = e.state.LastProcessedBlock() + 1
	}

	if fromBlock > toBlock {
		return []store.AlertRecord{}, nil
	}

	slog.Info("scan_window_resolved",
		"from_block", fromBlock,
		"to_block", toBlock,
		"mutating", mutate,
	)

	logs, err := e.fetchMatchedEvents(ctx, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	cutoffHours := e.cfg.WalletAgeHours
	if opts.WalletAgeHours != nil {
		cutoffHours = *opts.WalletAgeHours
	}

	alerts := []store.AlertRecord{}
	for _, lg := range logs {
		alert, ok, err := e.processLog(ctx, lg, cutoffHours, mutate)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if mutate {
			e.state.AddAlert(alert)
		}
		alerts = append(alerts, alert)
	}

	if mutate {
		e.state.SetLastProcessedBlock(toBlock)
		if err := e.state.Persist(); err != nil {
			return nil, err
		}
	}

	slog.Info("scan_complete",
		"events", len(logs),
		"alerts", len(alerts),
		"cutoff_hours", cutoffHours,
	)
	return alerts, nil
}

// processLog runs one event through the filter/enrichment pipeline. ok is
// false for events that do not survive (non-trades, below threshold, unknown
// tokens, wallets older than the cutoff).
func (e *Engine) processLog(ctx context.Context, lg types.Log, cutoffHours float64, mutate bool) (store.AlertRecord, bool, error) {
	trade, ok := extractTrade(lg)
	if !ok {
		return store.AlertRecord{}, false, nil
	}
	if trade.UsdValue < e.cfg.TradeThresholdUSD {
		return store.AlertRecord{}, false, nil
	}

	info, known, err := e.markets.TokenInfo(ctx, trade.TokenID)
	if err != nil {
		return store.AlertRecord{}, false, err
	}
	if !known {
		// trades in instruments outside the tracked catalog are expected
		return store.AlertRecord{}, false, nil
	}

	blockTime, err := e.blockTimestamp(ctx, lg.BlockNumber)
	if err != nil {
		return store.AlertRecord{}, false, err
	}

	market := store.MarketRef{
		ConditionID: info.ConditionID,
		Question:    info.Question,
		Outcome:     info.Outcome,
		Slug:        info.Slug,
		AllOutcomes: e.markets.Outcomes(info.ConditionID),
	}

	wallet, exists := e.state.Wallet(trade.Wallet)
	if !exists {
		wallet = store.NewWalletState(lg.BlockNumber, trade.TxHash, trade.UsdValue, market, trade.Direction, time.Unix(blockTime, 0).UTC())
		if mutate {
			e.state.UpsertWallet(trade.Wallet, wallet)
		}
	}

	firstActivity := e.resolveFirstActivity(ctx, trade.Wallet, &wallet, mutate)

	ageHours := float64(blockTime-firstActivity) / 3600
	if ageHours > cutoffHours {
		return store.AlertRecord{}, false, nil
	}

	alert := store.AlertRecord{
		Address:         trade.Wallet,
		TxHash:          trade.TxHash,
		BlockNumber:     lg.BlockNumber,
		BlockTimestamp:  blockTime,
		UsdValue:        trade.UsdValue,
		Market:          market,
		Direction:       trade.Direction,
		CreatedAt:       time.Now().UTC(),
		WalletFirstSeen: format.Eastern(firstActivity),
		WalletAgeHours:  ageHours,
	}
	return alert, true, nil
}

// resolveFirstActivity returns the wallet's best-known first-activity time,
// in priority order: a persisted explorer lookup, a persisted
// first-activity timestamp, a live explorer lookup, and finally the moment
// the scanner first observed the wallet. Explorer failures are logged and
// swallowed so one flaky lookup cannot abort the scan. In mutating mode the
// resolved value is written through the state store; otherwise only the
// in-memory copy is updated.
func (e *Engine) resolveFirstActivity(ctx context.Context, address string, wallet *store.WalletState, mutate bool) int64 {
	if wallet.Explorer != nil {
		return wallet.Explorer.FirstTxTimestamp
	}
	if wallet.FirstActivityTimestamp != 0 {
		return wallet.FirstActivityTimestamp
	}

	if e.explorer != nil {
		timestamp, found, err := e.explorer.FirstTransactionTimestamp(ctx, address)
		switch {
		case err != nil:
			slog.Warn("explorer_lookup_failed", "wallet", address, "error", err)
		case found:
			record := &store.ExplorerRecord{
				FirstTxTimestamp: timestamp,
				FetchedAt:        time.Now().UTC(),
			}
			if mutate {
				seed := *wallet
				*wallet = e.state.UpdateWallet(address, func(current store.WalletState, ok bool) store.WalletState {
					next := seed
					if ok {
						next = current
					}
					next.Explorer = record
					next.FirstActivityTimestamp = timestamp
					return next
				})
			} else {
				wallet.Explorer = record
				wallet.FirstActivityTimestamp = timestamp
			}
			return timestamp
		}
	}

	fallback := wallet.FirstSeenAt.Unix()
	if mutate {
		seed := *wallet
		*wallet = e.state.UpdateWallet(address, func(current store.WalletState, ok bool) store.WalletState {
			next := seed
			if ok {
				next = current
			}
			if next.FirstActivityTimestamp == 0 {
				next.FirstActivityTimestamp = fallback
			}
			return next
		})
	} else if wallet.FirstActivityTimestamp == 0 {
		wallet.FirstActivityTimestamp = fallback
	}
	return fallback
}

// fetchMatchedEvents walks the block range in fixed-size chunks and returns
// the concatenated logs sorted by (blockNumber, logIndex), so processing
// order is deterministic regardless of per-chunk ordering from the provider.
func (e *Engine) fetchMatchedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	step := e.cfg.BlockBatchSize
	if step < 1 {
		step = 1
	}

	var all []types.Log
	for start := fromBlock; start <= toBlock; start += step + 1 {
		end := start + step
		if end > toBlock {
			end = toBlock
		}
		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{e.cfg.ExchangeAddress},
			Topics:    [][]common.Hash{{ordersMatchedTopic}},
		}
		chunk, err := e.chain.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("fetch logs [%d, %d]: %w", start, end, err)
		}
		all = append(all, chunk...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].BlockNumber == all[j].BlockNumber {
			return all[i].Index < all[j].Index
		}
		return all[i].BlockNumber < all[j].BlockNumber
	})
	return all, nil
}

// blockTimestamp resolves a block's timestamp, cached per run so repeated
// trades in one block cost a single header fetch.
func (e *Engine) blockTimestamp(ctx context.Context, blockNumber uint64) (int64, error) {
	if ts, ok := e.blockTimes[blockNumber]; ok {
		return ts, nil
	}
	header, err := e.chain.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, fmt.Errorf("fetch header %d: %w", blockNumber, err)
	}
	ts := int64(header.Time)
	e.blockTimes[blockNumber] = ts
	return ts, nil
}

// findBlockByTimestamp binary-searches for the lowest block whose timestamp
// is >= target over [0, upperBound]. Missing headers shrink the search space
// from above, matching providers that prune early history.
func (e *Engine) findBlockByTimestamp(ctx context.Context, target int64, upperBound uint64) (uint64, error) {
	low, high := uint64(0), upperBound
	for low < high {
		mid := low + (high-low)/2
		header, err := e.chain.HeaderByNumber(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				high = mid
				continue
			}
			return 0, fmt.Errorf("fetch header %d: %w", mid, err)
		}
		if header.Time >= uint64(target) {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return low, nil
}
