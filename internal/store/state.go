package store

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/polywatch/tracker/internal/jsonfile"
)

// ErrNotInitialized is returned when Persist is called before Init. This is a
// caller ordering bug, not a runtime condition to recover from.
var ErrNotInitialized = errors.New("state store must be initialized before persisting")

// Store owns the persisted TrackingState. It is the only writer of the state
// file; the scan engine reads and mutates state exclusively through its
// methods. Not safe for concurrent use; the tracker runs one scan at a time.
type Store struct {
	path      string
	maxAlerts int
	data      TrackingState
	loaded    bool
}

// NewStore creates a Store backed by the JSON file at path, keeping at most
// maxAlerts records of alert history.
func NewStore(path string, maxAlerts int) *Store {
	return &Store{
		path:      path,
		maxAlerts: maxAlerts,
		data:      defaultState(),
	}
}

func defaultState() TrackingState {
	return TrackingState{
		Wallets: make(map[string]WalletState),
		Alerts:  []AlertRecord{},
	}
}

// Init loads the state file, treating a missing file as the empty initial
// state. Wallet records written before firstActivityTimestamp existed are
// back-filled from their firstSeenAt. Calling Init twice is a no-op.
func (s *Store) Init() error {
	if s.loaded {
		return nil
	}

	var stored TrackingState
	found, err := jsonfile.Read(s.path, &stored)
	if err != nil {
		return err
	}
	if found {
		s.data = stored
		if s.data.Wallets == nil {
			s.data.Wallets = make(map[string]WalletState)
		}
		if s.data.Alerts == nil {
			s.data.Alerts = []AlertRecord{}
		}
	} else {
		s.data = defaultState()
	}

	for addr, wallet := range s.data.Wallets {
		if wallet.FirstActivityTimestamp == 0 {
			wallet.FirstActivityTimestamp = wallet.FirstSeenAt.Unix()
			s.data.Wallets[addr] = wallet
		}
	}

	s.loaded = true
	return nil
}

// LastProcessedBlock returns the persisted scan cursor.
func (s *Store) LastProcessedBlock() uint64 {
	return s.data.LastProcessedBlock
}

// SetLastProcessedBlock advances the scan cursor. Setting a value lower than
// the current cursor is a no-op: the cursor is monotonically non-decreasing.
func (s *Store) SetLastProcessedBlock(block uint64) {
	if block > s.data.LastProcessedBlock {
		s.data.LastProcessedBlock = block
	}
}

// Wallet returns the state for the given address, if one exists.
func (s *Store) Wallet(address string) (WalletState, bool) {
	wallet, ok := s.data.Wallets[lowerAddress(address)]
	return wallet, ok
}

// UpsertWallet stores the state for the given address.
func (s *Store) UpsertWallet(address string, state WalletState) {
	s.data.Wallets[lowerAddress(address)] = state
}

// UpdateWallet applies a read-modify-write against the current value for the
// address. The transform receives the current state (ok reports whether one
// exists) and returns the replacement, which is stored and returned.
func (s *Store) UpdateWallet(address string, transform func(current WalletState, ok bool) WalletState) WalletState {
	key := lowerAddress(address)
	current, ok := s.data.Wallets[key]
	next := transform(current, ok)
	s.data.Wallets[key] = next
	return next
}

// AddAlert appends a record to the alert history, then trims oldest-first so
// the history never exceeds the configured cap.
func (s *Store) AddAlert(alert AlertRecord) {
	s.data.Alerts = append(s.data.Alerts, alert)
	if s.maxAlerts > 0 && len(s.data.Alerts) > s.maxAlerts {
		s.data.Alerts = s.data.Alerts[len(s.data.Alerts)-s.maxAlerts:]
	}
}

// Alerts returns a copy of the alert history.
func (s *Store) Alerts() []AlertRecord {
	out := make([]AlertRecord, len(s.data.Alerts))
	copy(out, s.data.Alerts)
	return out
}

// Snapshot returns a copy of the full tracking state.
func (s *Store) Snapshot() TrackingState {
	snap := TrackingState{
		LastProcessedBlock: s.data.LastProcessedBlock,
		Wallets:            make(map[string]WalletState, len(s.data.Wallets)),
		Alerts:             make([]AlertRecord, len(s.data.Alerts)),
	}
	for addr, wallet := range s.data.Wallets {
		snap.Wallets[addr] = wallet
	}
	copy(snap.Alerts, s.data.Alerts)
	return snap
}

// Persist rewrites the state file wholesale. Alerts are written sorted
// ascending by creation time so file contents are deterministic regardless
// of insertion order.
func (s *Store) Persist() error {
	if !s.loaded {
		return ErrNotInitialized
	}

	out := s.Snapshot()
	sort.SliceStable(out.Alerts, func(i, j int) bool {
		return out.Alerts[i].CreatedAt.Before(out.Alerts[j].CreatedAt)
	})

	return jsonfile.Write(s.path, out)
}

// NewWalletState seeds a wallet record from its first observed trade. The
// first-activity timestamp is left unset so the scan engine's resolution
// chain (explorer lookup, then observation-time fallback) fills it in.
func NewWalletState(blockNumber uint64, txHash string, usdValue float64, market MarketRef, direction TradeDirection, firstSeenAt time.Time) WalletState {
	if firstSeenAt.IsZero() {
		firstSeenAt = time.Now().UTC()
	}
	return WalletState{
		FirstSeenBlock:      blockNumber,
		FirstSeenAt:         firstSeenAt,
		FirstTradeTx:        txHash,
		FirstTradeUsd:       usdValue,
		FirstTradeDirection: direction,
		FirstTradeMarket:    market,
	}
}

// lowerAddress normalizes an address for use as a wallet key.
func lowerAddress(address string) string {
	return strings.ToLower(address)
}
