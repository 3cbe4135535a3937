// Package store provides the tracker's data model and persisted tracking state.
package store

import "time"

// TradeDirection indicates which way the taker traded against collateral.
type TradeDirection string

const (
	// DirectionBuy means the taker paid collateral and received outcome tokens.
	DirectionBuy TradeDirection = "BUY"
	// DirectionSell means the taker sold outcome tokens for collateral.
	DirectionSell TradeDirection = "SELL"
)

// MarketRef identifies one side of one prediction market at the moment a
// trade occurred. Immutable once attached to an alert or wallet record.
type MarketRef struct {
	// ConditionID is the market's condition identifier
	ConditionID string `json:"conditionId"`

	// Question is the market question text
	Question string `json:"question"`

	// Outcome is the outcome name this token represents
	Outcome string `json:"outcome"`

	// Slug is the market's URL slug
	Slug string `json:"slug"`

	// AllOutcomes lists every outcome name of the market, when known
	AllOutcomes []string `json:"allOutcomes,omitempty"`
}

// MarketTokenInfo binds one tradable outcome token to its market. Several
// tokens share a ConditionID, one per outcome.
type MarketTokenInfo struct {
	MarketRef

	// TokenID is the outcome token identifier (decimal string)
	TokenID string `json:"tokenId"`

	// Closed reports whether the market has resolved
	Closed bool `json:"closed"`
}

// MarketCacheSnapshot is a full refresh of the market catalog, persisted
// verbatim as the market cache file.
type MarketCacheSnapshot struct {
	// FetchedAt is when the snapshot was taken
	FetchedAt time.Time `json:"fetchedAt"`

	// Tokens maps token ID to its market binding
	Tokens map[string]MarketTokenInfo `json:"tokens"`

	// Outcomes maps condition ID to the market's outcome names
	Outcomes map[string][]string `json:"outcomes"`
}

// ExplorerRecord is a successful block-explorer lookup of a wallet's first
// transaction, kept so later runs never repeat the request.
type ExplorerRecord struct {
	// FirstTxTimestamp is the wallet's earliest transaction time (unix seconds)
	FirstTxTimestamp int64 `json:"firstTxTimestamp"`

	// FetchedAt is when the lookup was performed
	FetchedAt time.Time `json:"fetchedAt"`
}

// WalletState is created the first time a wallet is observed trading above
// the alert threshold.
type WalletState struct {
	// FirstSeenBlock is the block of the wallet's first observed trade
	FirstSeenBlock uint64 `json:"firstSeenBlock"`

	// FirstSeenAt is when the scanner first observed the wallet
	FirstSeenAt time.Time `json:"firstSeenAt"`

	// FirstTradeTx is the transaction hash of the first observed trade
	FirstTradeTx string `json:"firstTradeTx"`

	// FirstTradeUsd is the USD value of the first observed trade
	FirstTradeUsd float64 `json:"firstTradeUsd"`

	// FirstTradeDirection is BUY or SELL
	FirstTradeDirection TradeDirection `json:"firstTradeDirection"`

	// FirstTradeMarket identifies the market of the first observed trade
	FirstTradeMarket MarketRef `json:"firstTradeMarket"`

	// FirstActivityTimestamp is the best-known true first-activity time
	// (unix seconds). Once set it is never decreased.
	FirstActivityTimestamp int64 `json:"firstActivityTimestamp,omitempty"`

	// Explorer holds the explorer lookup result, if one succeeded
	Explorer *ExplorerRecord `json:"explorer,omitempty"`
}

// AlertRecord is one emitted detection. Immutable after creation.
type AlertRecord struct {
	Address        string         `json:"address"`
	TxHash         string         `json:"txHash"`
	BlockNumber    uint64         `json:"blockNumber"`
	BlockTimestamp int64          `json:"blockTimestamp"`
	UsdValue       float64        `json:"usdValue"`
	Market         MarketRef      `json:"market"`
	Direction      TradeDirection `json:"direction"`
	CreatedAt      time.Time      `json:"createdAt"`

	// WalletFirstSeen is the wallet's first activity, pre-formatted for display
	WalletFirstSeen string `json:"walletFirstSeen"`

	// WalletAgeHours is the wallet's age at trade time, in hours
	WalletAgeHours float64 `json:"walletAgeHours"`
}

// TrackingState is the full persisted tracker state. Wallet keys are
// lowercased addresses.
type TrackingState struct {
	LastProcessedBlock uint64                 `json:"lastProcessedBlock"`
	Wallets            map[string]WalletState `json:"wallets"`
	Alerts             []AlertRecord          `json:"alerts"`
}
