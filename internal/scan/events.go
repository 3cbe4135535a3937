package scan

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/polywatch/tracker/internal/store"
)

// collateralDecimals is the fixed-point scale of the collateral asset (USDC).
const collateralDecimals = 6

// ordersMatchedABI covers the single exchange event the tracker consumes.
const ordersMatchedABI = `[{"anonymous":false,"inputs":[
{"indexed":true,"internalType":"bytes32","name":"takerOrderHash","type":"bytes32"},
{"indexed":true,"internalType":"address","name":"takerOrderMaker","type":"address"},
{"indexed":false,"internalType":"uint256","name":"makerAssetId","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"takerAssetId","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"makerAmountFilled","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"takerAmountFilled","type":"uint256"}],
"name":"OrdersMatched","type":"event"}]`

var exchangeABI = mustParseABI(ordersMatchedABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse exchange ABI: %v", err))
	}
	return parsed
}

// ordersMatchedTopic is the OrdersMatched event signature hash.
var ordersMatchedTopic = exchangeABI.Events["OrdersMatched"].ID

// matchedOrder is the strongly-typed decode of one OrdersMatched log.
type matchedOrder struct {
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
}

// decodeOrdersMatched decodes a raw log into a matchedOrder. Logs that are
// not well-formed OrdersMatched events yield an error.
func decodeOrdersMatched(lg types.Log) (matchedOrder, error) {
	if len(lg.Topics) < 3 || lg.Topics[0] != ordersMatchedTopic {
		return matchedOrder{}, fmt.Errorf("not an OrdersMatched log")
	}

	values, err := exchangeABI.Unpack("OrdersMatched", lg.Data)
	if err != nil {
		return matchedOrder{}, fmt.Errorf("unpack OrdersMatched data: %w", err)
	}
	if len(values) != 4 {
		return matchedOrder{}, fmt.Errorf("unexpected OrdersMatched field count %d", len(values))
	}

	order := matchedOrder{
		Taker: common.BytesToAddress(lg.Topics[2].Bytes()),
	}
	fields := []**big.Int{
		&order.MakerAssetID,
		&order.TakerAssetID,
		&order.MakerAmountFilled,
		&order.TakerAmountFilled,
	}
	for i, v := range values {
		n, ok := v.(*big.Int)
		if !ok {
			return matchedOrder{}, fmt.Errorf("OrdersMatched field %d is not uint256", i)
		}
		*fields[i] = n
	}
	return order, nil
}

// tradeDetails is one USD-denominated exchange trade extracted from a log.
type tradeDetails struct {
	Wallet    string
	UsdValue  float64
	TokenID   string
	Direction store.TradeDirection
	TxHash    string
	LogIndex  uint
}

// extractTrade classifies a decoded log as a collateral trade. Exactly one
// side's asset id must be the collateral sentinel (zero); events where
// neither or both sides are collateral are not USD trades and are skipped.
// Direction is BUY when collateral flowed out of the taker.
func extractTrade(lg types.Log) (tradeDetails, bool) {
	order, err := decodeOrdersMatched(lg)
	if err != nil {
		return tradeDetails{}, false
	}

	makerIsCollateral := order.MakerAssetID.Sign() == 0
	takerIsCollateral := order.TakerAssetID.Sign() == 0
	if makerIsCollateral == takerIsCollateral {
		return tradeDetails{}, false
	}

	trade := tradeDetails{
		Wallet:   strings.ToLower(order.Taker.Hex()),
		TxHash:   lg.TxHash.Hex(),
		LogIndex: lg.Index,
	}
	if takerIsCollateral {
		trade.UsdValue = collateralToUSD(order.TakerAmountFilled)
		trade.TokenID = order.MakerAssetID.String()
		trade.Direction = store.DirectionBuy
	} else {
		trade.UsdValue = collateralToUSD(order.MakerAmountFilled)
		trade.TokenID = order.TakerAssetID.String()
		trade.Direction = store.DirectionSell
	}
	return trade, true
}

// collateralToUSD converts a raw collateral amount to dollars.
func collateralToUSD(amount *big.Int) float64 {
	return decimal.NewFromBigInt(amount, -collateralDecimals).InexactFloat64()
}
