package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV row keyed by its open time (unix seconds).
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type OrderBookEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type OrderBook struct {
	Symbol string           `json:"symbol"`
	Bids   []OrderBookEntry `json:"bids"`
	Asks   []OrderBookEntry `json:"asks"`
}

// BestBid returns the top-of-book bid, if any.
func (b *OrderBook) BestBid() (OrderBookEntry, bool) {
	if len(b.Bids) == 0 {
		return OrderBookEntry{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top-of-book ask, if any.
func (b *OrderBook) BestAsk() (OrderBookEntry, bool) {
	if len(b.Asks) == 0 {
		return OrderBookEntry{}, false
	}
	return b.Asks[0], true
}

// PublicTrade is one anonymized venue trade.
type PublicTrade struct {
	ID     string
	Symbol string
	Side   string
	Size   decimal.Decimal
	Price  decimal.Decimal
	Time   time.Time
}

type Ticker struct {
	Symbol      string
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	Last        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	BaseVolume  decimal.Decimal
	QuoteVolume decimal.Decimal
	Timestamp   time.Time
}

// MiniTicker is the reduced push-feed ticker.
type MiniTicker struct {
	Symbol string
	Close  decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Volume decimal.Decimal
	Time   time.Time
}

// FundingInfo carries the current funding state of a futures symbol.
type FundingInfo struct {
	Symbol        string
	Rate          decimal.Decimal
	PredictedRate decimal.Decimal
	NextUpdate    time.Time
}

// TimeFrame is a candle interval in its string form ("1m", "1h", ...).
type TimeFrame string

var timeFrameSeconds = map[TimeFrame]int64{
	"1m": 60, "3m": 180, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "2h": 7200, "4h": 14400, "6h": 21600, "8h": 28800,
	"12h": 43200, "1d": 86400, "3d": 259200, "1w": 604800, "1M": 2592000,
}

// Seconds returns the duration of one candle in seconds, 0 when unknown.
func (tf TimeFrame) Seconds() int64 {
	return timeFrameSeconds[tf]
}

func (tf TimeFrame) Duration() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// MarketLimits describes the venue's min/max amount, cost and price for a
// symbol.
type MarketLimits struct {
	MinAmount, MaxAmount decimal.Decimal
	MinCost, MaxCost     decimal.Decimal
	MinPrice, MaxPrice   decimal.Decimal
}

// MarketPrecision is the number of decimal digits accepted per field.
type MarketPrecision struct {
	Amount int32
	Cost   int32
	Price  int32
}

// Market is the venue metadata for one symbol.
type Market struct {
	Symbol    string
	Base      string
	Quote     string
	Precision MarketPrecision
	Limits    MarketLimits
}

// Balance is one asset row of a fetched account balance.
type Balance struct {
	Free  decimal.Decimal
	Used  decimal.Decimal
	Total decimal.Decimal
}
