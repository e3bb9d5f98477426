package channels

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantra/tradecore/internal/domain"
)

// Channel names. One registry entry per name per exchange instance.
const (
	TickerChannelName       = "TICKER"
	MiniTickerChannelName   = "MINI_TICKER"
	RecentTradesChannelName = "RECENT_TRADES"
	OrderBookChannelName    = "ORDER_BOOK"
	BookTickerChannelName   = "BOOK_TICKER"
	KlineChannelName        = "KLINE"
	OHLCVChannelName        = "OHLCV"
	MarkPriceChannelName    = "MARK_PRICE"
	FundingChannelName      = "FUNDING"
	LiquidationsChannelName = "LIQUIDATIONS"
	BalanceChannelName      = "BALANCE"
	OrdersChannelName       = "ORDERS"
	TradesChannelName       = "TRADES"
	PositionsChannelName    = "POSITIONS"
	TimeChannelName         = "TIME"
)

// Filter keys used by consumers.
const (
	FilterCryptocurrency  = "cryptocurrency"
	FilterSymbol          = "symbol"
	FilterTimeFrame       = "time_frame"
	FilterTradingModeName = "trading_mode_name"
)

// Wildcard matches any concrete filter value, on either side.
const Wildcard = "*"

// WebsocketFeedsToChannels maps WS adapter feeds to the channel they
// replace. A channel handled by the WS adapter does not get its REST
// updater started, except for the names in AlwaysStartedRESTChannels.
var WebsocketFeedsToChannels = map[domain.WebsocketFeed][]string{
	domain.FeedTicker:          {TickerChannelName},
	domain.FeedMiniTicker:      {MiniTickerChannelName},
	domain.FeedRecentTrades:    {RecentTradesChannelName},
	domain.FeedOrderBook:       {OrderBookChannelName},
	domain.FeedOrderBookTicker: {BookTickerChannelName},
	domain.FeedKline:           {KlineChannelName},
	domain.FeedOHLCV:           {OHLCVChannelName},
	domain.FeedTrades:          {TradesChannelName},
	domain.FeedOrders:          {OrdersChannelName},
	domain.FeedMarkPrice:       {MarkPriceChannelName},
	domain.FeedBalance:         {BalanceChannelName},
	domain.FeedPositions:       {PositionsChannelName},
	domain.FeedFunding:         {FundingChannelName},
	domain.FeedLiquidations:    {LiquidationsChannelName},
}

// AlwaysStartedRESTChannels lists channels whose REST producer starts even
// when a websocket feed covers them. The ticker poller keeps mark-price
// progress alive on venues whose WS ticker stalls.
var AlwaysStartedRESTChannels = []string{TickerChannelName}

// FilterValues are the attributes an event exposes to consumer filters.
type FilterValues map[string]string

// Event is the unit routed through a channel.
type Event interface {
	FilterValues() FilterValues
}

func pairFilters(cryptocurrency, symbol string) FilterValues {
	return FilterValues{
		FilterCryptocurrency: cryptocurrency,
		FilterSymbol:         symbol,
	}
}

func timeFrameFilters(cryptocurrency, symbol string, tf domain.TimeFrame) FilterValues {
	fv := pairFilters(cryptocurrency, symbol)
	fv[FilterTimeFrame] = string(tf)
	return fv
}

type OHLCVEvent struct {
	Cryptocurrency string
	Symbol         string
	TimeFrame      domain.TimeFrame
	Candles        []domain.Candle
	Partial        bool
}

func (e OHLCVEvent) FilterValues() FilterValues {
	return timeFrameFilters(e.Cryptocurrency, e.Symbol, e.TimeFrame)
}

type KlineEvent struct {
	Cryptocurrency string
	Symbol         string
	TimeFrame      domain.TimeFrame
	Kline          domain.Candle
}

func (e KlineEvent) FilterValues() FilterValues {
	return timeFrameFilters(e.Cryptocurrency, e.Symbol, e.TimeFrame)
}

type TickerEvent struct {
	Cryptocurrency string
	Symbol         string
	Ticker         domain.Ticker
}

func (e TickerEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type MiniTickerEvent struct {
	Cryptocurrency string
	Symbol         string
	MiniTicker     domain.MiniTicker
}

func (e MiniTickerEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type OrderBookEvent struct {
	Cryptocurrency string
	Symbol         string
	Asks           []domain.OrderBookEntry
	Bids           []domain.OrderBookEntry
}

func (e OrderBookEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type BookTickerEvent struct {
	Cryptocurrency string
	Symbol         string
	BidQuantity    decimal.Decimal
	BidPrice       decimal.Decimal
	AskQuantity    decimal.Decimal
	AskPrice       decimal.Decimal
}

func (e BookTickerEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type RecentTradesEvent struct {
	Cryptocurrency string
	Symbol         string
	Trades         []domain.PublicTrade
}

func (e RecentTradesEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type MarkPriceEvent struct {
	Cryptocurrency string
	Symbol         string
	MarkPrice      decimal.Decimal
}

func (e MarkPriceEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type FundingEvent struct {
	Cryptocurrency string
	Symbol         string
	Funding        domain.FundingInfo
}

func (e FundingEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type LiquidationsEvent struct {
	Cryptocurrency string
	Symbol         string
	Liquidations   []domain.PublicTrade
}

func (e LiquidationsEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type BalanceEvent struct {
	Balance map[string]domain.Balance
}

func (e BalanceEvent) FilterValues() FilterValues { return FilterValues{} }

type OrdersEvent struct {
	Cryptocurrency string
	Symbol         string
	Orders         []*domain.Order
	IsNew          bool
	IsFromBot      bool
}

func (e OrdersEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type TradesEvent struct {
	Cryptocurrency string
	Symbol         string
	Trades         []*domain.Trade
}

func (e TradesEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

type PositionsEvent struct {
	Cryptocurrency string
	Symbol         string
	Positions      []*domain.Position
}

func (e PositionsEvent) FilterValues() FilterValues {
	return pairFilters(e.Cryptocurrency, e.Symbol)
}

// TimeEvent drives backtesting: a monotone timestamp from the importer.
type TimeEvent struct {
	Timestamp time.Time
}

func (e TimeEvent) FilterValues() FilterValues { return FilterValues{} }
