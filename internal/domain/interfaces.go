package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is the adapter interface the core consumes. Implementations
// wrap a venue's REST/WS library; the core never speaks HTTP itself.
// Adapter methods classify venue failures with the sentinel errors of
// errors.go so the core can react per kind.
type Exchange interface {
	// Market metadata.
	LoadMarkets(ctx context.Context) error
	Symbols() []string
	TimeFrames() []TimeFrame
	Market(symbol string) (*Market, error)

	// Public data.
	FetchOHLCV(ctx context.Context, symbol string, tf TimeFrame, limit int) ([]Candle, error)
	FetchOrderBook(ctx context.Context, symbol string, limit int) (*OrderBook, error)
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchTickers(ctx context.Context, symbols []string) ([]Ticker, error)
	FetchTrades(ctx context.Context, symbol string, limit int) ([]PublicTrade, error)

	// Private data.
	FetchBalance(ctx context.Context) (map[string]Balance, error)
	FetchMyTrades(ctx context.Context, symbol string, limit int) ([]Trade, error)
	FetchOrder(ctx context.Context, id, symbol string) (*RawOrder, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]RawOrder, error)
	FetchClosedOrders(ctx context.Context, symbol string, limit int) ([]RawOrder, error)

	// Trading.
	CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity decimal.Decimal) (*RawOrder, error)
	CreateLimitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price decimal.Decimal) (*RawOrder, error)
	CancelOrder(ctx context.Context, id, symbol string) error

	// Futures.
	GetOpenPosition(ctx context.Context, symbol string) (*Position, error)
	GetFundingRate(ctx context.Context, symbol string) (*FundingInfo, error)
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Fees and misc.
	CalculateFee(symbol string, orderType TradeOrderType, side OrderSide, amount, price decimal.Decimal, takerOrMaker TakerOrMaker) (*Fee, error)
	SetSandboxMode(enabled bool) error
	Milliseconds() int64
	ParseOrderStatus(raw string) OrderStatus
}

// RawOrder is the normalized wire form handed back by adapters before it
// is parsed into an Order.
type RawOrder struct {
	ID           string
	Symbol       string
	Side         OrderSide
	Type         string
	Status       string
	Price        decimal.Decimal
	StopPrice    decimal.Decimal
	Quantity     decimal.Decimal
	Filled       decimal.Decimal
	Cost         decimal.Decimal
	FeeCurrency  string
	FeeCost      decimal.Decimal
	Timestamp    time.Time
	TakerOrMaker TakerOrMaker
}

// WebsocketFeed names a push feed exposed by a WS adapter.
type WebsocketFeed string

const (
	FeedTicker          WebsocketFeed = "ticker"
	FeedMiniTicker      WebsocketFeed = "mini_ticker"
	FeedRecentTrades    WebsocketFeed = "recent_trades"
	FeedOrderBook       WebsocketFeed = "order_book"
	FeedOrderBookTicker WebsocketFeed = "order_book_ticker"
	FeedKline           WebsocketFeed = "kline"
	FeedOHLCV           WebsocketFeed = "ohlcv"
	FeedTrades          WebsocketFeed = "trades"
	FeedOrders          WebsocketFeed = "orders"
	FeedMarkPrice       WebsocketFeed = "mark_price"
	FeedBalance         WebsocketFeed = "balance"
	FeedPositions       WebsocketFeed = "positions"
	FeedFunding         WebsocketFeed = "funding"
	FeedLiquidations    WebsocketFeed = "liquidations"
)

// WebsocketExchange is the optional push-capable side of an adapter.
type WebsocketExchange interface {
	SupportedFeeds() []WebsocketFeed
	Subscribe(feed WebsocketFeed, symbols []string) error
}
