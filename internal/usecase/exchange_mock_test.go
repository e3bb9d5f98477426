package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantra/tradecore/internal/domain"
)

// fakeExchange is a scriptable adapter stub. Zero value behaves like a
// healthy venue that accepts everything.
type fakeExchange struct {
	mu sync.Mutex

	symbols    []string
	markets    map[string]*domain.Market
	balance    map[string]domain.Balance
	markPrices map[string]decimal.Decimal
	openOrders map[string][]domain.RawOrder

	createErrs []error
	cancelErrs []error
	fetchOrder func(id, symbol string) (*domain.RawOrder, error)

	createCalls  int
	cancelCalls  int
	balanceCalls int
	nextOrderID  int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		symbols:    []string{"BTC/USDT", "ETH/USDT"},
		markets:    map[string]*domain.Market{},
		balance:    map[string]domain.Balance{},
		markPrices: map[string]decimal.Decimal{},
		openOrders: map[string][]domain.RawOrder{},
	}
}

// failNextCreates scripts errors for upcoming CreateXxxOrder calls.
func (f *fakeExchange) failNextCreates(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErrs = append(f.createErrs, errs...)
}

func (f *fakeExchange) failNextCancels(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelErrs = append(f.cancelErrs, errs...)
}

func (f *fakeExchange) LoadMarkets(ctx context.Context) error { return nil }

func (f *fakeExchange) Symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.symbols...)
}

func (f *fakeExchange) TimeFrames() []domain.TimeFrame {
	return []domain.TimeFrame{"1m", "1h"}
}

func (f *fakeExchange) Market(symbol string) (*domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.markets[symbol]; ok {
		return m, nil
	}
	return &domain.Market{Symbol: symbol}, nil
}

func (f *fakeExchange) FetchOHLCV(ctx context.Context, symbol string, tf domain.TimeFrame, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) FetchOrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBook, error) {
	return &domain.OrderBook{Symbol: symbol}, nil
}

func (f *fakeExchange) FetchTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	return &domain.Ticker{Symbol: symbol}, nil
}

func (f *fakeExchange) FetchTickers(ctx context.Context, symbols []string) ([]domain.Ticker, error) {
	out := make([]domain.Ticker, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, domain.Ticker{Symbol: s})
	}
	return out, nil
}

func (f *fakeExchange) FetchTrades(ctx context.Context, symbol string, limit int) ([]domain.PublicTrade, error) {
	return nil, nil
}

func (f *fakeExchange) FetchBalance(ctx context.Context) (map[string]domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	out := make(map[string]domain.Balance, len(f.balance))
	for k, v := range f.balance {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExchange) FetchMyTrades(ctx context.Context, symbol string, limit int) ([]domain.Trade, error) {
	return nil, nil
}

func (f *fakeExchange) FetchOrder(ctx context.Context, id, symbol string) (*domain.RawOrder, error) {
	f.mu.Lock()
	hook := f.fetchOrder
	f.mu.Unlock()
	if hook != nil {
		return hook(id, symbol)
	}
	return nil, domain.ErrOrderNotFound
}

func (f *fakeExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RawOrder(nil), f.openOrders[symbol]...), nil
}

func (f *fakeExchange) FetchClosedOrders(ctx context.Context, symbol string, limit int) ([]domain.RawOrder, error) {
	return nil, nil
}

func (f *fakeExchange) createOrder(symbol string, side domain.OrderSide, kind string, quantity, price decimal.Decimal) (*domain.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextOrderID++
	return &domain.RawOrder{
		ID:        "EX-" + string(rune('0'+f.nextOrderID)),
		Symbol:    symbol,
		Side:      side,
		Type:      kind,
		Status:    "open",
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeExchange) CreateMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity decimal.Decimal) (*domain.RawOrder, error) {
	return f.createOrder(symbol, side, "market", quantity, decimal.Zero)
}

func (f *fakeExchange) CreateLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price decimal.Decimal) (*domain.RawOrder, error) {
	return f.createOrder(symbol, side, "limit", quantity, price)
}

func (f *fakeExchange) CancelOrder(ctx context.Context, id, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if len(f.cancelErrs) > 0 {
		err := f.cancelErrs[0]
		f.cancelErrs = f.cancelErrs[1:]
		return err
	}
	return nil
}

func (f *fakeExchange) GetOpenPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	return nil, nil
}

func (f *fakeExchange) GetFundingRate(ctx context.Context, symbol string) (*domain.FundingInfo, error) {
	return nil, domain.ErrNotSupported
}

func (f *fakeExchange) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.markPrices[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, domain.ErrNotSupported
}

func (f *fakeExchange) CalculateFee(symbol string, orderType domain.TradeOrderType, side domain.OrderSide, amount, price decimal.Decimal, takerOrMaker domain.TakerOrMaker) (*domain.Fee, error) {
	return nil, nil
}

func (f *fakeExchange) SetSandboxMode(enabled bool) error { return nil }

func (f *fakeExchange) Milliseconds() int64 { return time.Now().UnixMilli() }

func (f *fakeExchange) ParseOrderStatus(raw string) domain.OrderStatus {
	switch raw {
	case "open", "new":
		return domain.StatusOpen
	case "filled", "closed":
		return domain.StatusFilled
	case "canceled", "cancelled":
		return domain.StatusCanceled
	default:
		return domain.OrderStatus(raw)
	}
}
