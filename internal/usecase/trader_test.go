package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/data"
	"github.com/quantra/tradecore/internal/domain"
	"github.com/quantra/tradecore/internal/portfolio"
)

type traderFixture struct {
	trader    *Trader
	exchange  *fakeExchange
	portfolio *portfolio.Portfolio
	personal  *data.PersonalDataStore
	symbols   *data.SymbolDataStore
	registry  *channels.Registry
}

func newTraderFixture(t *testing.T, simulated bool) *traderFixture {
	t.Helper()
	logger := zap.NewNop()
	exchange := newFakeExchange()
	registry := channels.NewRegistry(logger)
	pf := portfolio.NewPortfolio(logger)
	pf.UpdateFromBalance(map[string]domain.Balance{
		"USDT": {Free: dec("1000"), Total: dec("1000")},
		"BTC":  {Free: dec("10"), Total: dec("10")},
	})
	personal := data.NewPersonalDataStore(0)
	symbols := data.NewSymbolDataStore(0, 0)
	trader := NewTrader(exchange, registry, pf, personal, symbols, TraderConfig{
		ExchangeName:    "binance",
		Simulated:       simulated,
		Risk:            dec("0.5"),
		ReferenceMarket: "USDT",
		TradedPairs:     []string{"BTC/USDT", "ETH/USDT"},
		Fees:            SimulatorFees{Maker: dec("0.001"), Taker: dec("0.001")},
	}, nil, logger)
	return &traderFixture{
		trader:    trader,
		exchange:  exchange,
		portfolio: pf,
		personal:  personal,
		symbols:   symbols,
		registry:  registry,
	}
}

func limitBuy(qty, price string) *domain.Order {
	return &domain.Order{
		Symbol:         "BTC/USDT",
		Side:           domain.SideBuy,
		Type:           domain.BuyLimit,
		OriginPrice:    dec(price),
		OriginQuantity: dec(qty),
	}
}

func TestCreateOrderReservesFunds(t *testing.T) {
	fx := newTraderFixture(t, true)
	o, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)

	usdt := fx.portfolio.Entry("USDT")
	assert.True(t, dec("300").Equal(usdt.Available), "got %s", usdt.Available)
	assert.True(t, dec("1000").Equal(usdt.Total))

	m, ok := fx.trader.Machine(o.OrderID)
	require.True(t, ok)
	assert.Equal(t, StateOpen, m.State())
	assert.Len(t, fx.personal.Orders.OpenOrders("BTC/USDT"), 1)
	assert.Equal(t, 0, fx.exchange.createCalls, "simulated orders never hit the venue")
}

func TestCreateOrderSubmitsToExchange(t *testing.T) {
	fx := newTraderFixture(t, false)
	o, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.exchange.createCalls)
	assert.NotEmpty(t, o.ExchangeOrderID)
}

func TestCreateOrderSelfManagedSkipsExchange(t *testing.T) {
	fx := newTraderFixture(t, false)
	stop := &domain.Order{
		Symbol:         "BTC/USDT",
		Side:           domain.SideSell,
		Type:           domain.StopLoss,
		OriginPrice:    dec("9000"),
		OriginQuantity: dec("1"),
	}
	_, err := fx.trader.CreateOrder(context.Background(), stop, false)
	require.NoError(t, err)
	assert.Equal(t, 0, fx.exchange.createCalls)

	// Self-managed orders reserve nothing.
	btc := fx.portfolio.Entry("BTC")
	assert.True(t, dec("10").Equal(btc.Available))
}

func TestCreateOrderMissingFundsRetry(t *testing.T) {
	fx := newTraderFixture(t, false)
	fx.exchange.balance = map[string]domain.Balance{
		"USDT": {Free: dec("5000"), Total: dec("5000")},
	}
	fx.exchange.failNextCreates(domain.ErrInsufficientFunds)

	_, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.exchange.createCalls, "one retry after the refresh")
	assert.Equal(t, 1, fx.exchange.balanceCalls, "forced portfolio refresh")

	usdt := fx.portfolio.Entry("USDT")
	assert.True(t, dec("5000").Equal(usdt.Total), "refreshed balance adopted")
}

func TestCreateOrderMissingFundsTwiceSurfaces(t *testing.T) {
	fx := newTraderFixture(t, false)
	fx.exchange.failNextCreates(domain.ErrInsufficientFunds, domain.ErrInsufficientFunds)

	_, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.ErrorIs(t, err, domain.ErrMissingFunds)
	assert.Empty(t, fx.personal.Orders.OpenOrders("BTC/USDT"))
}

func TestFillOrderSettlesPortfolioAndTrade(t *testing.T) {
	fx := newTraderFixture(t, true)
	o, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)

	require.NoError(t, fx.trader.FillOrder(context.Background(), o, dec("10000"), dec("0.07"), false))

	m, _ := fx.trader.Machine(o.OrderID)
	assert.Equal(t, StateClose, m.State())
	assert.Equal(t, domain.StatusFilled, o.Status)

	btc := fx.portfolio.Entry("BTC")
	usdt := fx.portfolio.Entry("USDT")
	// Fee is 0.1% of 0.07 BTC, charged in BTC on a buy.
	assert.True(t, dec("10.06993").Equal(btc.Total), "got %s", btc.Total)
	assert.True(t, dec("300").Equal(usdt.Total), "got %s", usdt.Total)
	assert.True(t, usdt.Available.Equal(usdt.Total))

	trades := fx.personal.Trades.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.StatusFilled, trades[0].CloseStatus)
	assert.Empty(t, fx.personal.Orders.OpenOrders("BTC/USDT"))
}

func TestFillOrderIdempotent(t *testing.T) {
	fx := newTraderFixture(t, true)
	o, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)

	require.NoError(t, fx.trader.FillOrder(context.Background(), o, dec("10000"), dec("0.07"), false))
	require.NoError(t, fx.trader.FillOrder(context.Background(), o, dec("10000"), dec("0.07"), false))

	assert.Len(t, fx.personal.Trades.Trades(), 1)
}

func TestCancelOrderRestoresFunds(t *testing.T) {
	fx := newTraderFixture(t, true)
	o, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)

	require.NoError(t, fx.trader.CancelOrder(context.Background(), o, CancelOptions{}))

	usdt := fx.portfolio.Entry("USDT")
	assert.True(t, dec("1000").Equal(usdt.Available), "got %s", usdt.Available)
	assert.True(t, dec("1000").Equal(usdt.Total))

	m, _ := fx.trader.Machine(o.OrderID)
	assert.Equal(t, StateCancel, m.State())

	// Second cancel is a no-op.
	require.NoError(t, fx.trader.CancelOrder(context.Background(), o, CancelOptions{}))
	assert.Len(t, fx.personal.Trades.Trades(), 1)
}

func TestCancelOrderNotFoundOnExchange(t *testing.T) {
	fx := newTraderFixture(t, false)
	o, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)

	fx.exchange.failNextCancels(domain.ErrOrderNotFound)
	require.NoError(t, fx.trader.CancelOrder(context.Background(), o, CancelOptions{}))
	assert.Equal(t, domain.StatusCanceled, o.Status)
}

func TestCancelOrderRetryExhaustion(t *testing.T) {
	fx := newTraderFixture(t, false)
	o, err := fx.trader.CreateOrder(context.Background(), limitBuy("0.07", "10000"), false)
	require.NoError(t, err)

	fx.exchange.failNextCancels(domain.ErrRequestTimeout, domain.ErrRequestTimeout)
	err = fx.trader.CancelOrder(context.Background(), o, CancelOptions{})
	require.Error(t, err)
	var cancelErr *domain.CancelError
	assert.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, 2, fx.exchange.cancelCalls)
	assert.Equal(t, domain.StatusOpen, o.Status, "order stays open after a failed cancel")
}

func TestFillCancelsLinkedOrders(t *testing.T) {
	fx := newTraderFixture(t, true)
	ctx := context.Background()

	takeProfit := &domain.Order{
		Symbol:         "BTC/USDT",
		Side:           domain.SideSell,
		Type:           domain.TakeProfitLimit,
		OriginPrice:    dec("12000"),
		OriginQuantity: dec("0.05"),
	}
	stopLoss := &domain.Order{
		Symbol:         "BTC/USDT",
		Side:           domain.SideSell,
		Type:           domain.StopLossLimit,
		OriginPrice:    dec("8000"),
		OriginQuantity: dec("0.05"),
	}
	tp, err := fx.trader.CreateOrder(ctx, takeProfit, false)
	require.NoError(t, err)
	sl, err := fx.trader.CreateOrder(ctx, stopLoss, false)
	require.NoError(t, err)
	domain.AddLinkedOrder(tp, sl)

	require.NoError(t, fx.trader.FillOrder(ctx, tp, dec("12000"), dec("0.05"), false))

	slMachine, _ := fx.trader.Machine(sl.OrderID)
	assert.Equal(t, StateCancel, slMachine.State(), "linked order cancelled by the fill")
	tpMachine, _ := fx.trader.Machine(tp.OrderID)
	assert.Equal(t, StateClose, tpMachine.State())
}

func TestCancelOpenOrdersSkipsLoaded(t *testing.T) {
	fx := newTraderFixture(t, true)
	ctx := context.Background()

	_, err := fx.trader.CreateOrder(ctx, limitBuy("0.01", "9000"), false)
	require.NoError(t, err)

	loaded := limitBuy("0.02", "9100")
	loaded.ExchangeOrderID = "EX-LOADED"
	_, err = fx.trader.CreateOrder(ctx, loaded, true)
	require.NoError(t, err)

	require.NoError(t, fx.trader.CancelOpenOrders(ctx, "BTC/USDT", false))
	open := fx.personal.Orders.OpenOrders("BTC/USDT")
	require.Len(t, open, 1)
	assert.Equal(t, "EX-LOADED", open[0].ExchangeOrderID)

	require.NoError(t, fx.trader.CancelOpenOrders(ctx, "BTC/USDT", true))
	assert.Empty(t, fx.personal.Orders.OpenOrders("BTC/USDT"))
}

func TestCancelAllOpenOrdersWithCurrency(t *testing.T) {
	fx := newTraderFixture(t, true)
	ctx := context.Background()

	_, err := fx.trader.CreateOrder(ctx, limitBuy("0.01", "9000"), false)
	require.NoError(t, err)
	eth := &domain.Order{
		Symbol:         "ETH/USDT",
		Side:           domain.SideBuy,
		Type:           domain.BuyLimit,
		OriginPrice:    dec("100"),
		OriginQuantity: dec("1"),
	}
	_, err = fx.trader.CreateOrder(ctx, eth, false)
	require.NoError(t, err)

	require.NoError(t, fx.trader.CancelAllOpenOrdersWithCurrency(ctx, "BTC"))
	assert.Empty(t, fx.personal.Orders.OpenOrders("BTC/USDT"))
	assert.Len(t, fx.personal.Orders.OpenOrders("ETH/USDT"), 1)
}

func TestSellAllDirectPair(t *testing.T) {
	fx := newTraderFixture(t, true)
	fx.symbols.Symbol("BTC/USDT").MarkPrice.Set(dec("10000"))

	created, err := fx.trader.SellAll(context.Background(), []string{"BTC"}, 0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	o := created[0]
	assert.Equal(t, "BTC/USDT", o.Symbol)
	assert.Equal(t, domain.SideSell, o.Side)
	assert.Equal(t, domain.SellMarket, o.Type)
	assert.True(t, dec("10").Equal(o.OriginQuantity))
}

func TestSellAllInvertedPair(t *testing.T) {
	fx := newTraderFixture(t, true)
	fx.exchange.symbols = []string{"USDT/XRP"}
	fx.portfolio.UpdateFromBalance(map[string]domain.Balance{
		"XRP": {Free: dec("500"), Total: dec("500")},
	})
	fx.symbols.Symbol("USDT/XRP").MarkPrice.Set(dec("2"))

	created, err := fx.trader.SellAll(context.Background(), []string{"XRP"}, 0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	o := created[0]
	assert.Equal(t, "USDT/XRP", o.Symbol)
	assert.Equal(t, domain.SideBuy, o.Side)
	assert.True(t, dec("250").Equal(o.OriginQuantity), "holding divided by price, got %s", o.OriginQuantity)
}

func TestSellAllRespectsMinimumLimits(t *testing.T) {
	fx := newTraderFixture(t, true)
	fx.symbols.Symbol("BTC/USDT").MarkPrice.Set(dec("10000"))
	fx.exchange.markets["BTC/USDT"] = &domain.Market{
		Symbol: "BTC/USDT",
		Limits: domain.MarketLimits{MinAmount: dec("100")},
	}

	created, err := fx.trader.SellAll(context.Background(), []string{"BTC"}, 0)
	require.NoError(t, err)
	assert.Empty(t, created, "below minimum amount, nothing placed")
}

func TestSellAllSkipsReferenceMarket(t *testing.T) {
	fx := newTraderFixture(t, true)
	created, err := fx.trader.SellAll(context.Background(), []string{"USDT"}, 0)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestSimulatorEngineFillsOnRecentTrades(t *testing.T) {
	fx := newTraderFixture(t, true)
	ctx := context.Background()

	o, err := fx.trader.CreateOrder(ctx, limitBuy("0.07", "10000"), false)
	require.NoError(t, err)

	engine := NewSimulatorEngine(fx.trader, fx.personal, fx.registry, "binance", false, zap.NewNop())
	require.NoError(t, engine.EvaluateSymbol(ctx, "BTC/USDT", prices("10100", "9900", "10050")))

	m, _ := fx.trader.Machine(o.OrderID)
	assert.Equal(t, StateClose, m.State())
	assert.Len(t, fx.personal.Trades.Trades(), 1)
}

func TestSimulatorEngineIgnoresUntriggered(t *testing.T) {
	fx := newTraderFixture(t, true)
	ctx := context.Background()

	o, err := fx.trader.CreateOrder(ctx, limitBuy("0.07", "9000"), false)
	require.NoError(t, err)

	engine := NewSimulatorEngine(fx.trader, fx.personal, fx.registry, "binance", false, zap.NewNop())
	require.NoError(t, engine.EvaluateSymbol(ctx, "BTC/USDT", prices("10100", "9900")))

	m, _ := fx.trader.Machine(o.OrderID)
	assert.Equal(t, StateOpen, m.State())
}

func TestWaitSellAllTermination(t *testing.T) {
	fx := newTraderFixture(t, true)
	fx.symbols.Symbol("BTC/USDT").MarkPrice.Set(dec("10000"))

	engine := NewSimulatorEngine(fx.trader, fx.personal, fx.registry, "binance", false, zap.NewNop())
	go func() {
		// Market orders fill on the next observed price.
		time.Sleep(20 * time.Millisecond)
		_ = engine.EvaluateSymbol(context.Background(), "BTC/USDT", prices("10000"))
	}()

	created, err := fx.trader.SellAll(context.Background(), []string{"BTC"}, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, created, 1)
	m, _ := fx.trader.Machine(created[0].OrderID)
	assert.True(t, m.IsTerminal())
}
