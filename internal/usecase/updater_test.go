package usecase

import (
	"context"
	"sync/atomic"
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

func testDeps(exchange domain.Exchange) UpdaterDeps {
	logger := zap.NewNop()
	return UpdaterDeps{
		Exchange:     exchange,
		ExchangeName: "binance",
		Registry:     channels.NewRegistry(logger),
		Symbols:      data.NewSymbolDataStore(0, 0),
		Personal:     data.NewPersonalDataStore(0),
		Portfolio:    portfolio.NewPortfolio(logger),
		Pairs:        []string{"BTC/USDT"},
		TimeFrames:   []domain.TimeFrame{"1h"},
		Logger:       logger,
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestUpdaterPauseResume(t *testing.T) {
	u := newUpdater("test", zap.NewNop())
	var ticks atomic.Int64
	tick := func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}
	require.NoError(t, u.start(context.Background(), fixedInterval(time.Millisecond), tick))
	defer u.Stop()

	eventually(t, func() bool { return ticks.Load() > 0 }, "updater never ticked")

	u.Pause()
	assert.True(t, u.IsPaused())
	// Let in-flight iterations drain, then verify the counter froze.
	time.Sleep(20 * time.Millisecond)
	frozen := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, ticks.Load(), "paused updater kept ticking")

	u.Resume()
	eventually(t, func() bool { return ticks.Load() > frozen }, "resumed updater never ticked")
}

func TestUpdaterNotSupportedSelfPauses(t *testing.T) {
	u := newUpdater("test", zap.NewNop())
	tick := func(ctx context.Context) error {
		return domain.ErrNotSupported
	}
	require.NoError(t, u.start(context.Background(), fixedInterval(time.Millisecond), tick))
	defer u.Stop()

	eventually(t, u.IsPaused, "updater did not pause on NotSupported")
}

func TestUpdaterStopWhilePaused(t *testing.T) {
	u := newUpdater("test", zap.NewNop())
	require.NoError(t, u.start(context.Background(), fixedInterval(time.Millisecond), func(ctx context.Context) error {
		return nil
	}))
	u.Pause()
	done := make(chan struct{})
	go func() {
		u.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on a paused updater")
	}
}

func TestTickerUpdaterAddPairs(t *testing.T) {
	u := NewTickerUpdater(testDeps(newFakeExchange()))
	u.AddPairs([]string{"ETH/USDT", "BTC/USDT", "ETH/USDT"})
	assert.ElementsMatch(t, []string{"BTC/USDT", "ETH/USDT"}, u.watchedPairs())
}

func TestTickerUpdaterInitializesMarkPrice(t *testing.T) {
	exchange := newFakeExchange()
	deps := testDeps(exchange)
	u := NewTickerUpdater(deps)

	// Seed a last price through the ticker path.
	store := deps.Symbols.Symbol("BTC/USDT")
	_, ok := store.MarkPrice.Value()
	require.False(t, ok)

	u.publishMarkPrice("BTC/USDT", store.MarkPrice.Set(dec("10000")), domain.Ticker{
		Symbol: "BTC/USDT",
		Last:   dec("10000"),
	})
	price, ok := store.MarkPrice.Value()
	require.True(t, ok)
	assert.True(t, dec("10000").Equal(price))
}

func TestOrderBookUpdaterIntervalBacksOff(t *testing.T) {
	deps := testDeps(newFakeExchange())

	deps.Pairs = []string{"A/B", "C/D"}
	assert.Equal(t, OrderBookRefreshTime, NewOrderBookUpdater(deps, 0).interval())

	deps.Pairs = make([]string, 7)
	assert.Equal(t, OrderBookMedRefreshTime, NewOrderBookUpdater(deps, 0).interval())

	deps.Pairs = make([]string, 30)
	assert.Equal(t, OrderBookSlowRefreshTime, NewOrderBookUpdater(deps, 0).interval())
}

func TestPositionsUpdaterRejectsUnknownContract(t *testing.T) {
	deps := testDeps(newFakeExchange())
	u := NewPositionsUpdater(deps)
	err := u.applyPosition(&domain.Position{
		Symbol:   "BTC/USDT",
		Contract: domain.ContractType("quanto"),
	})
	require.ErrorIs(t, err, domain.ErrUnhandledContractType)
}

func TestPositionsUpdaterStoresOneWay(t *testing.T) {
	deps := testDeps(newFakeExchange())
	u := NewPositionsUpdater(deps)
	position := &domain.Position{
		Symbol:   "BTC/USDT",
		Side:     domain.PositionLong,
		Contract: domain.LinearContract,
		Mode:     domain.OneWayMode,
		Quantity: dec("1"),
	}
	require.NoError(t, u.applyPosition(position))
	stored, ok := deps.Personal.Positions.Get("BTC/USDT", domain.PositionLong)
	require.True(t, ok)
	assert.True(t, dec("1").Equal(stored.Quantity))
}

func TestPositionsUpdaterLiquidatesCrossedPosition(t *testing.T) {
	deps := testDeps(newFakeExchange())
	deps.Future = portfolio.NewFuturePortfolio(zap.NewNop())
	deps.Portfolio = deps.Future.Portfolio
	deps.Portfolio.SetEntry("USDT", dec("1000"), dec("1000"))
	u := NewPositionsUpdater(deps)

	var statuses []domain.PositionStatus
	done := make(chan struct{})
	deps.channel(channels.PositionsChannelName).NewConsumer(func(ctx context.Context, e channels.Event) error {
		event := e.(channels.PositionsEvent)
		statuses = append(statuses, event.Positions[0].Status)
		if event.Positions[0].Status == domain.PositionClosed {
			close(done)
		}
		return nil
	})

	// Long at 100, liquidation at 95, mark already through it.
	require.NoError(t, u.applyPosition(&domain.Position{
		Symbol:           "BTC/USDT",
		Side:             domain.PositionLong,
		Contract:         domain.LinearContract,
		Mode:             domain.OneWayMode,
		Quantity:         dec("2"),
		EntryPrice:       dec("100"),
		MarkPrice:        dec("94"),
		LiquidationPrice: dec("95"),
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("liquidation events not published")
	}
	assert.Equal(t, []domain.PositionStatus{domain.PositionLiquidating, domain.PositionClosed}, statuses)

	_, ok := deps.Personal.Positions.Get("BTC/USDT", domain.PositionLong)
	assert.False(t, ok)

	// 2 * (95 - 100) = -10 settled against the quote ledger.
	entry := deps.Portfolio.Entry("USDT")
	assert.True(t, dec("990").Equal(entry.Total), entry.Total.String())
	assert.True(t, dec("990").Equal(entry.Available), entry.Available.String())
}

func TestDerivedMarkPriceFromTrades(t *testing.T) {
	deps := testDeps(newFakeExchange())
	p := NewDerivedMarkPriceProducer(deps)
	p.Start()
	defer p.Stop()

	deps.channel(channels.RecentTradesChannelName).Publish(channels.RecentTradesEvent{
		Cryptocurrency: "BTC",
		Symbol:         "BTC/USDT",
		Trades: []domain.PublicTrade{
			{ID: "1", Price: dec("100")},
			{ID: "2", Price: dec("110")},
		},
	})

	store := deps.Symbols.Symbol("BTC/USDT")
	eventually(t, func() bool {
		_, ok := store.MarkPrice.Value()
		return ok
	}, "mark price never derived from trades")
	price, _ := store.MarkPrice.Value()
	assert.True(t, dec("105").Equal(price), "mean of the two trade prices, got %s", price)
}
