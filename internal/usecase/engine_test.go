package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/domain"
)

// fakeWS claims a fixed feed set and records subscriptions.
type fakeWS struct {
	feeds      []domain.WebsocketFeed
	subscribed map[domain.WebsocketFeed][]string
	subErr     error
}

func (f *fakeWS) SupportedFeeds() []domain.WebsocketFeed { return f.feeds }

func (f *fakeWS) Subscribe(feed domain.WebsocketFeed, symbols []string) error {
	if f.subErr != nil {
		return f.subErr
	}
	if f.subscribed == nil {
		f.subscribed = make(map[domain.WebsocketFeed][]string)
	}
	f.subscribed[feed] = symbols
	return nil
}

func engineConfig() EngineConfig {
	return EngineConfig{
		ExchangeName: "binance",
		Pairs:        []string{"BTC/USDT"},
		TimeFrames:   []domain.TimeFrame{"1h"},
		Simulated:    true,
	}
}

func TestEngineStartStop(t *testing.T) {
	e := NewEngine(newFakeExchange(), nil, nil, engineConfig(), zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	assert.NotNil(t, e.Trader)
	assert.NotNil(t, e.Profitability)
	assert.Nil(t, e.Future)

	// Spot without a websocket mark-price feed gets the derived producer.
	assert.NotNil(t, e.derived)

	// The simulator and the valuation feed consume tickers, so that
	// channel runs from the start; a channel nobody listens to stays
	// paused until a consumer arrives.
	ch, err := e.Registry.Get("binance", channels.TickerChannelName)
	require.NoError(t, err)
	assert.False(t, ch.IsPaused())

	ohlcv, err := e.Registry.Get("binance", channels.OHLCVChannelName)
	require.NoError(t, err)
	assert.True(t, ohlcv.IsPaused())
}

func TestEngineFuturesWiresFuturePortfolio(t *testing.T) {
	cfg := engineConfig()
	cfg.Futures = true
	e := NewEngine(newFakeExchange(), nil, nil, cfg, zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	require.NotNil(t, e.Future)
	assert.Same(t, e.Portfolio, e.Future.Portfolio)

	// Simulated futures never poll venue positions; the public funding
	// updater still runs.
	_, err := e.Registry.Get("binance", channels.PositionsChannelName)
	assert.Error(t, err)
	_, err = e.Registry.Get("binance", channels.FundingChannelName)
	assert.NoError(t, err)
}

func TestEngineSkipsRESTUpdatersForHandledFeeds(t *testing.T) {
	ws := &fakeWS{feeds: []domain.WebsocketFeed{domain.FeedOrderBook, domain.FeedTicker}}
	e := NewEngine(newFakeExchange(), ws, nil, engineConfig(), zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	assert.Equal(t, []string{"BTC/USDT"}, ws.subscribed[domain.FeedOrderBook])

	for _, np := range e.producers {
		assert.NotEqual(t, channels.OrderBookChannelName, np.channelName,
			"order book REST updater must not start when the websocket covers it")
	}
	// The ticker REST updater always starts even with a ticker feed.
	found := false
	for _, np := range e.producers {
		if np.channelName == channels.TickerChannelName {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngineValuesPortfolioFromTicker(t *testing.T) {
	cfg := engineConfig()
	cfg.ReferenceMarket = "USDT"
	e := NewEngine(newFakeExchange(), nil, nil, cfg, zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	e.Portfolio.SetEntry("BTC", dec("2"), dec("2"))
	e.Portfolio.SetEntry("USDT", dec("100"), dec("100"))

	ch, err := e.Registry.Get("binance", channels.TickerChannelName)
	require.NoError(t, err)
	ch.Publish(channels.TickerEvent{
		Cryptocurrency: "BTC",
		Symbol:         "BTC/USDT",
		Ticker:         domain.Ticker{Symbol: "BTC/USDT", Last: dec("100")},
	})

	// 2 BTC at 100 plus 100 USDT values the holdings at 300.
	eventually(t, func() bool {
		_, current, _, _ := e.Profitability.Metrics()
		return dec("300").Equal(current)
	}, "holdings never valued at 300 USDT")

	origin, _, _, _ := e.Profitability.Metrics()
	assert.True(t, dec("300").Equal(origin), "first valuation fixes the origin")
}

func TestEngineSimulatedSkipsPrivateUpdaters(t *testing.T) {
	cfg := engineConfig()
	cfg.Futures = true
	e := NewEngine(newFakeExchange(), nil, nil, cfg, zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	private := map[string]bool{
		channels.BalanceChannelName:   true,
		channels.OrdersChannelName:    true,
		channels.TradesChannelName:    true,
		channels.PositionsChannelName: true,
	}
	for _, np := range e.producers {
		assert.False(t, private[np.channelName],
			"simulated instance must not poll venue account state (%s)", np.channelName)
	}
}

func TestEngineRealModeStartsPrivateUpdaters(t *testing.T) {
	cfg := engineConfig()
	cfg.Simulated = false
	e := NewEngine(newFakeExchange(), nil, nil, cfg, zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	found := map[string]bool{}
	for _, np := range e.producers {
		found[np.channelName] = true
	}
	assert.True(t, found[channels.BalanceChannelName])
	assert.True(t, found[channels.OrdersChannelName])
	assert.True(t, found[channels.TradesChannelName])
}

func TestEngineFallsBackToRESTOnSubscribeFailure(t *testing.T) {
	ws := &fakeWS{
		feeds:  []domain.WebsocketFeed{domain.FeedOrderBook},
		subErr: domain.ErrExchangeNotAvailable,
	}
	e := NewEngine(newFakeExchange(), ws, nil, engineConfig(), zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	found := false
	for _, np := range e.producers {
		if np.channelName == channels.OrderBookChannelName {
			found = true
		}
	}
	assert.True(t, found, "failed subscription must fall back to the REST updater")
}
