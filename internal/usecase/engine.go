package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/data"
	"github.com/quantra/tradecore/internal/domain"
	"github.com/quantra/tradecore/internal/portfolio"
)

// EngineConfig composes one exchange instance.
type EngineConfig struct {
	ExchangeName    string
	Pairs           []string
	TimeFrames      []domain.TimeFrame
	ReferenceMarket string
	Simulated       bool
	InstantFill     bool
	Futures         bool
	Trader          TraderConfig
	CandlesCapacity int
	MaxTradesCount  int
	OrderBookDepth  int

	// CryptoOf maps a symbol to the configured currency name used in
	// event filters. Defaults to the base asset.
	CryptoOf func(symbol string) string
}

// namedProducer pairs a producer with the channel it publishes to, so
// the engine can register and start it in one place.
type namedProducer struct {
	channelName string
	producer    channels.Producer
}

// Engine is one live exchange instance: the channel registry slice for
// this exchange, its data stores, portfolio, trader, simulator and the
// updater fleet. REST updaters whose channel is handled by the
// websocket adapter are not started, except the ticker updater which
// always runs to keep mark prices moving.
type Engine struct {
	logger   *zap.Logger
	cfg      EngineConfig
	exchange domain.Exchange
	ws       domain.WebsocketExchange

	Registry      *channels.Registry
	Symbols       *data.SymbolDataStore
	Personal      *data.PersonalDataStore
	Portfolio     *portfolio.Portfolio
	Future        *portfolio.FuturePortfolio
	Profitability *portfolio.Profitability
	Trader        *Trader

	simulator  *SimulatorEngine
	derived    *DerivedMarkPriceProducer
	profitFeed *ProfitabilityFeed
	producers  []namedProducer
}

// NewEngine composes one exchange instance. registry may be shared with
// the websocket adapter; nil creates a private one.
func NewEngine(exchange domain.Exchange, ws domain.WebsocketExchange, registry *channels.Registry, cfg EngineConfig, logger *zap.Logger) *Engine {
	if registry == nil {
		registry = channels.NewRegistry(logger)
	}
	if len(cfg.TimeFrames) == 0 {
		cfg.TimeFrames = []domain.TimeFrame{"1h"}
	}
	cfg.Trader.ExchangeName = cfg.ExchangeName
	cfg.Trader.Simulated = cfg.Simulated
	cfg.Trader.InstantFill = cfg.InstantFill
	if cfg.Trader.ReferenceMarket == "" {
		cfg.Trader.ReferenceMarket = cfg.ReferenceMarket
	}
	if len(cfg.Trader.TradedPairs) == 0 {
		cfg.Trader.TradedPairs = cfg.Pairs
	}

	e := &Engine{
		logger:   logger.With(zap.String("exchange", cfg.ExchangeName)),
		cfg:      cfg,
		exchange: exchange,
		ws:       ws,
		Registry: registry,
		Symbols:  data.NewSymbolDataStore(cfg.CandlesCapacity, 0),
		Personal: data.NewPersonalDataStore(cfg.MaxTradesCount),
	}
	if cfg.Futures {
		e.Future = portfolio.NewFuturePortfolio(logger)
		e.Portfolio = e.Future.Portfolio
	} else {
		e.Portfolio = portfolio.NewPortfolio(logger)
	}
	e.Trader = NewTrader(exchange, e.Registry, e.Portfolio, e.Personal, e.Symbols, cfg.Trader, cfg.CryptoOf, logger)
	return e
}

// wsHandledChannels maps the adapter's feeds to the channel names they
// cover.
func (e *Engine) wsHandledChannels() map[string]bool {
	handled := make(map[string]bool)
	if e.ws == nil {
		return handled
	}
	for _, feed := range e.ws.SupportedFeeds() {
		for _, name := range channels.WebsocketFeedsToChannels[feed] {
			handled[name] = true
		}
	}
	return handled
}

func alwaysStarted(name string) bool {
	for _, n := range channels.AlwaysStartedRESTChannels {
		if n == name {
			return true
		}
	}
	return false
}

// Start brings the instance up: subscribes the websocket feeds, builds
// the REST updater fleet for everything the websocket does not cover,
// wires the simulator and the profitability engine, and starts every
// producer on its channel.
func (e *Engine) Start(ctx context.Context) error {
	handled := e.wsHandledChannels()
	if e.ws != nil {
		for _, feed := range e.ws.SupportedFeeds() {
			if err := e.ws.Subscribe(feed, e.cfg.Pairs); err != nil {
				e.logger.Warn("websocket subscription failed, falling back to REST",
					zap.String("feed", string(feed)), zap.Error(err))
				for _, name := range channels.WebsocketFeedsToChannels[feed] {
					delete(handled, name)
				}
			}
		}
	}

	deps := UpdaterDeps{
		Exchange:     e.exchange,
		ExchangeName: e.cfg.ExchangeName,
		Registry:     e.Registry,
		Symbols:      e.Symbols,
		Personal:     e.Personal,
		Portfolio:    e.Portfolio,
		Pairs:        e.cfg.Pairs,
		TimeFrames:   e.cfg.TimeFrames,
		CryptoOf:     e.cfg.CryptoOf,
		Logger:       e.logger,
		Future:       e.Future,
	}

	ticker := NewTickerUpdater(deps)
	e.Profitability = portfolio.NewProfitability(
		e.cfg.ReferenceMarket, e.cfg.Pairs, e.exchange.Symbols(), ticker, e.logger)
	e.profitFeed = NewProfitabilityFeed(
		e.Profitability, e.Portfolio, e.Registry, e.cfg.ExchangeName, e.logger)
	e.profitFeed.Start()

	e.addProducer(channels.OHLCVChannelName, handled, NewOHLCVUpdater(deps))
	e.addProducer(channels.OrderBookChannelName, handled, NewOrderBookUpdater(deps, e.cfg.OrderBookDepth))
	e.addProducer(channels.RecentTradesChannelName, handled, NewRecentTradesUpdater(deps, 0))
	e.addProducer(channels.TickerChannelName, handled, ticker)
	e.addProducer(channels.KlineChannelName, handled, NewKlineUpdater(deps))
	// Private-surface updaters poll venue account state; a simulated
	// instance owns its ledger and arena, so venue orders and balances
	// must never leak into them.
	if !e.cfg.Simulated {
		e.addProducer(channels.BalanceChannelName, handled, NewBalanceUpdater(deps))
		e.addProducer(channels.OrdersChannelName, handled, NewOpenOrdersUpdater(deps, e.Trader))
		e.addProducer(channels.OrdersChannelName, handled, NewClosedOrdersUpdater(deps, e.Trader))
		e.addProducer(channels.TradesChannelName, handled, NewTradesUpdater(deps))
	}
	if e.cfg.Futures {
		if !e.cfg.Simulated {
			e.addProducer(channels.PositionsChannelName, handled, NewPositionsUpdater(deps))
		}
		e.addProducer(channels.FundingChannelName, handled, NewFundingUpdater(deps))
		e.addProducer(channels.MarkPriceChannelName, handled, NewMarkPriceUpdater(deps))
	} else if !handled[channels.MarkPriceChannelName] {
		e.derived = NewDerivedMarkPriceProducer(deps)
		e.derived.Start()
	}

	if e.cfg.Simulated {
		e.simulator = NewSimulatorEngine(
			e.Trader, e.Personal, e.Registry, e.cfg.ExchangeName, e.cfg.InstantFill, e.logger)
	} else {
		// Self-managed order types still fill locally in real mode.
		e.simulator = NewSimulatorEngine(
			e.Trader, e.Personal, e.Registry, e.cfg.ExchangeName, false, e.logger)
	}
	e.simulator.Start()

	for _, np := range e.producers {
		e.Registry.GetOrCreate(e.cfg.ExchangeName, np.channelName).Register(np.producer)
		if err := np.producer.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// addProducer queues a producer unless a websocket feed already covers
// its channel.
func (e *Engine) addProducer(channelName string, handled map[string]bool, p channels.Producer) {
	if handled[channelName] && !alwaysStarted(channelName) {
		e.logger.Debug("channel handled by websocket, skipping REST updater",
			zap.String("channel", channelName))
		return
	}
	e.producers = append(e.producers, namedProducer{channelName: channelName, producer: p})
}

// Stop tears the instance down: producers first, then the derived
// consumers, then every channel of the exchange.
func (e *Engine) Stop() {
	for _, np := range e.producers {
		np.producer.Stop()
	}
	if e.derived != nil {
		e.derived.Stop()
	}
	if e.simulator != nil {
		e.simulator.Stop()
	}
	if e.profitFeed != nil {
		e.profitFeed.Stop()
	}
	e.Registry.DelExchange(e.cfg.ExchangeName)
}
