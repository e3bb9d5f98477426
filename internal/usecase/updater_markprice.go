package usecase

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/data"
)

// MarkPriceUpdater polls the venue's native mark-price endpoint. Venues
// without one get a DerivedMarkPriceProducer instead.
type MarkPriceUpdater struct {
	*Updater
	deps UpdaterDeps
}

func NewMarkPriceUpdater(deps UpdaterDeps) *MarkPriceUpdater {
	return &MarkPriceUpdater{
		Updater: newUpdater(channels.MarkPriceChannelName, deps.Logger),
		deps:    deps,
	}
}

func (u *MarkPriceUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(MarkPriceRefreshTime), u.tick)
}

func (u *MarkPriceUpdater) tick(ctx context.Context) error {
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		price, err := u.deps.Exchange.GetMarkPrice(ctx, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		u.applyMarkPrice(symbol, price)
	}
	return firstErr
}

func (u *MarkPriceUpdater) applyMarkPrice(symbol string, price decimal.Decimal) {
	if price.LessThanOrEqual(decimal.Zero) {
		return
	}
	if u.deps.Symbols.Symbol(symbol).MarkPrice.Set(price) {
		u.logger.Debug("mark price initialized", zap.String("symbol", symbol))
	}
	u.deps.channel(channels.MarkPriceChannelName).Publish(channels.MarkPriceEvent{
		Cryptocurrency: u.deps.cryptocurrency(symbol),
		Symbol:         symbol,
		MarkPrice:      price,
	})
}

// DerivedMarkPriceProducer computes mark prices on venues without a
// native endpoint: it subscribes to the recent-trades stream and takes
// the mean of the last few trade prices, falling back to the ticker last
// price between trades.
type DerivedMarkPriceProducer struct {
	deps UpdaterDeps

	tradesConsumer *channels.Consumer
	tickerConsumer *channels.Consumer
}

func NewDerivedMarkPriceProducer(deps UpdaterDeps) *DerivedMarkPriceProducer {
	return &DerivedMarkPriceProducer{deps: deps}
}

func (p *DerivedMarkPriceProducer) Start() {
	p.tradesConsumer = p.deps.channel(channels.RecentTradesChannelName).NewConsumer(p.onRecentTrades)
	p.tickerConsumer = p.deps.channel(channels.TickerChannelName).NewConsumer(p.onTicker)
}

func (p *DerivedMarkPriceProducer) Stop() {
	if p.tradesConsumer != nil {
		p.deps.channel(channels.RecentTradesChannelName).RemoveConsumer(p.tradesConsumer)
		p.tradesConsumer = nil
	}
	if p.tickerConsumer != nil {
		p.deps.channel(channels.TickerChannelName).RemoveConsumer(p.tickerConsumer)
		p.tickerConsumer = nil
	}
}

func (p *DerivedMarkPriceProducer) onRecentTrades(_ context.Context, evt channels.Event) error {
	e, ok := evt.(channels.RecentTradesEvent)
	if !ok {
		return nil
	}
	price := data.MarkPriceFromTrades(e.Trades)
	p.apply(e.Symbol, price)
	return nil
}

func (p *DerivedMarkPriceProducer) onTicker(_ context.Context, evt channels.Event) error {
	e, ok := evt.(channels.TickerEvent)
	if !ok {
		return nil
	}
	p.apply(e.Symbol, e.Ticker.Last)
	return nil
}

func (p *DerivedMarkPriceProducer) apply(symbol string, price decimal.Decimal) {
	if price.LessThanOrEqual(decimal.Zero) {
		return
	}
	if p.deps.Symbols.Symbol(symbol).MarkPrice.Set(price) {
		p.deps.Logger.Debug("mark price initialized from trades",
			zap.String("symbol", symbol))
	}
	p.deps.channel(channels.MarkPriceChannelName).Publish(channels.MarkPriceEvent{
		Cryptocurrency: p.deps.cryptocurrency(symbol),
		Symbol:         symbol,
		MarkPrice:      price,
	})
}
