package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/portfolio"
)

// ProfitabilityFeed drives the valuation engine. It listens on the
// ticker, mark-price and balance channels: price events update the
// symbol's last price, and every event revalues the current holdings.
type ProfitabilityFeed struct {
	logger        *zap.Logger
	registry      *channels.Registry
	exchangeName  string
	profitability *portfolio.Profitability
	holdings      *portfolio.Portfolio

	tickerConsumer  *channels.Consumer
	markConsumer    *channels.Consumer
	balanceConsumer *channels.Consumer
}

func NewProfitabilityFeed(
	profitability *portfolio.Profitability,
	holdings *portfolio.Portfolio,
	registry *channels.Registry,
	exchangeName string,
	logger *zap.Logger,
) *ProfitabilityFeed {
	return &ProfitabilityFeed{
		logger:        logger.With(zap.String("exchange", exchangeName)),
		registry:      registry,
		exchangeName:  exchangeName,
		profitability: profitability,
		holdings:      holdings,
	}
}

// Start subscribes to the price and balance feeds.
func (f *ProfitabilityFeed) Start() {
	tickerCh := f.registry.GetOrCreate(f.exchangeName, channels.TickerChannelName)
	f.tickerConsumer = tickerCh.NewConsumer(f.onTicker)
	markCh := f.registry.GetOrCreate(f.exchangeName, channels.MarkPriceChannelName)
	f.markConsumer = markCh.NewConsumer(f.onMarkPrice)
	balanceCh := f.registry.GetOrCreate(f.exchangeName, channels.BalanceChannelName)
	f.balanceConsumer = balanceCh.NewConsumer(f.onBalance)
}

// Stop unsubscribes from the feeds.
func (f *ProfitabilityFeed) Stop() {
	if f.tickerConsumer != nil {
		f.registry.GetOrCreate(f.exchangeName, channels.TickerChannelName).RemoveConsumer(f.tickerConsumer)
		f.tickerConsumer = nil
	}
	if f.markConsumer != nil {
		f.registry.GetOrCreate(f.exchangeName, channels.MarkPriceChannelName).RemoveConsumer(f.markConsumer)
		f.markConsumer = nil
	}
	if f.balanceConsumer != nil {
		f.registry.GetOrCreate(f.exchangeName, channels.BalanceChannelName).RemoveConsumer(f.balanceConsumer)
		f.balanceConsumer = nil
	}
}

func (f *ProfitabilityFeed) onTicker(ctx context.Context, evt channels.Event) error {
	e, ok := evt.(channels.TickerEvent)
	if !ok || e.Ticker.Last.IsZero() {
		return nil
	}
	f.profitability.UpdatePrice(e.Symbol, e.Ticker.Last)
	f.refresh()
	return nil
}

func (f *ProfitabilityFeed) onMarkPrice(ctx context.Context, evt channels.Event) error {
	e, ok := evt.(channels.MarkPriceEvent)
	if !ok || e.MarkPrice.IsZero() {
		return nil
	}
	f.profitability.UpdatePrice(e.Symbol, e.MarkPrice)
	f.refresh()
	return nil
}

func (f *ProfitabilityFeed) onBalance(ctx context.Context, evt channels.Event) error {
	if _, ok := evt.(channels.BalanceEvent); !ok {
		return nil
	}
	f.refresh()
	return nil
}

func (f *ProfitabilityFeed) refresh() {
	f.profitability.Refresh(f.holdings.Snapshot())
}
