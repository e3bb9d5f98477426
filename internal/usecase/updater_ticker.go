package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/domain"
)

// TickerUpdater polls tickers for the watched pairs. AddPairs extends
// the polling set at runtime; portfolio valuation uses that to start
// tracking pairs it suddenly needs a price for. It also drives the mark
// price store on venues without a native mark-price feed.
type TickerUpdater struct {
	*Updater
	deps UpdaterDeps

	mu    sync.Mutex
	pairs []string
}

func NewTickerUpdater(deps UpdaterDeps) *TickerUpdater {
	return &TickerUpdater{
		Updater: newUpdater(channels.TickerChannelName, deps.Logger),
		deps:    deps,
		pairs:   append([]string(nil), deps.Pairs...),
	}
}

func (u *TickerUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(TickerRefreshTime), u.tick)
}

// AddPairs extends the polling set; duplicates are ignored.
func (u *TickerUpdater) AddPairs(pairs []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	known := make(map[string]bool, len(u.pairs))
	for _, p := range u.pairs {
		known[p] = true
	}
	for _, p := range pairs {
		if !known[p] {
			u.pairs = append(u.pairs, p)
			known[p] = true
			u.logger.Debug("ticker pair added", zap.String("pair", p))
		}
	}
}

func (u *TickerUpdater) watchedPairs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.pairs...)
}

func (u *TickerUpdater) tick(ctx context.Context) error {
	pairs := u.watchedPairs()
	tickers, err := u.deps.Exchange.FetchTickers(ctx, pairs)
	if err != nil {
		return err
	}
	for _, ticker := range tickers {
		store := u.deps.Symbols.Symbol(ticker.Symbol)
		store.Ticker.Update(ticker)
		if !ticker.Last.IsZero() {
			u.publishMarkPrice(ticker.Symbol, store.MarkPrice.Set(ticker.Last), ticker)
		}
		u.deps.channel(channels.TickerChannelName).Publish(channels.TickerEvent{
			Cryptocurrency: u.deps.cryptocurrency(ticker.Symbol),
			Symbol:         ticker.Symbol,
			Ticker:         ticker,
		})
	}
	return nil
}

func (u *TickerUpdater) publishMarkPrice(symbol string, firstSet bool, ticker domain.Ticker) {
	if firstSet {
		u.logger.Debug("mark price initialized from ticker", zap.String("symbol", symbol))
	}
	u.deps.channel(channels.MarkPriceChannelName).Publish(channels.MarkPriceEvent{
		Cryptocurrency: u.deps.cryptocurrency(symbol),
		Symbol:         symbol,
		MarkPrice:      ticker.Last,
	})
}
