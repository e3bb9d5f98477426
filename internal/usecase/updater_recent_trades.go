package usecase

import (
	"context"

	"github.com/quantra/tradecore/internal/channels"
)

// RecentTradesUpdater polls the public trade tape and publishes only the
// trades not seen before; consumers always get a deduplicated batch.
type RecentTradesUpdater struct {
	*Updater
	deps  UpdaterDeps
	limit int
}

func NewRecentTradesUpdater(deps UpdaterDeps, limit int) *RecentTradesUpdater {
	if limit <= 0 {
		limit = 50
	}
	return &RecentTradesUpdater{
		Updater: newUpdater(channels.RecentTradesChannelName, deps.Logger),
		deps:    deps,
		limit:   limit,
	}
}

func (u *RecentTradesUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(RecentTradesRefreshTime), u.tick)
}

func (u *RecentTradesUpdater) tick(ctx context.Context) error {
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		trades, err := u.deps.Exchange.FetchTrades(ctx, symbol, u.limit)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		added := u.deps.Symbols.Symbol(symbol).RecentTrades.Add(trades)
		if len(added) == 0 {
			continue
		}
		u.deps.channel(channels.RecentTradesChannelName).Publish(channels.RecentTradesEvent{
			Cryptocurrency: u.deps.cryptocurrency(symbol),
			Symbol:         symbol,
			Trades:         added,
		})
	}
	return firstErr
}
