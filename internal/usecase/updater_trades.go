package usecase

import (
	"context"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/domain"
)

// TradesUpdater backfills the account trade history once at start; after
// that the trade store is fed by fill events, not polling. The one-shot
// nature makes it a producer without a cadence: Start fetches and the
// loop idles until stopped, resuming the backfill only after a Resume
// that follows a NotSupported pause.
type TradesUpdater struct {
	*Updater
	deps UpdaterDeps

	backfilled bool
}

func NewTradesUpdater(deps UpdaterDeps) *TradesUpdater {
	return &TradesUpdater{
		Updater: newUpdater(channels.TradesChannelName, deps.Logger),
		deps:    deps,
	}
}

func (u *TradesUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(BalanceRefreshTime), u.tick)
}

func (u *TradesUpdater) tick(ctx context.Context) error {
	if u.backfilled {
		return nil
	}
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		trades, err := u.deps.Exchange.FetchMyTrades(ctx, symbol, TradesBackfillLimit)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		var added []*domain.Trade
		for i := range trades {
			trade := trades[i]
			if u.deps.Personal.Trades.Add(&trade) {
				added = append(added, &trade)
			}
		}
		if len(added) == 0 {
			continue
		}
		u.deps.channel(channels.TradesChannelName).Publish(channels.TradesEvent{
			Cryptocurrency: u.deps.cryptocurrency(symbol),
			Symbol:         symbol,
			Trades:         added,
		})
	}
	if firstErr == nil {
		u.backfilled = true
	}
	return firstErr
}
