package usecase

import (
	"context"

	"github.com/quantra/tradecore/internal/channels"
)

// BalanceUpdater is the REST fallback keeping the real portfolio in sync
// with the venue. Its slow cadence reflects its role: in normal
// operation fills keep the ledgers current and a websocket feed, when
// present, supersedes this poller entirely.
type BalanceUpdater struct {
	*Updater
	deps UpdaterDeps
}

func NewBalanceUpdater(deps UpdaterDeps) *BalanceUpdater {
	return &BalanceUpdater{
		Updater: newUpdater(channels.BalanceChannelName, deps.Logger),
		deps:    deps,
	}
}

func (u *BalanceUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(BalanceRefreshTime), u.tick)
}

func (u *BalanceUpdater) tick(ctx context.Context) error {
	balance, err := u.deps.Exchange.FetchBalance(ctx)
	if err != nil {
		return err
	}
	if !u.deps.Portfolio.UpdateFromBalance(balance) {
		return nil
	}
	u.deps.channel(channels.BalanceChannelName).Publish(channels.BalanceEvent{
		Balance: balance,
	})
	return nil
}
