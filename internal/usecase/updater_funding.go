package usecase

import (
	"context"
	"time"

	"github.com/quantra/tradecore/internal/channels"
)

// FundingUpdater polls funding rates on futures venues. It sleeps until
// the next funding time reported by the venue, clamped between
// FundingMinSleep and FundingMaxSleep.
type FundingUpdater struct {
	*Updater
	deps UpdaterDeps

	nextSleep time.Duration
}

func NewFundingUpdater(deps UpdaterDeps) *FundingUpdater {
	return &FundingUpdater{
		Updater:   newUpdater(channels.FundingChannelName, deps.Logger),
		deps:      deps,
		nextSleep: FundingMinSleep,
	}
}

func (u *FundingUpdater) Start(ctx context.Context) error {
	return u.start(ctx, u.interval, u.tick)
}

func (u *FundingUpdater) interval() time.Duration {
	return clampDuration(u.nextSleep, FundingMinSleep, FundingMaxSleep)
}

func (u *FundingUpdater) tick(ctx context.Context) error {
	soonest := FundingMaxSleep
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		funding, err := u.deps.Exchange.GetFundingRate(ctx, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		u.deps.Symbols.Symbol(symbol).Funding.Update(*funding)
		u.deps.channel(channels.FundingChannelName).Publish(channels.FundingEvent{
			Cryptocurrency: u.deps.cryptocurrency(symbol),
			Symbol:         symbol,
			Funding:        *funding,
		})
		if wait := time.Until(funding.NextUpdate); wait > 0 && wait < soonest {
			soonest = wait
		}
	}
	u.nextSleep = soonest
	return firstErr
}
