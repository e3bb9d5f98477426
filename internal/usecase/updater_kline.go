package usecase

import (
	"context"

	"github.com/quantra/tradecore/internal/channels"
)

// KlineUpdater publishes the live, still-open candle of every watched
// (symbol, time frame). It reuses the OHLCV endpoint with a limit of one
// and never writes into the candle buffers: a partial candle is a view,
// not history.
type KlineUpdater struct {
	*Updater
	deps UpdaterDeps
}

func NewKlineUpdater(deps UpdaterDeps) *KlineUpdater {
	return &KlineUpdater{
		Updater: newUpdater(channels.KlineChannelName, deps.Logger),
		deps:    deps,
	}
}

func (u *KlineUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(KlineRefreshTime), u.tick)
}

func (u *KlineUpdater) tick(ctx context.Context) error {
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		for _, tf := range u.deps.TimeFrames {
			candles, err := u.deps.Exchange.FetchOHLCV(ctx, symbol, tf, 1)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if len(candles) == 0 {
				continue
			}
			u.deps.channel(channels.KlineChannelName).Publish(channels.KlineEvent{
				Cryptocurrency: u.deps.cryptocurrency(symbol),
				Symbol:         symbol,
				TimeFrame:      tf,
				Kline:          candles[len(candles)-1],
			})
		}
	}
	return firstErr
}
