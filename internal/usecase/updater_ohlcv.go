package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/domain"
)

// OHLCVUpdater feeds the candle buffers. Each (symbol, time frame) pair
// gets an initial history load, then refreshes aligned to the next
// candle close plus a small jitter, clamped between OHLCVMinRefreshTime
// and one full time frame.
type OHLCVUpdater struct {
	*Updater
	deps UpdaterDeps

	due map[string]time.Time
}

func NewOHLCVUpdater(deps UpdaterDeps) *OHLCVUpdater {
	return &OHLCVUpdater{
		Updater: newUpdater(channels.OHLCVChannelName, deps.Logger),
		deps:    deps,
		due:     make(map[string]time.Time),
	}
}

func pairTFKey(symbol string, tf domain.TimeFrame) string {
	return symbol + "#" + string(tf)
}

func (u *OHLCVUpdater) Start(ctx context.Context) error {
	if err := u.initialFetch(ctx); err != nil {
		return err
	}
	return u.start(ctx, u.interval, u.tick)
}

// initialFetch loads history for every pair and time frame, retrying
// once after OHLCVInitRetryDelay. A pair that fails twice starts empty
// and catches up on the polling cadence.
func (u *OHLCVUpdater) initialFetch(ctx context.Context) error {
	for _, symbol := range u.deps.Pairs {
		for _, tf := range u.deps.TimeFrames {
			if err := u.fetchAndPublish(ctx, symbol, tf, OHLCVInitialCandlesCount); err != nil {
				u.logger.Warn("initial candle history failed, retrying once",
					zap.String("symbol", symbol),
					zap.String("time_frame", string(tf)),
					zap.Error(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(OHLCVInitRetryDelay):
				}
				if err = u.fetchAndPublish(ctx, symbol, tf, OHLCVInitialCandlesCount); err != nil {
					u.logger.Error("initial candle history failed twice",
						zap.String("symbol", symbol),
						zap.String("time_frame", string(tf)),
						zap.Error(err))
				}
			}
		}
	}
	return nil
}

// tick refreshes every (symbol, time frame) whose next candle close has
// passed.
func (u *OHLCVUpdater) tick(ctx context.Context) error {
	now := time.Now()
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		for _, tf := range u.deps.TimeFrames {
			if now.Before(u.due[pairTFKey(symbol, tf)]) {
				continue
			}
			if err := u.fetchAndPublish(ctx, symbol, tf, 2); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("candle refresh %s %s: %w", symbol, tf, err)
			}
		}
	}
	return firstErr
}

func (u *OHLCVUpdater) fetchAndPublish(ctx context.Context, symbol string, tf domain.TimeFrame, limit int) error {
	candles, err := u.deps.Exchange.FetchOHLCV(ctx, symbol, tf, limit)
	if err != nil {
		return err
	}
	u.scheduleNext(symbol, tf, candles)
	store := u.deps.Symbols.Symbol(symbol).Candles(tf)
	if store.Add(candles...) == 0 {
		return nil
	}
	u.deps.channel(channels.OHLCVChannelName).Publish(channels.OHLCVEvent{
		Cryptocurrency: u.deps.cryptocurrency(symbol),
		Symbol:         symbol,
		TimeFrame:      tf,
		Candles:        candles,
	})
	return nil
}

// scheduleNext aligns the next refresh to the close of the newest known
// candle, never before OHLCVMinRefreshTime from now and never further
// out than one time frame.
func (u *OHLCVUpdater) scheduleNext(symbol string, tf domain.TimeFrame, candles []domain.Candle) {
	now := time.Now()
	wait := tf.Duration()
	if len(candles) > 0 {
		newest := candles[len(candles)-1]
		closeAt := time.Unix(newest.Time, 0).Add(tf.Duration())
		wait = time.Until(closeAt) + smallJitter()
	}
	wait = clampDuration(wait, OHLCVMinRefreshTime, tf.Duration())
	u.due[pairTFKey(symbol, tf)] = now.Add(wait)
}

// interval sleeps until the earliest scheduled refresh.
func (u *OHLCVUpdater) interval() time.Duration {
	var earliest time.Time
	for _, at := range u.due {
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	if earliest.IsZero() {
		return OHLCVMinRefreshTime
	}
	return clampDuration(time.Until(earliest), OHLCVMinRefreshTime, 24*time.Hour)
}
