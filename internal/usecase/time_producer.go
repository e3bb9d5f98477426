package usecase

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
)

// TimeImporter hands out the monotone timestamps of a historical data
// set. Next returns io.EOF when the data set is exhausted.
type TimeImporter interface {
	Next(ctx context.Context) (time.Time, error)
}

// TimeProducer drives backtests: it publishes each importer timestamp on
// the time channel and relies on the bus ordering guarantee to serialize
// the whole simulation. Consumers that need historical rows read them
// keyed by the published timestamp.
type TimeProducer struct {
	*Updater
	deps     UpdaterDeps
	importer TimeImporter

	last time.Time
}

func NewTimeProducer(deps UpdaterDeps, importer TimeImporter) *TimeProducer {
	return &TimeProducer{
		Updater:  newUpdater(channels.TimeChannelName, deps.Logger),
		deps:     deps,
		importer: importer,
	}
}

func (p *TimeProducer) Start(ctx context.Context) error {
	return p.start(ctx, fixedInterval(0), p.tick)
}

func (p *TimeProducer) tick(ctx context.Context) error {
	ts, err := p.importer.Next(ctx)
	if errors.Is(err, io.EOF) {
		p.logger.Info("historical data exhausted, pausing time producer")
		p.Pause()
		return nil
	}
	if err != nil {
		return err
	}
	if !ts.After(p.last) {
		p.logger.Warn("non-monotone timestamp skipped",
			zap.Time("timestamp", ts), zap.Time("last", p.last))
		return nil
	}
	p.last = ts
	p.deps.channel(channels.TimeChannelName).Publish(channels.TimeEvent{Timestamp: ts})
	return nil
}
