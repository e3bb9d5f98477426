package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/domain"
)

// Updater is the long-running polling flavor of a channel producer. The
// concrete updaters embed it and provide a tick function; the loop runs
// the tick on a cadence, observing the paused flag at every iteration
// boundary. Pause and Resume are cooperative and cheap; Stop cancels the
// loop and waits for it to drain.
type Updater struct {
	name   string
	logger *zap.Logger

	mu       sync.Mutex
	paused   bool
	resume   chan struct{}
	cancel   context.CancelFunc
	running  bool
	stopOnce sync.Once

	done chan struct{}
}

func newUpdater(name string, logger *zap.Logger) *Updater {
	return &Updater{
		name:   name,
		logger: logger.With(zap.String("updater", name)),
		resume: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (u *Updater) Name() string { return u.name }

func (u *Updater) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.paused {
		u.paused = true
		u.logger.Debug("paused")
	}
}

func (u *Updater) Resume() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.paused {
		u.paused = false
		close(u.resume)
		u.resume = make(chan struct{})
		u.logger.Debug("resumed")
	}
}

func (u *Updater) IsPaused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

// waitWhilePaused blocks until the updater is resumed or the context
// ends. Returns false when the context is done.
func (u *Updater) waitWhilePaused(ctx context.Context) bool {
	for {
		u.mu.Lock()
		paused := u.paused
		resume := u.resume
		u.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-resume:
		}
	}
}

// loop drives tick every interval until the context ends. A nil interval
// function is replaced by a fixed cadence; interval() is re-evaluated
// after every tick so updaters can align to external clocks (candle
// close, funding time).
func (u *Updater) loop(ctx context.Context, interval func() time.Duration, tick func(ctx context.Context) error) {
	defer close(u.done)
	for {
		if !u.waitWhilePaused(ctx) {
			return
		}
		if err := tick(ctx); err != nil {
			u.handleTickError(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval()):
		}
	}
}

// handleTickError implements the unsupported-endpoint rule: NotSupported
// pauses the updater (a later Resume retries); anything else is logged
// and retried on the next cadence.
func (u *Updater) handleTickError(err error) {
	if errors.Is(err, domain.ErrNotSupported) {
		u.logger.Warn("endpoint not supported by exchange, pausing updater")
		u.Pause()
		return
	}
	u.logger.Error("update failed", zap.Error(err))
}

// start launches the loop goroutine once.
func (u *Updater) start(ctx context.Context, interval func() time.Duration, tick func(ctx context.Context) error) error {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.mu.Unlock()
	go u.loop(loopCtx, interval, tick)
	return nil
}

// Stop cancels the loop and waits for it to return.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() {
		u.mu.Lock()
		cancel := u.cancel
		running := u.running
		// Unpause so the loop can observe cancellation.
		if u.paused {
			u.paused = false
			close(u.resume)
			u.resume = make(chan struct{})
		}
		u.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if running {
			<-u.done
		}
	})
}

func fixedInterval(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}
