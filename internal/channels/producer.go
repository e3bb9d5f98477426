package channels

import "context"

// Producer is the channel-facing contract of anything that publishes.
// Pause and Resume are cooperative: a producer loop observes its paused
// flag at every iteration boundary.
type Producer interface {
	Start(ctx context.Context) error
	Pause()
	Resume()
	Stop()
	IsPaused() bool
}
