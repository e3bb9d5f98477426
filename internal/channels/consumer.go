package channels

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Callback handles one delivered event. Errors are logged and never stop
// delivery to other consumers.
type Callback func(ctx context.Context, evt Event) error

// Consumer binds a callback to a channel with a filter set and a FIFO
// queue. The default queue is unbounded; a bounded queue drops the oldest
// queued event on overflow so the newest data always lands.
type Consumer struct {
	filters  FilterValues
	callback Callback
	logger   *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	maxQueue int
	closed   bool

	done chan struct{}
}

// ConsumerOption configures a consumer at creation.
type ConsumerOption func(*Consumer)

// WithFilters sets the consumer's filter set. Keys missing from the set
// behave as wildcards.
func WithFilters(filters FilterValues) ConsumerOption {
	return func(c *Consumer) {
		c.filters = filters
	}
}

// WithBoundedQueue caps the queue at size events, dropping the oldest on
// overflow.
func WithBoundedQueue(size int) ConsumerOption {
	return func(c *Consumer) {
		if size > 0 {
			c.maxQueue = size
		}
	}
}

func newConsumer(cb Callback, logger *zap.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		callback: cb,
		logger:   logger,
		filters:  FilterValues{},
		done:     make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// matches checks every filter key against the event's attributes. A key
// matches when either side holds the wildcard or the values are equal.
// Filter keys the event does not expose never match a concrete value.
func (c *Consumer) matches(values FilterValues) bool {
	for key, want := range c.filters {
		if want == Wildcard {
			continue
		}
		got, ok := values[key]
		if !ok {
			return false
		}
		if got != Wildcard && got != want {
			return false
		}
	}
	return true
}

// enqueue appends the event, evicting the oldest entry when bounded and
// full.
func (c *Consumer) enqueue(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.maxQueue > 0 && len(c.queue) >= c.maxQueue {
		c.queue = c.queue[1:]
		c.logger.Debug("consumer queue full, dropped oldest event")
	}
	c.queue = append(c.queue, evt)
	c.cond.Signal()
}

// run drains the queue until the consumer is closed, invoking the
// callback for each event in FIFO order. Callback panics are recovered so
// one consumer cannot take down the channel.
func (c *Consumer) run(ctx context.Context, channelName string) {
	defer close(c.done)
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed && len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		evt := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.deliver(ctx, channelName, evt)
	}
}

func (c *Consumer) deliver(ctx context.Context, channelName string, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("consumer callback panicked",
				zap.String("channel", channelName),
				zap.Any("panic", r))
		}
	}()
	if err := c.callback(ctx, evt); err != nil {
		c.logger.Error("consumer callback failed",
			zap.String("channel", channelName),
			zap.Error(err))
	}
}

// close stops the drain loop after the queue empties.
func (c *Consumer) close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Signal()
	c.mu.Unlock()
	<-c.done
}

// QueueLen is the number of undelivered events.
func (c *Consumer) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
