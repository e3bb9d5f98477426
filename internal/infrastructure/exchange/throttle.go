package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/quantra/tradecore/internal/channels"
)

// coalescerKey identifies one stream of push updates. stream is a
// per-channel discriminator, usually the symbol (symbol plus time frame
// for klines); events sharing a key collapse to their latest state
// between flushes.
type coalescerKey struct {
	channel string
	stream  string
}

// wsCoalescer batches websocket updates. With a zero interval every event
// is published immediately; otherwise only the latest event per key
// survives until the next flush, with merge hooks for list-shaped events
// (recent trades) whose entries must not be lost.
type wsCoalescer struct {
	registry     *channels.Registry
	exchangeName string
	interval     time.Duration

	mu      sync.Mutex
	pending map[coalescerKey]channels.Event

	cancel context.CancelFunc
	done   chan struct{}
}

func newWSCoalescer(registry *channels.Registry, exchangeName string, interval time.Duration) *wsCoalescer {
	return &wsCoalescer{
		registry:     registry,
		exchangeName: exchangeName,
		interval:     interval,
		pending:      make(map[coalescerKey]channels.Event),
	}
}

// Start launches the flush loop. A no-op when the interval is zero.
func (c *wsCoalescer) Start() {
	if c.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx)
}

func (c *wsCoalescer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.flush()
}

func (c *wsCoalescer) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

// Offer hands one update to the coalescer. Immediate mode publishes on
// the caller's goroutine.
func (c *wsCoalescer) Offer(channel, stream string, evt channels.Event) {
	if c.interval <= 0 {
		c.registry.GetOrCreate(c.exchangeName, channel).Publish(evt)
		return
	}
	key := coalescerKey{channel: channel, stream: stream}
	c.mu.Lock()
	if prev, ok := c.pending[key]; ok {
		evt = mergeEvents(prev, evt)
	}
	c.pending[key] = evt
	c.mu.Unlock()
}

func (c *wsCoalescer) flush() {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[coalescerKey]channels.Event, len(batch))
	c.mu.Unlock()
	for key, evt := range batch {
		c.registry.GetOrCreate(c.exchangeName, key.channel).Publish(evt)
	}
}

// mergeEvents combines a pending event with its replacement. Trades are
// concatenated so no execution disappears inside a throttle window; every
// other event kind is last-writer-wins.
func mergeEvents(prev, next channels.Event) channels.Event {
	prevTrades, ok := prev.(channels.RecentTradesEvent)
	if !ok {
		return next
	}
	nextTrades, ok := next.(channels.RecentTradesEvent)
	if !ok {
		return next
	}
	nextTrades.Trades = append(prevTrades.Trades, nextTrades.Trades...)
	return nextTrades
}
