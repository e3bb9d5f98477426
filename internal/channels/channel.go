package channels

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Channel is a named in-process topic with filter-aware fan-out. It owns
// its consumer list and outlives its producers and consumers. When the
// last consumer leaves, every registered producer is paused; the first
// consumer to arrive resumes them.
type Channel struct {
	name   string
	logger *zap.Logger

	mu        sync.Mutex
	producers []Producer
	consumers []*Consumer
	paused    bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewChannel(name string, logger *zap.Logger) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		name:   name,
		logger: logger.With(zap.String("channel", name)),
		paused: true,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (ch *Channel) Name() string { return ch.name }

// Register adds a producer. A newly registered producer on a channel with
// no consumers starts paused.
func (ch *Channel) Register(p Producer) {
	ch.mu.Lock()
	ch.producers = append(ch.producers, p)
	paused := ch.paused
	ch.mu.Unlock()
	if paused {
		p.Pause()
	}
}

// NewConsumer creates, registers and starts a consumer. Channel producers
// are resumed if this is the first matching consumer.
func (ch *Channel) NewConsumer(cb Callback, opts ...ConsumerOption) *Consumer {
	c := newConsumer(cb, ch.logger, opts...)
	ch.mu.Lock()
	ch.consumers = append(ch.consumers, c)
	ch.mu.Unlock()
	go c.run(ch.ctx, ch.name)
	ch.checkProducersState()
	return c
}

// RemoveConsumer unregisters and stops a consumer, pausing producers if
// nobody is left listening.
func (ch *Channel) RemoveConsumer(c *Consumer) {
	ch.mu.Lock()
	for i, registered := range ch.consumers {
		if registered == c {
			ch.consumers = append(ch.consumers[:i], ch.consumers[i+1:]...)
			break
		}
	}
	ch.mu.Unlock()
	c.close()
	ch.checkProducersState()
}

// Publish routes the event to every consumer whose filter set matches the
// event's attributes. The producer never waits on consumer callbacks.
func (ch *Channel) Publish(evt Event) {
	values := evt.FilterValues()
	ch.mu.Lock()
	targets := make([]*Consumer, 0, len(ch.consumers))
	for _, c := range ch.consumers {
		if c.matches(values) {
			targets = append(targets, c)
		}
	}
	ch.mu.Unlock()
	for _, c := range targets {
		c.enqueue(evt)
	}
}

// checkProducersState pauses producers when the consumer list is empty
// and resumes them when at least one consumer is present.
func (ch *Channel) checkProducersState() {
	ch.mu.Lock()
	hasConsumers := len(ch.consumers) > 0
	shouldPause := !hasConsumers && !ch.paused
	shouldResume := hasConsumers && ch.paused
	if shouldPause {
		ch.paused = true
	}
	if shouldResume {
		ch.paused = false
	}
	producers := make([]Producer, len(ch.producers))
	copy(producers, ch.producers)
	ch.mu.Unlock()

	if shouldPause {
		ch.logger.Debug("no consumers left, pausing producers")
		for _, p := range producers {
			p.Pause()
		}
	}
	if shouldResume {
		ch.logger.Debug("consumer arrived, resuming producers")
		for _, p := range producers {
			p.Resume()
		}
	}
}

// IsPaused reports whether the channel currently has no consumers.
func (ch *Channel) IsPaused() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.paused
}

// ConsumerCount returns the number of registered consumers.
func (ch *Channel) ConsumerCount() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.consumers)
}

// Stop shuts down producers first, then consumers, then the channel
// context.
func (ch *Channel) Stop() {
	ch.mu.Lock()
	producers := make([]Producer, len(ch.producers))
	copy(producers, ch.producers)
	consumers := make([]*Consumer, len(ch.consumers))
	copy(consumers, ch.consumers)
	ch.producers = nil
	ch.consumers = nil
	ch.mu.Unlock()

	for _, p := range producers {
		p.Stop()
	}
	for _, c := range consumers {
		c.close()
	}
	ch.cancel()
}
