package channels_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/domain"
)

type fakeProducer struct {
	mu      sync.Mutex
	paused  bool
	pauses  int
	resumes int
	stopped bool
}

func (p *fakeProducer) Start(ctx context.Context) error { return nil }

func (p *fakeProducer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.pauses++
}

func (p *fakeProducer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.resumes++
}

func (p *fakeProducer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

func (p *fakeProducer) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestConsumerFIFO(t *testing.T) {
	ch := channels.NewChannel(channels.TickerChannelName, zap.NewNop())
	defer ch.Stop()

	var mu sync.Mutex
	var seen []string
	ch.NewConsumer(func(ctx context.Context, evt channels.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, evt.(channels.TickerEvent).Symbol)
		return nil
	})

	for _, s := range []string{"A/USDT", "B/USDT", "C/USDT"} {
		ch.Publish(channels.TickerEvent{Cryptocurrency: "X", Symbol: s})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A/USDT", "B/USDT", "C/USDT"}, seen)
}

func TestFilterMatching(t *testing.T) {
	ch := channels.NewChannel(channels.OHLCVChannelName, zap.NewNop())
	defer ch.Stop()

	var mu sync.Mutex
	counts := map[string]int{}
	consume := func(name string) channels.Callback {
		return func(ctx context.Context, evt channels.Event) error {
			mu.Lock()
			defer mu.Unlock()
			counts[name]++
			return nil
		}
	}

	ch.NewConsumer(consume("btc1h"), channels.WithFilters(channels.FilterValues{
		channels.FilterSymbol:    "BTC/USDT",
		channels.FilterTimeFrame: "1h",
	}))
	ch.NewConsumer(consume("anySymbol"), channels.WithFilters(channels.FilterValues{
		channels.FilterSymbol:    channels.Wildcard,
		channels.FilterTimeFrame: "1h",
	}))
	ch.NewConsumer(consume("all"))

	ch.Publish(channels.OHLCVEvent{Cryptocurrency: "BTC", Symbol: "BTC/USDT", TimeFrame: "1h"})
	ch.Publish(channels.OHLCVEvent{Cryptocurrency: "ETH", Symbol: "ETH/USDT", TimeFrame: "1h"})
	ch.Publish(channels.OHLCVEvent{Cryptocurrency: "BTC", Symbol: "BTC/USDT", TimeFrame: "1m"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["all"] == 3
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts["btc1h"])
	assert.Equal(t, 2, counts["anySymbol"])
	assert.Equal(t, 3, counts["all"])
}

func TestErrorIsolation(t *testing.T) {
	ch := channels.NewChannel(channels.TradesChannelName, zap.NewNop())
	defer ch.Stop()

	var mu sync.Mutex
	var healthyGot int
	ch.NewConsumer(func(ctx context.Context, evt channels.Event) error {
		return errors.New("boom")
	})
	ch.NewConsumer(func(ctx context.Context, evt channels.Event) error {
		panic("worse")
	})
	ch.NewConsumer(func(ctx context.Context, evt channels.Event) error {
		mu.Lock()
		defer mu.Unlock()
		healthyGot++
		return nil
	})

	ch.Publish(channels.TradesEvent{Symbol: "BTC/USDT"})
	ch.Publish(channels.TradesEvent{Symbol: "BTC/USDT"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return healthyGot == 2
	})
}

func TestAutoPauseResume(t *testing.T) {
	ch := channels.NewChannel(channels.OrderBookChannelName, zap.NewNop())
	defer ch.Stop()

	p := &fakeProducer{}
	ch.Register(p)
	assert.True(t, p.IsPaused(), "producer should start paused with no consumers")

	c := ch.NewConsumer(func(ctx context.Context, evt channels.Event) error { return nil })
	assert.False(t, p.IsPaused(), "first consumer should resume producers")
	assert.False(t, ch.IsPaused())

	ch.RemoveConsumer(c)
	assert.True(t, p.IsPaused(), "last consumer leaving should pause producers")
	assert.True(t, ch.IsPaused())
}

func TestBoundedQueueDropsOldest(t *testing.T) {
	ch := channels.NewChannel(channels.TickerChannelName, zap.NewNop())
	defer ch.Stop()

	release := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	ch.NewConsumer(func(ctx context.Context, evt channels.Event) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, evt.(channels.TickerEvent).Symbol)
		return nil
	}, channels.WithBoundedQueue(2))

	// The first event is picked up by the drain loop and blocks; the
	// next three fight over a queue of two.
	for _, s := range []string{"A", "B", "C", "D"} {
		ch.Publish(channels.TickerEvent{Symbol: s})
		time.Sleep(10 * time.Millisecond)
	}
	close(release)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	// A was in flight; B was evicted when D arrived.
	assert.Equal(t, []string{"A", "C", "D"}, seen)
}

func TestRegistry(t *testing.T) {
	r := channels.NewRegistry(zap.NewNop())

	ch := channels.NewChannel(channels.TickerChannelName, zap.NewNop())
	require.NoError(t, r.Set("binance", ch))

	dup := channels.NewChannel(channels.TickerChannelName, zap.NewNop())
	err := r.Set("binance", dup)
	require.ErrorIs(t, err, domain.ErrChannelExists)

	got, err := r.Get("binance", channels.TickerChannelName)
	require.NoError(t, err)
	assert.Same(t, ch, got)

	_, err = r.Get("binance", channels.OrdersChannelName)
	require.ErrorIs(t, err, domain.ErrChannelNotFound)

	r.DelChannel("binance", channels.TickerChannelName)
	_, err = r.Get("binance", channels.TickerChannelName)
	require.Error(t, err)

	require.NoError(t, r.Set("binance", channels.NewChannel(channels.OrdersChannelName, zap.NewNop())))
	r.DelExchange("binance")
	_, err = r.Get("binance", channels.OrdersChannelName)
	require.Error(t, err)
}
