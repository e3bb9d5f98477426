package usecase

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantra/tradecore/internal/channels"
)

type sliceImporter struct {
	mu    sync.Mutex
	times []time.Time
}

func (s *sliceImporter) Next(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.times) == 0 {
		return time.Time{}, io.EOF
	}
	ts := s.times[0]
	s.times = s.times[1:]
	return ts, nil
}

func TestTimeProducerPublishesMonotoneTimestamps(t *testing.T) {
	deps := testDeps(nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	importer := &sliceImporter{times: []time.Time{
		base,
		base.Add(time.Hour),
		base.Add(time.Hour), // duplicate, must be skipped
		base.Add(2 * time.Hour),
	}}

	var mu sync.Mutex
	var got []time.Time
	ch := deps.Registry.GetOrCreate(deps.ExchangeName, channels.TimeChannelName)
	consumer := ch.NewConsumer(func(ctx context.Context, evt channels.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.(channels.TimeEvent).Timestamp)
		return nil
	})
	defer ch.RemoveConsumer(consumer)

	p := NewTimeProducer(deps, importer)
	ch.Register(p)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, "time events not delivered")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}, got)
}

func TestTimeProducerPausesOnExhaustion(t *testing.T) {
	deps := testDeps(nil)
	p := NewTimeProducer(deps, &sliceImporter{})
	ch := deps.Registry.GetOrCreate(deps.ExchangeName, channels.TimeChannelName)
	consumer := ch.NewConsumer(func(ctx context.Context, evt channels.Event) error { return nil })
	defer ch.RemoveConsumer(consumer)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	eventually(t, p.IsPaused, "exhausted time producer did not pause")
}
