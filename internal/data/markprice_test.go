package data_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantra/tradecore/internal/data"
	"github.com/quantra/tradecore/internal/domain"
)

func TestMarkPriceWaitUnblocksOnFirstSet(t *testing.T) {
	m := data.NewMarkPriceManager()

	got := make(chan decimal.Decimal, 1)
	go func() {
		price, err := m.Wait(context.Background(), time.Second)
		if err == nil {
			got <- price
		}
	}()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, m.Set(decimal.NewFromInt(69)), "first set should report initialization")

	select {
	case price := <-got:
		assert.True(t, price.Equal(decimal.NewFromInt(69)))
	case <-time.After(time.Second):
		t.Fatal("waiter did not unblock")
	}

	// A later caller sees the price without blocking.
	price, err := m.Wait(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(69)))

	// Subsequent sets are not "first" anymore.
	assert.False(t, m.Set(decimal.NewFromInt(70)))
}

func TestMarkPriceWaitTimeout(t *testing.T) {
	m := data.NewMarkPriceManager()
	_, err := m.Wait(context.Background(), 20*time.Millisecond)
	var timeoutErr *domain.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestMarkPriceIgnoresNonPositive(t *testing.T) {
	m := data.NewMarkPriceManager()
	assert.False(t, m.Set(decimal.Zero))
	_, set := m.Value()
	assert.False(t, set)
}

func TestMarkPriceFromTrades(t *testing.T) {
	var trades []domain.PublicTrade
	assert.True(t, data.MarkPriceFromTrades(trades).IsZero())

	for _, p := range []int64{10, 20, 30} {
		trades = append(trades, domain.PublicTrade{Price: decimal.NewFromInt(p)})
	}
	assert.True(t, data.MarkPriceFromTrades(trades).Equal(decimal.NewFromInt(20)))

	// Only the newest MarkPriceSourceTradeCount prices count.
	trades = nil
	for i := int64(0); i < 20; i++ {
		trades = append(trades, domain.PublicTrade{Price: decimal.NewFromInt(i)})
	}
	// Mean of 10..19 = 14.5
	assert.True(t, data.MarkPriceFromTrades(trades).Equal(decimal.NewFromFloat(14.5)))
}
