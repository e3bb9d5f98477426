package data

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantra/tradecore/internal/domain"
)

// DefaultMarkPriceTimeout caps how long a caller blocks waiting for the
// first mark price of a symbol.
const DefaultMarkPriceTimeout = 60 * time.Second

// MarkPriceSourceTradeCount is the number of recent trade prices averaged
// when the mark price is derived rather than venue-published.
const MarkPriceSourceTradeCount = 10

// MarkPriceManager holds the authoritative reference price of one symbol.
// The price is lazily initialized: the first Set releases every caller
// blocked in Wait.
type MarkPriceManager struct {
	mu          sync.Mutex
	price       decimal.Decimal
	set         bool
	initialized chan struct{}
}

func NewMarkPriceManager() *MarkPriceManager {
	return &MarkPriceManager{initialized: make(chan struct{})}
}

// Set stores the price. Returns true on the very first set.
func (m *MarkPriceManager) Set(price decimal.Decimal) bool {
	if price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	first := !m.set
	m.price = price
	if first {
		m.set = true
		close(m.initialized)
	}
	return first
}

// Value returns the current price and whether it was ever set.
func (m *MarkPriceManager) Value() (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.price, m.set
}

// Wait blocks until the first price arrives, the timeout elapses, or the
// context is canceled. A zero timeout uses DefaultMarkPriceTimeout.
// Callers entering after initialization return immediately.
func (m *MarkPriceManager) Wait(ctx context.Context, timeout time.Duration) (decimal.Decimal, error) {
	if timeout <= 0 {
		timeout = DefaultMarkPriceTimeout
	}
	m.mu.Lock()
	if m.set {
		price := m.price
		m.mu.Unlock()
		return price, nil
	}
	initialized := m.initialized
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-initialized:
		price, _ := m.Value()
		return price, nil
	case <-timer.C:
		return decimal.Zero, &domain.TimeoutError{Op: "mark price wait", Timeout: timeout}
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}

// MarkPriceFromTrades derives a mark price as the mean of the last
// MarkPriceSourceTradeCount trade prices. Returns zero when the batch is
// empty.
func MarkPriceFromTrades(trades []domain.PublicTrade) decimal.Decimal {
	if len(trades) == 0 {
		return decimal.Zero
	}
	if len(trades) > MarkPriceSourceTradeCount {
		trades = trades[len(trades)-MarkPriceSourceTradeCount:]
	}
	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(t.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(trades))))
}
