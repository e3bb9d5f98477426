package data

import (
	"sync"

	"github.com/quantra/tradecore/internal/domain"
)

const (
	// DefaultCandlesCapacity is the ring buffer size unless overridden by
	// settings; MinCandlesCapacity is the floor updaters rely on for
	// their initial history fetch.
	DefaultCandlesCapacity = 1000
	MinCandlesCapacity     = 200
)

// CandlesManager keeps a fixed-capacity, strictly time-ordered window of
// OHLCV rows for one (symbol, time frame). A row with an already-known
// open time replaces the stored one; rows older than the newest stored
// open time are ignored.
type CandlesManager struct {
	mu       sync.RWMutex
	capacity int
	candles  []domain.Candle
}

func NewCandlesManager(capacity int) *CandlesManager {
	if capacity < MinCandlesCapacity {
		capacity = MinCandlesCapacity
	}
	return &CandlesManager{capacity: capacity}
}

// Add merges a batch of candles. Returns the number of rows that were new
// or replaced existing ones.
func (m *CandlesManager) Add(candles ...domain.Candle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for _, c := range candles {
		if m.addOne(c) {
			changed++
		}
	}
	if overflow := len(m.candles) - m.capacity; overflow > 0 {
		m.candles = m.candles[overflow:]
	}
	return changed
}

func (m *CandlesManager) addOne(c domain.Candle) bool {
	n := len(m.candles)
	if n == 0 || c.Time > m.candles[n-1].Time {
		m.candles = append(m.candles, c)
		return true
	}
	// Newest-wins on duplicate open time; scan from the end since
	// replacements target recent candles.
	for i := n - 1; i >= 0; i-- {
		if m.candles[i].Time == c.Time {
			m.candles[i] = c
			return true
		}
		if m.candles[i].Time < c.Time {
			break
		}
	}
	return false
}

// Latest returns up to n most recent candles, oldest first.
func (m *CandlesManager) Latest(n int) []domain.Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.candles) {
		n = len(m.candles)
	}
	out := make([]domain.Candle, n)
	copy(out, m.candles[len(m.candles)-n:])
	return out
}

// Last returns the most recent candle.
func (m *CandlesManager) Last() (domain.Candle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.candles) == 0 {
		return domain.Candle{}, false
	}
	return m.candles[len(m.candles)-1], true
}

func (m *CandlesManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.candles)
}

func (m *CandlesManager) Capacity() int { return m.capacity }
