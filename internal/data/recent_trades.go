package data

import (
	"sync"

	"github.com/quantra/tradecore/internal/domain"
)

// DefaultRecentTradesCapacity bounds the per-symbol recent-trades window.
const DefaultRecentTradesCapacity = 100

// RecentTradesManager keeps a bounded, id-deduplicated window of public
// trades for one symbol.
type RecentTradesManager struct {
	mu       sync.Mutex
	capacity int
	trades   []domain.PublicTrade
	known    map[string]struct{}
}

func NewRecentTradesManager(capacity int) *RecentTradesManager {
	if capacity <= 0 {
		capacity = DefaultRecentTradesCapacity
	}
	return &RecentTradesManager{
		capacity: capacity,
		known:    make(map[string]struct{}, capacity),
	}
}

// Add merges a batch, skipping trade ids already seen, and returns the
// trades that were actually new.
func (m *RecentTradesManager) Add(batch []domain.PublicTrade) []domain.PublicTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	var added []domain.PublicTrade
	for _, t := range batch {
		if t.ID != "" {
			if _, seen := m.known[t.ID]; seen {
				continue
			}
			m.known[t.ID] = struct{}{}
		}
		m.trades = append(m.trades, t)
		added = append(added, t)
	}
	if overflow := len(m.trades) - m.capacity; overflow > 0 {
		for _, old := range m.trades[:overflow] {
			delete(m.known, old.ID)
		}
		m.trades = m.trades[overflow:]
	}
	return added
}

// Trades returns a copy of the stored window, oldest first.
func (m *RecentTradesManager) Trades() []domain.PublicTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PublicTrade, len(m.trades))
	copy(out, m.trades)
	return out
}

func (m *RecentTradesManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}
