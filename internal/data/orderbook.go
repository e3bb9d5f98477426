package data

import (
	"sync"

	"github.com/quantra/tradecore/internal/domain"
)

// OrderBookManager holds the latest book snapshot plus top-of-book for
// one symbol.
type OrderBookManager struct {
	mu   sync.RWMutex
	asks []domain.OrderBookEntry
	bids []domain.OrderBookEntry

	askPrice, askQty float64
	bidPrice, bidQty float64
}

func NewOrderBookManager() *OrderBookManager {
	return &OrderBookManager{}
}

// Update replaces the snapshot and refreshes top-of-book.
func (m *OrderBookManager) Update(asks, bids []domain.OrderBookEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asks = asks
	m.bids = bids
	if len(asks) > 0 {
		m.askPrice, m.askQty = asks[0].Price, asks[0].Size
	}
	if len(bids) > 0 {
		m.bidPrice, m.bidQty = bids[0].Price, bids[0].Size
	}
}

// UpdateTop refreshes only top-of-book, as fed by a book-ticker stream.
func (m *OrderBookManager) UpdateTop(askPrice, askQty, bidPrice, bidQty float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.askPrice, m.askQty = askPrice, askQty
	m.bidPrice, m.bidQty = bidPrice, bidQty
}

// Snapshot returns copies of the stored sides.
func (m *OrderBookManager) Snapshot() (asks, bids []domain.OrderBookEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asks = make([]domain.OrderBookEntry, len(m.asks))
	copy(asks, m.asks)
	bids = make([]domain.OrderBookEntry, len(m.bids))
	copy(bids, m.bids)
	return asks, bids
}

// Top returns the current top-of-book (ask price/qty, bid price/qty).
func (m *OrderBookManager) Top() (askPrice, askQty, bidPrice, bidQty float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.askPrice, m.askQty, m.bidPrice, m.bidQty
}
