package data

import (
	"sync"

	"github.com/quantra/tradecore/internal/domain"
)

// DefaultMaxTradesCount bounds the stored trade history.
const DefaultMaxTradesCount = 10000

// OrdersStore is the arena that exclusively owns every live order of an
// exchange instance, keyed by order id. Linked orders reference each
// other by id through this arena, never by pointer.
type OrdersStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrdersStore() *OrdersStore {
	return &OrdersStore{orders: make(map[string]*domain.Order)}
}

func (s *OrdersStore) Upsert(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.OrderID] = o
}

func (s *OrdersStore) Get(id string) (*domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// GetByExchangeID resolves an order by the id the venue assigned.
func (s *OrdersStore) GetByExchangeID(exchangeID string) (*domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ExchangeOrderID == exchangeID {
			return o, true
		}
	}
	return nil, false
}

func (s *OrdersStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
}

// OpenOrders returns live orders, optionally restricted to one symbol
// (empty symbol means all).
func (s *OrdersStore) OpenOrders(symbol string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if !o.IsOpen() {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *OrdersStore) All() []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

func (s *OrdersStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// TradesStore keeps the bounded trade history of an exchange instance.
type TradesStore struct {
	mu       sync.RWMutex
	capacity int
	trades   []*domain.Trade
	known    map[string]struct{}
}

func NewTradesStore(capacity int) *TradesStore {
	if capacity <= 0 {
		capacity = DefaultMaxTradesCount
	}
	return &TradesStore{
		capacity: capacity,
		known:    make(map[string]struct{}),
	}
}

// Add appends a trade unless its id is already known. Returns true when
// stored.
func (s *TradesStore) Add(t *domain.Trade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.TradeID != "" {
		if _, seen := s.known[t.TradeID]; seen {
			return false
		}
		s.known[t.TradeID] = struct{}{}
	}
	s.trades = append(s.trades, t)
	if overflow := len(s.trades) - s.capacity; overflow > 0 {
		for _, old := range s.trades[:overflow] {
			delete(s.known, old.TradeID)
		}
		s.trades = s.trades[overflow:]
	}
	return true
}

func (s *TradesStore) Trades() []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

func (s *TradesStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

// PositionsStore keeps the current futures positions keyed by symbol and
// side.
type PositionsStore struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
}

func NewPositionsStore() *PositionsStore {
	return &PositionsStore{positions: make(map[string]*domain.Position)}
}

func positionKey(symbol string, side domain.PositionSide) string {
	return symbol + "#" + string(side)
}

func (s *PositionsStore) Upsert(p *domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey(p.Symbol, p.Side)] = p
}

func (s *PositionsStore) Get(symbol string, side domain.PositionSide) (*domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey(symbol, side)]
	return p, ok
}

func (s *PositionsStore) Remove(symbol string, side domain.PositionSide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, positionKey(symbol, side))
}

func (s *PositionsStore) All() []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// PersonalDataStore aggregates all private state of an exchange instance.
type PersonalDataStore struct {
	Orders    *OrdersStore
	Trades    *TradesStore
	Positions *PositionsStore
}

func NewPersonalDataStore(maxTrades int) *PersonalDataStore {
	return &PersonalDataStore{
		Orders:    NewOrdersStore(),
		Trades:    NewTradesStore(maxTrades),
		Positions: NewPositionsStore(),
	}
}
