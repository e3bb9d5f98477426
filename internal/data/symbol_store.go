package data

import (
	"sync"

	"github.com/quantra/tradecore/internal/domain"
)

// SymbolStore aggregates every per-symbol market-data manager.
type SymbolStore struct {
	Symbol string

	mu      sync.Mutex
	candles map[domain.TimeFrame]*CandlesManager

	OrderBook    *OrderBookManager
	RecentTrades *RecentTradesManager
	Ticker       *TickerManager
	MarkPrice    *MarkPriceManager
	Funding      *FundingManager

	candlesCapacity int
}

func newSymbolStore(symbol string, candlesCapacity, tradesCapacity int) *SymbolStore {
	return &SymbolStore{
		Symbol:          symbol,
		candles:         make(map[domain.TimeFrame]*CandlesManager),
		OrderBook:       NewOrderBookManager(),
		RecentTrades:    NewRecentTradesManager(tradesCapacity),
		Ticker:          NewTickerManager(),
		MarkPrice:       NewMarkPriceManager(),
		Funding:         NewFundingManager(),
		candlesCapacity: candlesCapacity,
	}
}

// Candles returns (creating on first use) the candle buffer for a time
// frame.
func (s *SymbolStore) Candles(tf domain.TimeFrame) *CandlesManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.candles[tf]; ok {
		return m
	}
	m := NewCandlesManager(s.candlesCapacity)
	s.candles[tf] = m
	return m
}

// SymbolDataStore owns one SymbolStore per traded symbol of an exchange
// instance.
type SymbolDataStore struct {
	mu              sync.RWMutex
	symbols         map[string]*SymbolStore
	candlesCapacity int
	tradesCapacity  int
}

func NewSymbolDataStore(candlesCapacity, tradesCapacity int) *SymbolDataStore {
	if candlesCapacity <= 0 {
		candlesCapacity = DefaultCandlesCapacity
	}
	if tradesCapacity <= 0 {
		tradesCapacity = DefaultRecentTradesCapacity
	}
	return &SymbolDataStore{
		symbols:         make(map[string]*SymbolStore),
		candlesCapacity: candlesCapacity,
		tradesCapacity:  tradesCapacity,
	}
}

// Symbol returns (creating on first use) the store for a symbol.
func (s *SymbolDataStore) Symbol(symbol string) *SymbolStore {
	s.mu.RLock()
	store, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return store
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok = s.symbols[symbol]; ok {
		return store
	}
	store = newSymbolStore(symbol, s.candlesCapacity, s.tradesCapacity)
	s.symbols[symbol] = store
	return store
}

// Symbols lists the symbols currently tracked.
func (s *SymbolDataStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		out = append(out, symbol)
	}
	return out
}
