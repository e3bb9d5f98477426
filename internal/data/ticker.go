package data

import (
	"sync"

	"github.com/quantra/tradecore/internal/domain"
)

// TickerManager holds the latest ticker for one symbol.
type TickerManager struct {
	mu     sync.RWMutex
	ticker domain.Ticker
	set    bool
}

func NewTickerManager() *TickerManager {
	return &TickerManager{}
}

func (m *TickerManager) Update(t domain.Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticker = t
	m.set = true
}

func (m *TickerManager) Ticker() (domain.Ticker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticker, m.set
}

// FundingManager holds the funding state of one futures symbol.
type FundingManager struct {
	mu      sync.RWMutex
	funding domain.FundingInfo
	set     bool
}

func NewFundingManager() *FundingManager {
	return &FundingManager{}
}

func (m *FundingManager) Update(f domain.FundingInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funding = f
	m.set = true
}

func (m *FundingManager) Funding() (domain.FundingInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.funding, m.set
}
