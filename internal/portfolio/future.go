package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/domain"
)

// FuturePortfolio composes the ledger with position-derived wallet,
// initial-margin and PnL fields refreshed from the positions store.
type FuturePortfolio struct {
	*Portfolio

	mu            sync.Mutex
	walletBalance decimal.Decimal
	initialMargin decimal.Decimal
	unrealisedPnL decimal.Decimal
}

func NewFuturePortfolio(logger *zap.Logger) *FuturePortfolio {
	return &FuturePortfolio{Portfolio: NewPortfolio(logger)}
}

// RefreshFromPositions recomputes the derived fields from the current
// positions at their stored mark prices.
func (p *FuturePortfolio) RefreshFromPositions(positions []*domain.Position) {
	initialMargin := decimal.Zero
	unrealised := decimal.Zero
	for _, pos := range positions {
		if pos.Status == domain.PositionClosed {
			continue
		}
		initialMargin = initialMargin.Add(pos.RequiredInitialMargin())
		unrealised = unrealised.Add(pos.PnL(pos.MarkPrice))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialMargin = initialMargin
	p.unrealisedPnL = unrealised
}

// SetWalletBalance records the wallet balance reported by the venue.
func (p *FuturePortfolio) SetWalletBalance(balance decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.walletBalance = balance
}

// Derived returns (wallet, initial margin, unrealised PnL).
func (p *FuturePortfolio) Derived() (wallet, initialMargin, unrealisedPnL decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.walletBalance, p.initialMargin, p.unrealisedPnL
}

// ApplyRealisedPnL settles a closed or liquidated position into the
// ledger of the settlement asset.
func (p *FuturePortfolio) ApplyRealisedPnL(asset string, pnl decimal.Decimal) {
	p.Portfolio.mu.Lock()
	defer p.Portfolio.mu.Unlock()
	p.Portfolio.ledger.AddBoth(asset, pnl)
	p.Portfolio.checkEntry(asset)
}
