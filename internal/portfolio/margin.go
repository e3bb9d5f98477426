package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarginPortfolio composes the spot ledger with a per-asset margin axis
// tracking funds locked in open positions.
type MarginPortfolio struct {
	*Portfolio

	marginMu sync.Mutex
	margin   map[string]decimal.Decimal
}

func NewMarginPortfolio(logger *zap.Logger) *MarginPortfolio {
	return &MarginPortfolio{
		Portfolio: NewPortfolio(logger),
		margin:    make(map[string]decimal.Decimal),
	}
}

// Margin returns the locked margin of an asset.
func (p *MarginPortfolio) Margin(asset string) decimal.Decimal {
	p.marginMu.Lock()
	defer p.marginMu.Unlock()
	return p.margin[asset]
}

// LockMargin moves amount from available into the margin axis.
func (p *MarginPortfolio) LockMargin(asset string, amount decimal.Decimal) {
	p.marginMu.Lock()
	p.margin[asset] = p.margin[asset].Add(amount)
	p.marginMu.Unlock()
	neg := amount.Neg()
	p.ResetAvailable(asset, &neg)
}

// ReleaseMargin returns locked margin into available, for example when a
// position closes or liquidates.
func (p *MarginPortfolio) ReleaseMargin(asset string, amount decimal.Decimal) {
	p.marginMu.Lock()
	current := p.margin[asset]
	if amount.GreaterThan(current) {
		amount = current
	}
	p.margin[asset] = current.Sub(amount)
	p.marginMu.Unlock()
	p.ResetAvailable(asset, &amount)
}
