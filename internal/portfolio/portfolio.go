package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/domain"
)

// feeReservationSlack is the tolerated overshoot of available beyond
// total: open-order fee reservations may briefly pin up to 5% of total.
var feeReservationSlack = decimal.NewFromFloat(0.05)

// Portfolio is the spot flavor of the dual ledger. All mutations happen
// under the portfolio lock, which is never held across an adapter call.
// The lock ordering invariant is Order -> Portfolio: callers already
// holding an order lock may take this one, never the reverse.
type Portfolio struct {
	mu     sync.Mutex
	ledger *Ledger
	logger *zap.Logger
}

func NewPortfolio(logger *zap.Logger) *Portfolio {
	return &Portfolio{
		ledger: NewLedger(),
		logger: logger,
	}
}

// Lock/Unlock expose the portfolio mutex for multi-step read sequences
// (profitability valuation).
func (p *Portfolio) Lock()   { p.mu.Lock() }
func (p *Portfolio) Unlock() { p.mu.Unlock() }

// Entry returns the ledger row for an asset.
func (p *Portfolio) Entry(asset string) Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Entry(asset)
}

// Snapshot copies the non-empty rows.
func (p *Portfolio) Snapshot() map[string]Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Snapshot()
}

// Assets lists held assets.
func (p *Portfolio) Assets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Assets()
}

// SetEntry overwrites one row (simulator starting portfolio, tests).
func (p *Portfolio) SetEntry(asset string, available, total decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger.SetEntry(asset, Entry{Available: available, Total: total})
}

// UpdateAvailable reserves (isNew) or releases (cancel) the available
// funds an order pins. Self-managed order types never touch available.
//
// Buy orders pin origin_price * origin_quantity of the quote asset, sell
// orders pin origin_quantity of the base asset.
func (p *Portfolio) UpdateAvailable(o *domain.Order, isNew bool) {
	if !o.Type.ReservesAvailable() {
		return
	}
	sign := decimal.NewFromInt(1)
	if !isNew {
		sign = sign.Neg()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if o.Side == domain.SideBuy {
		cost := o.OriginPrice.Mul(o.OriginQuantity)
		p.ledger.AddAvailable(o.Quote(), cost.Mul(sign).Neg())
		p.checkEntry(o.Quote())
	} else {
		p.ledger.AddAvailable(o.Base(), o.OriginQuantity.Mul(sign).Neg())
		p.checkEntry(o.Base())
	}
}

// UpdateFromFilledOrder applies a fill to the ledger. For reserving order
// types the open-time reservation is released first, then the fill deltas
// land on available and total together. The fee is subtracted only when
// its currency is the received asset: base on a buy, quote on a sell.
func (p *Portfolio) UpdateFromFilledOrder(o *domain.Order) {
	base, quote := o.Base(), o.Quote()
	cost := o.FilledQuantity.Mul(o.FilledPrice)

	p.mu.Lock()
	defer p.mu.Unlock()

	if o.Type.ReservesAvailable() {
		// Release the original reservation.
		if o.Side == domain.SideBuy {
			p.ledger.AddAvailable(quote, o.OriginPrice.Mul(o.OriginQuantity))
		} else {
			p.ledger.AddAvailable(base, o.OriginQuantity)
		}
	}

	if o.Side == domain.SideBuy {
		baseDelta := o.FilledQuantity
		if o.Fee != nil && o.Fee.Currency == base {
			baseDelta = baseDelta.Sub(o.Fee.Cost)
		}
		p.ledger.AddBoth(base, baseDelta)
		p.ledger.AddBoth(quote, cost.Neg())
	} else {
		quoteDelta := cost
		if o.Fee != nil && o.Fee.Currency == quote {
			quoteDelta = quoteDelta.Sub(o.Fee.Cost)
		}
		p.ledger.AddBoth(base, o.FilledQuantity.Neg())
		p.ledger.AddBoth(quote, quoteDelta)
	}
	p.checkEntry(base)
	p.checkEntry(quote)
}

// UpdateFromBalance replaces the ledger wholesale from a fetched balance.
// Returns true iff the filtered non-empty content changed.
func (p *Portfolio) UpdateFromBalance(balance map[string]domain.Balance) bool {
	next := NewLedger()
	for asset, b := range balance {
		next.SetEntry(asset, Entry{Available: b.Free, Total: b.Total})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ledger.Equal(next) {
		return false
	}
	p.ledger = next
	return true
}

// ResetAvailable resynchronizes available to total. With a currency it
// applies only to that asset; with a non-nil amount it increments
// available by the amount instead of resetting.
func (p *Portfolio) ResetAvailable(currency string, amount *decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if currency == "" {
		for asset := range p.ledger.entries {
			e := p.ledger.Entry(asset)
			e.Available = e.Total
			p.ledger.SetEntry(asset, e)
		}
		return
	}
	e := p.ledger.Entry(currency)
	if amount != nil {
		e.Available = e.Available.Add(*amount)
	} else {
		e.Available = e.Total
	}
	p.ledger.SetEntry(currency, e)
	p.checkEntry(currency)
}

// checkEntry enforces 0 <= available <= total + slack under the held
// lock. A negative available is logged and clamped to zero; an overshoot
// beyond the fee-reservation slack is logged.
func (p *Portfolio) checkEntry(asset string) {
	e := p.ledger.Entry(asset)
	if e.Available.IsNegative() {
		p.logger.Warn("negative available funds, clamping to zero",
			zap.String("asset", asset),
			zap.String("available", e.Available.String()),
			zap.String("total", e.Total.String()))
		e.Available = decimal.Zero
		p.ledger.SetEntry(asset, e)
		return
	}
	slack := e.Total.Mul(feeReservationSlack)
	if e.Available.GreaterThan(e.Total.Add(slack)) {
		p.logger.Warn("available exceeds total beyond fee slack",
			zap.String("asset", asset),
			zap.String("available", e.Available.String()),
			zap.String("total", e.Total.String()))
	}
}
