package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	PositionLong    PositionSide = "LONG"
	PositionShort   PositionSide = "SHORT"
	PositionBoth    PositionSide = "BOTH"
	PositionUnknown PositionSide = "UNKNOWN"
)

type PositionStatus string

const (
	PositionOpen        PositionStatus = "OPEN"
	PositionLiquidating PositionStatus = "LIQUIDATING"
	PositionClosed      PositionStatus = "CLOSED"
)

type PositionMode string

const (
	OneWayMode PositionMode = "one_way"
	HedgeMode  PositionMode = "hedge"
)

// ContractType determines the pricing formulas of a futures position.
type ContractType string

const (
	LinearContract  ContractType = "linear"
	InverseContract ContractType = "inverse"
)

// Position is one futures position on a symbol.
type Position struct {
	Symbol           string
	Side             PositionSide
	Contract         ContractType
	Mode             PositionMode
	Quantity         decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
	Leverage         decimal.Decimal
	Margin           decimal.Decimal
	InitialMargin    decimal.Decimal
	UnrealisedPnL    decimal.Decimal
	RealisedPnL      decimal.Decimal
	Status           PositionStatus
	UpdatedAt        time.Time
}

// Value prices the position at the given mark price.
func (p *Position) Value(mark decimal.Decimal) decimal.Decimal {
	if mark.IsZero() {
		return decimal.Zero
	}
	if p.Contract == InverseContract {
		return p.Quantity.Div(mark)
	}
	return p.Quantity.Mul(mark)
}

// PnL computes the unrealised profit at the given mark price.
func (p *Position) PnL(mark decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() || mark.IsZero() {
		return decimal.Zero
	}
	if p.Contract == InverseContract {
		// qty * (1/entry - 1/mark), sign flipped for shorts.
		delta := decimal.New(1, 0).Div(p.EntryPrice).Sub(decimal.New(1, 0).Div(mark))
		if p.Side == PositionShort {
			return p.Quantity.Mul(delta).Neg()
		}
		return p.Quantity.Mul(delta)
	}
	if p.Side == PositionShort {
		return p.Quantity.Mul(p.EntryPrice.Sub(mark))
	}
	return p.Quantity.Mul(mark.Sub(p.EntryPrice))
}

// RequiredInitialMargin is the margin locked by the position at entry.
func (p *Position) RequiredInitialMargin() decimal.Decimal {
	if p.EntryPrice.IsZero() || p.Leverage.IsZero() {
		return decimal.Zero
	}
	if p.Contract == InverseContract {
		return p.Quantity.Div(p.EntryPrice.Mul(p.Leverage))
	}
	return p.Quantity.Mul(p.EntryPrice).Div(p.Leverage)
}

// MaintenanceMargin computes the maintenance requirement for the given
// maintenance margin rate.
func (p *Position) MaintenanceMargin(mmRate decimal.Decimal) decimal.Decimal {
	if p.Contract == InverseContract {
		if p.EntryPrice.IsZero() {
			return decimal.Zero
		}
		return p.Quantity.Mul(mmRate).Div(p.EntryPrice)
	}
	return p.Quantity.Mul(p.EntryPrice).Mul(mmRate)
}

// ComputeLiquidationPrice derives the liquidation price from the entry
// price, the initial margin rate (1/leverage) and the maintenance margin
// rate. Longs liquidate below entry, shorts above.
func (p *Position) ComputeLiquidationPrice(mmRate decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() || p.Leverage.IsZero() {
		return decimal.Zero
	}
	imRate := decimal.New(1, 0).Div(p.Leverage)
	if p.Side == PositionShort {
		return p.EntryPrice.Mul(decimal.New(1, 0).Add(imRate).Sub(mmRate))
	}
	return p.EntryPrice.Mul(decimal.New(1, 0).Sub(imRate).Add(mmRate))
}

// ShouldLiquidate reports whether the mark price crossed the liquidation
// price for the position's side.
func (p *Position) ShouldLiquidate(mark decimal.Decimal) bool {
	if p.LiquidationPrice.IsZero() || p.Quantity.IsZero() {
		return false
	}
	if p.Side == PositionShort {
		return mark.GreaterThanOrEqual(p.LiquidationPrice)
	}
	return mark.LessThanOrEqual(p.LiquidationPrice)
}

// PositionHistory is a closed position record kept by the run databases.
type PositionHistory struct {
	ID          int64
	Exchange    string
	Symbol      string
	Side        PositionSide
	Quantity    decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	RealisedPnL decimal.Decimal
	Leverage    decimal.Decimal
	ClosedAt    time.Time
}
