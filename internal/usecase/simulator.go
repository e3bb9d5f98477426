package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/quantra/tradecore/internal/domain"
)

// InstantFillLimitPriceDelta is how close to the last price a limit must
// sit to fill immediately when instant fill is enabled (0.5%).
var InstantFillLimitPriceDelta = decimal.NewFromFloat(0.005)

// SimulatorFees are the configured simulated fee rates.
type SimulatorFees struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// Rate picks the rate matching the order's taker-or-maker classification.
func (f SimulatorFees) Rate(kind domain.TraderOrderType) decimal.Decimal {
	if kind.DefaultTakerOrMaker() == domain.Maker {
		return f.Maker
	}
	return f.Taker
}

// fillPredicate decides whether an order fills against a batch of
// observed prices and at which price. lowest/highest are over the batch,
// last is the newest observed price.
type fillPredicate func(o *domain.Order, lowest, highest, last decimal.Decimal) (decimal.Decimal, bool)

// stopPrice is the trigger-and-fill price of a stop-like order.
func stopPrice(o *domain.Order) decimal.Decimal {
	if !o.OriginStopPrice.IsZero() {
		return o.OriginStopPrice
	}
	return o.OriginPrice
}

var fillPredicates = map[domain.TraderOrderType]fillPredicate{
	domain.BuyMarket: func(o *domain.Order, _, _, last decimal.Decimal) (decimal.Decimal, bool) {
		return last, !last.IsZero()
	},
	domain.SellMarket: func(o *domain.Order, _, _, last decimal.Decimal) (decimal.Decimal, bool) {
		return last, !last.IsZero()
	},
	domain.BuyLimit: func(o *domain.Order, lowest, _, _ decimal.Decimal) (decimal.Decimal, bool) {
		return o.OriginPrice, lowest.LessThanOrEqual(o.OriginPrice)
	},
	domain.SellLimit: func(o *domain.Order, _, highest, _ decimal.Decimal) (decimal.Decimal, bool) {
		return o.OriginPrice, highest.GreaterThanOrEqual(o.OriginPrice)
	},
	domain.StopLoss:          stopLossPredicate,
	domain.StopLossLimit:     stopLossPredicate,
	domain.TrailingStop:      stopLossPredicate,
	domain.TrailingStopLimit: stopLossPredicate,
	domain.TakeProfit:        takeProfitPredicate,
	domain.TakeProfitLimit:   takeProfitPredicate,
}

// stopLossPredicate: a sell stop triggers when the lowest observed price
// reaches the trigger from above, a buy stop when the highest reaches it
// from below. Fills at the trigger price.
func stopLossPredicate(o *domain.Order, lowest, highest, _ decimal.Decimal) (decimal.Decimal, bool) {
	trigger := stopPrice(o)
	if o.Side == domain.SideSell {
		return trigger, lowest.LessThanOrEqual(trigger)
	}
	return trigger, highest.GreaterThanOrEqual(trigger)
}

// takeProfitPredicate is the stop-loss mirror on the opposite side: a
// sell take-profit triggers on the way up, a buy one on the way down.
func takeProfitPredicate(o *domain.Order, lowest, highest, _ decimal.Decimal) (decimal.Decimal, bool) {
	trigger := stopPrice(o)
	if o.Side == domain.SideSell {
		return trigger, highest.GreaterThanOrEqual(trigger)
	}
	return trigger, lowest.LessThanOrEqual(trigger)
}

// CheckSimulatedFill evaluates a simulated order against an observed
// price batch. Returns the fill price and whether the order fills.
// instantFill additionally fills near-market limits within
// InstantFillLimitPriceDelta of the last price.
func CheckSimulatedFill(o *domain.Order, prices []decimal.Decimal, instantFill bool) (decimal.Decimal, bool) {
	if len(prices) == 0 {
		return decimal.Zero, false
	}
	lowest, highest := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p.LessThan(lowest) {
			lowest = p
		}
		if p.GreaterThan(highest) {
			highest = p
		}
	}
	last := prices[len(prices)-1]

	predicate, ok := fillPredicates[o.Type]
	if !ok {
		return decimal.Zero, false
	}
	if price, fills := predicate(o, lowest, highest, last); fills {
		return price, true
	}

	if instantFill && (o.Type == domain.BuyLimit || o.Type == domain.SellLimit) && !last.IsZero() {
		delta := o.OriginPrice.Sub(last).Abs().Div(last)
		if delta.LessThanOrEqual(InstantFillLimitPriceDelta) {
			return o.OriginPrice, true
		}
	}
	return decimal.Zero, false
}

// SimulatedFee computes the simulated fee of a fill: quantity times the
// configured maker/taker rate, charged in the received asset (base on a
// buy, quote on a sell, the quote side priced at the fill).
func SimulatedFee(o *domain.Order, fillPrice, fillQty decimal.Decimal, fees SimulatorFees) *domain.Fee {
	rate := fees.Rate(o.Type)
	if rate.IsZero() {
		return nil
	}
	if o.Side == domain.SideBuy {
		return &domain.Fee{
			Currency: o.Base(),
			Cost:     fillQty.Mul(rate),
			Rate:     rate,
		}
	}
	return &domain.Fee{
		Currency: o.Quote(),
		Cost:     fillQty.Mul(fillPrice).Mul(rate),
		Rate:     rate,
	}
}
