package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable snapshot taken from a terminal order.
type Trade struct {
	TradeID      string
	OrderID      string
	Symbol       string
	Side         OrderSide
	Type         TraderOrderType
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Cost         decimal.Decimal
	Fee          *Fee
	Time         time.Time
	TakerOrMaker TakerOrMaker
	CloseStatus  OrderStatus
	Simulated    bool
}

// TradeFromOrder snapshots a terminal order. closeStatus distinguishes a
// fill from a cancellation record.
func TradeFromOrder(o *Order, closeStatus OrderStatus) *Trade {
	price := o.FilledPrice
	qty := o.FilledQuantity
	executed := o.ExecutedTime
	if closeStatus == StatusCanceled {
		price = o.OriginPrice
		qty = o.OriginQuantity
		executed = o.CanceledTime
	}
	return &Trade{
		TradeID:      o.OrderID,
		OrderID:      o.OrderID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Type:         o.Type,
		Price:        price,
		Quantity:     qty,
		Cost:         price.Mul(qty),
		Fee:          o.Fee,
		Time:         executed,
		TakerOrMaker: o.TakerOrMaker,
		CloseStatus:  closeStatus,
		Simulated:    o.Simulated,
	}
}
