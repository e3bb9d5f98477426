package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// TraderOrderType is the granular internal order kind.
type TraderOrderType string

const (
	BuyMarket         TraderOrderType = "BUY_MARKET"
	SellMarket        TraderOrderType = "SELL_MARKET"
	BuyLimit          TraderOrderType = "BUY_LIMIT"
	SellLimit         TraderOrderType = "SELL_LIMIT"
	StopLoss          TraderOrderType = "STOP_LOSS"
	StopLossLimit     TraderOrderType = "STOP_LOSS_LIMIT"
	TakeProfit        TraderOrderType = "TAKE_PROFIT"
	TakeProfitLimit   TraderOrderType = "TAKE_PROFIT_LIMIT"
	TrailingStop      TraderOrderType = "TRAILING_STOP"
	TrailingStopLimit TraderOrderType = "TRAILING_STOP_LIMIT"
	UnknownOrderType  TraderOrderType = "UNKNOWN"
)

// TradeOrderType is the standardized wire-level order type.
type TradeOrderType string

const (
	WireMarket            TradeOrderType = "market"
	WireLimit             TradeOrderType = "limit"
	WireStopLoss          TradeOrderType = "stop_loss"
	WireStopLossLimit     TradeOrderType = "stop_loss_limit"
	WireTakeProfit        TradeOrderType = "take_profit"
	WireTakeProfitLimit   TradeOrderType = "take_profit_limit"
	WireTrailingStop      TradeOrderType = "trailing_stop"
	WireTrailingStopLimit TradeOrderType = "trailing_stop_limit"
	WireUnknown           TradeOrderType = "unknown"
)

type OrderStatus string

const (
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusClosed          OrderStatus = "closed"
	StatusCanceled        OrderStatus = "canceled"
	StatusPendingCancel   OrderStatus = "pending_cancel"
	StatusExpired         OrderStatus = "expired"
	StatusRejected        OrderStatus = "rejected"
)

// IsOpen reports whether the status still counts as a live order.
func (s OrderStatus) IsOpen() bool {
	switch s {
	case StatusOpen, StatusPartiallyFilled, StatusPendingCancel:
		return true
	}
	return false
}

type TakerOrMaker string

const (
	Taker TakerOrMaker = "taker"
	Maker TakerOrMaker = "maker"
)

// wireTypes collapses granular trader types to their wire-level form.
var wireTypes = map[TraderOrderType]TradeOrderType{
	BuyMarket:         WireMarket,
	SellMarket:        WireMarket,
	BuyLimit:          WireLimit,
	SellLimit:         WireLimit,
	StopLoss:          WireStopLoss,
	StopLossLimit:     WireStopLossLimit,
	TakeProfit:        WireTakeProfit,
	TakeProfitLimit:   WireTakeProfitLimit,
	TrailingStop:      WireTrailingStop,
	TrailingStopLimit: WireTrailingStopLimit,
	UnknownOrderType:  WireUnknown,
}

func (t TraderOrderType) Wire() TradeOrderType {
	if wt, ok := wireTypes[t]; ok {
		return wt
	}
	return WireUnknown
}

// Side returns the side implied by the order type, or "" when the type is
// side-neutral (stops and take-profits can go either way).
func (t TraderOrderType) Side() OrderSide {
	switch t {
	case BuyMarket, BuyLimit:
		return SideBuy
	case SellMarket, SellLimit:
		return SideSell
	}
	return ""
}

// SelfManaged order types are tracked by the core rather than submitted to
// the venue, and never reserve available funds.
func (t TraderOrderType) SelfManaged() bool {
	switch t {
	case StopLoss, StopLossLimit, TakeProfit, TakeProfitLimit, TrailingStop, TrailingStopLimit:
		return true
	}
	return false
}

// ReservesAvailable reports whether opening an order of this type locks
// available funds in the portfolio.
func (t TraderOrderType) ReservesAvailable() bool {
	return !t.SelfManaged()
}

func (t TraderOrderType) MarketLike() bool {
	return t == BuyMarket || t == SellMarket
}

func (t TraderOrderType) LimitLike() bool {
	switch t {
	case BuyLimit, SellLimit, StopLossLimit, TakeProfitLimit, TrailingStopLimit:
		return true
	}
	return false
}

func (t TraderOrderType) StopLike() bool {
	switch t {
	case StopLoss, StopLossLimit, TrailingStop, TrailingStopLimit:
		return true
	}
	return false
}

// DefaultTakerOrMaker keeps the source heuristic: limit-like orders are
// treated as maker, market-like as taker.
func (t TraderOrderType) DefaultTakerOrMaker() TakerOrMaker {
	if t.LimitLike() {
		return Maker
	}
	return Taker
}

// ParseOrderType resolves a raw wire type plus side into the granular
// trader type. Unknown raw types map to UnknownOrderType; a raw type that
// contradicts the given side is an error.
func ParseOrderType(rawType string, side OrderSide) (TraderOrderType, error) {
	switch TradeOrderType(strings.ToLower(rawType)) {
	case WireMarket:
		if side == SideSell {
			return SellMarket, nil
		}
		return BuyMarket, nil
	case WireLimit:
		if side == SideSell {
			return SellLimit, nil
		}
		return BuyLimit, nil
	case WireStopLoss:
		return StopLoss, nil
	case WireStopLossLimit:
		return StopLossLimit, nil
	case WireTakeProfit:
		return TakeProfit, nil
	case WireTakeProfitLimit:
		return TakeProfitLimit, nil
	case WireTrailingStop:
		return TrailingStop, nil
	case WireTrailingStopLimit:
		return TrailingStopLimit, nil
	}
	if side != SideBuy && side != SideSell {
		return UnknownOrderType, fmt.Errorf("%w: type %q side %q", ErrOrderSideMismatch, rawType, side)
	}
	return UnknownOrderType, nil
}

// Fee describes the cost of a fill.
type Fee struct {
	Currency string
	Cost     decimal.Decimal
	Rate     decimal.Decimal
}

// Order is the core order entity. State transitions are driven by the
// order machine in usecase; the entity itself is plain data plus a few
// derived accessors. Linked orders are referenced by id so the link graph
// never forms object cycles.
type Order struct {
	OrderID         string
	ExchangeOrderID string
	Symbol          string
	Side            OrderSide
	Type            TraderOrderType
	Status          OrderStatus

	OriginPrice     decimal.Decimal
	OriginQuantity  decimal.Decimal
	OriginStopPrice decimal.Decimal
	FilledPrice     decimal.Decimal
	FilledQuantity  decimal.Decimal
	TotalCost       decimal.Decimal
	Fee             *Fee

	CreationTime time.Time
	ExecutedTime time.Time
	CanceledTime time.Time

	TakerOrMaker TakerOrMaker
	LinkedTo     string
	LinkedOrders []string

	IsFromThisBot bool
	Simulated     bool
	Reduced       bool
}

// Base returns the base asset of the order's symbol ("BTC" in "BTC/USDT").
func (o *Order) Base() string {
	base, _ := SplitSymbol(o.Symbol)
	return base
}

// Quote returns the quote asset of the order's symbol.
func (o *Order) Quote() string {
	_, quote := SplitSymbol(o.Symbol)
	return quote
}

func (o *Order) IsOpen() bool {
	return o.Status.IsOpen()
}

func (o *Order) IsFilled() bool {
	return o.Status == StatusFilled || o.Status == StatusClosed && !o.FilledQuantity.IsZero()
}

func (o *Order) IsCanceled() bool {
	return o.Status == StatusCanceled || o.Status == StatusExpired || o.Status == StatusRejected
}

// AddLinkedOrder records a symmetric link between two orders. Both sides
// hold each other's id after the call.
func AddLinkedOrder(a, b *Order) {
	if a == nil || b == nil || a.OrderID == b.OrderID {
		return
	}
	if !containsID(a.LinkedOrders, b.OrderID) {
		a.LinkedOrders = append(a.LinkedOrders, b.OrderID)
	}
	if !containsID(b.LinkedOrders, a.OrderID) {
		b.LinkedOrders = append(b.LinkedOrders, a.OrderID)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// SplitSymbol splits "BASE/QUOTE" pairs. Returns empty strings on
// malformed symbols.
func SplitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// MergeSymbol joins base and quote into the canonical pair form.
func MergeSymbol(base, quote string) string {
	return base + "/" + quote
}
