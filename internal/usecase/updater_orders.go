package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/domain"
)

// OpenOrdersUpdater reconciles the venue's open-order list with the
// local arena: orders the venue knows but we do not are adopted as
// loaded orders; orders we hold as open but the venue no longer lists
// are resolved through a point fetch into a fill or a cancellation.
type OpenOrdersUpdater struct {
	*Updater
	deps   UpdaterDeps
	trader *Trader
}

func NewOpenOrdersUpdater(deps UpdaterDeps, trader *Trader) *OpenOrdersUpdater {
	return &OpenOrdersUpdater{
		Updater: newUpdater(channels.OrdersChannelName, deps.Logger),
		deps:    deps,
		trader:  trader,
	}
}

func (u *OpenOrdersUpdater) Start(ctx context.Context) error {
	// Initial synchronization before the cadence starts, unless the
	// channel paused us at registration.
	if !u.IsPaused() {
		if err := u.tick(ctx); err != nil {
			u.handleTickError(err)
		}
	}
	return u.start(ctx, fixedInterval(OpenOrdersRefreshTime), u.tick)
}

func (u *OpenOrdersUpdater) tick(ctx context.Context) error {
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		raws, err := u.deps.Exchange.FetchOpenOrders(ctx, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		venueOpen := make(map[string]bool, len(raws))
		for i := range raws {
			venueOpen[raws[i].ID] = true
			u.adoptIfUnknown(ctx, &raws[i])
		}
		u.resolveMissing(ctx, symbol, venueOpen)
	}
	return firstErr
}

// adoptIfUnknown registers an exchange-held order we have no record of.
// Malformed rows are logged and skipped, never fatal.
func (u *OpenOrdersUpdater) adoptIfUnknown(ctx context.Context, raw *domain.RawOrder) {
	if _, ok := u.deps.Personal.Orders.GetByExchangeID(raw.ID); ok {
		return
	}
	o, err := domain.OrderFromRaw(raw, u.deps.Exchange.ParseOrderStatus)
	if err != nil {
		u.logger.Warn("skipping malformed exchange order",
			zap.String("exchange_order_id", raw.ID),
			zap.String("symbol", raw.Symbol),
			zap.Error(err))
		return
	}
	if !o.Status.IsOpen() {
		return
	}
	if _, err := u.trader.CreateOrder(ctx, o, true); err != nil {
		u.logger.Error("adopting exchange order failed",
			zap.String("exchange_order_id", raw.ID), zap.Error(err))
	}
}

// resolveMissing handles local open orders the venue stopped listing: a
// point fetch decides between fill and cancellation. An order the venue
// never heard of is treated as cancelled there.
func (u *OpenOrdersUpdater) resolveMissing(ctx context.Context, symbol string, venueOpen map[string]bool) {
	for _, o := range u.deps.Personal.Orders.OpenOrders(symbol) {
		if o.Simulated || o.Type.SelfManaged() || o.ExchangeOrderID == "" {
			continue
		}
		if venueOpen[o.ExchangeOrderID] {
			continue
		}
		raw, err := u.deps.Exchange.FetchOrder(ctx, o.ExchangeOrderID, o.Symbol)
		if errors.Is(err, domain.ErrOrderNotFound) {
			u.cancelFromExchange(ctx, o)
			continue
		}
		if err != nil {
			// Transient: leave the order open, next cadence retries.
			u.logger.Debug("order point fetch failed",
				zap.String("order_id", o.OrderID), zap.Error(err))
			continue
		}
		switch u.deps.Exchange.ParseOrderStatus(raw.Status) {
		case domain.StatusFilled, domain.StatusClosed:
			price := raw.Price
			if !raw.Cost.IsZero() && !raw.Filled.IsZero() {
				price = raw.Cost.Div(raw.Filled)
			}
			qty := raw.Filled
			if qty.IsZero() {
				qty = o.OriginQuantity
			}
			if err := u.trader.FillOrder(ctx, o, price, qty, true); err != nil {
				u.logger.Error("exchange-driven fill failed",
					zap.String("order_id", o.OrderID), zap.Error(err))
			}
		case domain.StatusCanceled, domain.StatusExpired, domain.StatusRejected:
			u.cancelFromExchange(ctx, o)
		}
	}
}

func (u *OpenOrdersUpdater) cancelFromExchange(ctx context.Context, o *domain.Order) {
	if err := u.trader.CancelOrder(ctx, o, CancelOptions{FromExchange: true}); err != nil {
		u.logger.Error("exchange-driven cancel failed",
			zap.String("order_id", o.OrderID), zap.Error(err))
	}
}

// ClosedOrdersUpdater backfills recently closed orders so restarts do
// not lose fills that happened while the bot was down.
type ClosedOrdersUpdater struct {
	*Updater
	deps   UpdaterDeps
	trader *Trader
}

func NewClosedOrdersUpdater(deps UpdaterDeps, trader *Trader) *ClosedOrdersUpdater {
	return &ClosedOrdersUpdater{
		Updater: newUpdater("CLOSED_" + channels.OrdersChannelName, deps.Logger),
		deps:    deps,
		trader:  trader,
	}
}

func (u *ClosedOrdersUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(ClosedOrdersRefreshTime), u.tick)
}

func (u *ClosedOrdersUpdater) tick(ctx context.Context) error {
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		raws, err := u.deps.Exchange.FetchClosedOrders(ctx, symbol, ClosedOrdersFetchLimit)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for i := range raws {
			u.applyClosed(ctx, &raws[i])
		}
	}
	return firstErr
}

func (u *ClosedOrdersUpdater) applyClosed(ctx context.Context, raw *domain.RawOrder) {
	o, ok := u.deps.Personal.Orders.GetByExchangeID(raw.ID)
	if !ok || !o.IsOpen() {
		return
	}
	switch u.deps.Exchange.ParseOrderStatus(raw.Status) {
	case domain.StatusFilled, domain.StatusClosed:
		price := raw.Price
		if !raw.Cost.IsZero() && !raw.Filled.IsZero() {
			price = raw.Cost.Div(raw.Filled)
		}
		qty := raw.Filled
		if qty.IsZero() {
			qty = o.OriginQuantity
		}
		if err := u.trader.FillOrder(ctx, o, price, qty, true); err != nil {
			u.logger.Error("closed-order fill failed",
				zap.String("order_id", o.OrderID), zap.Error(err))
		}
	case domain.StatusCanceled, domain.StatusExpired, domain.StatusRejected:
		if err := u.trader.CancelOrder(ctx, o, CancelOptions{FromExchange: true}); err != nil {
			u.logger.Error("closed-order cancel failed",
				zap.String("order_id", o.OrderID), zap.Error(err))
		}
	}
}
