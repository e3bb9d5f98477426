package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/data"
	"github.com/quantra/tradecore/internal/domain"
	"github.com/quantra/tradecore/internal/portfolio"
)

// Trader risk bounds; the configured risk is clamped into this range.
var (
	TraderRiskMin = decimal.NewFromFloat(0.05)
	TraderRiskMax = decimal.NewFromInt(1)
)

// TraderConfig is the subset of configuration the trader needs.
type TraderConfig struct {
	ExchangeName    string
	Simulated       bool
	Risk            decimal.Decimal
	ReferenceMarket string
	TradedPairs     []string
	Fees            SimulatorFees
	InstantFill     bool
}

// Trader turns strategy intents into consistent order, portfolio and
// channel updates. It owns the per-order state machines; the lock order
// is always order machine first, portfolio second.
type Trader struct {
	logger     *zap.Logger
	exchange   domain.Exchange
	registry   *channels.Registry
	portfolio  *portfolio.Portfolio
	personal   *data.PersonalDataStore
	symbols    *data.SymbolDataStore
	cfg        TraderConfig
	cryptoOf   func(symbol string) string

	mu       sync.Mutex
	machines map[string]*OrderMachine
}

func NewTrader(
	exchange domain.Exchange,
	registry *channels.Registry,
	pf *portfolio.Portfolio,
	personal *data.PersonalDataStore,
	symbols *data.SymbolDataStore,
	cfg TraderConfig,
	cryptoOf func(symbol string) string,
	logger *zap.Logger,
) *Trader {
	cfg.Risk = clampRisk(cfg.Risk)
	if cryptoOf == nil {
		cryptoOf = func(symbol string) string {
			base, _ := domain.SplitSymbol(symbol)
			return base
		}
	}
	return &Trader{
		logger:    logger.With(zap.String("exchange", cfg.ExchangeName)),
		exchange:  exchange,
		registry:  registry,
		portfolio: pf,
		personal:  personal,
		symbols:   symbols,
		cfg:       cfg,
		cryptoOf:  cryptoOf,
		machines:  make(map[string]*OrderMachine),
	}
}

func clampRisk(risk decimal.Decimal) decimal.Decimal {
	if risk.LessThan(TraderRiskMin) {
		return TraderRiskMin
	}
	if risk.GreaterThan(TraderRiskMax) {
		return TraderRiskMax
	}
	return risk
}

// Risk returns the clamped configured risk.
func (t *Trader) Risk() decimal.Decimal { return t.cfg.Risk }

// Machine returns the state machine of a registered order.
func (t *Trader) Machine(orderID string) (*OrderMachine, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.machines[orderID]
	return m, ok
}

// CreateOrder builds and registers an order. Unless the order is
// simulated, loaded from the exchange, or self-managed, it is submitted
// to the venue first and adopts the returned id, price and quantity.
// Funds are reserved, the state machine starts in OPEN and an open event
// is published. On insufficient funds the trader forces one real
// portfolio refresh and retries once before surfacing ErrMissingFunds.
func (t *Trader) CreateOrder(ctx context.Context, o *domain.Order, loaded bool) (*domain.Order, error) {
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	if o.CreationTime.IsZero() {
		o.CreationTime = time.Now()
	}
	if o.TakerOrMaker == "" {
		o.TakerOrMaker = o.Type.DefaultTakerOrMaker()
	}
	o.Simulated = t.cfg.Simulated
	o.IsFromThisBot = !loaded

	if !loaded && !t.cfg.Simulated && !o.Type.SelfManaged() {
		if err := t.submitOrder(ctx, o); err != nil {
			t.logger.Error("order creation failed",
				zap.String("type", string(o.Type)),
				zap.String("symbol", o.Symbol),
				zap.String("quantity", o.OriginQuantity.String()),
				zap.String("price", o.OriginPrice.String()),
				zap.Error(err))
			return nil, err
		}
	}

	t.registerOrder(o)
	if !loaded {
		t.portfolio.UpdateAvailable(o, true)
	}
	t.publishOrders(o, true)
	return o, nil
}

// submitOrder sends the order to the exchange, retrying once after a
// forced balance refresh when funds come back short.
func (t *Trader) submitOrder(ctx context.Context, o *domain.Order) error {
	err := t.sendToExchange(ctx, o)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		return err
	}
	t.logger.Warn("insufficient funds reported, refreshing portfolio and retrying once",
		zap.String("symbol", o.Symbol))
	if balance, fetchErr := t.exchange.FetchBalance(ctx); fetchErr == nil {
		t.portfolio.UpdateFromBalance(balance)
	}
	if err = t.sendToExchange(ctx, o); err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return domain.ErrMissingFunds
	}
	return err
}

func (t *Trader) sendToExchange(ctx context.Context, o *domain.Order) error {
	var raw *domain.RawOrder
	var err error
	if o.Type.MarketLike() {
		raw, err = t.exchange.CreateMarketOrder(ctx, o.Symbol, o.Side, o.OriginQuantity)
	} else {
		raw, err = t.exchange.CreateLimitOrder(ctx, o.Symbol, o.Side, o.OriginQuantity, o.OriginPrice)
	}
	if err != nil {
		return err
	}
	o.ExchangeOrderID = raw.ID
	if !raw.Price.IsZero() {
		o.OriginPrice = raw.Price
	}
	if !raw.Quantity.IsZero() {
		o.OriginQuantity = raw.Quantity
	}
	return nil
}

func (t *Trader) registerOrder(o *domain.Order) {
	o.Status = domain.StatusOpen
	t.personal.Orders.Upsert(o)
	t.mu.Lock()
	t.machines[o.OrderID] = NewOrderMachine()
	t.mu.Unlock()
}

// FillOrder runs the OPEN -> FILL -> CLOSE pass for an order: status and
// times, fees, the order-update event, the linked-order cascade, the
// portfolio update and the trade record. fromExchange marks fills
// reported by the venue, for which no call is issued back.
func (t *Trader) FillOrder(ctx context.Context, o *domain.Order, fillPrice, fillQty decimal.Decimal, fromExchange bool) error {
	m, ok := t.Machine(o.OrderID)
	if !ok {
		return domain.ErrUnknownOrder
	}
	if m.IsTerminal() {
		return nil
	}
	if !m.BeginRefresh() {
		t.logger.Debug("order already synchronizing, skipping fill",
			zap.String("order_id", o.OrderID))
		return nil
	}
	defer m.EndRefresh()
	m.SetFromExchange(fromExchange)

	if err := m.Transition(StateFill); err != nil {
		return err
	}

	o.Status = domain.StatusFilled
	o.FilledPrice = fillPrice
	o.FilledQuantity = fillQty
	o.TotalCost = fillPrice.Mul(fillQty)
	if o.ExecutedTime.IsZero() {
		o.ExecutedTime = time.Now()
	}
	if o.Fee == nil {
		o.Fee = t.computeFee(o, fillPrice, fillQty)
	}
	t.publishOrders(o, false)

	// Cancel the rest of the link group, skipping the filler.
	t.cascadeCancel(ctx, o, o.OrderID)

	t.portfolio.UpdateFromFilledOrder(o)

	trade := domain.TradeFromOrder(o, domain.StatusFilled)
	t.personal.Trades.Add(trade)
	t.publishTrade(trade)

	return m.Transition(StateClose)
}

func (t *Trader) computeFee(o *domain.Order, fillPrice, fillQty decimal.Decimal) *domain.Fee {
	if t.cfg.Simulated {
		return SimulatedFee(o, fillPrice, fillQty, t.cfg.Fees)
	}
	fee, err := t.exchange.CalculateFee(o.Symbol, o.Type.Wire(), o.Side, fillQty, fillPrice, o.TakerOrMaker)
	if err != nil {
		t.logger.Warn("fee computation failed", zap.String("symbol", o.Symbol), zap.Error(err))
		return nil
	}
	return fee
}

// CancelOptions refine a cancellation request.
type CancelOptions struct {
	// FromExchange replays the local cleanup unconditionally because the
	// venue already dropped the order.
	FromExchange bool
	// IgnoredOrderID is skipped during the linked-order cascade.
	IgnoredOrderID string
	// SkipNotify suppresses the orders event.
	SkipNotify bool
}

// CancelOrder cancels an order. Idempotent: a terminal order is a no-op
// unless FromExchange forces the cleanup replay. Exchange-held orders
// get one silent retry; two consecutive failures surface a CancelError.
// OrderNotFound counts as already cancelled.
func (t *Trader) CancelOrder(ctx context.Context, o *domain.Order, opts CancelOptions) error {
	m, ok := t.Machine(o.OrderID)
	if !ok {
		return domain.ErrUnknownOrder
	}
	if m.IsTerminal() && !opts.FromExchange {
		return nil
	}
	if !m.BeginRefresh() {
		t.logger.Debug("order already synchronizing, skipping cancel",
			zap.String("order_id", o.OrderID))
		return nil
	}
	defer m.EndRefresh()
	m.SetFromExchange(opts.FromExchange)

	if !opts.FromExchange && !t.cfg.Simulated && !o.Type.SelfManaged() {
		if err := t.cancelOnExchange(ctx, o); err != nil {
			return err
		}
	}

	alreadyTerminal := m.IsTerminal()
	if !alreadyTerminal {
		if err := m.Transition(StateCancel); err != nil {
			return err
		}
	}

	o.Status = domain.StatusCanceled
	if o.CanceledTime.IsZero() {
		o.CanceledTime = time.Now()
	}

	if !alreadyTerminal {
		trade := domain.TradeFromOrder(o, domain.StatusCanceled)
		t.personal.Trades.Add(trade)
		t.publishTrade(trade)
		t.portfolio.UpdateAvailable(o, false)
	}

	t.cascadeCancel(ctx, o, opts.IgnoredOrderID)
	if !opts.SkipNotify {
		t.publishOrders(o, false)
	}
	return nil
}

// cancelOnExchange sends the cancel, retrying once. OrderNotFound means
// the venue already dropped it: proceed with local cleanup.
func (t *Trader) cancelOnExchange(ctx context.Context, o *domain.Order) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = t.exchange.CancelOrder(ctx, o.ExchangeOrderID, o.Symbol)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrOrderNotFound) {
			t.logger.Debug("order already gone on exchange",
				zap.String("order_id", o.OrderID))
			return nil
		}
	}
	return &domain.CancelError{OrderID: o.OrderID, Symbol: o.Symbol, Err: err}
}

// cascadeCancel walks the link graph once with a visited set, cancelling
// every reachable order except ignoredID.
func (t *Trader) cascadeCancel(ctx context.Context, from *domain.Order, ignoredID string) {
	visited := map[string]bool{from.OrderID: true}
	queue := append([]string(nil), from.LinkedOrders...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if id == ignoredID {
			continue
		}
		linked, ok := t.personal.Orders.Get(id)
		if !ok {
			continue
		}
		queue = append(queue, linked.LinkedOrders...)
		if err := t.CancelOrder(ctx, linked, CancelOptions{IgnoredOrderID: from.OrderID}); err != nil {
			t.logger.Error("linked order cancellation failed",
				zap.String("order_id", id), zap.Error(err))
		}
	}
}

// CancelOrderWithID cancels the arena order with the given id.
func (t *Trader) CancelOrderWithID(ctx context.Context, orderID string) error {
	o, ok := t.personal.Orders.Get(orderID)
	if !ok {
		return domain.ErrUnknownOrder
	}
	return t.CancelOrder(ctx, o, CancelOptions{})
}

// CancelOpenOrders cancels every open order on a symbol. Orders loaded
// from the exchange (not created by this bot) are skipped unless
// cancelLoaded is set.
func (t *Trader) CancelOpenOrders(ctx context.Context, symbol string, cancelLoaded bool) error {
	var firstErr error
	for _, o := range t.personal.Orders.OpenOrders(symbol) {
		if !cancelLoaded && !o.IsFromThisBot {
			continue
		}
		if err := t.CancelOrder(ctx, o, CancelOptions{}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CancelAllOpenOrdersWithCurrency cancels every open order whose symbol
// involves the currency on either side.
func (t *Trader) CancelAllOpenOrdersWithCurrency(ctx context.Context, currency string) error {
	var firstErr error
	for _, o := range t.personal.Orders.OpenOrders("") {
		base, quote := domain.SplitSymbol(o.Symbol)
		if base != currency && quote != currency {
			continue
		}
		if err := t.CancelOrder(ctx, o, CancelOptions{}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CancelAllOpenOrders cancels everything currently open.
func (t *Trader) CancelAllOpenOrders(ctx context.Context) error {
	var firstErr error
	for _, o := range t.personal.Orders.OpenOrders("") {
		if err := t.CancelOrder(ctx, o, CancelOptions{}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SellAll liquidates holdings into the reference market with market
// orders. With a nil currency list every held asset with a usable pair
// is sold. When only the inverted pair exists (the reference market is
// the base), a buy is submitted whose quantity is holding / price.
// Venue minimum amount and cost are respected. With a positive timeout
// the call waits for each created order to terminate.
func (t *Trader) SellAll(ctx context.Context, currenciesToSell []string, timeout time.Duration) ([]*domain.Order, error) {
	assets := currenciesToSell
	if len(assets) == 0 {
		assets = t.portfolio.Assets()
	}
	wanted := make(map[string]bool, len(assets))
	for _, a := range assets {
		wanted[a] = true
	}

	var created []*domain.Order
	for asset := range wanted {
		if asset == t.cfg.ReferenceMarket {
			continue
		}
		o := t.sellAllOrderFor(ctx, asset)
		if o == nil {
			continue
		}
		placed, err := t.CreateOrder(ctx, o, false)
		if err != nil {
			t.logger.Error("sell-all order failed",
				zap.String("asset", asset), zap.Error(err))
			continue
		}
		created = append(created, placed)
	}

	if timeout > 0 {
		for _, o := range created {
			if m, ok := t.Machine(o.OrderID); ok {
				if err := m.WaitForTermination(ctx, timeout); err != nil {
					return created, err
				}
			}
		}
	}
	return created, nil
}

// sellAllOrderFor builds the liquidation order of one asset, or nil when
// no pair, price or sufficient quantity exists.
func (t *Trader) sellAllOrderFor(ctx context.Context, asset string) *domain.Order {
	entry := t.portfolio.Entry(asset)
	if entry.Available.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	direct := domain.MergeSymbol(asset, t.cfg.ReferenceMarket)
	inverted := domain.MergeSymbol(t.cfg.ReferenceMarket, asset)

	if t.hasPair(direct) {
		price := t.lastPrice(ctx, direct)
		if price.IsZero() {
			return nil
		}
		qty := entry.Available
		if !t.meetsLimits(direct, qty, price) {
			return nil
		}
		return &domain.Order{
			Symbol:         direct,
			Side:           domain.SideSell,
			Type:           domain.SellMarket,
			OriginPrice:    price,
			OriginQuantity: qty,
		}
	}
	if t.hasPair(inverted) {
		price := t.lastPrice(ctx, inverted)
		if price.IsZero() {
			return nil
		}
		qty := entry.Available.Div(price)
		if !t.meetsLimits(inverted, qty, price) {
			return nil
		}
		return &domain.Order{
			Symbol:         inverted,
			Side:           domain.SideBuy,
			Type:           domain.BuyMarket,
			OriginPrice:    price,
			OriginQuantity: qty,
		}
	}
	return nil
}

func (t *Trader) hasPair(symbol string) bool {
	for _, p := range t.cfg.TradedPairs {
		if p == symbol {
			return true
		}
	}
	for _, p := range t.exchange.Symbols() {
		if p == symbol {
			return true
		}
	}
	return false
}

// lastPrice resolves the current price of a pair from the mark price
// store, falling back to the venue mark price endpoint.
func (t *Trader) lastPrice(ctx context.Context, symbol string) decimal.Decimal {
	if price, ok := t.symbols.Symbol(symbol).MarkPrice.Value(); ok {
		return price
	}
	price, err := t.exchange.GetMarkPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// meetsLimits enforces the venue's minimum amount and cost.
func (t *Trader) meetsLimits(symbol string, qty, price decimal.Decimal) bool {
	market, err := t.exchange.Market(symbol)
	if err != nil || market == nil {
		return true
	}
	if !market.Limits.MinAmount.IsZero() && qty.LessThan(market.Limits.MinAmount) {
		return false
	}
	cost := qty.Mul(price)
	if !market.Limits.MinCost.IsZero() && cost.LessThan(market.Limits.MinCost) {
		return false
	}
	return true
}

func (t *Trader) publishOrders(o *domain.Order, isNew bool) {
	ch := t.registry.GetOrCreate(t.cfg.ExchangeName, channels.OrdersChannelName)
	ch.Publish(channels.OrdersEvent{
		Cryptocurrency: t.cryptoOf(o.Symbol),
		Symbol:         o.Symbol,
		Orders:         []*domain.Order{o},
		IsNew:          isNew,
		IsFromBot:      o.IsFromThisBot,
	})
}

func (t *Trader) publishTrade(trade *domain.Trade) {
	ch := t.registry.GetOrCreate(t.cfg.ExchangeName, channels.TradesChannelName)
	ch.Publish(channels.TradesEvent{
		Cryptocurrency: t.cryptoOf(trade.Symbol),
		Symbol:         trade.Symbol,
		Trades:         []*domain.Trade{trade},
	})
}

// PairsWithCurrency lists the configured pairs that involve a currency,
// used when cancelling by currency from strategy code.
func (t *Trader) PairsWithCurrency(currency string) []string {
	var out []string
	for _, p := range t.cfg.TradedPairs {
		if strings.Contains(p, currency) {
			base, quote := domain.SplitSymbol(p)
			if base == currency || quote == currency {
				out = append(out, p)
			}
		}
	}
	return out
}
