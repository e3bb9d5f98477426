package usecase

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/data"
	"github.com/quantra/tradecore/internal/domain"
)

// SimulatorEngine fills paper orders from observed market prices. It
// listens on the recent-trades and ticker channels and evaluates every
// open order that has no live counterpart on the venue: all orders in
// simulated mode, and self-managed order types in any mode.
type SimulatorEngine struct {
	logger       *zap.Logger
	trader       *Trader
	personal     *data.PersonalDataStore
	registry     *channels.Registry
	exchangeName string
	instantFill  bool

	tradesConsumer *channels.Consumer
	tickerConsumer *channels.Consumer
}

func NewSimulatorEngine(
	trader *Trader,
	personal *data.PersonalDataStore,
	registry *channels.Registry,
	exchangeName string,
	instantFill bool,
	logger *zap.Logger,
) *SimulatorEngine {
	return &SimulatorEngine{
		logger:       logger.With(zap.String("exchange", exchangeName)),
		trader:       trader,
		personal:     personal,
		registry:     registry,
		exchangeName: exchangeName,
		instantFill:  instantFill,
	}
}

// Start subscribes to the price feeds.
func (s *SimulatorEngine) Start() {
	tradesCh := s.registry.GetOrCreate(s.exchangeName, channels.RecentTradesChannelName)
	s.tradesConsumer = tradesCh.NewConsumer(s.onRecentTrades)
	tickerCh := s.registry.GetOrCreate(s.exchangeName, channels.TickerChannelName)
	s.tickerConsumer = tickerCh.NewConsumer(s.onTicker)
}

// Stop unsubscribes from the price feeds.
func (s *SimulatorEngine) Stop() {
	if s.tradesConsumer != nil {
		s.registry.GetOrCreate(s.exchangeName, channels.RecentTradesChannelName).RemoveConsumer(s.tradesConsumer)
		s.tradesConsumer = nil
	}
	if s.tickerConsumer != nil {
		s.registry.GetOrCreate(s.exchangeName, channels.TickerChannelName).RemoveConsumer(s.tickerConsumer)
		s.tickerConsumer = nil
	}
}

func (s *SimulatorEngine) onRecentTrades(ctx context.Context, evt channels.Event) error {
	e, ok := evt.(channels.RecentTradesEvent)
	if !ok || len(e.Trades) == 0 {
		return nil
	}
	prices := make([]decimal.Decimal, 0, len(e.Trades))
	for _, trade := range e.Trades {
		if !trade.Price.IsZero() {
			prices = append(prices, trade.Price)
		}
	}
	return s.EvaluateSymbol(ctx, e.Symbol, prices)
}

func (s *SimulatorEngine) onTicker(ctx context.Context, evt channels.Event) error {
	e, ok := evt.(channels.TickerEvent)
	if !ok || e.Ticker.Last.IsZero() {
		return nil
	}
	return s.EvaluateSymbol(ctx, e.Symbol, []decimal.Decimal{e.Ticker.Last})
}

// EvaluateSymbol runs the fill check of every locally simulated open
// order on the symbol against a price batch, filling the ones that
// trigger. Exposed so backtest drivers can push prices directly.
func (s *SimulatorEngine) EvaluateSymbol(ctx context.Context, symbol string, prices []decimal.Decimal) error {
	if len(prices) == 0 {
		return nil
	}
	for _, o := range s.personal.Orders.OpenOrders(symbol) {
		if !s.simulatedLocally(o) {
			continue
		}
		price, fills := CheckSimulatedFill(o, prices, s.instantFill)
		if !fills {
			continue
		}
		s.logger.Debug("simulated order triggered",
			zap.String("order_id", o.OrderID),
			zap.String("type", string(o.Type)),
			zap.String("price", price.String()))
		if err := s.trader.FillOrder(ctx, o, price, o.OriginQuantity, false); err != nil {
			s.logger.Error("simulated fill failed",
				zap.String("order_id", o.OrderID), zap.Error(err))
		}
	}
	return nil
}

// simulatedLocally reports whether this engine is responsible for the
// order's fills. Self-managed types never live on the venue.
func (s *SimulatorEngine) simulatedLocally(o *domain.Order) bool {
	return o.Simulated || o.Type.SelfManaged()
}
