package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
)

// RecorderOptions are the persistence toggles.
type RecorderOptions struct {
	// SimulatedOrders also persists paper orders, not only real ones.
	SimulatedOrders bool
	// HistoricalOrderUpdates persists every order update, not only the
	// terminal snapshot.
	HistoricalOrderUpdates bool
}

// Recorder subscribes to the order and trade channels of one exchange
// and persists what flows through them. It is an ordinary consumer: slow
// disks delay only its own queue, never the producers.
type Recorder struct {
	logger       *zap.Logger
	db           *RunDatabases
	registry     *channels.Registry
	exchangeName string
	opts         RecorderOptions

	ordersConsumer *channels.Consumer
	tradesConsumer *channels.Consumer
}

func NewRecorder(db *RunDatabases, registry *channels.Registry, exchangeName string, opts RecorderOptions, logger *zap.Logger) *Recorder {
	return &Recorder{
		logger:       logger.With(zap.String("exchange", exchangeName)),
		db:           db,
		registry:     registry,
		exchangeName: exchangeName,
		opts:         opts,
	}
}

func (r *Recorder) Start() {
	ordersCh := r.registry.GetOrCreate(r.exchangeName, channels.OrdersChannelName)
	r.ordersConsumer = ordersCh.NewConsumer(r.onOrders)
	tradesCh := r.registry.GetOrCreate(r.exchangeName, channels.TradesChannelName)
	r.tradesConsumer = tradesCh.NewConsumer(r.onTrades)
}

func (r *Recorder) Stop() {
	if r.ordersConsumer != nil {
		r.registry.GetOrCreate(r.exchangeName, channels.OrdersChannelName).RemoveConsumer(r.ordersConsumer)
		r.ordersConsumer = nil
	}
	if r.tradesConsumer != nil {
		r.registry.GetOrCreate(r.exchangeName, channels.TradesChannelName).RemoveConsumer(r.tradesConsumer)
		r.tradesConsumer = nil
	}
}

func (r *Recorder) onOrders(ctx context.Context, evt channels.Event) error {
	e, ok := evt.(channels.OrdersEvent)
	if !ok {
		return nil
	}
	for _, o := range e.Orders {
		if o.Simulated && !r.opts.SimulatedOrders {
			continue
		}
		if !r.opts.HistoricalOrderUpdates && o.IsOpen() {
			continue
		}
		if err := r.db.SaveOrder(ctx, r.exchangeName, o); err != nil {
			r.logger.Error("order persistence failed",
				zap.String("order_id", o.OrderID), zap.Error(err))
		}
	}
	return nil
}

func (r *Recorder) onTrades(ctx context.Context, evt channels.Event) error {
	e, ok := evt.(channels.TradesEvent)
	if !ok {
		return nil
	}
	for _, t := range e.Trades {
		if t.Simulated && !r.opts.SimulatedOrders {
			continue
		}
		if err := r.db.SaveTrade(ctx, r.exchangeName, t); err != nil {
			r.logger.Error("trade persistence failed",
				zap.String("trade_id", t.TradeID), zap.Error(err))
		}
	}
	return nil
}
