package usecase

import (
	"context"
	"time"

	"github.com/quantra/tradecore/internal/channels"
)

// OrderBookUpdater cycles over the traded symbols and refreshes the
// book snapshots. The cadence backs off with the number of symbols so a
// large watch list does not hammer the venue.
type OrderBookUpdater struct {
	*Updater
	deps  UpdaterDeps
	depth int
}

func NewOrderBookUpdater(deps UpdaterDeps, depth int) *OrderBookUpdater {
	if depth <= 0 {
		depth = 20
	}
	return &OrderBookUpdater{
		Updater: newUpdater(channels.OrderBookChannelName, deps.Logger),
		deps:    deps,
		depth:   depth,
	}
}

func (u *OrderBookUpdater) Start(ctx context.Context) error {
	return u.start(ctx, u.interval, u.tick)
}

// interval picks the 5/9/15s step from the watch list size.
func (u *OrderBookUpdater) interval() time.Duration {
	switch n := len(u.deps.Pairs); {
	case n <= 3:
		return OrderBookRefreshTime
	case n <= 10:
		return OrderBookMedRefreshTime
	default:
		return OrderBookSlowRefreshTime
	}
}

func (u *OrderBookUpdater) tick(ctx context.Context) error {
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		book, err := u.deps.Exchange.FetchOrderBook(ctx, symbol, u.depth)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		u.deps.Symbols.Symbol(symbol).OrderBook.Update(book.Asks, book.Bids)
		u.deps.channel(channels.OrderBookChannelName).Publish(channels.OrderBookEvent{
			Cryptocurrency: u.deps.cryptocurrency(symbol),
			Symbol:         symbol,
			Asks:           book.Asks,
			Bids:           book.Bids,
		})
	}
	return firstErr
}
