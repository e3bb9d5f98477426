package usecase

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/data"
	"github.com/quantra/tradecore/internal/domain"
	"github.com/quantra/tradecore/internal/portfolio"
)

// Polling cadences. The odd numbers are deliberate: they desynchronize
// the updaters so REST bursts do not line up.
const (
	OrderBookRefreshTime     = 5 * time.Second
	OrderBookMedRefreshTime  = 9 * time.Second
	OrderBookSlowRefreshTime = 15 * time.Second
	RecentTradesRefreshTime  = 5 * time.Second
	TickerRefreshTime        = 64 * time.Second
	KlineRefreshTime         = 8 * time.Second
	BalanceRefreshTime       = 666 * time.Second
	OpenOrdersRefreshTime    = 17 * time.Second
	ClosedOrdersRefreshTime  = 32 * time.Second
	PositionsRefreshTime     = 11 * time.Second
	MarkPriceRefreshTime     = 13 * time.Second

	OHLCVInitialCandlesCount = 200
	OHLCVInitRetryDelay      = 10 * time.Second
	OHLCVMinRefreshTime      = 2 * time.Second

	ClosedOrdersFetchLimit = 200
	TradesBackfillLimit    = 100

	FundingMinSleep = 12 * time.Minute
	FundingMaxSleep = 8 * time.Hour
)

// UpdaterDeps bundles what every REST updater needs.
type UpdaterDeps struct {
	Exchange     domain.Exchange
	ExchangeName string
	Registry     *channels.Registry
	Symbols      *data.SymbolDataStore
	Personal     *data.PersonalDataStore
	Portfolio    *portfolio.Portfolio
	Pairs        []string
	TimeFrames   []domain.TimeFrame
	CryptoOf     func(symbol string) string
	Logger       *zap.Logger

	// Future is set on futures instances so the positions updater can
	// refresh the derived margin and PnL fields.
	Future *portfolio.FuturePortfolio
}

func (d UpdaterDeps) cryptocurrency(symbol string) string {
	if d.CryptoOf != nil {
		return d.CryptoOf(symbol)
	}
	base, _ := domain.SplitSymbol(symbol)
	return base
}

func (d UpdaterDeps) channel(name string) *channels.Channel {
	return d.Registry.GetOrCreate(d.ExchangeName, name)
}

// smallJitter spreads wakeups over up to two seconds.
func smallJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(2 * time.Second)))
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
