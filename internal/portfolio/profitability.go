package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/domain"
)

// PairSubscriber extends a running ticker poller with new pairs. The
// ticker updater implements it; profitability uses it to start tracking
// pairs it needs for valuation.
type PairSubscriber interface {
	AddPairs(pairs []string)
}

// Profitability values the portfolio in the reference market and derives
// the session metrics. It is fed by mark-price/ticker updates and balance
// changes.
type Profitability struct {
	logger          *zap.Logger
	referenceMarket string
	tradedPairs     map[string]bool
	exchangePairs   map[string]bool
	subscriber      PairSubscriber

	mu                sync.Mutex
	lastPrices        map[string]decimal.Decimal
	originPrices      map[string]decimal.Decimal
	originValue       decimal.Decimal
	currentValue      decimal.Decimal
	originSet         bool
	initializingPairs map[string]bool
	missingCurrencies map[string]bool
}

// NewProfitability wires the valuation engine. tradedPairs is the
// configured pair set; exchangePairs every pair the venue lists.
func NewProfitability(referenceMarket string, tradedPairs, exchangePairs []string, subscriber PairSubscriber, logger *zap.Logger) *Profitability {
	traded := make(map[string]bool, len(tradedPairs))
	for _, s := range tradedPairs {
		traded[s] = true
	}
	listed := make(map[string]bool, len(exchangePairs))
	for _, s := range exchangePairs {
		listed[s] = true
	}
	return &Profitability{
		logger:            logger,
		referenceMarket:   referenceMarket,
		tradedPairs:       traded,
		exchangePairs:     listed,
		subscriber:        subscriber,
		lastPrices:        make(map[string]decimal.Decimal),
		originPrices:      make(map[string]decimal.Decimal),
		initializingPairs: make(map[string]bool),
		missingCurrencies: make(map[string]bool),
	}
}

// UpdatePrice records the latest price of a pair. The first price of a
// pair also becomes its origin price for market profitability.
func (p *Profitability) UpdatePrice(symbol string, price decimal.Decimal) {
	if price.LessThanOrEqual(decimal.Zero) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.originPrices[symbol]; !ok {
		p.originPrices[symbol] = price
	}
	p.lastPrices[symbol] = price
	delete(p.initializingPairs, symbol)
}

// Refresh revalues the given holdings. The first successful valuation
// fixes the session origin value. Returns the current value.
func (p *Profitability) Refresh(holdings map[string]Entry) decimal.Decimal {
	total := decimal.Zero
	for asset, e := range holdings {
		total = total.Add(p.valueOf(asset, e.Total))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentValue = total
	if !p.originSet && total.GreaterThan(decimal.Zero) && len(p.initializingPairs) == 0 {
		p.originValue = total
		p.originSet = true
	}
	return total
}

// valueOf converts a holding into the reference market. It tries
// asset/reference, then the inverted pair. A pair the venue lists but the
// engine does not track yet is subscribed through the ticker updater and
// valued 0 until its first price arrives; an asset with no usable pair at
// all is remembered and skipped thereafter.
func (p *Profitability) valueOf(asset string, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() || asset == p.referenceMarket {
		return qty
	}
	direct := domain.MergeSymbol(asset, p.referenceMarket)
	inverted := domain.MergeSymbol(p.referenceMarket, asset)

	p.mu.Lock()
	if price, ok := p.lastPrices[direct]; ok {
		p.mu.Unlock()
		return qty.Mul(price)
	}
	if price, ok := p.lastPrices[inverted]; ok && !price.IsZero() {
		p.mu.Unlock()
		return qty.Div(price)
	}
	if p.missingCurrencies[asset] {
		p.mu.Unlock()
		return decimal.Zero
	}

	var toSubscribe string
	switch {
	case p.exchangePairs[direct]:
		toSubscribe = direct
	case p.exchangePairs[inverted]:
		toSubscribe = inverted
	default:
		p.missingCurrencies[asset] = true
		p.mu.Unlock()
		p.logger.Debug("no pair to value asset, skipping from now on",
			zap.String("asset", asset))
		return decimal.Zero
	}

	alreadyInitializing := p.initializingPairs[toSubscribe]
	p.initializingPairs[toSubscribe] = true
	p.mu.Unlock()

	if !alreadyInitializing && p.subscriber != nil {
		p.logger.Info("subscribing pair for portfolio valuation",
			zap.String("pair", toSubscribe))
		p.subscriber.AddPairs([]string{toSubscribe})
	}
	return decimal.Zero
}

// Metrics returns (origin value, current value, absolute profitability,
// profitability percent).
func (p *Profitability) Metrics() (origin, current, profit, percent decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	origin = p.originValue
	current = p.currentValue
	profit = current.Sub(origin)
	if !origin.IsZero() {
		percent = current.Div(origin).Mul(decimal.NewFromInt(100)).Sub(decimal.NewFromInt(100))
	}
	return origin, current, profit, percent
}

// MarketProfitabilityPercent averages the current/origin price ratio over
// the configured traded pairs, minus 100. Quote-only currencies do not
// contribute.
func (p *Profitability) MarketProfitabilityPercent() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	sum := decimal.Zero
	count := 0
	for symbol := range p.tradedPairs {
		origin, ok := p.originPrices[symbol]
		if !ok || origin.IsZero() {
			continue
		}
		last, ok := p.lastPrices[symbol]
		if !ok {
			continue
		}
		sum = sum.Add(last.Div(origin))
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count))).Mul(decimal.NewFromInt(100)).Sub(decimal.NewFromInt(100))
}

// MissingCurrencies lists assets with no usable valuation pair.
func (p *Profitability) MissingCurrencies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.missingCurrencies))
	for asset := range p.missingCurrencies {
		out = append(out, asset)
	}
	return out
}

// InitializingPairs lists pairs awaiting their first price.
func (p *Profitability) InitializingPairs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.initializingPairs))
	for pair := range p.initializingPairs {
		out = append(out, pair)
	}
	return out
}
