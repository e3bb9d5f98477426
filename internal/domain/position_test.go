package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quantra/tradecore/internal/domain"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestLinearPositionMath(t *testing.T) {
	p := &domain.Position{
		Symbol:     "BTC/USDT",
		Side:       domain.PositionLong,
		Contract:   domain.LinearContract,
		Quantity:   d(2),
		EntryPrice: d(100),
		Leverage:   d(10),
	}

	assert.True(t, p.Value(d(110)).Equal(d(220)))
	assert.True(t, p.PnL(d(110)).Equal(d(20)))
	assert.True(t, p.RequiredInitialMargin().Equal(d(20)))

	p.Side = domain.PositionShort
	assert.True(t, p.PnL(d(110)).Equal(d(-20)))
	assert.True(t, p.PnL(d(90)).Equal(d(20)))
}

func TestInversePositionMath(t *testing.T) {
	p := &domain.Position{
		Symbol:     "BTC/USD",
		Side:       domain.PositionLong,
		Contract:   domain.InverseContract,
		Quantity:   d(1000),
		EntryPrice: d(100),
		Leverage:   d(10),
	}

	// value = qty / mark
	assert.True(t, p.Value(d(125)).Equal(d(8)))
	// pnl = qty * (1/entry - 1/mark) = 1000 * (0.01 - 0.008) = 2
	assert.True(t, p.PnL(d(125)).Equal(d(2)))
	// im = qty / (entry * leverage) = 1000 / 1000 = 1
	assert.True(t, p.RequiredInitialMargin().Equal(d(1)))
}

func TestLiquidationPriceAndCheck(t *testing.T) {
	long := &domain.Position{
		Side:       domain.PositionLong,
		Contract:   domain.LinearContract,
		Quantity:   d(1),
		EntryPrice: d(100),
		Leverage:   d(10),
	}
	mmRate := decimal.NewFromFloat(0.005)

	// entry * (1 - 1/leverage + mm_rate) = 100 * 0.905
	liq := long.ComputeLiquidationPrice(mmRate)
	assert.True(t, liq.Equal(decimal.NewFromFloat(90.5)), "got %s", liq)

	long.LiquidationPrice = liq
	assert.False(t, long.ShouldLiquidate(d(95)))
	assert.True(t, long.ShouldLiquidate(d(90)))

	short := &domain.Position{
		Side:       domain.PositionShort,
		Contract:   domain.LinearContract,
		Quantity:   d(1),
		EntryPrice: d(100),
		Leverage:   d(10),
	}
	liq = short.ComputeLiquidationPrice(mmRate)
	assert.True(t, liq.Equal(decimal.NewFromFloat(109.5)), "got %s", liq)

	short.LiquidationPrice = liq
	assert.False(t, short.ShouldLiquidate(d(105)))
	assert.True(t, short.ShouldLiquidate(d(110)))
}
