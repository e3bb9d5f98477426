package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantra/tradecore/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func prices(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = dec(v)
	}
	return out
}

func TestCheckSimulatedFill(t *testing.T) {
	tests := []struct {
		name      string
		order     *domain.Order
		prices    []decimal.Decimal
		wantFill  bool
		wantPrice string
	}{
		{
			name:      "market buy fills at last price",
			order:     &domain.Order{Side: domain.SideBuy, Type: domain.BuyMarket},
			prices:    prices("100", "102", "101"),
			wantFill:  true,
			wantPrice: "101",
		},
		{
			name:      "limit buy fills when lowest reaches origin",
			order:     &domain.Order{Side: domain.SideBuy, Type: domain.BuyLimit, OriginPrice: dec("99")},
			prices:    prices("101", "98.5", "100"),
			wantFill:  true,
			wantPrice: "99",
		},
		{
			name:     "limit buy stays open above origin",
			order:    &domain.Order{Side: domain.SideBuy, Type: domain.BuyLimit, OriginPrice: dec("95")},
			prices:   prices("101", "98.5", "100"),
			wantFill: false,
		},
		{
			name:      "limit sell fills when highest reaches origin",
			order:     &domain.Order{Side: domain.SideSell, Type: domain.SellLimit, OriginPrice: dec("102")},
			prices:    prices("100", "103", "101"),
			wantFill:  true,
			wantPrice: "102",
		},
		{
			name:      "stop loss sell triggers at trigger price",
			order:     &domain.Order{Side: domain.SideSell, Type: domain.StopLoss, OriginPrice: dec("90")},
			prices:    prices("95", "89", "92"),
			wantFill:  true,
			wantPrice: "90",
		},
		{
			name:     "stop loss sell above trigger stays open",
			order:    &domain.Order{Side: domain.SideSell, Type: domain.StopLoss, OriginPrice: dec("90")},
			prices:   prices("95", "91", "92"),
			wantFill: false,
		},
		{
			name:      "stop loss buy triggers from below",
			order:     &domain.Order{Side: domain.SideBuy, Type: domain.StopLoss, OriginPrice: dec("110")},
			prices:    prices("105", "111"),
			wantFill:  true,
			wantPrice: "110",
		},
		{
			name:      "take profit sell triggers on the way up",
			order:     &domain.Order{Side: domain.SideSell, Type: domain.TakeProfit, OriginStopPrice: dec("120")},
			prices:    prices("118", "121"),
			wantFill:  true,
			wantPrice: "120",
		},
		{
			name:      "take profit buy triggers on the way down",
			order:     &domain.Order{Side: domain.SideBuy, Type: domain.TakeProfit, OriginStopPrice: dec("80")},
			prices:    prices("85", "79"),
			wantFill:  true,
			wantPrice: "80",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, fills := CheckSimulatedFill(tt.order, tt.prices, false)
			require.Equal(t, tt.wantFill, fills)
			if tt.wantFill {
				assert.True(t, dec(tt.wantPrice).Equal(price),
					"want %s got %s", tt.wantPrice, price)
			}
		})
	}
}

func TestCheckSimulatedFillInstantFill(t *testing.T) {
	// 100.4 is within 0.5% of the last price 100.
	order := &domain.Order{Side: domain.SideBuy, Type: domain.BuyLimit, OriginPrice: dec("100.4")}
	batch := prices("101", "100.6", "100")

	_, fills := CheckSimulatedFill(order, batch, false)
	require.False(t, fills, "without instant fill the limit is not reached")

	price, fills := CheckSimulatedFill(order, batch, true)
	require.True(t, fills)
	assert.True(t, dec("100.4").Equal(price))

	// 0.6% away: no instant fill either way.
	far := &domain.Order{Side: domain.SideBuy, Type: domain.BuyLimit, OriginPrice: dec("99.4")}
	_, fills = CheckSimulatedFill(far, batch, true)
	assert.False(t, fills)
}

func TestCheckSimulatedFillInstantFillPlainLimitsOnly(t *testing.T) {
	// Sell take-profit at 100.4, prices never reach the trigger. The
	// trigger sits within the instant-fill delta of the last price, but
	// the shortcut applies to plain limit orders only.
	order := &domain.Order{Side: domain.SideSell, Type: domain.TakeProfitLimit, OriginPrice: dec("100.4")}
	batch := prices("99", "99.5", "100")

	_, fills := CheckSimulatedFill(order, batch, true)
	assert.False(t, fills, "a take-profit limit must wait for its trigger")
}

func TestCheckSimulatedFillEmptyBatch(t *testing.T) {
	order := &domain.Order{Side: domain.SideBuy, Type: domain.BuyMarket}
	_, fills := CheckSimulatedFill(order, nil, true)
	assert.False(t, fills)
}

func TestSimulatedFee(t *testing.T) {
	fees := SimulatorFees{Maker: dec("0.001"), Taker: dec("0.002")}

	buy := &domain.Order{Symbol: "BTC/USDT", Side: domain.SideBuy, Type: domain.BuyMarket}
	fee := SimulatedFee(buy, dec("100"), dec("2"), fees)
	require.NotNil(t, fee)
	assert.Equal(t, "BTC", fee.Currency)
	assert.True(t, dec("0.004").Equal(fee.Cost), "taker rate on the base quantity")

	sell := &domain.Order{Symbol: "BTC/USDT", Side: domain.SideSell, Type: domain.SellLimit}
	fee = SimulatedFee(sell, dec("100"), dec("2"), fees)
	require.NotNil(t, fee)
	assert.Equal(t, "USDT", fee.Currency)
	assert.True(t, dec("0.2").Equal(fee.Cost), "maker rate on the quote value")

	assert.Nil(t, SimulatedFee(buy, dec("100"), dec("2"), SimulatorFees{}))
}
