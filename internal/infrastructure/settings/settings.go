// Package settings reads the environment-variable tuning knobs. They
// override nothing in the config file; the two surfaces are disjoint:
// the file describes what to trade, the environment tunes how the
// process behaves.
package settings

import (
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved environment surface.
type Settings struct {
	AllowSimulatedOrdersInstantFill bool
	DefaultRequestTimeout           time.Duration
	ThrottledWSUpdates              time.Duration
	MaxCandlesInRAM                 int
	MaxTradesCount                  int

	EnableLiveCandlesStorage             bool
	EnableHistoricalOrdersUpdatesStorage bool
	EnableSimulatedOrdersStorage         bool

	AuthUpdateDebounceDuration time.Duration
	ForcedMarginType           string
}

// Load resolves every knob with its default.
func Load() Settings {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ALLOW_SIMULATED_ORDERS_INSTANT_FILL", false)
	v.SetDefault("DEFAULT_REQUEST_TIMEOUT", 20000)
	v.SetDefault("THROTTLED_WS_UPDATES", 0.0)
	v.SetDefault("MAX_CANDLES_IN_RAM", 0)
	v.SetDefault("MAX_TRADES_COUNT", 10000)
	v.SetDefault("ENABLE_LIVE_CANDLES_STORAGE", false)
	v.SetDefault("ENABLE_HISTORICAL_ORDERS_UPDATES_STORAGE", false)
	v.SetDefault("ENABLE_SIMULATED_ORDERS_STORAGE", false)
	v.SetDefault("AUTH_UPDATE_DEBOUNCE_DURATION", 5000)
	v.SetDefault("FORCED_MARGIN_TYPE", "")

	return Settings{
		AllowSimulatedOrdersInstantFill: v.GetBool("ALLOW_SIMULATED_ORDERS_INSTANT_FILL"),
		DefaultRequestTimeout:           time.Duration(v.GetInt("DEFAULT_REQUEST_TIMEOUT")) * time.Millisecond,
		ThrottledWSUpdates:              time.Duration(v.GetFloat64("THROTTLED_WS_UPDATES") * float64(time.Second)),
		MaxCandlesInRAM:                 v.GetInt("MAX_CANDLES_IN_RAM"),
		MaxTradesCount:                  v.GetInt("MAX_TRADES_COUNT"),

		EnableLiveCandlesStorage:             v.GetBool("ENABLE_LIVE_CANDLES_STORAGE"),
		EnableHistoricalOrdersUpdatesStorage: v.GetBool("ENABLE_HISTORICAL_ORDERS_UPDATES_STORAGE"),
		EnableSimulatedOrdersStorage:         v.GetBool("ENABLE_SIMULATED_ORDERS_STORAGE"),

		AuthUpdateDebounceDuration: time.Duration(v.GetInt("AUTH_UPDATE_DEBOUNCE_DURATION")) * time.Millisecond,
		ForcedMarginType:           v.GetString("FORCED_MARGIN_TYPE"),
	}
}
