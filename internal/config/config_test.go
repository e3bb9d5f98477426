package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantra/tradecore/internal/config"
)

const sampleProfile = `
logging:
  level: debug
trader:
  enabled: false
  risk: 0.5
trader_simulator:
  enabled: true
  fees:
    maker: 0.001
    taker: 0.002
  starting_portfolio:
    USDT: 1000
trading:
  reference_market: BTC
  time_frames: [1h, 4h]
crypto_currencies:
  Bitcoin:
    pairs: [BTC/USDT]
  Altcoins:
    pairs: ["*"]
    quote: USDT
  Disabled:
    pairs: [DOGE/USDT]
    enabled: false
exchanges:
  bybit:
    api_key: k
    api_secret: s
    web_socket: true
storage:
  directory: data
  bot_id: test
`

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndDefaults(t *testing.T) {
	cfg, err := config.Load(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Simulator.Enabled)
	assert.Equal(t, "BTC", cfg.Trading.ReferenceMarket)
	assert.Equal(t, []string{"1h", "4h"}, cfg.Trading.TimeFrames)
	assert.Equal(t, 0.001, cfg.Simulator.Fees.Maker)
	assert.Equal(t, 0.002, cfg.Simulator.Fees.Taker)
	assert.Equal(t, 1000.0, cfg.Simulator.StartingPortfolio["USDT"])
}

func TestLoadRejectsBothTradersEnabled(t *testing.T) {
	cfg, err := config.Load(writeProfile(t, `
trader:
  enabled: true
trader_simulator:
  enabled: true
exchanges:
  bybit: {}
`))
	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestLoadRejectsWildcardWithoutQuote(t *testing.T) {
	_, err := config.Load(writeProfile(t, `
trader_simulator:
  enabled: true
crypto_currencies:
  Broken:
    pairs: ["*"]
exchanges:
  bybit: {}
`))
	assert.Error(t, err)
}

func TestTradedPairsWildcardExpansion(t *testing.T) {
	cfg, err := config.Load(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	available := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "ETH/BTC", "DOGE/USDT"}
	pairs := cfg.TradedPairs(available)

	assert.Contains(t, pairs, "BTC/USDT")
	assert.Contains(t, pairs, "ETH/USDT")
	assert.Contains(t, pairs, "SOL/USDT")
	assert.NotContains(t, pairs, "ETH/BTC", "wrong quote must not match the wildcard")
	// BTC/USDT appears once even though both Bitcoin and the wildcard
	// select it.
	count := 0
	for _, p := range pairs {
		if p == "BTC/USDT" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCryptocurrencyOf(t *testing.T) {
	cfg, err := config.Load(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	// Explicit pair beats the USDT wildcard.
	assert.Equal(t, "Bitcoin", cfg.CryptocurrencyOf("BTC/USDT"))
	assert.Equal(t, "Altcoins", cfg.CryptocurrencyOf("SOL/USDT"))
	// Disabled currencies do not claim their pairs; the wildcard does.
	assert.Equal(t, "Altcoins", cfg.CryptocurrencyOf("DOGE/USDT"))
	assert.Equal(t, "XRP", cfg.CryptocurrencyOf("XRP/ETH"))
}
