// Package config loads the YAML profile describing traded currencies,
// exchange credentials and trader settings.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WildcardPairs in a currency's pair list selects every available pair
// quoted in the currency's configured quote asset.
const WildcardPairs = "*"

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type TraderConfig struct {
	Enabled          bool    `yaml:"enabled"`
	LoadTradeHistory bool    `yaml:"load_trade_history"`
	Risk             float64 `yaml:"risk"`
}

type SimulatorFeesConfig struct {
	Maker    float64 `yaml:"maker"`
	Taker    float64 `yaml:"taker"`
	Withdraw float64 `yaml:"withdraw"`
}

type SimulatorConfig struct {
	Enabled           bool                `yaml:"enabled"`
	InstantFill       bool                `yaml:"instant_fill"`
	Fees              SimulatorFeesConfig `yaml:"fees"`
	StartingPortfolio map[string]float64  `yaml:"starting_portfolio"`
}

type TradingConfig struct {
	ReferenceMarket string   `yaml:"reference_market"`
	TimeFrames      []string `yaml:"time_frames"`
}

// CurrencyConfig declares one traded cryptocurrency and its pairs.
type CurrencyConfig struct {
	Pairs   []string `yaml:"pairs"`
	Quote   string   `yaml:"quote"`
	Enabled *bool    `yaml:"enabled"`
}

func (c CurrencyConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type ExchangeConfig struct {
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint"`
	Sandboxed    bool   `yaml:"sandboxed"`
	Future       bool   `yaml:"future"`
	Margin       bool   `yaml:"margin"`
	Spot         bool   `yaml:"spot"`
	WebSocket    bool   `yaml:"web_socket"`
	RESTOnly     bool   `yaml:"rest_only"`
}

type StorageConfig struct {
	Directory string `yaml:"directory"`
	BotID     string `yaml:"bot_id"`
}

type Config struct {
	Logging          LoggingConfig             `yaml:"logging"`
	Trader           TraderConfig              `yaml:"trader"`
	Simulator        SimulatorConfig           `yaml:"trader_simulator"`
	Trading          TradingConfig             `yaml:"trading"`
	CryptoCurrencies map[string]CurrencyConfig `yaml:"crypto_currencies"`
	Exchanges        map[string]ExchangeConfig `yaml:"exchanges"`
	Storage          StorageConfig             `yaml:"storage"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Trading.ReferenceMarket == "" {
		c.Trading.ReferenceMarket = "BTC"
	}
	if len(c.Trading.TimeFrames) == 0 {
		c.Trading.TimeFrames = []string{"1h"}
	}
	if c.Storage.Directory == "" {
		c.Storage.Directory = "data"
	}
	if c.Storage.BotID == "" {
		c.Storage.BotID = "default"
	}
}

func (c *Config) validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("config: no exchange configured")
	}
	if !c.Trader.Enabled && !c.Simulator.Enabled {
		return fmt.Errorf("config: neither trader nor trader_simulator is enabled")
	}
	if c.Trader.Enabled && c.Simulator.Enabled {
		return fmt.Errorf("config: trader and trader_simulator are mutually exclusive")
	}
	for name, currency := range c.CryptoCurrencies {
		for _, pair := range currency.Pairs {
			if pair == WildcardPairs && currency.Quote == "" {
				return fmt.Errorf("config: currency %s uses wildcard pairs without a quote", name)
			}
		}
	}
	return nil
}

// TradedPairs resolves the configured pair lists against the symbols the
// venue actually lists. Wildcard entries expand to every listed pair
// quoted in the currency's quote asset whose base matches no explicit
// entry already.
func (c *Config) TradedPairs(available []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(pair string) {
		if !seen[pair] {
			seen[pair] = true
			out = append(out, pair)
		}
	}
	listed := make(map[string]bool, len(available))
	for _, s := range available {
		listed[s] = true
	}
	for _, currency := range c.CryptoCurrencies {
		if !currency.IsEnabled() {
			continue
		}
		for _, pair := range currency.Pairs {
			if pair != WildcardPairs {
				if listed[pair] || len(listed) == 0 {
					add(pair)
				}
				continue
			}
			suffix := "/" + currency.Quote
			for _, s := range available {
				if strings.HasSuffix(s, suffix) {
					add(s)
				}
			}
		}
	}
	return out
}

// CryptocurrencyOf maps a symbol back to its configured currency name,
// falling back to the base asset when no currency claims the pair.
func (c *Config) CryptocurrencyOf(symbol string) string {
	base := symbol
	if idx := strings.Index(symbol, "/"); idx != -1 {
		base = symbol[:idx]
	}
	quote := ""
	if idx := strings.Index(symbol, "/"); idx != -1 {
		quote = symbol[idx+1:]
	}
	// Explicit pair entries win over wildcard claims.
	wildcardOwner := ""
	for name, currency := range c.CryptoCurrencies {
		if !currency.IsEnabled() {
			continue
		}
		for _, pair := range currency.Pairs {
			if pair == symbol {
				return name
			}
			if pair == WildcardPairs && currency.Quote == quote {
				wildcardOwner = name
			}
		}
	}
	if wildcardOwner != "" {
		return wildcardOwner
	}
	return base
}

// TimeFrameStrings returns the configured candle intervals.
func (c *Config) TimeFrameStrings() []string {
	return c.Trading.TimeFrames
}
