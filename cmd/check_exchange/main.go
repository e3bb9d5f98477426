// check_exchange probes the configured venue: public market data first,
// then the signed balance endpoint when credentials are present.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/quantra/tradecore/internal/config"
	"github.com/quantra/tradecore/internal/infrastructure/exchange"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML profile")
	symbol := flag.String("symbol", "BTC/USDT", "pair to probe")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	exchangeCfg, ok := cfg.Exchanges["bybit"]
	if !ok {
		fmt.Println("No bybit entry in config")
		os.Exit(1)
	}
	category := "spot"
	if exchangeCfg.Future {
		category = "linear"
	}
	fmt.Printf("Testing Bybit interaction (%s)...\n", category)

	adapter := exchange.NewBybitAdapter(
		exchangeCfg.APIKey, exchangeCfg.APISecret, exchangeCfg.RESTEndpoint, category, 15*time.Second)
	if exchangeCfg.Sandboxed {
		adapter.SetSandboxMode(true)
	}
	ctx := context.Background()

	if err := adapter.LoadMarkets(ctx); err != nil {
		fmt.Printf("FAIL markets: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK   markets: %d symbols listed\n", len(adapter.Symbols()))

	ticker, err := adapter.FetchTicker(ctx, *symbol)
	if err != nil {
		fmt.Printf("FAIL ticker (%s): %v\n", *symbol, err)
	} else {
		fmt.Printf("OK   ticker (%s): last=%s bid=%s ask=%s\n",
			*symbol, ticker.Last, ticker.Bid, ticker.Ask)
	}

	if exchangeCfg.APIKey == "" {
		fmt.Println("SKIP balance: no api_key configured")
		return
	}
	balance, err := adapter.FetchBalance(ctx)
	if err != nil {
		fmt.Printf("FAIL balance: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK   balance: %d assets\n", len(balance))
	for asset, row := range balance {
		if !row.Total.IsZero() {
			fmt.Printf("     %s: free=%s total=%s\n", asset, row.Free, row.Total)
		}
	}
}
