package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/config"
	"github.com/quantra/tradecore/internal/domain"
	"github.com/quantra/tradecore/internal/infrastructure/exchange"
	"github.com/quantra/tradecore/internal/infrastructure/logger"
	"github.com/quantra/tradecore/internal/infrastructure/settings"
	"github.com/quantra/tradecore/internal/infrastructure/storage"
	"github.com/quantra/tradecore/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML profile")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log = logger.NewRotatingLogger(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
		if err != nil {
			fmt.Printf("Failed to init logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer log.Sync()

	env := settings.Load()

	// 3. Init Storage
	db, err := storage.Open(cfg.Storage.Directory, cfg.Storage.BotID)
	if err != nil {
		log.Fatal("Failed to open run databases", zap.Error(err))
	}
	defer db.Close()

	// 4. Init Exchange (Bybit)
	exchangeName, exchangeCfg, err := pickExchange(cfg)
	if err != nil {
		log.Fatal("No usable exchange in config", zap.Error(err))
	}
	category := "spot"
	if exchangeCfg.Future {
		category = "linear"
	}
	adapter := exchange.NewBybitAdapter(
		exchangeCfg.APIKey, exchangeCfg.APISecret, exchangeCfg.RESTEndpoint, category, env.DefaultRequestTimeout)
	if exchangeCfg.Sandboxed {
		if err := adapter.SetSandboxMode(true); err != nil {
			log.Fatal("Failed to enable sandbox mode", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.LoadMarkets(ctx); err != nil {
		log.Fatal("Failed to load markets", zap.Error(err))
	}

	pairs := cfg.TradedPairs(adapter.Symbols())
	if len(pairs) == 0 {
		log.Fatal("No traded pairs resolved from config")
	}
	timeFrames := make([]domain.TimeFrame, 0, len(cfg.Trading.TimeFrames))
	for _, tf := range cfg.Trading.TimeFrames {
		timeFrames = append(timeFrames, domain.TimeFrame(tf))
	}

	// 5. Init Channels and Websocket
	registry := channels.NewRegistry(log)
	var ws domain.WebsocketExchange
	var bybitWS *exchange.BybitWebsocket
	if exchangeCfg.WebSocket && !exchangeCfg.RESTOnly {
		bybitWS = exchange.NewBybitWebsocket(
			exchangeCfg.WSEndpoint, exchangeName, registry, cfg.CryptocurrencyOf, timeFrames, env.ThrottledWSUpdates, log)
		ws = bybitWS
	}

	// 6. Init Engine
	engineCfg := usecase.EngineConfig{
		ExchangeName:    exchangeName,
		Pairs:           pairs,
		TimeFrames:      timeFrames,
		ReferenceMarket: cfg.Trading.ReferenceMarket,
		Simulated:       cfg.Simulator.Enabled,
		InstantFill:     cfg.Simulator.InstantFill || env.AllowSimulatedOrdersInstantFill,
		Futures:         exchangeCfg.Future,
		Trader: usecase.TraderConfig{
			Risk: decimal.NewFromFloat(cfg.Trader.Risk),
			Fees: usecase.SimulatorFees{
				Maker: decimal.NewFromFloat(cfg.Simulator.Fees.Maker),
				Taker: decimal.NewFromFloat(cfg.Simulator.Fees.Taker),
			},
		},
		CandlesCapacity: env.MaxCandlesInRAM,
		MaxTradesCount:  env.MaxTradesCount,
		CryptoOf:        cfg.CryptocurrencyOf,
	}
	engine := usecase.NewEngine(adapter, ws, registry, engineCfg, log)
	if bybitWS != nil {
		bybitWS.BindSymbols(engine.Symbols)
	}

	if cfg.Simulator.Enabled {
		for asset, amount := range cfg.Simulator.StartingPortfolio {
			d := decimal.NewFromFloat(amount)
			engine.Portfolio.SetEntry(asset, d, d)
		}
	}

	// 7. Init Recorder
	recorder := storage.NewRecorder(db, registry, exchangeName, storage.RecorderOptions{
		SimulatedOrders:        env.EnableSimulatedOrdersStorage,
		HistoricalOrderUpdates: env.EnableHistoricalOrdersUpdatesStorage,
	}, log)
	recorder.Start()

	// 8. Start Engine
	if err := engine.Start(ctx); err != nil {
		log.Fatal("Failed to start engine", zap.Error(err))
	}
	log.Info("Engine started",
		zap.String("exchange", exchangeName),
		zap.Strings("pairs", pairs),
		zap.Bool("simulated", cfg.Simulator.Enabled),
		zap.Bool("futures", exchangeCfg.Future))

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	engine.Stop()
	if bybitWS != nil {
		bybitWS.Close()
	}
	recorder.Stop()
}

// pickExchange selects the first enabled venue. Only Bybit is wired for
// now, so any other name is rejected early.
func pickExchange(cfg *config.Config) (string, config.ExchangeConfig, error) {
	if exchangeCfg, ok := cfg.Exchanges["bybit"]; ok {
		return "bybit", exchangeCfg, nil
	}
	for name := range cfg.Exchanges {
		return "", config.ExchangeConfig{}, fmt.Errorf("unsupported exchange %q", name)
	}
	return "", config.ExchangeConfig{}, fmt.Errorf("no exchange configured")
}
