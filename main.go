package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"perp-trader/internal/api"
	"perp-trader/internal/events"
	"perp-trader/internal/loop"
	"perp-trader/internal/market"
	"perp-trader/internal/order"
	"perp-trader/internal/risk"
	"perp-trader/internal/state"
	"perp-trader/internal/telemetry"
	"perp-trader/pkg/catalog"
	"perp-trader/pkg/config"
	"perp-trader/pkg/db"
	binancemarket "perp-trader/pkg/market/binance"

	"perp-trader/pkg/exchanges/binance"
	"perp-trader/pkg/exchanges/common"
	"perp-trader/pkg/exchanges/mock"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}
	trading, err := config.LoadTradingConfig(cfg.TradingConfig)
	if err != nil {
		log.Fatalf("[main] trading config: %v", err)
	}
	cat, err := catalog.Load(cfg.AssetCatalog)
	if err != nil {
		log.Fatalf("[main] asset catalog: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[main] open db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[main] migrate: %v", err)
	}

	bus := events.NewBus()
	store := state.NewStore()

	var client common.Client
	if cfg.DryRun {
		log.Printf("[main] DRY RUN: in-memory exchange, balance %.2f", cfg.DryRunInitialBalance)
		client = mock.New(cfg.DryRunInitialBalance, trading.Leverage)
	} else {
		if cfg.APIKey == "" || cfg.APISecret == "" {
			log.Fatal("[main] live mode needs EXCHANGE_API_KEY and EXCHANGE_API_SECRET")
		}
		client = binance.NewClient(binance.Config{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Testnet:   cfg.Testnet,
		})
	}

	spot := binancemarket.NewClient(cfg.Testnet)
	feed := market.NewFeed(client, spot, bus)

	riskMgr := risk.NewManager(risk.Config{
		TotalMarginPct:   trading.TotalMarginPct,
		SingleMarginPct:  trading.SingleMarginPct,
		SingleCoinPosPct: trading.SingleCoinPosPct,
		MaxCoins:         trading.MaxCoins,
		Leverage:         trading.Leverage,
	}, cat)

	orders := order.NewManager(client, database, bus, cat)
	if cfg.DryRun {
		orders.SetTimings(0, 0)
	}

	metrics := telemetry.New(bus)
	metrics.Start(ctx)

	if !cfg.DryRun {
		startMarkStreams(ctx, cfg.Testnet, trading.Symbols, feed)
	}

	ctrl := loop.NewController(trading, loop.Deps{
		Client:  client,
		Feed:    feed,
		Risk:    riskMgr,
		Orders:  orders,
		Store:   store,
		Bus:     bus,
		DB:      database,
		Catalog: cat,
	})
	go ctrl.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(trading, store, orders, feed, metrics.Handler(), cfg.JWTSecret).Router(),
	}
	go func() {
		log.Printf("[main] api listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[main] api server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceS)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] api shutdown: %v", err)
	}
}

// startMarkStreams feeds live mark prices into the price cache. Stream loss
// is tolerated; the feed falls back to REST polling.
func startMarkStreams(ctx context.Context, testnet bool, symbols []string, feed *market.Feed) {
	streams := binance.NewStreamClient(testnet)
	for _, sym := range symbols {
		updates, _, err := streams.SubscribeMarkPrices(ctx, sym)
		if err != nil {
			log.Printf("[main] mark stream for %s unavailable: %v", sym, err)
			continue
		}
		go func(sym string) {
			for u := range updates {
				feed.Observe(u.Symbol, u.Price, "stream")
			}
			log.Printf("[main] mark stream for %s ended", sym)
		}(sym)
	}
}
