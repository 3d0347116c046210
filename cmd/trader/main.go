package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/config"
	"github.com/rickgao/kalshi-trader/internal/control"
	"github.com/rickgao/kalshi-trader/internal/engine"
	"github.com/rickgao/kalshi-trader/internal/exchange"
	"github.com/rickgao/kalshi-trader/internal/notify"
	"github.com/rickgao/kalshi-trader/internal/order"
	"github.com/rickgao/kalshi-trader/internal/perf"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/settings"
	"github.com/rickgao/kalshi-trader/internal/signal"
	"github.com/rickgao/kalshi-trader/internal/store"
	"github.com/rickgao/kalshi-trader/internal/version"
)

const tradeHistorySeed = 1000

func main() {
	configPath := flag.String("config", "configs/trader.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting trader",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.RestURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	osignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load API credentials
	creds, err := exchange.LoadCredentials(cfg.API.APIKey, cfg.API.PrivateKeyPath)
	if err != nil {
		logger.Error("failed to load API credentials", "error", err)
		os.Exit(1)
	}

	client := exchange.NewClient(
		cfg.API.RestURL,
		creds,
		exchange.WithLogger(logger),
		exchange.WithTimeout(cfg.API.Timeout),
		exchange.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Check exchange status
	logger.Info("checking exchange status")
	status, err := client.GetExchangeStatus(ctx)
	if err != nil {
		logger.Error("failed to get exchange status", "error", err)
		os.Exit(1)
	}
	logger.Info("exchange status",
		"exchange_active", status.ExchangeActive,
		"trading_active", status.TradingActive,
	)

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	db, err := store.New(ctx, cfg.Database.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Restore persisted state
	loadedSettings, err := db.LoadLatestSettings(ctx)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	settingsStore := settings.New(loadedSettings, db, logger)

	restored, err := db.LoadPositions(ctx)
	if err != nil {
		logger.Error("failed to load positions", "error", err)
		os.Exit(1)
	}
	logger.Info("state restored",
		"settings_version", settingsStore.Get().Version,
		"positions", len(restored),
	)

	tracker := perf.NewTracker(logger)
	if trades, err := db.LoadClosedTrades(ctx, tradeHistorySeed); err != nil {
		logger.Warn("trade history unavailable", "error", err)
	} else {
		tracker.Seed(trades)
	}

	// Risk and order management
	riskMgr := risk.NewManager(
		decimal.NewFromFloat(cfg.Engine.MaxBankroll),
		cfg.Engine.MaxSlippageCents,
		logger,
	)

	orderMgr := order.NewManager(
		client,
		riskMgr,
		order.WithPollInterval(cfg.Engine.OrderPollInterval),
		order.WithRetries(cfg.Engine.OrderMaxRetries, cfg.Engine.OrderRetryBackoff),
		order.WithLogger(logger),
	)

	// Decision journal
	journal := store.NewJournal(db, logger)
	if err := journal.Start(ctx); err != nil {
		logger.Error("failed to start journal", "error", err)
		os.Exit(1)
	}

	// Signal feed
	queue := signal.NewQueue(cfg.Signals.QueueSize)
	source, err := signal.NewStreamSource(signal.StreamConfig{
		URL:      cfg.Signals.RedisURL,
		Stream:   cfg.Signals.Stream,
		Group:    cfg.Signals.Group,
		Consumer: cfg.Signals.Consumer,
	}, queue, logger)
	if err != nil {
		logger.Error("failed to create signal source", "error", err)
		os.Exit(1)
	}
	if err := source.Start(ctx); err != nil {
		logger.Error("failed to start signal source", "error", err)
		os.Exit(1)
	}

	notifier := notify.NewNotifier(cfg.Notify, settingsStore, logger)
	if !notifier.Enabled() {
		logger.Info("telegram notifications disabled, no bot token configured")
	}
	hub := control.NewHub(logger)

	// Engine
	eng := engine.New(
		cfg.Engine,
		client,
		riskMgr,
		orderMgr,
		queue,
		settingsStore,
		logger,
		engine.WithPerf(tracker),
		engine.WithJournal(journal),
		engine.WithPersistence(db),
		engine.WithNotifier(notifier),
		engine.WithPublisher(hub),
		engine.WithRestoredPositions(restored),
	)
	orderMgr.SetSink(eng)

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// Reconcile against the exchange before any trading.
	if err := eng.Reconcile(ctx); err != nil {
		logger.Error("initial reconciliation failed; trading locked until resolved via the control API",
			"error", err,
		)
	} else if cfg.Engine.AutoStart {
		if err := eng.StartTrading(); err != nil {
			logger.Error("failed to start trading", "error", err)
		}
	}

	// Control plane
	srv := control.NewServer(
		cfg.Control,
		eng,
		riskMgr,
		tracker,
		settingsStore,
		orderMgr,
		hub,
		logger,
		control.Check{Name: "postgres", Ping: db.Ping},
		control.Check{Name: source.Name(), Ping: source.Ping},
		control.Check{Name: "ledger", Ping: func(context.Context) error { return riskMgr.Check() }},
	)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start control server", "error", err)
		os.Exit(1)
	}

	logger.Info("trader running",
		"instance_id", cfg.Instance.ID,
		"control_port", cfg.Control.Port,
		"auto_start", cfg.Engine.AutoStart,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop deciding first, then drain in-flight work, then flush state.
	eng.StopTrading()
	if err := source.Stop(shutdownCtx); err != nil {
		logger.Error("signal source shutdown error", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", "error", err)
	}
	orderMgr.Wait()

	if err := db.SnapshotPositions(shutdownCtx, riskMgr.Positions()); err != nil {
		logger.Error("final position snapshot failed", "error", err)
	}
	if err := journal.Stop(shutdownCtx); err != nil {
		logger.Error("journal shutdown error", "error", err)
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("control server shutdown error", "error", err)
	}

	logger.Info("trader stopped")
}
