package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/holderpot/config"
	"github.com/alejandrodnm/holderpot/internal/adapters/buyback"
	"github.com/alejandrodnm/holderpot/internal/adapters/dexscreener"
	"github.com/alejandrodnm/holderpot/internal/adapters/notify"
	"github.com/alejandrodnm/holderpot/internal/adapters/onchain"
	"github.com/alejandrodnm/holderpot/internal/adapters/storage"
	"github.com/alejandrodnm/holderpot/internal/api"
	"github.com/alejandrodnm/holderpot/internal/application/engine"
	"github.com/alejandrodnm/holderpot/internal/application/holders"
	"github.com/alejandrodnm/holderpot/internal/application/market"
	"github.com/alejandrodnm/holderpot/internal/application/payout"
	"github.com/alejandrodnm/holderpot/internal/application/scenario"
	"github.com/alejandrodnm/holderpot/internal/application/state"
	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/alejandrodnm/holderpot/internal/ports"
	"github.com/alejandrodnm/holderpot/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print a winners table after every cycle (default: compact 1-line)")
	history := flag.Int("history", 0, "print the last N stored cycles and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	notifier := notify.NewConsole(*table)

	if *history > 0 {
		printHistory(cfg, notifier, *history)
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	slog.Info("holderpot starting",
		"config", *configPath,
		"mint", cfg.Token.Mint,
		"cycle_interval", cfg.Engine.CycleInterval,
		"market_interval", cfg.Engine.MarketInterval,
		"min_balance_sol", cfg.Engine.MinBalanceSOL,
		"once", *once,
	)

	ledger, err := onchain.NewClient(cfg.Solana.RPCURL, cfg.Solana.PrivateKey, cfg.Solana.RequestsPerSecond)
	if err != nil {
		slog.Error("failed to create ledger client", "err", err)
		os.Exit(1)
	}
	slog.Info("custodial wallet loaded", "payer", ledger.Payer())

	var store *storage.SQLiteStorage
	var cycleStorage ports.CycleStorage
	if cfg.Storage.DSN != "" {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
		cycleStorage = store
	}

	mint := domain.Account(cfg.Token.Mint)
	timeout := cfg.Engine.CollaboratorTimeout
	logger := slog.Default()

	tracker := market.NewTracker(dexscreener.NewClient(cfg.Market.BaseURL, cfg.Market.Timeout), mint, timeout, logger)
	exclude := append(cfg.Excluded(), ledger.Payer())

	firstDraw := time.Now().Add(cfg.Engine.StartupDelay)
	if *once {
		firstDraw = time.Now()
	}

	eng := engine.New(engine.Config{
		Mint:                  mint,
		Interval:              cfg.Engine.CycleInterval,
		MinBalance:            cfg.MinBalanceLamports(),
		DistributableFraction: cfg.Fraction(),
		Timeout:               timeout,
	}, engine.Deps{
		Ledger:   ledger,
		Market:   tracker,
		Holders:  holders.New(ledger, exclude, timeout, logger),
		Selector: scenario.New(nil, domain.Account(cfg.Token.TeamWallet)),
		Payouts:  payout.New(ledger, buyback.NewStub(logger), timeout, logger),
		Store:    state.NewStore(domain.PublishedState{TokenMint: mint, NextDrawAt: firstDraw}),
		Storage:  cycleStorage,
		Notifier: notifier,
		Logger:   logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cycleStorage != nil {
		restore(ctx, cycleStorage, eng, firstDraw)
	}

	if *once {
		tracker.Poll(ctx)
		rep := eng.RunOnce(ctx)
		if rep.Err != nil {
			slog.Warn("cycle did not pay out", "outcome", rep.Outcome, "reason", rep.SkipReason, "err", rep.Err)
		}
		return
	}

	var historyReader api.HistoryReader
	if store != nil {
		historyReader = store
	}
	server := api.New(cfg.API.Addr, eng, tracker, historyReader, logger)
	if err := server.Start(); err != nil {
		slog.Error("failed to start api server", "err", err, "addr", cfg.API.Addr)
		os.Exit(1)
	}

	sched := scheduler.New(ctx, eng, tracker, logger)
	if err := sched.Register(scheduler.Every(cfg.Engine.MarketInterval), scheduler.Every(cfg.Engine.CycleInterval)); err != nil {
		slog.Error("failed to register jobs", "err", err)
		os.Exit(1)
	}
	sched.Start()
	sched.RunStartup(cfg.Engine.StartupDelay)

	<-ctx.Done()
	slog.Info("shutdown requested, waiting for the running cycle")

	sched.Stop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api server shutdown", "err", err)
	}

	slog.Info("holderpot stopped cleanly")
}

// restore seeds the engine with the snapshot of the previous run.
func restore(ctx context.Context, st ports.CycleStorage, eng *engine.Engine, nextDraw time.Time) {
	prev, ok, err := st.LoadLastState(ctx)
	if err != nil {
		slog.Warn("could not load previous state, starting fresh", "err", err)
		return
	}
	if !ok {
		return
	}
	eng.Restore(prev, nextDraw)
	slog.Info("previous state restored",
		"last_scenario", prev.LastCycle.Scenario,
		"last_draw", prev.LastCycle.Timestamp.Format(time.RFC3339),
		"buyback_total_sol", domain.LamportsToSOL(prev.CumulativeBuyback).String(),
	)
}

func printHistory(cfg *config.Config, notifier *notify.Console, limit int) {
	if cfg.Storage.DSN == "" {
		slog.Error("history needs storage.dsn")
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	records, err := store.RecentCycles(context.Background(), limit)
	if err != nil {
		slog.Error("failed to read history", "err", err)
		return
	}
	notifier.PrintHistory(records)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
