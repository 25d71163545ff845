package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/callbot/config"
	"github.com/alejandrodnm/callbot/internal/adapters/coinmarketcap"
	"github.com/alejandrodnm/callbot/internal/adapters/render"
	"github.com/alejandrodnm/callbot/internal/adapters/storage"
	"github.com/alejandrodnm/callbot/internal/adapters/telegram"
	"github.com/alejandrodnm/callbot/internal/application/catalog"
	"github.com/alejandrodnm/callbot/internal/application/commands"
	"github.com/alejandrodnm/callbot/internal/application/ledger"
	"github.com/alejandrodnm/callbot/internal/application/ticker"
)

// version se fija en build con -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	loadCoins := flag.Bool("load-coins", false, "insert unknown coins from the ticker feed and exit")
	count := flag.Int("count", 0, "with -load-coins: only the first N coins of the feed (0 = all)")
	reset := flag.Bool("reset", false, "drop and recreate all tables, load all coins and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("callbot", version)
		return
	}

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
	runBot := !*loadCoins && !*reset
	if err := cfg.Validate(runBot); err != nil {
		slog.Error("invalid config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	slog.Info("callbot starting",
		"version", version,
		"config", *configPath,
		"dsn", cfg.Storage.DSN,
		"ticker_ttl", cfg.TickerTTL(),
		"load_coins", *loadCoins,
		"reset", *reset,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	apiCfg := coinmarketcap.DefaultConfig()
	apiCfg.BaseURL = cfg.API.TickerBase
	apiCfg.Timeout = cfg.APITimeout()
	apiCfg.RatePerSec = cfg.API.RatePerSec
	client := coinmarketcap.NewClient(apiCfg)

	prices := ticker.New(client, ticker.Config{
		TTL:            cfg.TickerTTL(),
		RefreshTimeout: cfg.RefreshTimeout(),
	})
	cat := catalog.New(store, client, prices)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *reset:
		if err := runReset(ctx, store, cat); err != nil {
			slog.Error("reset failed", "err", err)
			os.Exit(1)
		}
		return
	case *loadCoins:
		if err := runLoadCoins(ctx, store, cat, *count); err != nil {
			slog.Error("load coins failed", "err", err)
			os.Exit(1)
		}
		return
	}

	led := ledger.New(store, prices, nil)
	router := commands.New(cat, led, store, render.NewHTML(), cfg.Bot.CommandPrefix)

	bot, err := telegram.New(cfg.Bot.Token, cfg.Bot.Debug, router, telegram.Config{
		Prefix:       cfg.Bot.CommandPrefix,
		AllowedChats: cfg.Bot.AllowedChats,
		Workers:      cfg.Bot.Workers,
	})
	if err != nil {
		slog.Error("failed to start telegram bot", "err", err)
		os.Exit(1)
	}

	// primer refresco en segundo plano: el bot arranca aunque el feed esté caído
	go func() {
		if _, err := prices.Snapshot(ctx); err != nil {
			slog.Warn("initial ticker fetch failed", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil {
		slog.Error("bot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("callbot stopped cleanly")
}
