package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/api"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bot"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
	"github.com/stepannikulin59/btc-intraday-bot/internal/journal"
	"github.com/stepannikulin59/btc-intraday-bot/internal/logging"
	"github.com/stepannikulin59/btc-intraday-bot/internal/notification"
	"github.com/stepannikulin59/btc-intraday-bot/internal/state"
	"github.com/stepannikulin59/btc-intraday-bot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		Component:  "app",
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	}))
	log := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bybit.NewClient(cfg.BybitConfig.APIKey, cfg.BybitConfig.SecretKey, cfg.BybitConfig.TestNet)

	store, err := state.Open(cfg.StateConfig.Path)
	if err != nil {
		log.Error("Opening state store failed", "error", err)
		os.Exit(1)
	}

	rec, err := openJournal(ctx, cfg.JournalConfig)
	if err != nil {
		log.Error("Opening trade journal failed", "error", err)
		os.Exit(1)
	}
	defer rec.Close()

	var notifier notification.Notifier = notification.Nop{}
	if cfg.TelegramConfig.Enabled && cfg.TelegramConfig.BotToken != "" {
		notifier = notification.NewTelegramNotifier(cfg.TelegramConfig.BotToken, cfg.TelegramConfig.ChatID)
	}

	sw := telegram.NewSwitch(cfg.TradingConfig.StartEnabled)
	engine := bot.New(cfg, client, client, store, rec, notifier, sw)

	if cfg.TelegramConfig.Enabled && cfg.TelegramConfig.BotToken != "" {
		cmdBot := telegram.NewCommandBot(
			cfg.TelegramConfig.BotToken,
			cfg.TelegramConfig.ChatID,
			sw,
			engine.Status,
			engine.AvailableBalance,
			engine.DailySummary,
		)
		go cmdBot.Run(ctx)
	}

	var srv *api.Server
	if cfg.ServerConfig.Enabled {
		srv = api.NewServer(api.Config{
			Port: cfg.ServerConfig.Port,
			Host: cfg.ServerConfig.Host,
		}, engine, sw)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("API server stopped", "error", err)
			}
		}()
	}

	log.Info("Starting trading engine",
		"symbol", cfg.TradingConfig.Symbol,
		"testnet", cfg.BybitConfig.TestNet,
		"journal", cfg.JournalConfig.Backend)

	engine.Run(ctx)

	if srv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.Warn("API server shutdown failed", "error", err)
		}
	}
	log.Info("Shutdown complete")
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Recorder, error) {
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	switch cfg.Backend {
	case "postgres":
		return journal.NewPostgresRecorder(ctx, cfg.PostgresDSN, zlog)
	default:
		return journal.NewCSVRecorder(cfg.CSVPath, zlog)
	}
}
