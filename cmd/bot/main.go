package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"avia-bot/internal/app"
	"avia-bot/internal/bot"
	"avia-bot/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to read .env", "err", err)
		os.Exit(1)
	}

	cfg, awsCfg, err := app.LoadConfig(ctx)
	if err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			slog.Error("required settings are not set", "keys", missing.Keys)
		} else {
			slog.Error("failed to load config", "err", err)
		}
		os.Exit(1)
	}
	slog.SetDefault(app.NewLogger(cfg.LogLevel))

	a, err := app.New(ctx, cfg, awsCfg)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		slog.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}
	api.Debug = cfg.BotDebug
	slog.Info("telegram account authorized", "username", api.Self.UserName)

	b, err := bot.New(api, a.Flights, cfg.BotWorkers)
	if err != nil {
		slog.Error("failed to create bot", "err", err)
		os.Exit(1)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	b.Run(ctx, updates)
	slog.Info("bot stopped")
}
