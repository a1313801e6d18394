package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"avia-bot/handler"
	"avia-bot/internal/app"
	"avia-bot/internal/bot"
	"avia-bot/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
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
	if cfg.EphemeralState() {
		slog.Warn("dialog state is kept in memory and is lost between invocations; set STATE_TABLE to use dynamodb")
	}

	// ---- Pipeline ----
	a, err := app.New(ctx, cfg, awsCfg)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	// ---- Telegram ----
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		slog.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}
	b, err := bot.New(api, a.Flights, 1)
	if err != nil {
		slog.Error("failed to create bot", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(b, cfg.WebhookSecret)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
