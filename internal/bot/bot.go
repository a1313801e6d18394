package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"avia-bot/internal/domain"
	"avia-bot/internal/reply"
	"avia-bot/internal/usecase"
)

const defaultWorkers = 8

// Sender is the subset of *tgbotapi.BotAPI the bot needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type FlightService interface {
	Resolve(ctx context.Context, in usecase.ResolveInput) (domain.FlightParams, error)
	Search(ctx context.Context, p domain.FlightParams) (usecase.SearchOutput, error)
	Reset(ctx context.Context, userID int64) error
}

type Bot struct {
	sender  Sender
	flights FlightService
	workers int
}

func New(sender Sender, flights FlightService, workers int) (*Bot, error) {
	if sender == nil {
		return nil, errors.New("bot: sender must not be nil")
	}
	if flights == nil {
		return nil, errors.New("bot: flight service must not be nil")
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Bot{sender: sender, flights: flights, workers: workers}, nil
}

// Run dispatches updates to at most b.workers concurrent handlers until ctx is
// cancelled or updates is closed, then waits for in-flight updates to finish.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				// In-flight updates finish even after shutdown starts.
				b.HandleUpdate(context.WithoutCancel(ctx), update)
			}()
		}
	}
}

// HandleUpdate processes a single update. Updates without a text message are
// ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	userID := msg.Chat.ID
	if msg.From != nil {
		userID = msg.From.ID
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, userID)
		return
	}
	if msg.Text == "" {
		return
	}
	b.handleSearch(ctx, msg.Chat.ID, userID, msg.Text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, userID int64) {
	switch msg.Command() {
	case "start", "help":
		b.send(msg.Chat.ID, reply.Greeting())
	case "reset":
		if err := b.flights.Reset(ctx, userID); err != nil {
			slog.Error("failed to reset dialog state", "user_id", userID, "err", err)
			b.send(msg.Chat.ID, reply.ForError(err))
			return
		}
		b.send(msg.Chat.ID, reply.Reset())
	default:
		b.send(msg.Chat.ID, reply.Greeting())
	}
}

func (b *Bot) handleSearch(ctx context.Context, chatID, userID int64, text string) {
	requestID := uuid.NewString()
	if _, err := b.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Warn("failed to send chat action", "request_id", requestID, "err", err)
	}
	statusID := b.send(chatID, reply.Analyzing())

	params, err := b.flights.Resolve(ctx, usecase.ResolveInput{UserID: userID, Text: text})
	if err != nil {
		logPipelineError(requestID, userID, "resolve", err)
		b.replace(chatID, statusID, reply.ForError(err))
		return
	}
	slog.Info("flight params resolved",
		"request_id", requestID,
		"user_id", userID,
		"origin", params.Origin,
		"destination", params.Destination,
		"departure_from", params.DepartureFrom,
		"departure_to", params.DepartureTo,
	)
	b.replace(chatID, statusID, reply.Searching(params))

	out, err := b.flights.Search(ctx, params)
	if err != nil {
		logPipelineError(requestID, userID, "search", err)
		b.send(chatID, reply.ForError(err))
		return
	}
	slog.Info("flight search finished", "request_id", requestID, "user_id", userID, "offers", len(out.Offers))
	b.send(chatID, reply.Offers(out.Offers))
}

// send posts a new message and returns its id, or 0 if sending failed.
func (b *Bot) send(chatID int64, text string) int {
	sent, err := b.sender.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		slog.Error("failed to send message", "chat_id", chatID, "err", err)
		return 0
	}
	return sent.MessageID
}

// replace edits the status message, falling back to a new message when there
// is nothing to edit or the edit fails.
func (b *Bot) replace(chatID int64, messageID int, text string) {
	if messageID != 0 {
		_, err := b.sender.Request(tgbotapi.NewEditMessageText(chatID, messageID, text))
		if err == nil {
			return
		}
		slog.Warn("failed to edit status message", "chat_id", chatID, "message_id", messageID, "err", err)
	}
	b.send(chatID, text)
}

func logPipelineError(requestID string, userID int64, stage string, err error) {
	attrs := []any{"request_id", requestID, "user_id", userID, "stage", stage, "code", usecase.CodeOf(err), "err", err}
	switch usecase.CodeOf(err) {
	case usecase.ErrorNeedsClarification, usecase.ErrorInvalidInput:
		slog.Info("request needs user input", attrs...)
	default:
		slog.Error("request failed", attrs...)
	}
}
