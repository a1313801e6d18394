package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const (
	correlationHeader = "X-Correlation-Id"
	secretHeader      = "X-Telegram-Bot-Api-Secret-Token"
)

// UpdateHandler processes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Handler receives Telegram webhook calls through API Gateway.
type Handler struct {
	updates UpdateHandler
	secret  string
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler creates a Handler. An empty secret disables the secret-token check.
func NewHandler(updates UpdateHandler, secret string) (*Handler, error) {
	if updates == nil {
		return nil, errors.New("handler: update handler must not be nil")
	}
	return &Handler{updates: updates, secret: secret}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return writeJSON(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "method_not_allowed"}), nil
	}
	if h.secret != "" {
		got := header(req.Headers, secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			slog.Warn("rejected webhook call with bad secret token", "correlation_id", correlationID)
			return writeJSON(http.StatusUnauthorized, correlationID, errorResponse{Error: "unauthorized"}), nil
		}
	}

	var update tgbotapi.Update
	if err := json.Unmarshal([]byte(req.Body), &update); err != nil {
		slog.Warn("failed to decode webhook update", "correlation_id", correlationID, "err", err)
		return writeJSON(http.StatusBadRequest, correlationID, errorResponse{Error: "invalid_update"}), nil
	}

	slog.Info("webhook update received", "correlation_id", correlationID, "update_id", update.UpdateID)
	h.updates.HandleUpdate(ctx, update)
	return writeJSON(http.StatusOK, correlationID, okResponse{OK: true}), nil
}

// header looks a header up case-insensitively; API Gateway does not normalise names.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func writeJSON(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"internal"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}
