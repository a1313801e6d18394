package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"avia-bot/internal/domain"
)

// Client adapts Gemini models to the same Chat contract as the OpenAI client.
type Client struct {
	client   *genai.Client
	generate generateFunc
}

type generateFunc func(ctx context.Context, model, system string, history []*genai.Content, last string) (*genai.GenerateContentResponse, error)

// StatusError carries the HTTP-equivalent status of a failed Gemini call.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// NewClient initializes a Gemini client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c := &Client{client: client}
	c.generate = c.sendMessage
	return c, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Chat runs a single chat turn. System messages become the system instruction,
// earlier turns become history and the final user message is sent.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	system, history, last, err := splitMessages(messages)
	if err != nil {
		return "", err
	}

	resp, err := c.generate(ctx, model, system, history, last)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", withStatus(err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: no candidates in response")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	return cleanJSONString(out.String()), nil
}

func (c *Client) sendMessage(ctx context.Context, model, system string, history []*genai.Content, last string) (*genai.GenerateContentResponse, error) {
	m := c.client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := m.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, genai.Text(last))
}

// withStatus wraps REST and gRPC failures in a StatusError so callers can
// tell rate limiting from other upstream errors.
func withStatus(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.Code, Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return &StatusError{StatusCode: http.StatusTooManyRequests, Err: err}
	case codes.Unavailable:
		return &StatusError{StatusCode: http.StatusServiceUnavailable, Err: err}
	case codes.DeadlineExceeded:
		return &StatusError{StatusCode: http.StatusGatewayTimeout, Err: err}
	case codes.InvalidArgument, codes.FailedPrecondition:
		return &StatusError{StatusCode: http.StatusBadRequest, Err: err}
	case codes.Unauthenticated:
		return &StatusError{StatusCode: http.StatusUnauthorized, Err: err}
	case codes.PermissionDenied:
		return &StatusError{StatusCode: http.StatusForbidden, Err: err}
	case codes.NotFound:
		return &StatusError{StatusCode: http.StatusNotFound, Err: err}
	case codes.Internal:
		return &StatusError{StatusCode: http.StatusInternalServerError, Err: err}
	default:
		return err
	}
}

func splitMessages(messages []domain.ChatMessage) (string, []*genai.Content, string, error) {
	var system []string
	var turns []domain.ChatMessage
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != "user" {
		return "", nil, "", errors.New("gemini: last message must be from the user")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return strings.Join(system, "\n\n"), history, turns[len(turns)-1].Content, nil
}

// cleanJSONString strips markdown fences the model sometimes wraps JSON in.
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
