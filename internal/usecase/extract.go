package usecase

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"avia-bot/internal/domain"
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ExtractionService turns free text into flight parameters through an LLM.
type ExtractionService struct {
	llm   LLMClient
	model string
	now   func() time.Time
}

func NewExtractionService(llm LLMClient, model string) (*ExtractionService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	return &ExtractionService{llm: llm, model: model, now: time.Now}, nil
}

// Extract returns the parameters found in text. current is the user's saved
// search state; the model may refine it. The result is normalized but may be
// incomplete: completeness is decided by the caller after merging.
func (s *ExtractionService) Extract(ctx context.Context, text string, current domain.FlightParams) (domain.FlightParams, error) {
	now := s.now()
	raw, err := s.llm.Chat(ctx, s.model, buildExtractionMessages(text, current, now))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return domain.FlightParams{}, newError(ErrorRateLimited, "llm_rate_limited", err)
		}
		if isTimeout(err) {
			return domain.FlightParams{}, newError(ErrorUpstream, "llm_timeout", err)
		}
		return domain.FlightParams{}, newError(ErrorUpstream, "llm_error", err)
	}

	params, err := parseExtraction(raw)
	if err != nil {
		return domain.FlightParams{}, clarificationError("llm_malformed_response", current.Missing(), err)
	}
	return normalizeParams(params, now), nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
