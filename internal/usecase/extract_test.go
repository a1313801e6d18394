package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"avia-bot/internal/domain"
	"avia-bot/internal/integrations/gemini"
	"avia-bot/internal/integrations/openai"
)

type mockLLM struct {
	answer    string
	err       error
	captured  []domain.ChatMessage
	model     string
	callCount int
}

func (m *mockLLM) Chat(_ context.Context, model string, msgs []domain.ChatMessage) (string, error) {
	m.callCount++
	m.model = model
	m.captured = msgs
	return m.answer, m.err
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func paramsJSON(origin, destination, from, to string) string {
	return fmt.Sprintf(`{"origin":%q,"origin_city":"","destination":%q,"destination_city":"","departure_from":%q,"departure_to":%q,"return_at":"","trip_days":0}`,
		origin, destination, from, to)
}

func newTestExtractor(t *testing.T, llm LLMClient) *ExtractionService {
	t.Helper()
	svc, err := NewExtractionService(llm, "gpt-test")
	require.NoError(t, err)
	svc.now = func() time.Time { return today }
	return svc
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) *Error {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
	return usecaseErr
}

func TestNewExtractionService_ValidatesDependencies(t *testing.T) {
	_, err := NewExtractionService(nil, "gpt-test")
	require.Error(t, err)

	_, err = NewExtractionService(&mockLLM{}, " ")
	require.Error(t, err)
}

func TestExtract_HappyPath(t *testing.T) {
	llm := &mockLLM{answer: `{"origin":"MOW","origin_city":"Москва","destination":"PAR","destination_city":"Париж","departure_from":"2025-06-01","departure_to":"2025-06-10","return_at":"","trip_days":0}`}
	svc := newTestExtractor(t, llm)

	p, err := svc.Extract(context.Background(), "Найди билеты из Москвы в Париж на начало июня", domain.FlightParams{})
	require.NoError(t, err)
	require.Equal(t, domain.FlightParams{
		Origin: "MOW", OriginCity: "Москва",
		Destination: "PAR", DestinationCity: "Париж",
		DepartureFrom: "2025-06-01", DepartureTo: "2025-06-10",
	}, p)
	require.Equal(t, "gpt-test", llm.model)
	require.Equal(t, "Найди билеты из Москвы в Париж на начало июня", llm.captured[len(llm.captured)-1].Content)
}

func TestExtract_PassesCurrentState(t *testing.T) {
	llm := &mockLLM{answer: paramsJSON("MOW", "PAR", "2025-06-22", "2025-06-22")}
	svc := newTestExtractor(t, llm)

	p, err := svc.Extract(context.Background(), "давай на неделю позже", domain.FlightParams{Origin: "MOW", Destination: "PAR", DepartureFrom: "2025-06-15"})
	require.NoError(t, err)
	require.Equal(t, "2025-06-22", p.DepartureFrom)
	require.Len(t, llm.captured, 3)
}

func TestExtract_IncompleteIsNotAnError(t *testing.T) {
	svc := newTestExtractor(t, &mockLLM{answer: paramsJSON("", "", "", "")})

	p, err := svc.Extract(context.Background(), "хочу билет", domain.FlightParams{})
	require.NoError(t, err)
	require.False(t, p.Complete())
}

func TestExtract_MalformedResponse(t *testing.T) {
	svc := newTestExtractor(t, &mockLLM{answer: "Конечно! Вот параметры: Москва -> Париж"})

	_, err := svc.Extract(context.Background(), "Москва-Париж завтра", domain.FlightParams{})
	ue := expectError(t, err, ErrorNeedsClarification, "llm_malformed_response")
	require.Equal(t, []string{domain.FieldOrigin, domain.FieldDestination, domain.FieldDeparture}, ue.Missing)
}

func TestExtract_MalformedResponseWithCompleteState(t *testing.T) {
	svc := newTestExtractor(t, &mockLLM{answer: "не понял"})

	current := domain.FlightParams{Origin: "MOW", Destination: "PAR", DepartureFrom: "2025-06-01"}
	_, err := svc.Extract(context.Background(), "а если попозже?", current)
	ue := expectError(t, err, ErrorNeedsClarification, "llm_malformed_response")
	require.Empty(t, ue.Missing)
}

func TestExtract_LLMErrors(t *testing.T) {
	svc := newTestExtractor(t, &mockLLM{err: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}})
	_, err := svc.Extract(context.Background(), "Москва-Париж", domain.FlightParams{})
	expectError(t, err, ErrorRateLimited, "llm_rate_limited")

	svc = newTestExtractor(t, &mockLLM{err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}})
	_, err = svc.Extract(context.Background(), "Москва-Париж", domain.FlightParams{})
	expectError(t, err, ErrorUpstream, "llm_error")

	svc = newTestExtractor(t, &mockLLM{err: fmt.Errorf("openai: request failed: %w", timeoutErr{})})
	_, err = svc.Extract(context.Background(), "Москва-Париж", domain.FlightParams{})
	expectError(t, err, ErrorUpstream, "llm_timeout")

	svc = newTestExtractor(t, &mockLLM{err: errors.New("boom")})
	_, err = svc.Extract(context.Background(), "Москва-Париж", domain.FlightParams{})
	expectError(t, err, ErrorUpstream, "llm_error")
}

func TestExtract_GeminiRateLimit(t *testing.T) {
	llmErr := fmt.Errorf("gemini: generate content: %w", &gemini.StatusError{StatusCode: http.StatusTooManyRequests, Err: errors.New("quota exceeded")})
	svc := newTestExtractor(t, &mockLLM{err: llmErr})

	_, err := svc.Extract(context.Background(), "Москва-Париж", domain.FlightParams{})
	expectError(t, err, ErrorRateLimited, "llm_rate_limited")
}
