package config

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	tokens map[string]string
	err    error
	asked  []string
}

func (f *fakeTokens) GetToken(_ context.Context, name string) (string, error) {
	f.asked = append(f.asked, name)
	if f.err != nil {
		return "", f.err
	}
	return f.tokens[name], nil
}

// clearEnv blanks every variable Load reads so the host environment does not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvTelegramToken, EnvOpenAIKey, EnvGeminiKey, EnvAviasalesToken,
		"LLM_PROVIDER", "OPENAI_MODEL", "OPENAI_BASE_URL", "GEMINI_MODEL", "AVIASALES_BASE_URL",
		"SEARCH_CURRENCY", "SEARCH_LIMIT", "MAX_OFFERS", "MAX_MESSAGE_LENGTH", "HTTP_TIMEOUT_SECONDS",
		"STATE_BACKEND", "STATE_TABLE", "REDIS_ADDR", "STATE_TTL_HOURS", "WEBHOOK_SECRET",
		"BOT_WORKERS", "BOT_DEBUG", "LOG_LEVEL", "PARAM_PREFIX", "AWS_LAMBDA_FUNCTION_NAME",
	} {
		t.Setenv(k, "")
	}
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv(EnvTelegramToken, "tg-token")
	t.Setenv(EnvOpenAIKey, "sk-test")
	t.Setenv(EnvAviasalesToken, "avia-token")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setSecrets(t)

	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "tg-token", cfg.TelegramToken)
	require.Equal(t, "sk-test", cfg.LLMKey)
	require.Equal(t, "avia-token", cfg.AviasalesToken)
	require.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, "rub", cfg.SearchCurrency)
	require.Equal(t, 30, cfg.SearchLimit)
	require.Equal(t, 10, cfg.MaxOffers)
	require.Equal(t, 500, cfg.MaxMessageLength)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.Equal(t, BackendMemory, cfg.StateBackend)
	require.Equal(t, 24*time.Hour, cfg.StateTTL)
	require.Equal(t, 8, cfg.BotWorkers)
	require.False(t, cfg.BotDebug)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	setSecrets(t)
	t.Setenv("SEARCH_CURRENCY", "EUR")
	t.Setenv("MAX_OFFERS", "5")
	t.Setenv("SEARCH_LIMIT", "not-a-number")
	t.Setenv("STATE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BOT_DEBUG", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "eur", cfg.SearchCurrency)
	require.Equal(t, 5, cfg.MaxOffers)
	require.Equal(t, 30, cfg.SearchLimit)
	require.Equal(t, BackendRedis, cfg.StateBackend)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
	require.True(t, cfg.BotDebug)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_MissingSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIKey, "sk-test")

	_, err := Load(context.Background(), nil)
	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{EnvTelegramToken, EnvAviasalesToken}, missing.Keys)
	require.Contains(t, err.Error(), EnvTelegramToken)
}

func TestLoad_GeminiNeedsGeminiKey(t *testing.T) {
	clearEnv(t)
	setSecrets(t)
	t.Setenv("LLM_PROVIDER", "gemini")

	_, err := Load(context.Background(), nil)
	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{EnvGeminiKey}, missing.Keys)

	t.Setenv(EnvGeminiKey, "gm-key")
	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "gm-key", cfg.LLMKey)
}

func TestLoad_ParameterStoreFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIKey, "sk-env")
	t.Setenv("PARAM_PREFIX", "/avia-bot/")
	tokens := &fakeTokens{tokens: map[string]string{
		"/avia-bot/telegram-token":  "tg-ssm",
		"/avia-bot/aviasales-token": "avia-ssm",
	}}

	cfg, err := Load(context.Background(), tokens)
	require.NoError(t, err)
	require.Equal(t, "tg-ssm", cfg.TelegramToken)
	require.Equal(t, "sk-env", cfg.LLMKey)
	require.Equal(t, "avia-ssm", cfg.AviasalesToken)
	require.Equal(t, []string{"/avia-bot/telegram-token", "/avia-bot/aviasales-token"}, tokens.asked)
}

func TestLoad_ParameterStoreError(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARAM_PREFIX", "/avia-bot")

	_, err := Load(context.Background(), &fakeTokens{err: errors.New("access denied")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "access denied")
}

func TestLoad_InvalidChoices(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "provider", env: map[string]string{"LLM_PROVIDER": "claude"}, want: "LLM_PROVIDER"},
		{name: "backend", env: map[string]string{"STATE_BACKEND": "postgres"}, want: "STATE_BACKEND"},
		{name: "dynamodb without table", env: map[string]string{"STATE_BACKEND": "dynamodb"}, want: "STATE_TABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			setSecrets(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(context.Background(), nil)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_StateBackendDefaultOnLambda(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		backend string
	}{
		{name: "local", env: map[string]string{"STATE_TABLE": "avia-bot-state"}, backend: BackendMemory},
		{name: "lambda with table", env: map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "avia-bot", "STATE_TABLE": "avia-bot-state"}, backend: BackendDynamoDB},
		{name: "lambda without table", env: map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "avia-bot"}, backend: BackendMemory},
		{name: "explicit backend wins", env: map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "avia-bot", "STATE_TABLE": "avia-bot-state", "STATE_BACKEND": "redis"}, backend: BackendRedis},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			setSecrets(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(context.Background(), nil)
			require.NoError(t, err)
			require.Equal(t, tc.backend, cfg.StateBackend)
			require.Equal(t, tc.backend == BackendMemory, cfg.EphemeralState())
		})
	}
}
