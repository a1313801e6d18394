// Package config loads runtime settings from the environment, falling back to
// SSM Parameter Store for secrets.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Secret environment variables.
const (
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvGeminiKey      = "GEMINI_API_KEY"
	EnvAviasalesToken = "AVIASALES_API_KEY"
)

// parameterNames maps secret env vars to their parameter names under PARAM_PREFIX.
var parameterNames = map[string]string{
	EnvTelegramToken:  "telegram-token",
	EnvOpenAIKey:      "open-ai-token",
	EnvGeminiKey:      "gemini-token",
	EnvAviasalesToken: "aviasales-token",
}

// TokenGetter reads a {"token":"..."} secret by parameter name.
type TokenGetter interface {
	GetToken(ctx context.Context, name string) (string, error)
}

type Config struct {
	TelegramToken  string
	LLMProvider    string
	LLMKey         string
	AviasalesToken string

	OpenAIModel      string
	OpenAIBaseURL    string
	GeminiModel      string
	AviasalesBaseURL string
	SearchCurrency   string
	SearchLimit      int
	MaxOffers        int
	MaxMessageLength int
	HTTPTimeout      time.Duration

	StateBackend string
	StateTable   string
	RedisAddr    string
	StateTTL     time.Duration

	WebhookSecret string
	BotWorkers    int
	BotDebug      bool
	LogLevel      slog.Level
	ParamPrefix   string
}

// MissingError lists required secrets that are set neither in the
// environment nor in Parameter Store.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "config: missing required settings: " + strings.Join(e.Keys, ", ")
}

// Load reads the configuration. secrets is consulted only for secrets missing
// from the environment when PARAM_PREFIX is set; it may be nil.
func Load(ctx context.Context, secrets TokenGetter) (Config, error) {
	cfg := Config{
		LLMProvider:      strings.ToLower(envString("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIModel:      envString("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    envString("OPENAI_BASE_URL", ""),
		GeminiModel:      envString("GEMINI_MODEL", "gemini-2.0-flash"),
		AviasalesBaseURL: envString("AVIASALES_BASE_URL", ""),
		SearchCurrency:   strings.ToLower(envString("SEARCH_CURRENCY", "rub")),
		SearchLimit:      envInt("SEARCH_LIMIT", 30),
		MaxOffers:        envInt("MAX_OFFERS", 10),
		MaxMessageLength: envInt("MAX_MESSAGE_LENGTH", 500),
		HTTPTimeout:      time.Duration(envInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		StateBackend:     strings.ToLower(envString("STATE_BACKEND", defaultBackend())),
		StateTable:       envString("STATE_TABLE", ""),
		RedisAddr:        envString("REDIS_ADDR", "localhost:6379"),
		StateTTL:         time.Duration(envInt("STATE_TTL_HOURS", 24)) * time.Hour,
		WebhookSecret:    envString("WEBHOOK_SECRET", ""),
		BotWorkers:       envInt("BOT_WORKERS", 8),
		BotDebug:         envBool("BOT_DEBUG", false),
		LogLevel:         envLevel("LOG_LEVEL", slog.LevelInfo),
		ParamPrefix:      strings.TrimRight(envString("PARAM_PREFIX", ""), "/"),
	}

	llmKeyEnv := EnvOpenAIKey
	switch cfg.LLMProvider {
	case ProviderOpenAI:
	case ProviderGemini:
		llmKeyEnv = EnvGeminiKey
	default:
		return Config{}, fmt.Errorf("config: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	switch cfg.StateBackend {
	case BackendMemory, BackendRedis:
	case BackendDynamoDB:
		if cfg.StateTable == "" {
			return Config{}, fmt.Errorf("config: STATE_TABLE is required for STATE_BACKEND=%s", BackendDynamoDB)
		}
	default:
		return Config{}, fmt.Errorf("config: unknown STATE_BACKEND %q", cfg.StateBackend)
	}

	var missing []string
	for _, s := range []struct {
		env  string
		dest *string
	}{
		{EnvTelegramToken, &cfg.TelegramToken},
		{llmKeyEnv, &cfg.LLMKey},
		{EnvAviasalesToken, &cfg.AviasalesToken},
	} {
		v, err := cfg.secret(ctx, secrets, s.env)
		if err != nil {
			return Config{}, err
		}
		if v == "" {
			missing = append(missing, s.env)
			continue
		}
		*s.dest = v
	}
	if len(missing) > 0 {
		return Config{}, &MissingError{Keys: missing}
	}
	return cfg, nil
}

func (c Config) secret(ctx context.Context, secrets TokenGetter, env string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	if c.ParamPrefix == "" || secrets == nil {
		return "", nil
	}
	name := c.ParamPrefix + "/" + parameterNames[env]
	v, err := secrets.GetToken(ctx, name)
	if err != nil {
		return "", fmt.Errorf("config: read %s from parameter store: %w", env, err)
	}
	return v, nil
}

// defaultBackend is dynamodb on Lambda when STATE_TABLE is set, memory otherwise.
func defaultBackend() string {
	if OnLambda() && strings.TrimSpace(os.Getenv("STATE_TABLE")) != "" {
		return BackendDynamoDB
	}
	return BackendMemory
}

// OnLambda reports whether the process runs inside AWS Lambda.
func OnLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// EphemeralState reports whether dialog state is lost when the process exits.
func (c Config) EphemeralState() bool {
	return c.StateBackend == BackendMemory
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envLevel(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return def
	}
	return level
}
