// Package app builds the flight-search pipeline from configuration. It is
// shared by the polling and webhook entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"avia-bot/internal/config"
	"avia-bot/internal/domain"
	"avia-bot/internal/integrations/aviasales"
	"avia-bot/internal/integrations/gemini"
	"avia-bot/internal/integrations/openai"
	"avia-bot/internal/integrations/paramstore"
	"avia-bot/internal/repository"
	"avia-bot/internal/usecase"
)

type App struct {
	Flights *usecase.SearchService
	closers []func() error
}

// LoadConfig loads the AWS SDK config and the bot configuration, reading
// secrets absent from the environment from Parameter Store.
func LoadConfig(ctx context.Context) (config.Config, aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return config.Config{}, aws.Config{}, fmt.Errorf("app: load aws config: %w", err)
	}
	secrets, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return config.Config{}, aws.Config{}, fmt.Errorf("app: create paramstore client: %w", err)
	}
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		return config.Config{}, aws.Config{}, err
	}
	return cfg, awsCfg, nil
}

// NewLogger returns a JSON logger writing to stdout at level.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func New(ctx context.Context, cfg config.Config, awsCfg aws.Config) (*App, error) {
	a := &App{}

	llm, model, err := a.newLLM(ctx, cfg)
	if err != nil {
		return nil, a.closeWith(err)
	}
	extractor, err := usecase.NewExtractionService(llm, model)
	if err != nil {
		return nil, a.closeWith(err)
	}

	searcher, err := aviasales.NewClient(cfg.AviasalesToken,
		aviasales.WithBaseURL(cfg.AviasalesBaseURL),
		aviasales.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		aviasales.WithCurrency(cfg.SearchCurrency),
		aviasales.WithLimit(cfg.SearchLimit),
	)
	if err != nil {
		return nil, a.closeWith(err)
	}

	state, err := a.newStateStore(cfg, awsCfg)
	if err != nil {
		return nil, a.closeWith(err)
	}

	a.Flights, err = usecase.NewSearchService(extractor, searcher, state, cfg.MaxOffers, cfg.MaxMessageLength)
	if err != nil {
		return nil, a.closeWith(err)
	}
	slog.Info("pipeline ready",
		"llm_provider", cfg.LLMProvider,
		"llm_model", model,
		"state_backend", cfg.StateBackend,
		"currency", cfg.SearchCurrency,
	)
	return a, nil
}

// Close releases clients that hold connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) closeWith(err error) error {
	if cerr := a.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func (a *App) newLLM(ctx context.Context, cfg config.Config) (usecase.LLMClient, string, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.LLMKey)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, c.Close)
		return deadlineLLM{next: c, timeout: cfg.HTTPTimeout}, cfg.GeminiModel, nil
	case config.ProviderOpenAI, "":
		c, err := openai.NewClient(cfg.LLMKey,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		)
		if err != nil {
			return nil, "", err
		}
		return c, cfg.OpenAIModel, nil
	default:
		return nil, "", fmt.Errorf("app: unknown llm provider %q", cfg.LLMProvider)
	}
}

func (a *App) newStateStore(cfg config.Config, awsCfg aws.Config) (usecase.StateStore, error) {
	switch cfg.StateBackend {
	case config.BackendRedis:
		rdb := repository.NewRedis(cfg.RedisAddr)
		a.closers = append(a.closers, rdb.Close)
		store, err := repository.NewRedisStore(rdb, "", cfg.StateTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendDynamoDB:
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.StateTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory, "":
		return repository.NewMemoryStore(cfg.StateTTL), nil
	default:
		return nil, fmt.Errorf("app: unknown state backend %q", cfg.StateBackend)
	}
}

// deadlineLLM bounds each call of a client that has no HTTP timeout of its own.
type deadlineLLM struct {
	next    usecase.LLMClient
	timeout time.Duration
}

func (d deadlineLLM) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.next.Chat(ctx, model, messages)
}
