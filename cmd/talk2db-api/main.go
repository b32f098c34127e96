package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talk2db/talk2db/internal/api"
	"github.com/talk2db/talk2db/internal/assistant"
	"github.com/talk2db/talk2db/internal/config"
	"github.com/talk2db/talk2db/internal/database"
	"github.com/talk2db/talk2db/internal/domain"
	"github.com/talk2db/talk2db/internal/export"
	"github.com/talk2db/talk2db/internal/llm"
	"github.com/talk2db/talk2db/internal/nl2sql"
	"github.com/talk2db/talk2db/internal/observability"
	"github.com/talk2db/talk2db/internal/query"
	"github.com/talk2db/talk2db/internal/retry"
	"github.com/talk2db/talk2db/internal/schema"
	"github.com/talk2db/talk2db/internal/speech"
	s3store "github.com/talk2db/talk2db/internal/storage/s3"
	"github.com/talk2db/talk2db/internal/suggest"
)

const suggestionTemperature = 0.7

func main() {
	cfg, err := config.LoadFromEnv("talk2db-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, target, err := database.Open(context.Background(), database.Config{
		URL:             cfg.Database.URL,
		Schema:          cfg.Database.Schema,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	logger.Info("database ready", slog.String("driver", target.Driver), slog.String("namespace", target.Namespace))

	provider, err := newProvider(cfg)
	if err != nil {
		logger.Error("failed to initialize language model provider", slog.Any("error", err))
		os.Exit(1)
	}
	policy := retry.Policy{
		MaxAttempts:    cfg.AI.RetryAttempts,
		InitialBackoff: cfg.AI.RetryInitialBackoff,
		MaxBackoff:     cfg.AI.RetryMaxBackoff,
		Multiplier:     2,
		Retryable:      llm.IsRateLimited,
	}
	completions := llm.NewClient(provider, llm.Params{
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		TopP:        cfg.AI.TopP,
	}, policy, logger)

	catalog := domain.DefaultCatalog()
	introspector := schema.NewIntrospector(target.Namespace)
	service := assistant.NewService(
		db,
		introspector,
		nl2sql.NewGenerator(completions, target.Dialect, logger),
		query.NewExecutor(logger),
		logger,
	)

	speechClient, err := speech.NewClient(speech.Config{
		Key:      cfg.Speech.Key,
		Region:   cfg.Speech.Region,
		Language: cfg.Speech.Language,
		Voice:    cfg.Speech.Voice,
		Timeout:  cfg.Speech.Timeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize speech client", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: service,
		Suggester: suggest.NewGenerator(completions.WithTemperature(suggestionTemperature), catalog, logger),
		Schema: func(ctx context.Context) (schema.Description, error) {
			return introspector.Describe(ctx, db)
		},
		Catalog: catalog,
		Speech:  speechClient,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(db),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: 2 * time.Second,
	}

	if cfg.Export.ArchiveEnabled {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize export archive", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archiver = export.NewArchiver(store)
		deps.Exports = store
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func newProvider(cfg config.Config) (llm.Provider, error) {
	switch cfg.AI.Provider {
	case config.AIProviderOpenAI:
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			BaseURL: cfg.AI.Endpoint,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Deployment,
			Timeout: cfg.AI.Timeout,
		})
	default:
		return llm.NewAzureProvider(llm.AzureConfig{
			Endpoint:   cfg.AI.Endpoint,
			APIKey:     cfg.AI.APIKey,
			APIVersion: cfg.AI.APIVersion,
			Deployment: cfg.AI.Deployment,
			Timeout:    cfg.AI.Timeout,
		})
	}
}
