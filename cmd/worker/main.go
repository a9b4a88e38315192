// Command worker runs the Temporal worker that executes the relevance
// estimation pipeline: preprocessing, per-article scoring, and finalization.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/config"
	"github.com/litscreen/relevance-service/internal/database"
	"github.com/litscreen/relevance-service/internal/llm"
	"github.com/litscreen/relevance-service/internal/observability"
	"github.com/litscreen/relevance-service/internal/outbox"
	"github.com/litscreen/relevance-service/internal/repository"
	"github.com/litscreen/relevance-service/internal/temporal"
	"github.com/litscreen/relevance-service/internal/temporal/activities"
	"github.com/litscreen/relevance-service/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	}).With().Str("component", "worker").Logger()
	logger.Info().Msg("relevance-service worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("relevance_service")
	}

	projectRepo := repository.NewPgProjectRepository(db)
	jobRepo := repository.NewPgJobRepository(db)
	articleRepo := repository.NewPgArticleRepository(db)

	// One scoring client serves both semantic extraction and relevance
	// estimation, so they share the rate limiter and circuit breaker.
	scoringClient, err := newScoringClient(&cfg.LLM, metrics, logger)
	if err != nil {
		return fmt.Errorf("create scoring client: %w", err)
	}
	logger.Info().
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.ModelName()).
		Msg("scoring client created")

	outboxRepo := outbox.NewPgRepository(db)
	emitter := outbox.NewEmitter(outboxRepo, metrics, logger)

	temporalClient, err := temporal.NewClient(temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// MaxConcurrentArticles caps the per-article activity fan-out on this
	// worker.
	workerConfig := temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue)
	if cfg.Temporal.MaxConcurrentArticles > 0 {
		workerConfig.MaxConcurrentActivityExecutionSize = cfg.Temporal.MaxConcurrentArticles
	}
	manager, err := temporal.NewWorkerManager(temporalClient, workerConfig)
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	manager.RegisterWorkflow(workflows.EstimateRelevanceWorkflow)

	jobActivities := activities.NewJobActivities(
		jobRepo,
		articleRepo,
		projectRepo,
		scoringClient,
		scoringClient,
		metrics,
		activities.WithEventEmitter(emitter),
	)
	manager.RegisterActivity(jobActivities)

	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Int("max_concurrent_articles", workerConfig.MaxConcurrentActivityExecutionSize).
		Msg("starting temporal worker")

	// Blocks until the context is cancelled or the worker fails.
	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}

// newScoringClient maps the loaded configuration onto the scoring client
// factory.
func newScoringClient(cfg *config.LLMConfig, metrics *observability.Metrics, logger zerolog.Logger) (*llm.Client, error) {
	return llm.NewClient(llm.FactoryConfig{
		Provider:         cfg.Provider,
		Temperature:      cfg.Temperature,
		Timeout:          cfg.Timeout,
		MaxRetries:       cfg.MaxRetries,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			BaseURL: cfg.Anthropic.BaseURL,
		},
	}, metrics, logger)
}
