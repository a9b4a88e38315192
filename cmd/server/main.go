// Command server runs the relevance estimation API: job creation and
// progress endpoints, the outbox publisher, and the Prometheus listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/config"
	"github.com/litscreen/relevance-service/internal/database"
	"github.com/litscreen/relevance-service/internal/jobs"
	"github.com/litscreen/relevance-service/internal/observability"
	"github.com/litscreen/relevance-service/internal/outbox"
	"github.com/litscreen/relevance-service/internal/repository"
	httpserver "github.com/litscreen/relevance-service/internal/server/http"
	"github.com/litscreen/relevance-service/internal/temporal"
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
	}).With().Str("component", "server").Logger()
	logger.Info().Msg("relevance-service server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := autoMigrate(db, &cfg.Database, logger); err != nil {
			return err
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("relevance_service")
	}

	projectRepo := repository.NewPgProjectRepository(db)
	jobRepo := repository.NewPgJobRepository(db)
	articleRepo := repository.NewPgArticleRepository(db)

	temporalClient, err := temporal.NewClient(temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	workflowClient := temporal.NewJobWorkflowClient(temporalClient, cfg.Temporal.TaskQueue)
	defer workflowClient.Close()

	if err := workflowClient.Health(ctx); err != nil {
		return fmt.Errorf("temporal health check: %w", err)
	}
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// The emitter always writes outbox rows; whether anything drains them
	// depends on Kafka being enabled.
	outboxRepo := outbox.NewPgRepository(db)
	emitter := outbox.NewEmitter(outboxRepo, metrics, logger)

	if cfg.Kafka.Enabled {
		publisher := outbox.NewKafkaPublisher(cfg.Kafka)
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka publisher")
			}
		}()

		processor := outbox.NewProcessor(outboxRepo, publisher, db, cfg.Outbox, metrics, logger)
		go func() {
			if err := processor.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("outbox processor error")
			}
		}()
		logger.Info().
			Str("topic", cfg.Kafka.Topic).
			Dur("poll_interval", cfg.Outbox.PollInterval).
			Msg("outbox processor started")
	} else {
		logger.Info().Msg("kafka disabled; outbox events recorded but not published")
	}

	coordinator := jobs.NewCoordinator(
		projectRepo,
		jobRepo,
		articleRepo,
		workflowClient,
		workflows.EstimateRelevanceWorkflow,
		cfg.LLM.ModelName(),
		metrics,
		logger,
		jobs.WithEventEmitter(emitter),
	)

	httpCfg := httpserver.Config{
		Address:      cfg.Server.HTTPAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}
	httpSrv := httpserver.NewServer(httpCfg, coordinator, db, logger)
	metricsSrv := newMetricsServer(cfg)

	errCh := make(chan error, 2)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	if metricsSrv != nil {
		go func() {
			logger.Info().Str("address", metricsSrv.Addr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsSrv != nil {
		readyLog = readyLog.Str("metrics_address", metricsSrv.Addr)
	}
	readyLog.Msg("relevance-service is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down relevance-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("relevance-service shutdown complete")
	return nil
}

// autoMigrate applies pending migrations on startup. Meant for development
// setups where no separate migrate step runs before the server.
func autoMigrate(db *database.DB, cfg *config.DatabaseConfig, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, cfg.MigrationPath, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// newMetricsServer builds the Prometheus listener, or nil when metrics are
// disabled. It runs on its own port so scrapes never compete with API
// traffic.
func newMetricsServer(cfg *config.Config) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	return &http.Server{
		Addr:         cfg.Server.MetricsAddress(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
