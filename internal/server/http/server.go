// Package httpserver exposes the relevance estimation API over REST.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/database"
	"github.com/litscreen/relevance-service/internal/domain"
)

// JobCoordinator is the slice of the job coordinator the HTTP layer uses.
// *jobs.Coordinator satisfies it.
type JobCoordinator interface {
	CreateJob(ctx context.Context, projectID uuid.UUID) (*domain.EstimateRelevanceJob, error)
	GetProgress(ctx context.Context, projectID uuid.UUID) (*domain.JobProgress, error)
	GetJob(ctx context.Context, projectID, jobID uuid.UUID) (*domain.EstimateRelevanceJob, error)
}

// Config holds the listener address and connection timeouts.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server serves the job API plus liveness and readiness probes.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	coordinator JobCoordinator
	db          *database.DB
	logger      zerolog.Logger
}

// NewServer wires the router and returns a server ready to Start.
func NewServer(cfg Config, coordinator JobCoordinator, db *database.DB, logger zerolog.Logger) *Server {
	s := &Server{
		coordinator: coordinator,
		db:          db,
		logger:      logger.With().Str("component", "http-server").Logger(),
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)

	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)

	r.Route("/api/v1/projects/{projectID}", func(r chi.Router) {
		r.Use(projectContextMiddleware)

		r.Post("/relevance-jobs", s.createRelevanceJob)
		r.Get("/relevance-jobs/progress", s.getRelevanceJobProgress)
		r.Get("/relevance-jobs/{jobID}", s.getRelevanceJob)
	})

	return r
}

// Start listens and serves until Shutdown or a listener error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server listening")
	return s.httpServer.Serve(ln)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleLiveness reports that the process is up. Dependency health is the
// readiness probe's concern, so a database outage does not get the pod
// restarted.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports whether the server can take traffic, which
// requires a reachable database.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": health.Status,
	})
}
