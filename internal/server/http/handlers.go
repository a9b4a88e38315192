package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/domain"
	"github.com/litscreen/relevance-service/internal/observability"
	"github.com/litscreen/relevance-service/internal/temporal"
)

// createJobResponse is the JSON response for a newly created relevance job.
type createJobResponse struct {
	JobID         string    `json:"job_id"`
	ProjectID     string    `json:"project_id"`
	ModelName     string    `json:"model_name"`
	TotalArticles int       `json:"total_articles"`
	CreatedAt     time.Time `json:"created_at"`
	Message       string    `json:"message"`
}

// jobResponse is the JSON shape of a single relevance job.
type jobResponse struct {
	JobID             string     `json:"job_id"`
	ProjectID         string     `json:"project_id"`
	ModelName         string     `json:"model_name"`
	TotalArticles     int        `json:"total_articles"`
	CompletedArticles int        `json:"completed_articles"`
	Progress          int        `json:"progress"`
	Finalized         bool       `json:"finalized"`
	CreatedAt         time.Time  `json:"created_at"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
}

func jobToResponse(j *domain.EstimateRelevanceJob) jobResponse {
	return jobResponse{
		JobID:             j.ID.String(),
		ProjectID:         j.ProjectID.String(),
		ModelName:         j.ModelName,
		TotalArticles:     j.TotalArticles,
		CompletedArticles: j.CompletedArticles,
		Progress:          j.ProgressPercent(),
		Finalized:         j.FinalizedAt != nil,
		CreatedAt:         j.CreatedAt,
		FinalizedAt:       j.FinalizedAt,
	}
}

// createRelevanceJob handles POST /relevance-jobs. It snapshots the project,
// persists a new job and starts the estimation workflow. The request carries
// no body: everything the job needs comes from the project's current state.
func (s *Server) createRelevanceJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := projectIDFromContext(ctx)

	job, err := s.coordinator.CreateJob(ctx, projectID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("project_id", projectID.String()).
			Str("correlation_id", observability.RequestIDFromContext(ctx)).
			Msg("create relevance job failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createJobResponse{
		JobID:         job.ID.String(),
		ProjectID:     job.ProjectID.String(),
		ModelName:     job.ModelName,
		TotalArticles: job.TotalArticles,
		CreatedAt:     job.CreatedAt,
		Message:       "relevance estimation started",
	})
}

// getRelevanceJobProgress handles GET /relevance-jobs/progress. It reports
// the project's most recent job. A project with no jobs yet gets an empty
// progress payload, not an error.
func (s *Server) getRelevanceJobProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := projectIDFromContext(ctx)

	progress, err := s.coordinator.GetProgress(ctx, projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if progress == nil {
		progress = &domain.JobProgress{ProcessedArticles: []domain.ProcessedArticle{}}
	}
	if progress.ProcessedArticles == nil {
		progress.ProcessedArticles = []domain.ProcessedArticle{}
	}

	writeJSON(w, http.StatusOK, progress)
}

// getRelevanceJob handles GET /relevance-jobs/{jobID}.
func (s *Server) getRelevanceJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := projectIDFromContext(ctx)

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "job_id must be a valid UUID")
		return
	}

	job, err := s.coordinator.GetJob(ctx, projectID, jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobToResponse(job))
}

// writeDomainError maps domain and temporal errors to HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to
// clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, temporal.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "workflow already started")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Encoding failures past this point cannot change the response status.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
