package outbox

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/domain"
	"github.com/litscreen/relevance-service/internal/observability"
)

// AggregateTypeJob is the aggregate type for job lifecycle events.
const AggregateTypeJob = "estimate_relevance_job"

// Emitter builds job lifecycle events and records them in the outbox.
// Emission is a plain insert; it participates in whatever transaction the
// Repository's connection is bound to.
type Emitter struct {
	repo    Repository
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewEmitter creates an Emitter. The metrics parameter may be nil.
func NewEmitter(repo Repository, metrics *observability.Metrics, logger zerolog.Logger) *Emitter {
	return &Emitter{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With().Str("component", "outbox_emitter").Logger(),
	}
}

// EmitJobCreated records a job.created event for a freshly persisted job.
func (e *Emitter) EmitJobCreated(ctx context.Context, job *domain.EstimateRelevanceJob, questionCount int) error {
	return e.emit(ctx, domain.EventTypeJobCreated, job.ID.String(), domain.JobCreatedPayload{
		JobID:         job.ID,
		ProjectID:     job.ProjectID,
		ModelName:     job.ModelName,
		TotalArticles: job.TotalArticles,
		QuestionCount: questionCount,
	})
}

// EmitJobFinalized records a job.finalized event for a completed job.
func (e *Emitter) EmitJobFinalized(ctx context.Context, job *domain.EstimateRelevanceJob) error {
	return e.emit(ctx, domain.EventTypeJobFinalized, job.ID.String(), domain.JobFinalizedPayload{
		JobID:             job.ID,
		ProjectID:         job.ProjectID,
		TotalArticles:     job.TotalArticles,
		CompletedArticles: job.CompletedArticles,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType, aggregateID string, payload interface{}) error {
	event, err := domain.NewOutboxEvent(eventType, AggregateTypeJob, aggregateID, payload)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}
	if err := e.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("record outbox event: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordOutboxEmitted(eventType)
	}
	e.logger.Debug().
		Str("event_type", eventType).
		Str("aggregate_id", aggregateID).
		Str("event_id", event.EventID.String()).
		Msg("outbox event recorded")

	return nil
}
