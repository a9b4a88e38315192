// Package jobs coordinates relevance estimation jobs: creation with frozen
// snapshots, workflow dispatch, and progress reporting.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/domain"
	"github.com/litscreen/relevance-service/internal/observability"
	"github.com/litscreen/relevance-service/internal/repository"
)

// WorkflowStarter starts the estimation workflow for a new job.
// *temporal.JobWorkflowClient satisfies it.
type WorkflowStarter interface {
	StartEstimateRelevanceWorkflow(ctx context.Context, task domain.TaskMessage, workflowFunc interface{}) (workflowID, runID string, err error)
}

// EventEmitter records job lifecycle events. *outbox.Emitter satisfies it.
type EventEmitter interface {
	EmitJobCreated(ctx context.Context, job *domain.EstimateRelevanceJob, questionCount int) error
}

// Coordinator owns the job lifecycle on the API side: it persists new jobs
// with their snapshots, hands them to Temporal, and reports progress.
type Coordinator struct {
	projects     repository.ProjectRepository
	jobs         repository.JobRepository
	articles     repository.ArticleRepository
	starter      WorkflowStarter
	workflowFunc interface{}
	modelName    string
	emitter      EventEmitter // nil = event emission disabled
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

// CoordinatorOption configures optional Coordinator dependencies.
type CoordinatorOption func(*Coordinator)

// WithEventEmitter attaches a job lifecycle event emitter.
func WithEventEmitter(emitter EventEmitter) CoordinatorOption {
	return func(c *Coordinator) { c.emitter = emitter }
}

// NewCoordinator creates a Coordinator. workflowFunc is the Temporal
// workflow function reference (workflows.EstimateRelevanceWorkflow) passed
// through to the starter. modelName is stamped on every job this
// coordinator creates. The metrics parameter may be nil.
func NewCoordinator(
	projects repository.ProjectRepository,
	jobs repository.JobRepository,
	articles repository.ArticleRepository,
	starter WorkflowStarter,
	workflowFunc interface{},
	modelName string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		projects:     projects,
		jobs:         jobs,
		articles:     articles,
		starter:      starter,
		workflowFunc: workflowFunc,
		modelName:    modelName,
		metrics:      metrics,
		logger:       logger.With().Str("component", "job_coordinator").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateJob creates a relevance estimation job for the project and starts
// its workflow.
//
// The project's definitions, research questions, and question definitions
// are frozen into snapshot rows in the same transaction that creates the
// job, so edits made while the job runs never affect its results. The
// article count is fixed at creation; articles added later are not part of
// the job's completion target.
//
// Persisting the job and starting the workflow are separate steps. If the
// start fails the job row remains and the error is surfaced; the workflow
// id is derived from the job id, so a retried start for the same job
// collapses into the already-running execution.
func (c *Coordinator) CreateJob(ctx context.Context, projectID uuid.UUID) (*domain.EstimateRelevanceJob, error) {
	project, err := c.projects.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if len(project.ResearchQuestions) == 0 {
		return nil, domain.NewValidationError("research_questions", "project has no research questions")
	}

	total, err := c.projects.CountArticles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	job := &domain.EstimateRelevanceJob{
		ID:            jobID,
		ProjectID:     projectID,
		ModelName:     c.modelName,
		TotalArticles: total,
		CreatedAt:     time.Now().UTC(),
	}

	snapshots, err := buildSnapshots(jobID, project)
	if err != nil {
		return nil, fmt.Errorf("build snapshots: %w", err)
	}
	if err := c.jobs.Create(ctx, job, snapshots); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	questions := project.QuestionSpecs()

	if c.emitter != nil {
		if emitErr := c.emitter.EmitJobCreated(ctx, job, len(questions)); emitErr != nil {
			c.logger.Warn().Err(emitErr).
				Str("job_id", jobID.String()).
				Msg("job created event emission failed")
		}
	}
	if c.metrics != nil {
		c.metrics.RecordJobStarted(total)
	}

	task := domain.TaskMessage{
		Type:      domain.TaskTypePreprocessing,
		JobID:     jobID,
		ProjectID: projectID,
		ModelName: c.modelName,
		Questions: questions,
	}
	workflowID, runID, err := c.starter.StartEstimateRelevanceWorkflow(ctx, task, c.workflowFunc)
	if err != nil {
		return nil, fmt.Errorf("start workflow for job %s: %w", jobID, err)
	}

	jobLogger := observability.WithJobContext(c.logger, jobID.String(), projectID.String())
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		jobLogger = jobLogger.With().Str("correlation_id", requestID).Logger()
	}
	jobLogger.Info().
		Str("workflow_id", workflowID).
		Str("run_id", runID).
		Int("total_articles", total).
		Int("questions", len(questions)).
		Msg("relevance estimation job created")

	return job, nil
}

// GetProgress reports the project's most recent job: counters, percentage,
// and the articles already scored with their per-question verdicts.
// A project with no jobs yields (nil, nil).
func (c *Coordinator) GetProgress(ctx context.Context, projectID uuid.UUID) (*domain.JobProgress, error) {
	job, err := c.jobs.GetLatestForProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest job: %w", err)
	}

	processed, err := c.articles.ListProcessedForJob(ctx, projectID, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list processed articles: %w", err)
	}

	return &domain.JobProgress{
		JobID:             job.ID,
		ModelName:         job.ModelName,
		TotalArticles:     job.TotalArticles,
		CompletedArticles: job.CompletedArticles,
		Progress:          job.ProgressPercent(),
		Finalized:         job.FinalizedAt != nil,
		ProcessedArticles: processed,
	}, nil
}

// GetJob retrieves one of the project's jobs by id. A job belonging to a
// different project is reported as not found rather than leaked.
func (c *Coordinator) GetJob(ctx context.Context, projectID, jobID uuid.UUID) (*domain.EstimateRelevanceJob, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ProjectID != projectID {
		return nil, domain.NewNotFoundError("job", jobID.String())
	}
	return job, nil
}

// buildSnapshots freezes the project's screening inputs for one job.
func buildSnapshots(jobID uuid.UUID, project *domain.Project) ([]domain.Snapshot, error) {
	var snapshots []domain.Snapshot
	now := time.Now().UTC()

	add := func(entityType domain.SnapshotEntityType, entityID uuid.UUID, entity interface{}) error {
		payload, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("marshal %s snapshot: %w", entityType, err)
		}
		snapshots = append(snapshots, domain.Snapshot{
			ID:         uuid.New(),
			JobID:      jobID,
			EntityType: entityType,
			EntityID:   entityID,
			Payload:    payload,
			CreatedAt:  now,
		})
		return nil
	}

	for _, d := range project.Definitions {
		if err := add(domain.SnapshotEntityProjectDefinition, d.ID, d); err != nil {
			return nil, err
		}
	}
	for _, q := range project.ResearchQuestions {
		if err := add(domain.SnapshotEntityResearchQuestion, q.ID, q); err != nil {
			return nil, err
		}
		for _, qd := range q.Definitions {
			if err := add(domain.SnapshotEntityQuestionDefinition, qd.ID, qd); err != nil {
				return nil, err
			}
		}
	}
	return snapshots, nil
}
