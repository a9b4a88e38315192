package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/litscreen/relevance-service/internal/domain"
	"github.com/litscreen/relevance-service/internal/llm"
	"github.com/litscreen/relevance-service/internal/observability"
	"github.com/litscreen/relevance-service/internal/repository"
)

// Content type label passed to the scoring prompts. Articles are screened on
// their title and abstract.
const scoringContentType = "abstract"

// Task outcome labels for metrics.
const (
	outcomeOK        = "ok"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeError     = "error"
	outcomeSkipped   = "skipped"
)

// EventEmitter records integration events for publication. Emission happens
// inside activities after state changes commit, so a lost event never
// implies lost state.
type EventEmitter interface {
	EmitJobFinalized(ctx context.Context, job *domain.EstimateRelevanceJob) error
}

// JobActivities provides Temporal activities for the relevance estimation
// pipeline. Methods on this struct are registered as Temporal activities via
// the worker.
type JobActivities struct {
	jobs      repository.JobRepository
	articles  repository.ArticleRepository
	projects  repository.ProjectRepository
	extractor llm.SemanticExtractor
	estimator llm.RelevanceEstimator
	metrics   *observability.Metrics
	emitter   EventEmitter // nil = event emission disabled
}

// JobActivitiesOption configures optional JobActivities dependencies.
type JobActivitiesOption func(*JobActivities)

// WithEventEmitter attaches an integration event emitter to the activities.
func WithEventEmitter(emitter EventEmitter) JobActivitiesOption {
	return func(a *JobActivities) { a.emitter = emitter }
}

// NewJobActivities creates a new JobActivities instance with the given
// dependencies. The metrics parameter may be nil (metrics recording will be
// skipped).
func NewJobActivities(
	jobs repository.JobRepository,
	articles repository.ArticleRepository,
	projects repository.ProjectRepository,
	extractor llm.SemanticExtractor,
	estimator llm.RelevanceEstimator,
	metrics *observability.Metrics,
	opts ...JobActivitiesOption,
) *JobActivities {
	a := &JobActivities{
		jobs:      jobs,
		articles:  articles,
		projects:  projects,
		extractor: extractor,
		estimator: estimator,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Preprocess re-reads the job and enumerates the project's articles so the
// workflow can fan out one execution task per article.
//
// The job's TotalArticles was fixed at creation; the live article list is
// enumerated here. Articles added to the project after job creation are
// still listed and scored, but completion is judged against the counters
// the gate maintains, not against the list length.
func (a *JobActivities) Preprocess(ctx context.Context, input PreprocessInput) (*PreprocessOutput, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	if err := requireTaskType(input.Task, domain.TaskTypePreprocessing); err != nil {
		return nil, err
	}

	logger.Info("preprocessing job",
		"jobID", input.Task.JobID,
		"projectID", input.Task.ProjectID,
		"questions", len(input.Task.Questions),
	)

	job, err := a.jobs.Get(ctx, input.Task.JobID)
	if err != nil {
		a.recordTask(domain.TaskTypePreprocessing, outcomeError, start)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("job %s not found", input.Task.JobID),
				"job_not_found",
				err,
			)
		}
		return nil, fmt.Errorf("read job: %w", err)
	}

	articleIDs, err := a.projects.ListArticleIDs(ctx, job.ProjectID)
	if err != nil {
		a.recordTask(domain.TaskTypePreprocessing, outcomeError, start)
		return nil, fmt.Errorf("list article ids: %w", err)
	}

	if len(articleIDs) != job.TotalArticles {
		logger.Warn("article population changed since job creation",
			"jobID", job.ID,
			"totalArticles", job.TotalArticles,
			"listed", len(articleIDs),
		)
	}

	logger.Info("job preprocessed",
		"jobID", job.ID,
		"articles", len(articleIDs),
	)
	a.recordTask(domain.TaskTypePreprocessing, outcomeOK, start)

	return &PreprocessOutput{
		ArticleIDs:    articleIDs,
		TotalArticles: job.TotalArticles,
	}, nil
}

// ProcessArticle runs the full estimation pass for one article: fetch,
// extract key semantics, score every question, persist through the
// completion gate, and rewrite the article's flattened semantics.
//
// The activity is safe to redeliver. A missing article is a terminal
// success (Dropped). An article that already has relevance rows for the
// job is reported as AlreadyProcessed without rescoring, and the gate
// itself rejects duplicate inserts that race past the initial read.
func (a *JobActivities) ProcessArticle(ctx context.Context, input ProcessArticleInput) (*ProcessArticleOutput, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()
	task := input.Task

	if err := requireTaskType(task, domain.TaskTypeExecution); err != nil {
		return nil, err
	}
	if task.ArticleID == uuid.Nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"execution task without article id",
			"invalid_task",
			domain.ErrInvalidInput,
		)
	}

	logger.Info("processing article",
		"jobID", task.JobID,
		"articleID", task.ArticleID,
		"questions", len(task.Questions),
	)

	article, err := a.articles.GetWithRelevances(ctx, task.ArticleID, task.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("article no longer exists, dropping",
				"jobID", task.JobID,
				"articleID", task.ArticleID,
			)
			a.recordTask(domain.TaskTypeExecution, outcomeDropped, start)
			return &ProcessArticleOutput{Dropped: true}, nil
		}
		a.recordTask(domain.TaskTypeExecution, outcomeError, start)
		return nil, fmt.Errorf("read article: %w", err)
	}

	if len(article.Relevances) > 0 {
		return a.duplicateOutput(ctx, logger, task, start)
	}

	semantics, err := a.extractor.ExtractKeySemantics(ctx, article.Content())
	if err != nil {
		a.recordTask(domain.TaskTypeExecution, outcomeError, start)
		return nil, wrapProviderError("extract semantics", err)
	}

	scoringContent, err := buildScoringContent(article, semantics)
	if err != nil {
		a.recordTask(domain.TaskTypeExecution, outcomeError, start)
		return nil, err
	}

	relevances := make([]domain.ArticleRelevance, 0, len(task.Questions))
	scoredAt := time.Now().UTC()
	mustRead := false
	relevantAny := false
	for i, q := range task.Questions {
		verdict, err := a.estimator.EstimateRelevance(ctx, scoringContent, scoringContentType, q.Question, q.CombinedDefinitions)
		if err != nil {
			a.recordTask(domain.TaskTypeExecution, outcomeError, start)
			return nil, wrapProviderError(fmt.Sprintf("estimate relevance for question %d", i), err)
		}
		relevances = append(relevances, domain.ArticleRelevance{
			ArticleID:          task.ArticleID,
			JobID:              task.JobID,
			RelevanceIndex:     i,
			Question:           verdict.Question,
			RelevanceScore:     verdict.RelevanceScore,
			ContributionScore:  verdict.ContributionScore,
			IsRelevant:         verdict.IsRelevant,
			IsContributing:     verdict.IsContributing,
			RelevanceReason:    verdict.RelevanceReason,
			ContributionReason: verdict.ContributionReason,
			CreatedAt:          scoredAt,
		})
		mustRead = mustRead || verdict.IsRelevant || verdict.IsContributing
		relevantAny = relevantAny || verdict.IsRelevant
	}

	inserted, completed, total, err := a.jobs.InsertRelevancesAndAdvance(ctx, task.JobID, task.ArticleID, relevances)
	if err != nil {
		a.recordTask(domain.TaskTypeExecution, outcomeError, start)
		return nil, fmt.Errorf("insert relevances: %w", err)
	}
	if !inserted {
		// A concurrent delivery won the gate between our read and insert.
		return a.duplicateOutput(ctx, logger, task, start)
	}

	if err := a.articles.ReplaceSemantics(ctx, task.ArticleID, semantics.Flatten(task.ArticleID), mustRead); err != nil {
		// The gate already advanced, so a retry of this activity reports
		// AlreadyProcessed and will not rewrite semantics. Surface the
		// error anyway so the failure is visible in workflow history.
		a.recordTask(domain.TaskTypeExecution, outcomeError, start)
		return nil, fmt.Errorf("replace semantics: %w", err)
	}

	logger.Info("article processed",
		"jobID", task.JobID,
		"articleID", task.ArticleID,
		"completed", completed,
		"total", total,
		"mustRead", mustRead,
	)
	a.recordTask(domain.TaskTypeExecution, outcomeOK, start)
	if a.metrics != nil {
		a.metrics.RecordArticleEstimated(relevantAny, mustRead)
	}

	return &ProcessArticleOutput{
		Inserted:  true,
		Completed: completed,
		Total:     total,
	}, nil
}

// Finalize stamps the job finalized. Only the call that actually performs
// the update emits the job.finalized event and records completion metrics,
// so redelivered finalization tasks are harmless.
func (a *JobActivities) Finalize(ctx context.Context, input FinalizeInput) (*FinalizeOutput, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	if err := requireTaskType(input.Task, domain.TaskTypeFinalization); err != nil {
		return nil, err
	}

	won, err := a.jobs.MarkFinalized(ctx, input.Task.JobID)
	if err != nil {
		a.recordTask(domain.TaskTypeFinalization, outcomeError, start)
		return nil, fmt.Errorf("mark finalized: %w", err)
	}
	if !won {
		logger.Info("job already finalized", "jobID", input.Task.JobID)
		a.recordTask(domain.TaskTypeFinalization, outcomeSkipped, start)
		return &FinalizeOutput{Finalized: false}, nil
	}

	job, err := a.jobs.Get(ctx, input.Task.JobID)
	if err != nil {
		// Finalization itself committed. Report what we can without it.
		logger.Warn("job read after finalization failed",
			"jobID", input.Task.JobID,
			"error", err,
		)
	} else {
		if a.emitter != nil {
			if emitErr := a.emitter.EmitJobFinalized(ctx, job); emitErr != nil {
				logger.Warn("job finalized event emission failed",
					"jobID", job.ID,
					"error", emitErr,
				)
			}
		}
		if a.metrics != nil {
			a.metrics.RecordJobFinalized(time.Since(job.CreatedAt).Seconds())
		}
	}

	logger.Info("job finalized", "jobID", input.Task.JobID)
	a.recordTask(domain.TaskTypeFinalization, outcomeOK, start)

	return &FinalizeOutput{Finalized: true}, nil
}

// duplicateOutput reports an already-processed article, reading the job for
// counters the caller can safely compare for completion.
func (a *JobActivities) duplicateOutput(ctx context.Context, logger activityLogger, task domain.TaskMessage, start time.Time) (*ProcessArticleOutput, error) {
	job, err := a.jobs.Get(ctx, task.JobID)
	if err != nil {
		a.recordTask(domain.TaskTypeExecution, outcomeError, start)
		return nil, fmt.Errorf("read job for duplicate delivery: %w", err)
	}

	logger.Info("article already processed, skipping",
		"jobID", task.JobID,
		"articleID", task.ArticleID,
		"completed", job.CompletedArticles,
		"total", job.TotalArticles,
	)
	a.recordTask(domain.TaskTypeExecution, outcomeDuplicate, start)

	return &ProcessArticleOutput{
		AlreadyProcessed: true,
		Completed:        job.CompletedArticles,
		Total:            job.TotalArticles,
	}, nil
}

// activityLogger is the subset of the Temporal activity logger used here.
type activityLogger interface {
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
}

// buildScoringContent appends the extracted semantics to the article text so
// the relevance prompts see both the raw abstract and its structure.
func buildScoringContent(article *domain.Article, semantics domain.KeySemantics) (string, error) {
	encoded, err := json.Marshal(semantics)
	if err != nil {
		return "", fmt.Errorf("encode semantics: %w", err)
	}
	return article.Content() + "\n\n" + string(encoded), nil
}

// requireTaskType rejects task messages addressed to a different pipeline
// stage. Stage confusion is a programming error and must not be retried.
func requireTaskType(task domain.TaskMessage, want domain.TaskType) error {
	if task.Type == want {
		return nil
	}
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("task type %q, want %q", task.Type, want),
		"invalid_task_type",
		domain.NewInvalidTaskTypeError(task.Type),
	)
}

// wrapProviderError lifts LLM provider failures into the domain error
// taxonomy so rate limits and upstream outages stay distinguishable in
// workflow histories. Non-provider errors are wrapped as-is.
func wrapProviderError(op string, err error) error {
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", op, domain.NewRateLimitError(apiErr.Provider, 0))
	}
	return fmt.Errorf("%s: %w", op, domain.NewExternalAPIError(apiErr.Provider, apiErr.StatusCode, apiErr.Message, err))
}

func (a *JobActivities) recordTask(taskType domain.TaskType, outcome string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordTaskProcessed(string(taskType), outcome, time.Since(start).Seconds())
}
