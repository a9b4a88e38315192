// Package workflows defines Temporal workflow implementations for the
// relevance estimation pipeline.
package workflows

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/litscreen/relevance-service/internal/domain"
	litemporal "github.com/litscreen/relevance-service/internal/temporal"
	"github.com/litscreen/relevance-service/internal/temporal/activities"
)

// QueryProgress is re-exported from the parent temporal package so the
// server layer can reference it without depending on this package.
const QueryProgress = litemporal.QueryProgress

// Activity timeout constants. Estimation activities call the scoring
// service once per question, so their budget scales with question count;
// persistence activities only touch Postgres.
const (
	estimationActivityTimeout  = 10 * time.Minute
	persistenceActivityTimeout = 30 * time.Second
)

// EstimateRelevanceWorkflowResult contains the final counters of a
// relevance estimation workflow.
type EstimateRelevanceWorkflowResult struct {
	// JobID is the estimated job's identifier.
	JobID uuid.UUID

	// TotalArticles is the article count fixed on the job at creation.
	TotalArticles int

	// Inserted is the number of articles scored and persisted by this run.
	Inserted int

	// Skipped is the number of articles that already had relevance rows.
	Skipped int

	// Dropped is the number of articles that vanished before scoring.
	Dropped int

	// Failed is the number of articles whose activity exhausted its retries.
	Failed int

	// Completed is the job's completed counter as last observed.
	Completed int

	// Finalized reports whether this run executed the finalization.
	Finalized bool

	// Duration is the total workflow execution time in seconds.
	Duration float64
}

// workflowProgress tracks the internal progress state of the workflow,
// exposed via the QueryProgress query handler.
type workflowProgress struct {
	Phase         string
	TotalArticles int
	Dispatched    int
	Inserted      int
	Skipped       int
	Dropped       int
	Failed        int
	Completed     int
	Finalized     bool
}

// EstimateRelevanceWorkflow drives one relevance estimation job from
// dispatch to finalization.
//
// The workflow proceeds through the following phases:
//  1. Preprocess re-reads the job and enumerates the project's articles.
//  2. One ProcessArticle activity is started per article. The fan-out order
//     is the article enumeration order, so replay is deterministic.
//  3. Every ProcessArticle output carries the job's counters as observed by
//     the completion gate. When any output reports Completed == Total the
//     workflow runs finalization; a failed or dropped article only affects
//     its own slot.
//  4. After the fan-out drains, empty jobs are finalized directly.
//
// Progress is exposed via the "progress" query. Finalization is idempotent,
// so racing finalization attempts across redeliveries are harmless.
func EstimateRelevanceWorkflow(ctx workflow.Context, task domain.TaskMessage) (*EstimateRelevanceWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	progress := &workflowProgress{Phase: "preprocessing"}
	err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*workflowProgress, error) {
		return progress, nil
	})
	if err != nil {
		logger.Error("failed to register progress query handler", "error", err)
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	// Activity nil-pointer variable for method references.
	var jobAct *activities.JobActivities

	// Persistence-only activities retry fast and often; estimation
	// activities carry the scoring calls and get a bounded attempt count
	// so a poison article cannot spin forever.
	persistCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: persistenceActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})
	estimateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: estimationActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    4,
		},
	})

	logger.Info("starting relevance estimation",
		"jobID", task.JobID,
		"projectID", task.ProjectID,
		"model", task.ModelName,
		"questions", len(task.Questions),
	)

	var pre activities.PreprocessOutput
	err = workflow.ExecuteActivity(persistCtx, jobAct.Preprocess, activities.PreprocessInput{
		Task: task,
	}).Get(ctx, &pre)
	if err != nil {
		logger.Error("preprocessing failed", "jobID", task.JobID, "error", err)
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	progress.Phase = "estimating"
	progress.TotalArticles = pre.TotalArticles

	// Fan out one estimation activity per article. Futures are collected in
	// enumeration order; each output's counters come from the gate's atomic
	// increment (or a job re-read on idempotent skip), so comparing them is
	// race-free even though futures resolve out of order.
	futures := make([]workflow.Future, 0, len(pre.ArticleIDs))
	for _, articleID := range pre.ArticleIDs {
		execTask := task
		execTask.Type = domain.TaskTypeExecution
		execTask.ArticleID = articleID
		futures = append(futures, workflow.ExecuteActivity(estimateCtx, jobAct.ProcessArticle, activities.ProcessArticleInput{
			Task: execTask,
		}))
		progress.Dispatched++
	}

	completionSeen := false
	for i, future := range futures {
		var out activities.ProcessArticleOutput
		if err := future.Get(ctx, &out); err != nil {
			progress.Failed++
			logger.Error("article estimation failed",
				"jobID", task.JobID,
				"articleID", pre.ArticleIDs[i],
				"error", err,
			)
			continue
		}

		switch {
		case out.Inserted:
			progress.Inserted++
		case out.AlreadyProcessed:
			progress.Skipped++
		case out.Dropped:
			progress.Dropped++
		}
		if out.Completed > progress.Completed {
			progress.Completed = out.Completed
		}
		if !out.Dropped && out.Total > 0 && out.Completed == out.Total {
			completionSeen = true
		}
	}

	finalize := func() (bool, error) {
		finalTask := task
		finalTask.Type = domain.TaskTypeFinalization
		finalTask.ArticleID = uuid.Nil

		var out activities.FinalizeOutput
		if err := workflow.ExecuteActivity(persistCtx, jobAct.Finalize, activities.FinalizeInput{
			Task: finalTask,
		}).Get(ctx, &out); err != nil {
			return false, fmt.Errorf("finalize: %w", err)
		}
		return out.Finalized, nil
	}

	finalized := false
	switch {
	case completionSeen:
		progress.Phase = "finalizing"
		finalized, err = finalize()
		if err != nil {
			logger.Error("finalization failed", "jobID", task.JobID, "error", err)
			return nil, err
		}
	case pre.TotalArticles == 0:
		// Nothing to score; the job completes by finalizing directly.
		progress.Phase = "finalizing"
		finalized, err = finalize()
		if err != nil {
			logger.Error("finalization failed", "jobID", task.JobID, "error", err)
			return nil, err
		}
	default:
		logger.Warn("job did not reach completion",
			"jobID", task.JobID,
			"completed", progress.Completed,
			"total", pre.TotalArticles,
			"failed", progress.Failed,
			"dropped", progress.Dropped,
		)
	}

	progress.Phase = "done"
	progress.Finalized = finalized

	duration := workflow.Now(ctx).Sub(startTime).Seconds()
	logger.Info("relevance estimation finished",
		"jobID", task.JobID,
		"inserted", progress.Inserted,
		"skipped", progress.Skipped,
		"dropped", progress.Dropped,
		"failed", progress.Failed,
		"finalized", finalized,
		"duration", duration,
	)

	return &EstimateRelevanceWorkflowResult{
		JobID:         task.JobID,
		TotalArticles: pre.TotalArticles,
		Inserted:      progress.Inserted,
		Skipped:       progress.Skipped,
		Dropped:       progress.Dropped,
		Failed:        progress.Failed,
		Completed:     progress.Completed,
		Finalized:     finalized,
		Duration:      duration,
	}, nil
}
