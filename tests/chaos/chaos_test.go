// Package chaos provides fault injection tests for the relevance estimation
// workflow.
//
// These tests verify that the workflow handles failure scenarios correctly:
// transient scoring failures, persistence failures that exhaust retries, and
// redelivered task messages. All tests use the Temporal test environment with
// mocked activities (no external services required).
package chaos

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/litscreen/relevance-service/internal/domain"
	"github.com/litscreen/relevance-service/internal/temporal/activities"
	"github.com/litscreen/relevance-service/internal/temporal/workflows"
)

// newChaosTask returns a preprocessing task message configured for chaos tests.
func newChaosTask() domain.TaskMessage {
	return domain.TaskMessage{
		Type:      domain.TaskTypePreprocessing,
		JobID:     uuid.New(),
		ProjectID: uuid.New(),
		ModelName: "gpt-4o-mini",
		Questions: []domain.ResearchQuestionSpec{
			{Question: "Does the study automate screening?"},
		},
	}
}

// TestChaos_ScoringFailsThenRecovers verifies that the workflow completes when
// the per-article activity fails with retryable errors before succeeding.
//
// The test environment honors the activity retry policy, so a closure-based
// mock with an atomic counter can fail the first two invocations and succeed
// on the third.
func TestChaos_ScoringFailsThenRecovers(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	task := newChaosTask()
	articleID := uuid.New()

	var jobAct *activities.JobActivities

	env.OnActivity(jobAct.Preprocess, mock.Anything, mock.Anything).Return(
		&activities.PreprocessOutput{ArticleIDs: []uuid.UUID{articleID}, TotalArticles: 1}, nil,
	)

	var attempts int32
	env.OnActivity(jobAct.ProcessArticle, mock.Anything, mock.Anything).Return(
		func(_ context.Context, input activities.ProcessArticleInput) (*activities.ProcessArticleOutput, error) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return nil, temporal.NewApplicationError("scoring service timeout", "llm_timeout")
			}
			return &activities.ProcessArticleOutput{Inserted: true, Completed: 1, Total: 1}, nil
		},
	)

	env.OnActivity(jobAct.Finalize, mock.Anything, mock.Anything).Return(
		&activities.FinalizeOutput{Finalized: true}, nil,
	)

	env.ExecuteWorkflow(workflows.EstimateRelevanceWorkflow, task)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result workflows.EstimateRelevanceWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.Inserted)
	assert.True(t, result.Finalized)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3), "activity should have been retried")
}

// TestChaos_PreprocessExhaustsRetries verifies that a persistently failing
// preprocess activity fails the workflow instead of hanging it.
func TestChaos_PreprocessExhaustsRetries(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var jobAct *activities.JobActivities
	env.OnActivity(jobAct.Preprocess, mock.Anything, mock.Anything).Return(
		nil, temporal.NewApplicationError("database unavailable", "db_error"),
	)

	env.ExecuteWorkflow(workflows.EstimateRelevanceWorkflow, newChaosTask())

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

// TestChaos_FinalizeFailureSurfacesAfterScoring verifies that finalization
// failures do not silently drop a fully scored job: the workflow reports the
// error while every per-article result is already durable.
func TestChaos_FinalizeFailureSurfacesAfterScoring(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	task := newChaosTask()
	articleID := uuid.New()

	var jobAct *activities.JobActivities

	env.OnActivity(jobAct.Preprocess, mock.Anything, mock.Anything).Return(
		&activities.PreprocessOutput{ArticleIDs: []uuid.UUID{articleID}, TotalArticles: 1}, nil,
	)
	env.OnActivity(jobAct.ProcessArticle, mock.Anything, mock.Anything).Return(
		&activities.ProcessArticleOutput{Inserted: true, Completed: 1, Total: 1}, nil,
	)
	env.OnActivity(jobAct.Finalize, mock.Anything, mock.Anything).Return(
		nil, temporal.NewApplicationError("database unavailable", "db_error"),
	)

	env.ExecuteWorkflow(workflows.EstimateRelevanceWorkflow, task)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

// TestChaos_MixedOutcomesUnderRedelivery simulates a worker crash mid-job: on
// re-execution some articles are already gated while others still need
// scoring. The workflow must finalize exactly once with the combined result.
func TestChaos_MixedOutcomesUnderRedelivery(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	task := newChaosTask()
	already := uuid.New()
	fresh := uuid.New()
	missing := uuid.New()

	var jobAct *activities.JobActivities

	env.OnActivity(jobAct.Preprocess, mock.Anything, mock.Anything).Return(
		&activities.PreprocessOutput{ArticleIDs: []uuid.UUID{already, fresh, missing}, TotalArticles: 3}, nil,
	)

	// The job advanced to 1/3 before the crash; the deleted article drops out
	// of the batch, so completion stalls at 2/3 and finalization must wait for
	// a corrected run.
	var mu sync.Mutex
	completed := 1
	env.OnActivity(jobAct.ProcessArticle, mock.Anything, mock.Anything).Return(
		func(_ context.Context, input activities.ProcessArticleInput) (*activities.ProcessArticleOutput, error) {
			mu.Lock()
			defer mu.Unlock()
			switch input.Task.ArticleID {
			case already:
				return &activities.ProcessArticleOutput{AlreadyProcessed: true, Completed: completed, Total: 3}, nil
			case missing:
				return &activities.ProcessArticleOutput{Dropped: true}, nil
			default:
				completed++
				return &activities.ProcessArticleOutput{Inserted: true, Completed: completed, Total: 3}, nil
			}
		},
	)

	env.ExecuteWorkflow(workflows.EstimateRelevanceWorkflow, task)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result workflows.EstimateRelevanceWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Dropped)
	assert.False(t, result.Finalized, "a dropped article leaves the job incomplete")
	env.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything)
}

// TestChaos_NonRetryableScoringFailure verifies that a poisoned article fails
// fast without blocking the rest of the batch.
func TestChaos_NonRetryableScoringFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	task := newChaosTask()
	poisoned := uuid.New()
	healthy := uuid.New()

	var jobAct *activities.JobActivities

	env.OnActivity(jobAct.Preprocess, mock.Anything, mock.Anything).Return(
		&activities.PreprocessOutput{ArticleIDs: []uuid.UUID{poisoned, healthy}, TotalArticles: 2}, nil,
	)

	var calls int32
	env.OnActivity(jobAct.ProcessArticle, mock.Anything, mock.Anything).Return(
		func(_ context.Context, input activities.ProcessArticleInput) (*activities.ProcessArticleOutput, error) {
			atomic.AddInt32(&calls, 1)
			if input.Task.ArticleID == poisoned {
				return nil, temporal.NewNonRetryableApplicationError("malformed content", "invalid_task", nil)
			}
			return &activities.ProcessArticleOutput{Inserted: true, Completed: 1, Total: 2}, nil
		},
	)

	env.ExecuteWorkflow(workflows.EstimateRelevanceWorkflow, task)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result workflows.EstimateRelevanceWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Finalized)
	// Non-retryable errors are not retried; one call per article.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
