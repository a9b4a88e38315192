package activities

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/litscreen/relevance-service/internal/domain"
	"github.com/litscreen/relevance-service/internal/llm"
)

// mockJobRepository implements repository.JobRepository for testing.
type mockJobRepository struct {
	mock.Mock
}

func (m *mockJobRepository) Create(ctx context.Context, job *domain.EstimateRelevanceJob, snapshots []domain.Snapshot) error {
	args := m.Called(ctx, job, snapshots)
	return args.Error(0)
}

func (m *mockJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.EstimateRelevanceJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EstimateRelevanceJob), args.Error(1)
}

func (m *mockJobRepository) GetLatestForProject(ctx context.Context, projectID uuid.UUID) (*domain.EstimateRelevanceJob, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EstimateRelevanceJob), args.Error(1)
}

func (m *mockJobRepository) ListSnapshots(ctx context.Context, jobID uuid.UUID) ([]domain.Snapshot, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Snapshot), args.Error(1)
}

func (m *mockJobRepository) InsertRelevancesAndAdvance(ctx context.Context, jobID, articleID uuid.UUID, relevances []domain.ArticleRelevance) (bool, int, int, error) {
	args := m.Called(ctx, jobID, articleID, relevances)
	return args.Bool(0), args.Int(1), args.Int(2), args.Error(3)
}

func (m *mockJobRepository) MarkFinalized(ctx context.Context, jobID uuid.UUID) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

// mockArticleRepository implements repository.ArticleRepository for testing.
type mockArticleRepository struct {
	mock.Mock
}

func (m *mockArticleRepository) GetWithRelevances(ctx context.Context, id, jobID uuid.UUID) (*domain.Article, error) {
	args := m.Called(ctx, id, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Article), args.Error(1)
}

func (m *mockArticleRepository) ReplaceSemantics(ctx context.Context, articleID uuid.UUID, semantics []domain.ArticleKeySemantic, mustRead bool) error {
	args := m.Called(ctx, articleID, semantics, mustRead)
	return args.Error(0)
}

func (m *mockArticleRepository) ListProcessedForJob(ctx context.Context, projectID, jobID uuid.UUID) ([]domain.ProcessedArticle, error) {
	args := m.Called(ctx, projectID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProcessedArticle), args.Error(1)
}

// mockProjectRepository implements repository.ProjectRepository for testing.
type mockProjectRepository struct {
	mock.Mock
}

func (m *mockProjectRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Project), args.Error(1)
}

func (m *mockProjectRepository) CountArticles(ctx context.Context, projectID uuid.UUID) (int, error) {
	args := m.Called(ctx, projectID)
	return args.Int(0), args.Error(1)
}

func (m *mockProjectRepository) ListArticleIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// mockSemanticExtractor implements llm.SemanticExtractor for testing.
type mockSemanticExtractor struct {
	mock.Mock
}

func (m *mockSemanticExtractor) ExtractKeySemantics(ctx context.Context, content string) (domain.KeySemantics, error) {
	args := m.Called(ctx, content)
	return args.Get(0).(domain.KeySemantics), args.Error(1)
}

// mockRelevanceEstimator implements llm.RelevanceEstimator for testing.
type mockRelevanceEstimator struct {
	mock.Mock
}

func (m *mockRelevanceEstimator) EstimateRelevance(ctx context.Context, content, contentType, question string, definitions []string) (domain.Relevance, error) {
	args := m.Called(ctx, content, contentType, question, definitions)
	return args.Get(0).(domain.Relevance), args.Error(1)
}

// mockEventEmitter implements EventEmitter for testing.
type mockEventEmitter struct {
	mock.Mock
}

func (m *mockEventEmitter) EmitJobFinalized(ctx context.Context, job *domain.EstimateRelevanceJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func newActivityEnv() (*testsuite.TestActivityEnvironment, *mockJobRepository, *mockArticleRepository, *mockProjectRepository, *mockSemanticExtractor, *mockRelevanceEstimator) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	return env, &mockJobRepository{}, &mockArticleRepository{}, &mockProjectRepository{}, &mockSemanticExtractor{}, &mockRelevanceEstimator{}
}

func preprocessingTask(jobID, projectID uuid.UUID) domain.TaskMessage {
	return domain.TaskMessage{
		Type:      domain.TaskTypePreprocessing,
		JobID:     jobID,
		ProjectID: projectID,
		ModelName: "gpt-4o-mini",
		Questions: []domain.ResearchQuestionSpec{
			{Question: "Does the study use machine learning?", CombinedDefinitions: []string{"ML means statistical learning from data"}},
		},
	}
}

func executionTask(jobID, projectID, articleID uuid.UUID) domain.TaskMessage {
	task := preprocessingTask(jobID, projectID)
	task.Type = domain.TaskTypeExecution
	task.ArticleID = articleID
	return task
}

func TestPreprocess_Success(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	projectID := uuid.New()
	articleIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	jobs.On("Get", mock.Anything, jobID).Return(&domain.EstimateRelevanceJob{
		ID:            jobID,
		ProjectID:     projectID,
		TotalArticles: 3,
	}, nil)
	projects.On("ListArticleIDs", mock.Anything, projectID).Return(articleIDs, nil)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.Preprocess)

	result, err := env.ExecuteActivity(acts.Preprocess, PreprocessInput{Task: preprocessingTask(jobID, projectID)})
	require.NoError(t, err)

	var output PreprocessOutput
	require.NoError(t, result.Get(&output))
	assert.Equal(t, articleIDs, output.ArticleIDs)
	assert.Equal(t, 3, output.TotalArticles)

	jobs.AssertExpectations(t)
	projects.AssertExpectations(t)
}

func TestPreprocess_JobNotFound(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	jobs.On("Get", mock.Anything, jobID).Return(nil, domain.ErrNotFound)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.Preprocess)

	_, err := env.ExecuteActivity(acts.Preprocess, PreprocessInput{Task: preprocessingTask(jobID, uuid.New())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	projects.AssertNotCalled(t, "ListArticleIDs", mock.Anything, mock.Anything)
}

func TestPreprocess_RejectsWrongTaskType(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.Preprocess)

	task := preprocessingTask(uuid.New(), uuid.New())
	task.Type = domain.TaskTypeExecution

	_, err := env.ExecuteActivity(acts.Preprocess, PreprocessInput{Task: task})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task type")

	jobs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestProcessArticle_Success(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	projectID := uuid.New()
	articleID := uuid.New()
	task := executionTask(jobID, projectID, articleID)

	article := &domain.Article{
		ID:        articleID,
		ProjectID: projectID,
		Title:     "Deep learning for citation screening",
		Abstract:  "We train a transformer to rank abstracts.",
	}
	semantics := domain.KeySemantics{
		Topics:   []string{"citation screening"},
		Entities: []string{"transformer"},
		Keywords: []string{"deep learning"},
	}

	articles.On("GetWithRelevances", mock.Anything, articleID, jobID).Return(article, nil)
	extractor.On("ExtractKeySemantics", mock.Anything, article.Content()).Return(semantics, nil)
	estimator.On("EstimateRelevance", mock.Anything, mock.MatchedBy(func(content string) bool {
		return len(content) > len(article.Content())
	}), "abstract", task.Questions[0].Question, task.Questions[0].CombinedDefinitions).Return(domain.Relevance{
		Question:          task.Questions[0].Question,
		RelevanceScore:    0.91,
		ContributionScore: 0.4,
		IsRelevant:        true,
		IsContributing:    false,
		RelevanceReason:   "directly studies screening automation",
	}, nil)
	jobs.On("InsertRelevancesAndAdvance", mock.Anything, jobID, articleID, mock.MatchedBy(func(rows []domain.ArticleRelevance) bool {
		return len(rows) == 1 &&
			rows[0].RelevanceIndex == 0 &&
			rows[0].ArticleID == articleID &&
			rows[0].JobID == jobID &&
			rows[0].IsRelevant &&
			!rows[0].CreatedAt.IsZero()
	})).Return(true, 2, 5, nil)
	articles.On("ReplaceSemantics", mock.Anything, articleID, semantics.Flatten(articleID), true).Return(nil)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.ProcessArticle)

	result, err := env.ExecuteActivity(acts.ProcessArticle, ProcessArticleInput{Task: task})
	require.NoError(t, err)

	var output ProcessArticleOutput
	require.NoError(t, result.Get(&output))
	assert.True(t, output.Inserted)
	assert.False(t, output.AlreadyProcessed)
	assert.False(t, output.Dropped)
	assert.Equal(t, 2, output.Completed)
	assert.Equal(t, 5, output.Total)

	articles.AssertExpectations(t)
	extractor.AssertExpectations(t)
	estimator.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestProcessArticle_MustReadStaysFalseBelowThreshold(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	articleID := uuid.New()
	task := executionTask(jobID, uuid.New(), articleID)

	article := &domain.Article{ID: articleID, Title: "Unrelated survey"}
	semantics := domain.KeySemantics{Topics: []string{"agriculture"}}

	articles.On("GetWithRelevances", mock.Anything, articleID, jobID).Return(article, nil)
	extractor.On("ExtractKeySemantics", mock.Anything, article.Content()).Return(semantics, nil)
	estimator.On("EstimateRelevance", mock.Anything, mock.Anything, "abstract", mock.Anything, mock.Anything).
		Return(domain.Relevance{RelevanceScore: 0.2, ContributionScore: 0.1}, nil)
	jobs.On("InsertRelevancesAndAdvance", mock.Anything, jobID, articleID, mock.Anything).Return(true, 1, 1, nil)
	articles.On("ReplaceSemantics", mock.Anything, articleID, semantics.Flatten(articleID), false).Return(nil)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.ProcessArticle)

	result, err := env.ExecuteActivity(acts.ProcessArticle, ProcessArticleInput{Task: task})
	require.NoError(t, err)

	var output ProcessArticleOutput
	require.NoError(t, result.Get(&output))
	assert.True(t, output.Inserted)

	articles.AssertExpectations(t)
}

func TestProcessArticle_DroppedWhenArticleMissing(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	articleID := uuid.New()
	task := executionTask(jobID, uuid.New(), articleID)

	articles.On("GetWithRelevances", mock.Anything, articleID, jobID).Return(nil, domain.ErrNotFound)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.ProcessArticle)

	result, err := env.ExecuteActivity(acts.ProcessArticle, ProcessArticleInput{Task: task})
	require.NoError(t, err)

	var output ProcessArticleOutput
	require.NoError(t, result.Get(&output))
	assert.True(t, output.Dropped)
	assert.False(t, output.Inserted)
	assert.Zero(t, output.Completed)
	assert.Zero(t, output.Total)

	extractor.AssertNotCalled(t, "ExtractKeySemantics", mock.Anything, mock.Anything)
	jobs.AssertNotCalled(t, "InsertRelevancesAndAdvance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessArticle_AlreadyProcessedSkipsScoring(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	articleID := uuid.New()
	task := executionTask(jobID, uuid.New(), articleID)

	article := &domain.Article{
		ID:    articleID,
		Title: "Scored on a previous delivery",
		Relevances: []domain.ArticleRelevance{
			{ArticleID: articleID, JobID: jobID, RelevanceIndex: 0},
		},
	}
	articles.On("GetWithRelevances", mock.Anything, articleID, jobID).Return(article, nil)
	jobs.On("Get", mock.Anything, jobID).Return(&domain.EstimateRelevanceJob{
		ID:                jobID,
		TotalArticles:     4,
		CompletedArticles: 3,
	}, nil)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.ProcessArticle)

	result, err := env.ExecuteActivity(acts.ProcessArticle, ProcessArticleInput{Task: task})
	require.NoError(t, err)

	var output ProcessArticleOutput
	require.NoError(t, result.Get(&output))
	assert.True(t, output.AlreadyProcessed)
	assert.Equal(t, 3, output.Completed)
	assert.Equal(t, 4, output.Total)

	extractor.AssertNotCalled(t, "ExtractKeySemantics", mock.Anything, mock.Anything)
	estimator.AssertNotCalled(t, "EstimateRelevance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessArticle_GateRejectsConcurrentDuplicate(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	articleID := uuid.New()
	task := executionTask(jobID, uuid.New(), articleID)

	article := &domain.Article{ID: articleID, Title: "Racing delivery"}
	articles.On("GetWithRelevances", mock.Anything, articleID, jobID).Return(article, nil)
	extractor.On("ExtractKeySemantics", mock.Anything, article.Content()).Return(domain.KeySemantics{}, nil)
	estimator.On("EstimateRelevance", mock.Anything, mock.Anything, "abstract", mock.Anything, mock.Anything).
		Return(domain.Relevance{RelevanceScore: 0.8, IsRelevant: true}, nil)
	jobs.On("InsertRelevancesAndAdvance", mock.Anything, jobID, articleID, mock.Anything).Return(false, 0, 0, nil)
	jobs.On("Get", mock.Anything, jobID).Return(&domain.EstimateRelevanceJob{
		ID:                jobID,
		TotalArticles:     2,
		CompletedArticles: 2,
	}, nil)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.ProcessArticle)

	result, err := env.ExecuteActivity(acts.ProcessArticle, ProcessArticleInput{Task: task})
	require.NoError(t, err)

	var output ProcessArticleOutput
	require.NoError(t, result.Get(&output))
	assert.True(t, output.AlreadyProcessed)
	assert.Equal(t, 2, output.Completed)
	assert.Equal(t, 2, output.Total)

	articles.AssertNotCalled(t, "ReplaceSemantics", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessArticle_ExtractorErrorIsRetryable(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	jobID := uuid.New()
	articleID := uuid.New()
	task := executionTask(jobID, uuid.New(), articleID)

	article := &domain.Article{ID: articleID, Title: "Flaky upstream"}
	articles.On("GetWithRelevances", mock.Anything, articleID, jobID).Return(article, nil)
	extractor.On("ExtractKeySemantics", mock.Anything, article.Content()).
		Return(domain.KeySemantics{}, fmt.Errorf("provider unavailable"))

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.ProcessArticle)

	_, err := env.ExecuteActivity(acts.ProcessArticle, ProcessArticleInput{Task: task})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract semantics")

	jobs.AssertNotCalled(t, "InsertRelevancesAndAdvance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWrapProviderError(t *testing.T) {
	t.Run("rate limit becomes RateLimitError", func(t *testing.T) {
		cause := &llm.APIError{Provider: "openai", StatusCode: 429, Message: "slow down"}
		err := wrapProviderError("extract semantics", cause)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Contains(t, err.Error(), "extract semantics")
	})

	t.Run("server error becomes ExternalAPIError", func(t *testing.T) {
		cause := &llm.APIError{Provider: "anthropic", StatusCode: 529, Message: "overloaded"}
		err := wrapProviderError("estimate relevance for question 0", cause)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "anthropic", apiErr.Source)
		assert.Equal(t, 529, apiErr.StatusCode)
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	})

	t.Run("non-provider error wraps unchanged", func(t *testing.T) {
		err := wrapProviderError("extract semantics", fmt.Errorf("boom"))

		assert.EqualError(t, err, "extract semantics: boom")
		assert.False(t, errors.Is(err, domain.ErrServiceUnavailable))
	})
}

func TestProcessArticle_RejectsMissingArticleID(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	task := preprocessingTask(uuid.New(), uuid.New())
	task.Type = domain.TaskTypeExecution // ArticleID left zero

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.ProcessArticle)

	_, err := env.ExecuteActivity(acts.ProcessArticle, ProcessArticleInput{Task: task})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "article id")

	articles.AssertNotCalled(t, "GetWithRelevances", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_WinnerEmitsEvent(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()
	emitter := &mockEventEmitter{}

	jobID := uuid.New()
	job := &domain.EstimateRelevanceJob{
		ID:                jobID,
		TotalArticles:     5,
		CompletedArticles: 5,
		CreatedAt:         time.Now().Add(-time.Minute),
	}

	jobs.On("MarkFinalized", mock.Anything, jobID).Return(true, nil)
	jobs.On("Get", mock.Anything, jobID).Return(job, nil)
	emitter.On("EmitJobFinalized", mock.Anything, job).Return(nil)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil, WithEventEmitter(emitter))
	env.RegisterActivity(acts.Finalize)

	task := preprocessingTask(jobID, uuid.New())
	task.Type = domain.TaskTypeFinalization

	result, err := env.ExecuteActivity(acts.Finalize, FinalizeInput{Task: task})
	require.NoError(t, err)

	var output FinalizeOutput
	require.NoError(t, result.Get(&output))
	assert.True(t, output.Finalized)

	jobs.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestFinalize_LoserStaysQuiet(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()
	emitter := &mockEventEmitter{}

	jobID := uuid.New()
	jobs.On("MarkFinalized", mock.Anything, jobID).Return(false, nil)

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil, WithEventEmitter(emitter))
	env.RegisterActivity(acts.Finalize)

	task := preprocessingTask(jobID, uuid.New())
	task.Type = domain.TaskTypeFinalization

	result, err := env.ExecuteActivity(acts.Finalize, FinalizeInput{Task: task})
	require.NoError(t, err)

	var output FinalizeOutput
	require.NoError(t, result.Get(&output))
	assert.False(t, output.Finalized)

	emitter.AssertNotCalled(t, "EmitJobFinalized", mock.Anything, mock.Anything)
	jobs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestFinalize_EmitterFailureDoesNotFailActivity(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()
	emitter := &mockEventEmitter{}

	jobID := uuid.New()
	job := &domain.EstimateRelevanceJob{ID: jobID, CreatedAt: time.Now()}

	jobs.On("MarkFinalized", mock.Anything, jobID).Return(true, nil)
	jobs.On("Get", mock.Anything, jobID).Return(job, nil)
	emitter.On("EmitJobFinalized", mock.Anything, job).Return(fmt.Errorf("broker unavailable"))

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil, WithEventEmitter(emitter))
	env.RegisterActivity(acts.Finalize)

	task := preprocessingTask(jobID, uuid.New())
	task.Type = domain.TaskTypeFinalization

	result, err := env.ExecuteActivity(acts.Finalize, FinalizeInput{Task: task})
	require.NoError(t, err)

	var output FinalizeOutput
	require.NoError(t, result.Get(&output))
	assert.True(t, output.Finalized)

	emitter.AssertExpectations(t)
}

func TestFinalize_RejectsWrongTaskType(t *testing.T) {
	env, jobs, articles, projects, extractor, estimator := newActivityEnv()

	acts := NewJobActivities(jobs, articles, projects, extractor, estimator, nil)
	env.RegisterActivity(acts.Finalize)

	_, err := env.ExecuteActivity(acts.Finalize, FinalizeInput{Task: preprocessingTask(uuid.New(), uuid.New())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task type")

	jobs.AssertNotCalled(t, "MarkFinalized", mock.Anything, mock.Anything)
}
