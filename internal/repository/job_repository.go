package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/domain"
)

// JobRepository handles relevance estimation job persistence, snapshot
// storage, the completion gate, and finalization.
type JobRepository interface {
	// Create inserts a new job together with its snapshot rows in a single
	// transaction. The job must have a valid ID, ProjectID, and ModelName.
	// Returns domain.ErrAlreadyExists if a job with the same ID already exists.
	// Returns domain.ErrInvalidInput if required fields are missing.
	Create(ctx context.Context, job *domain.EstimateRelevanceJob, snapshots []domain.Snapshot) error

	// Get retrieves a job by its ID.
	// Returns domain.ErrNotFound if no matching job exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.EstimateRelevanceJob, error)

	// GetLatestForProject retrieves the most recently created job for a
	// project. Job IDs are UUIDv7, so ordering by id is creation order.
	// Returns domain.ErrNotFound if the project has no jobs.
	GetLatestForProject(ctx context.Context, projectID uuid.UUID) (*domain.EstimateRelevanceJob, error)

	// ListSnapshots returns the snapshot rows frozen at job creation,
	// grouped by entity type in a stable order. Question order for scoring
	// comes from the task message, not from this listing.
	ListSnapshots(ctx context.Context, jobID uuid.UUID) ([]domain.Snapshot, error)

	// InsertRelevancesAndAdvance is the completion gate. In one transaction it
	// inserts the article's relevance rows (all of them or none) and, only when
	// every row was new, atomically increments the job's completed counter.
	//
	// Returns (false, 0, 0, nil) when any row already existed: the article was
	// processed by an earlier delivery and the counter is left untouched.
	// Returns (true, completed, total, nil) on success, where completed and
	// total come from the increment's RETURNING clause and are safe to compare
	// for completion. Any database failure rolls the whole transaction back.
	InsertRelevancesAndAdvance(ctx context.Context, jobID, articleID uuid.UUID, relevances []domain.ArticleRelevance) (inserted bool, completed, total int, err error)

	// MarkFinalized stamps the job's finalized_at timestamp if it is not yet
	// set. Returns true only for the caller that actually performed the
	// update, so finalization side effects run exactly once.
	MarkFinalized(ctx context.Context, jobID uuid.UUID) (bool, error)
}
