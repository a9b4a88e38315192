package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/domain"
)

// ArticleRepository handles article persistence, key-semantic rewrites, and
// relevance lookups. Articles themselves are written by the project surface;
// this service reads them, rewrites their flattened semantics after scoring,
// and flips the must-read flag.
type ArticleRepository interface {
	// GetWithRelevances retrieves an article by ID together with any relevance
	// rows already recorded for the given job. A non-empty Relevances slice
	// means the article has already passed the completion gate for that job.
	// Returns domain.ErrNotFound if no matching article exists.
	GetWithRelevances(ctx context.Context, id, jobID uuid.UUID) (*domain.Article, error)

	// ReplaceSemantics rewrites the article's flattened key-semantic rows and
	// sets its must-read flag in a single transaction. Existing semantic rows
	// for the article are deleted first, so the call is safe to repeat.
	// Returns domain.ErrNotFound if no matching article exists.
	ReplaceSemantics(ctx context.Context, articleID uuid.UUID, semantics []domain.ArticleKeySemantic, mustRead bool) error

	// ListProcessedForJob returns the project's articles that have relevance
	// rows for the given job, each with those rows attached in question order.
	ListProcessedForJob(ctx context.Context, projectID, jobID uuid.UUID) ([]domain.ProcessedArticle, error)
}
