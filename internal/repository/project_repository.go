package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/domain"
)

// ProjectRepository reads screening projects and their article population.
// Projects, definitions, questions, and articles are written by the project
// management surface; this service only consumes them, so the interface is
// read-heavy with a single seeding helper for tests and tooling.
type ProjectRepository interface {
	// Get retrieves a project by ID with its definitions, research questions,
	// and question definitions fully loaded.
	// Returns domain.ErrNotFound if no matching project exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// CountArticles returns the number of articles currently in the project.
	// Used to fix a job's TotalArticles at creation time.
	CountArticles(ctx context.Context, projectID uuid.UUID) (int, error)

	// ListArticleIDs returns the IDs of all articles in the project,
	// ordered by creation time. Used by the dispatcher to fan out work.
	ListArticleIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
}
