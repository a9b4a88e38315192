package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/litscreen/relevance-service/internal/domain"
)

// Compile-time interface verification.
var _ ProjectRepository = (*PgProjectRepository)(nil)

// PgProjectRepository is a PostgreSQL implementation of ProjectRepository.
type PgProjectRepository struct {
	db DBTX
}

// NewPgProjectRepository creates a new PostgreSQL project repository.
func NewPgProjectRepository(db DBTX) *PgProjectRepository {
	return &PgProjectRepository{db: db}
}

// Get retrieves a project by ID with its definitions, research questions,
// and question definitions fully loaded.
func (r *PgProjectRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	query := `
		SELECT id, name, description, created_at
		FROM projects
		WHERE id = $1`

	var project domain.Project
	var description *string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&project.ID, &project.Name, &description, &project.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("project", id.String())
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if description != nil {
		project.Description = *description
	}

	if project.Definitions, err = r.listDefinitions(ctx, id); err != nil {
		return nil, err
	}
	if project.ResearchQuestions, err = r.listQuestions(ctx, id); err != nil {
		return nil, err
	}

	return &project, nil
}

// listDefinitions loads the project-wide definitions ordered by id. The ids
// are random, so the order carries no meaning beyond being stable.
func (r *PgProjectRepository) listDefinitions(ctx context.Context, projectID uuid.UUID) ([]domain.ProjectDefinition, error) {
	query := `
		SELECT id, project_id, definition
		FROM project_definitions
		WHERE project_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.ProjectDefinition
	for rows.Next() {
		var d domain.ProjectDefinition
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Definition); err != nil {
			return nil, fmt.Errorf("failed to scan project definition: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project definitions: %w", err)
	}

	return defs, nil
}

// listQuestions loads the research questions with their scoped definitions
// ordered by id, which is stable but otherwise meaningless. The order a
// job scores questions in is frozen into its task message at creation, so
// relevance indexes never depend on this listing being reproduced.
func (r *PgProjectRepository) listQuestions(ctx context.Context, projectID uuid.UUID) ([]domain.ResearchQuestion, error) {
	query := `
		SELECT id, project_id, question_text
		FROM research_questions
		WHERE project_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list research questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.ResearchQuestion
	for rows.Next() {
		var q domain.ResearchQuestion
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.QuestionText); err != nil {
			return nil, fmt.Errorf("failed to scan research question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating research questions: %w", err)
	}

	for i := range questions {
		defs, err := r.listQuestionDefinitions(ctx, questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].Definitions = defs
	}

	return questions, nil
}

// listQuestionDefinitions loads the definitions scoped to a single question.
func (r *PgProjectRepository) listQuestionDefinitions(ctx context.Context, questionID uuid.UUID) ([]domain.QuestionDefinition, error) {
	query := `
		SELECT id, research_question_id, definition
		FROM question_definitions
		WHERE research_question_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list question definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.QuestionDefinition
	for rows.Next() {
		var d domain.QuestionDefinition
		if err := rows.Scan(&d.ID, &d.ResearchQuestionID, &d.Definition); err != nil {
			return nil, fmt.Errorf("failed to scan question definition: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question definitions: %w", err)
	}

	return defs, nil
}

// CountArticles returns the number of articles currently in the project.
func (r *PgProjectRepository) CountArticles(ctx context.Context, projectID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM articles WHERE project_id = $1`, projectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// ListArticleIDs returns the IDs of all articles in the project.
func (r *PgProjectRepository) ListArticleIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM articles WHERE project_id = $1 ORDER BY created_at, id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list article IDs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article IDs: %w", err)
	}

	return ids, nil
}
