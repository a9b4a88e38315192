package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/litscreen/relevance-service/internal/domain"
)

// txBeginner is an interface for types that can begin a transaction
// (e.g., *pgxpool.Pool, *database.DB). Used to wrap multi-statement
// operations in a transaction when the underlying DBTX is a pool rather
// than an existing transaction.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// Compile-time interface verification.
var _ JobRepository = (*PgJobRepository)(nil)

// PgJobRepository is a PostgreSQL implementation of JobRepository.
type PgJobRepository struct {
	db DBTX
}

// NewPgJobRepository creates a new PostgreSQL job repository.
func NewPgJobRepository(db DBTX) *PgJobRepository {
	return &PgJobRepository{db: db}
}

// Create inserts a new job together with its snapshot rows in a single
// transaction.
func (r *PgJobRepository) Create(ctx context.Context, job *domain.EstimateRelevanceJob, snapshots []domain.Snapshot) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}
	if job.ID == uuid.Nil {
		return domain.NewValidationError("id", "job ID is required")
	}
	if job.ProjectID == uuid.Nil {
		return domain.NewValidationError("project_id", "project ID is required")
	}
	if job.ModelName == "" {
		return domain.NewValidationError("model_name", "model name is required")
	}

	if beginner, ok := r.db.(txBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for job create: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		txRepo := &PgJobRepository{db: tx}
		if err := txRepo.createInTx(ctx, job, snapshots); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	return r.createInTx(ctx, job, snapshots)
}

// createInTx performs the actual job + snapshot inserts within the current DBTX.
func (r *PgJobRepository) createInTx(ctx context.Context, job *domain.EstimateRelevanceJob, snapshots []domain.Snapshot) error {
	query := `
		INSERT INTO estimate_relevance_jobs (
			id, project_id, model_name, total_articles, completed_articles, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.ProjectID, job.ModelName,
		job.TotalArticles, job.CompletedArticles, job.CreatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("job", job.ID.String())
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range snapshots {
		batch.Queue(
			`INSERT INTO job_snapshots (id, job_id, entity_type, entity_id, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, s.JobID, s.EntityType, s.EntityID, s.Payload, s.CreatedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range snapshots {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert job snapshot: %w", err)
		}
	}

	return nil
}

// jobColumns is the canonical column list for job scans.
const jobColumns = `id, project_id, model_name, total_articles, completed_articles, created_at, finalized_at`

// Get retrieves a job by its ID.
func (r *PgJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.EstimateRelevanceJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM estimate_relevance_jobs WHERE id = $1`, jobColumns)

	row := r.db.QueryRow(ctx, query, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("job", id.String())
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetLatestForProject retrieves the most recently created job for a project.
// Job IDs are UUIDv7, so ORDER BY id DESC is creation order without needing a
// timestamp index.
func (r *PgJobRepository) GetLatestForProject(ctx context.Context, projectID uuid.UUID) (*domain.EstimateRelevanceJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM estimate_relevance_jobs
		WHERE project_id = $1
		ORDER BY id DESC
		LIMIT 1`, jobColumns)

	row := r.db.QueryRow(ctx, query, projectID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("job", projectID.String())
		}
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}

	return job, nil
}

// ListSnapshots returns the snapshot rows frozen at job creation.
func (r *PgJobRepository) ListSnapshots(ctx context.Context, jobID uuid.UUID) ([]domain.Snapshot, error) {
	query := `
		SELECT id, job_id, entity_type, entity_id, payload, created_at
		FROM job_snapshots
		WHERE job_id = $1
		ORDER BY entity_type, id`

	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		if err := rows.Scan(&s.ID, &s.JobID, &s.EntityType, &s.EntityID, &s.Payload, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// InsertRelevancesAndAdvance is the completion gate: all-or-nothing insertion
// of an article's relevance rows plus a database-native counter increment,
// atomically.
//
// The insert uses ON CONFLICT DO NOTHING against the (article_id, job_id,
// relevance_index) primary key. If any row already existed, the batch insert
// count falls short of the expected count, the transaction is rolled back,
// and the gate reports a benign duplicate rather than incrementing the
// counter a second time. The increment itself is a single
// UPDATE ... RETURNING so the returned (completed, total) pair reflects this
// article's contribution exactly once, with no read-modify-write window.
func (r *PgJobRepository) InsertRelevancesAndAdvance(ctx context.Context, jobID, articleID uuid.UUID, relevances []domain.ArticleRelevance) (bool, int, int, error) {
	if len(relevances) == 0 {
		return false, 0, 0, domain.NewValidationError("relevances", "at least one relevance row is required")
	}

	if beginner, ok := r.db.(txBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return false, 0, 0, fmt.Errorf("failed to begin transaction for completion gate: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		txRepo := &PgJobRepository{db: tx}
		inserted, completed, total, err := txRepo.advanceInTx(ctx, jobID, articleID, relevances)
		if err != nil {
			return false, 0, 0, err
		}
		if !inserted {
			// Duplicate delivery: discard the partial insert, if any.
			_ = tx.Rollback(ctx)
			return false, 0, 0, nil
		}
		if err := tx.Commit(ctx); err != nil {
			return false, 0, 0, fmt.Errorf("failed to commit completion gate: %w", err)
		}
		return true, completed, total, nil
	}

	return r.advanceInTx(ctx, jobID, articleID, relevances)
}

// advanceInTx performs the gate's insert + increment within the current DBTX.
func (r *PgJobRepository) advanceInTx(ctx context.Context, jobID, articleID uuid.UUID, relevances []domain.ArticleRelevance) (bool, int, int, error) {
	batch := &pgx.Batch{}
	for _, rel := range relevances {
		batch.Queue(
			`INSERT INTO article_relevances (
				article_id, job_id, relevance_index, question,
				relevance_score, contribution_score, is_relevant, is_contributing,
				relevance_reason, contribution_reason, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (article_id, job_id, relevance_index) DO NOTHING`,
			articleID, jobID, rel.RelevanceIndex, rel.Question,
			rel.RelevanceScore, rel.ContributionScore, rel.IsRelevant, rel.IsContributing,
			nullString(rel.RelevanceReason), nullString(rel.ContributionReason), rel.CreatedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	var insertedRows int64
	for range relevances {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return false, 0, 0, fmt.Errorf("failed to insert relevance row: %w", err)
		}
		insertedRows += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return false, 0, 0, fmt.Errorf("failed to close relevance batch: %w", err)
	}

	if insertedRows != int64(len(relevances)) {
		return false, 0, 0, nil
	}

	var completed, total int
	err := r.db.QueryRow(ctx,
		`UPDATE estimate_relevance_jobs
		 SET completed_articles = completed_articles + 1
		 WHERE id = $1
		 RETURNING completed_articles, total_articles`,
		jobID,
	).Scan(&completed, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, 0, 0, nil
		}
		return false, 0, 0, fmt.Errorf("failed to advance completed counter: %w", err)
	}

	return true, completed, total, nil
}

// MarkFinalized stamps the job's finalized_at timestamp if it is not yet set.
func (r *PgJobRepository) MarkFinalized(ctx context.Context, jobID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE estimate_relevance_jobs
		 SET finalized_at = now()
		 WHERE id = $1 AND finalized_at IS NULL`,
		jobID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark job finalized: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// scanJob scans a single row into an EstimateRelevanceJob.
func scanJob(row pgx.Row) (*domain.EstimateRelevanceJob, error) {
	var job domain.EstimateRelevanceJob
	err := row.Scan(
		&job.ID, &job.ProjectID, &job.ModelName,
		&job.TotalArticles, &job.CompletedArticles,
		&job.CreatedAt, &job.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
