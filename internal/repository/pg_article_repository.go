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
var _ ArticleRepository = (*PgArticleRepository)(nil)

// PgArticleRepository is a PostgreSQL implementation of ArticleRepository.
type PgArticleRepository struct {
	db DBTX
}

// NewPgArticleRepository creates a new PostgreSQL article repository.
func NewPgArticleRepository(db DBTX) *PgArticleRepository {
	return &PgArticleRepository{db: db}
}

// articleColumns is the canonical column list for article scans.
const articleColumns = `id, project_id, authors, year, title, doi, link, abstract, must_read, created_at`

// GetWithRelevances retrieves an article by ID together with any relevance
// rows already recorded for the given job.
func (r *PgArticleRepository) GetWithRelevances(ctx context.Context, id, jobID uuid.UUID) (*domain.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE id = $1`, articleColumns)

	row := r.db.QueryRow(ctx, query, id)
	article, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("article", id.String())
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	article.Relevances, err = r.listRelevances(ctx, id, jobID)
	if err != nil {
		return nil, err
	}

	return article, nil
}

// listRelevances loads the relevance rows for one (article, job) pair in
// question order.
func (r *PgArticleRepository) listRelevances(ctx context.Context, articleID, jobID uuid.UUID) ([]domain.ArticleRelevance, error) {
	query := `
		SELECT article_id, job_id, relevance_index, question,
			relevance_score, contribution_score, is_relevant, is_contributing,
			relevance_reason, contribution_reason, created_at
		FROM article_relevances
		WHERE article_id = $1 AND job_id = $2
		ORDER BY relevance_index`

	rows, err := r.db.Query(ctx, query, articleID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relevances: %w", err)
	}
	defer rows.Close()

	var relevances []domain.ArticleRelevance
	for rows.Next() {
		rel, err := scanRelevanceFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relevance: %w", err)
		}
		relevances = append(relevances, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relevances: %w", err)
	}

	return relevances, nil
}

// ReplaceSemantics rewrites the article's flattened key-semantic rows and
// sets its must-read flag.
//
// The delete + insert + update must be atomic so a concurrent reader never
// observes a half-written semantic list. If the underlying DBTX is a pool,
// the method wraps the statements in its own transaction; inside an existing
// transaction it executes directly.
func (r *PgArticleRepository) ReplaceSemantics(ctx context.Context, articleID uuid.UUID, semantics []domain.ArticleKeySemantic, mustRead bool) error {
	if beginner, ok := r.db.(txBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for semantics rewrite: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		txRepo := &PgArticleRepository{db: tx}
		if err := txRepo.replaceSemanticsInTx(ctx, articleID, semantics, mustRead); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	return r.replaceSemanticsInTx(ctx, articleID, semantics, mustRead)
}

// replaceSemanticsInTx performs the actual rewrite within the current DBTX.
func (r *PgArticleRepository) replaceSemanticsInTx(ctx context.Context, articleID uuid.UUID, semantics []domain.ArticleKeySemantic, mustRead bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE articles SET must_read = $1 WHERE id = $2`, mustRead, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update must_read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("article", articleID.String())
	}

	if _, err := r.db.Exec(ctx,
		`DELETE FROM article_key_semantics WHERE article_id = $1`, articleID,
	); err != nil {
		return fmt.Errorf("failed to clear key semantics: %w", err)
	}

	if len(semantics) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range semantics {
		batch.Queue(
			`INSERT INTO article_key_semantics (article_id, semantic_index, kind, value)
			 VALUES ($1, $2, $3, $4)`,
			s.ArticleID, s.SemanticIndex, s.Kind, s.Value,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range semantics {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert key semantic: %w", err)
		}
	}

	return nil
}

// ListProcessedForJob returns the project's articles that have relevance rows
// for the given job.
func (r *PgArticleRepository) ListProcessedForJob(ctx context.Context, projectID, jobID uuid.UUID) ([]domain.ProcessedArticle, error) {
	query := `
		SELECT DISTINCT a.id, a.project_id, a.authors, a.year, a.title,
			a.doi, a.link, a.abstract, a.must_read, a.created_at
		FROM articles a
		JOIN article_relevances ar ON ar.article_id = a.id
		WHERE a.project_id = $1 AND ar.job_id = $2
		ORDER BY a.created_at, a.id`

	rows, err := r.db.Query(ctx, query, projectID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed articles: %w", err)
	}
	defer rows.Close()

	var articles []*domain.Article
	for rows.Next() {
		article, err := scanArticleFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processed article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processed articles: %w", err)
	}

	processed := make([]domain.ProcessedArticle, 0, len(articles))
	for _, article := range articles {
		relevances, err := r.listRelevances(ctx, article.ID, jobID)
		if err != nil {
			return nil, err
		}
		processed = append(processed, domain.ProcessedArticle{
			Article:    *article,
			Relevances: relevances,
		})
	}

	return processed, nil
}

// articleScanDest holds the destination pointers for scanning an article row.
// This eliminates code duplication between pgx.Row and pgx.Rows scanning.
type articleScanDest struct {
	article  domain.Article
	authors  *string
	year     *int
	doi      *string
	link     *string
	abstract *string
}

// destinations returns the slice of pointers for Scan operations.
func (d *articleScanDest) destinations() []interface{} {
	return []interface{}{
		&d.article.ID, &d.article.ProjectID, &d.authors, &d.year, &d.article.Title,
		&d.doi, &d.link, &d.abstract, &d.article.MustRead, &d.article.CreatedAt,
	}
}

// finalize dereferences nullable columns into the article.
func (d *articleScanDest) finalize() *domain.Article {
	if d.authors != nil {
		d.article.Authors = *d.authors
	}
	if d.year != nil {
		d.article.Year = *d.year
	}
	if d.doi != nil {
		d.article.DOI = *d.doi
	}
	if d.link != nil {
		d.article.Link = *d.link
	}
	if d.abstract != nil {
		d.article.Abstract = *d.abstract
	}
	return &d.article
}

// scanArticle scans a single row into an Article.
func scanArticle(row pgx.Row) (*domain.Article, error) {
	var dest articleScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}

// scanArticleFromRows scans the current row from pgx.Rows into an Article.
func scanArticleFromRows(rows pgx.Rows) (*domain.Article, error) {
	var dest articleScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}

// scanRelevanceFromRows scans the current row from pgx.Rows into an ArticleRelevance.
func scanRelevanceFromRows(rows pgx.Rows) (domain.ArticleRelevance, error) {
	var rel domain.ArticleRelevance
	var relevanceReason, contributionReason *string
	err := rows.Scan(
		&rel.ArticleID, &rel.JobID, &rel.RelevanceIndex, &rel.Question,
		&rel.RelevanceScore, &rel.ContributionScore, &rel.IsRelevant, &rel.IsContributing,
		&relevanceReason, &contributionReason, &rel.CreatedAt,
	)
	if err != nil {
		return rel, err
	}
	if relevanceReason != nil {
		rel.RelevanceReason = *relevanceReason
	}
	if contributionReason != nil {
		rel.ContributionReason = *contributionReason
	}
	return rel, nil
}
