package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litscreen/relevance-service/internal/domain"
)

// Helper to create a valid article for testing.
func newTestArticle() *domain.Article {
	return &domain.Article{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Authors:   "Doe, J.; Smith, A.",
		Year:      2024,
		Title:     "Automated Screening of Clinical Literature",
		DOI:       "10.1234/screening.2024",
		Link:      "https://example.org/articles/screening-2024",
		Abstract:  "We evaluate automated relevance screening against manual review.",
		CreatedAt: time.Now().UTC(),
	}
}

// articleRow builds a mock result row matching the article scan column order.
func articleRow(a *domain.Article) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "project_id", "authors", "year", "title",
		"doi", "link", "abstract", "must_read", "created_at",
	}).AddRow(
		a.ID, a.ProjectID, &a.Authors, &a.Year, a.Title,
		&a.DOI, &a.Link, &a.Abstract, a.MustRead, a.CreatedAt,
	)
}

func TestPgArticleRepository_GetWithRelevances(t *testing.T) {
	ctx := context.Background()

	t.Run("returns article with no relevance rows", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		article := newTestArticle()
		jobID, _ := uuid.NewV7()

		mock.ExpectQuery("SELECT .* FROM articles WHERE id = \\$1").
			WithArgs(article.ID).
			WillReturnRows(articleRow(article))
		mock.ExpectQuery("SELECT .* FROM article_relevances").
			WithArgs(article.ID, jobID).
			WillReturnRows(pgxmock.NewRows([]string{
				"article_id", "job_id", "relevance_index", "question",
				"relevance_score", "contribution_score", "is_relevant", "is_contributing",
				"relevance_reason", "contribution_reason", "created_at",
			}))

		result, err := repo.GetWithRelevances(ctx, article.ID, jobID)
		require.NoError(t, err)
		assert.Equal(t, article.ID, result.ID)
		assert.Equal(t, article.Title, result.Title)
		assert.Equal(t, article.Authors, result.Authors)
		assert.Empty(t, result.Relevances)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns article with existing relevance rows in question order", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		article := newTestArticle()
		jobID, _ := uuid.NewV7()
		now := time.Now().UTC()
		reason := "addresses the question directly"

		relevanceRows := pgxmock.NewRows([]string{
			"article_id", "job_id", "relevance_index", "question",
			"relevance_score", "contribution_score", "is_relevant", "is_contributing",
			"relevance_reason", "contribution_reason", "created_at",
		}).
			AddRow(article.ID, jobID, 0, "q1", 0.9, 0.8, true, true, &reason, (*string)(nil), now).
			AddRow(article.ID, jobID, 1, "q2", 0.3, 0.2, false, false, (*string)(nil), (*string)(nil), now)

		mock.ExpectQuery("SELECT .* FROM articles WHERE id = \\$1").
			WithArgs(article.ID).
			WillReturnRows(articleRow(article))
		mock.ExpectQuery("SELECT .* FROM article_relevances").
			WithArgs(article.ID, jobID).
			WillReturnRows(relevanceRows)

		result, err := repo.GetWithRelevances(ctx, article.ID, jobID)
		require.NoError(t, err)
		require.Len(t, result.Relevances, 2)
		assert.Equal(t, 0, result.Relevances[0].RelevanceIndex)
		assert.Equal(t, reason, result.Relevances[0].RelevanceReason)
		assert.Equal(t, "", result.Relevances[1].RelevanceReason)
	})

	t.Run("returns not found for missing article", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT .* FROM articles WHERE id = \\$1").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetWithRelevances(ctx, id, uuid.New())
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgArticleRepository_ReplaceSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrites semantics and must_read in one transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		articleID := uuid.New()
		semantics := domain.KeySemantics{
			Topics:   []string{"screening"},
			Keywords: []string{"recall", "precision"},
		}.Flatten(articleID)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE articles SET must_read = \\$1 WHERE id = \\$2").
			WithArgs(true, articleID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("DELETE FROM article_key_semantics").
			WithArgs(articleID).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		batch := mock.ExpectBatch()
		for _, s := range semantics {
			batch.ExpectExec("INSERT INTO article_key_semantics").
				WithArgs(s.ArticleID, s.SemanticIndex, s.Kind, s.Value).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()

		err = repo.ReplaceSemantics(ctx, articleID, semantics, true)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clears semantics when the new list is empty", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		articleID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE articles SET must_read = \\$1 WHERE id = \\$2").
			WithArgs(false, articleID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("DELETE FROM article_key_semantics").
			WithArgs(articleID).
			WillReturnResult(pgxmock.NewResult("DELETE", 5))
		mock.ExpectCommit()

		err = repo.ReplaceSemantics(ctx, articleID, nil, false)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing article", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		articleID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE articles SET must_read").
			WithArgs(true, articleID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err = repo.ReplaceSemantics(ctx, articleID, nil, true)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("rolls back on insert failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		articleID := uuid.New()
		semantics := domain.KeySemantics{Topics: []string{"screening"}}.Flatten(articleID)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE articles SET must_read").
			WithArgs(true, articleID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("DELETE FROM article_key_semantics").
			WithArgs(articleID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		batch := mock.ExpectBatch()
		batch.ExpectExec("INSERT INTO article_key_semantics").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err = repo.ReplaceSemantics(ctx, articleID, semantics, true)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert key semantic")
	})
}

func TestPgArticleRepository_ListProcessedForJob(t *testing.T) {
	ctx := context.Background()

	t.Run("returns articles with their relevance rows", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		article := newTestArticle()
		jobID, _ := uuid.NewV7()
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT DISTINCT .* FROM articles a\\s+JOIN article_relevances ar").
			WithArgs(article.ProjectID, jobID).
			WillReturnRows(articleRow(article))
		mock.ExpectQuery("SELECT .* FROM article_relevances").
			WithArgs(article.ID, jobID).
			WillReturnRows(pgxmock.NewRows([]string{
				"article_id", "job_id", "relevance_index", "question",
				"relevance_score", "contribution_score", "is_relevant", "is_contributing",
				"relevance_reason", "contribution_reason", "created_at",
			}).AddRow(article.ID, jobID, 0, "q1", 0.95, 0.9, true, true, (*string)(nil), (*string)(nil), now))

		processed, err := repo.ListProcessedForJob(ctx, article.ProjectID, jobID)
		require.NoError(t, err)
		require.Len(t, processed, 1)
		assert.Equal(t, article.ID, processed[0].Article.ID)
		require.Len(t, processed[0].Relevances, 1)
		assert.True(t, processed[0].Relevances[0].IsRelevant)
	})

	t.Run("returns empty slice when nothing processed yet", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgArticleRepository(mock)
		projectID := uuid.New()
		jobID, _ := uuid.NewV7()

		mock.ExpectQuery("SELECT DISTINCT .* FROM articles a").
			WithArgs(projectID, jobID).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "project_id", "authors", "year", "title",
				"doi", "link", "abstract", "must_read", "created_at",
			}))

		processed, err := repo.ListProcessedForJob(ctx, projectID, jobID)
		require.NoError(t, err)
		assert.Empty(t, processed)
	})
}
