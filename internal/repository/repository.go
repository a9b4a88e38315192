// Package repository implements PostgreSQL persistence for projects,
// articles, and relevance estimation jobs.
//
// Each aggregate gets an interface (ProjectRepository, ArticleRepository,
// JobRepository) and a Pg-prefixed implementation. Interfaces keep the
// jobs and activities packages mockable; the implementations own all SQL.
//
// # Errors
//
// Methods translate database failures into the domain error taxonomy:
// missing rows become domain.ErrNotFound, unique violations become
// domain.ErrAlreadyExists, and rejected inputs become ValidationErrors.
// Everything else is wrapped with operation context via %w.
//
// # Concurrency
//
// Implementations hold no mutable state beyond the connection handle and
// are safe for concurrent use.
package repository

import (
	"github.com/litscreen/relevance-service/internal/database"
)

// DBTX is the query surface repositories run against. Both *database.DB
// and pgx.Tx satisfy it, so the same repository type works inside and
// outside a transaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//		return repository.NewPgJobRepository(tx).Create(ctx, job, snapshots)
//	})
//
// Repositories that need their own transaction (multi-statement writes)
// probe the handle for a Begin method, which *database.DB provides.
type DBTX = database.DBTX
