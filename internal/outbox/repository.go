package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/database"
	"github.com/litscreen/relevance-service/internal/domain"
)

// Repository stores outbox events and tracks their delivery state.
type Repository interface {
	// Insert records a new unpublished event.
	Insert(ctx context.Context, event *domain.OutboxEvent) error

	// ListPending returns up to limit unpublished events that have not yet
	// exhausted maxAttempts publish attempts, oldest first.
	ListPending(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error)

	// MarkPublished stamps the event's published_at timestamp.
	MarkPublished(ctx context.Context, eventID uuid.UUID) error

	// MarkFailed increments the event's attempt counter.
	MarkFailed(ctx context.Context, eventID uuid.UUID) error
}

// PgRepository is the PostgreSQL implementation of Repository.
type PgRepository struct {
	db database.DBTX
}

// NewPgRepository creates a PgRepository backed by the given connection.
func NewPgRepository(db database.DBTX) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) Insert(ctx context.Context, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (event_id, aggregate_id, aggregate_type, event_type, payload, created_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, 0)`

	_, err := r.db.Exec(ctx, query,
		event.EventID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		event.Payload,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (r *PgRepository) ListPending(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT event_id, aggregate_id, aggregate_type, event_type, payload, created_at, published_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND attempts < $2
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var ev domain.OutboxEvent
		if err := rows.Scan(
			&ev.EventID,
			&ev.AggregateID,
			&ev.AggregateType,
			&ev.EventType,
			&ev.Payload,
			&ev.CreatedAt,
			&ev.PublishedAt,
			&ev.Attempts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}
	return events, nil
}

func (r *PgRepository) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE outbox_events SET published_at = now() WHERE event_id = $1`

	tag, err := r.db.Exec(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgRepository) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE outbox_events SET attempts = attempts + 1 WHERE event_id = $1`

	tag, err := r.db.Exec(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
