package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Integration event types written to the outbox.
const (
	EventTypeJobCreated   = "job.created"
	EventTypeJobFinalized = "job.finalized"
)

// JobCreatedPayload announces a new relevance estimation job.
type JobCreatedPayload struct {
	JobID         uuid.UUID `json:"job_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	ModelName     string    `json:"model_name"`
	TotalArticles int       `json:"total_articles"`
	QuestionCount int       `json:"question_count"`
}

// JobFinalizedPayload announces that every article of a job has been
// scored and the job's semantics rewrite is done.
type JobFinalizedPayload struct {
	JobID             uuid.UUID `json:"job_id"`
	ProjectID         uuid.UUID `json:"project_id"`
	TotalArticles     int       `json:"total_articles"`
	CompletedArticles int       `json:"completed_articles"`
}

// OutboxEvent is one row of the transactional outbox. PublishedAt is nil
// until the publisher has delivered the event; Attempts counts delivery
// tries so poison events can be spotted.
type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Attempts      int
}

// NewOutboxEvent builds an unpublished event with a serialized payload.
// Event ids are UUIDv7 so id order matches creation order.
func NewOutboxEvent(eventType, aggregateType, aggregateID string, payload any) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	eventID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	return &OutboxEvent{
		EventID:       eventID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
