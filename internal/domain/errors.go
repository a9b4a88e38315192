package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels classify failures across package boundaries. Callers match them
// with errors.Is; the typed errors below carry the detail and unwrap to the
// matching sentinel.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInvalidTaskType marks a task message whose stage is not part of
	// the pipeline. This is a programming error and must not be retried.
	ErrInvalidTaskType = errors.New("invalid task type")
)

// ValidationError rejects a single field of an input.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError names the entity and identifier a lookup missed.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError builds a NotFoundError for the given entity and ID.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyExistsError names the entity and identifier behind a unique
// constraint violation.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// NewAlreadyExistsError builds an AlreadyExistsError for the given entity
// and ID.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// InvalidTaskTypeError records the unrecognized stage of a task message.
type InvalidTaskTypeError struct {
	Type TaskType
}

// NewInvalidTaskTypeError builds an InvalidTaskTypeError for the given stage.
func NewInvalidTaskTypeError(t TaskType) *InvalidTaskTypeError {
	return &InvalidTaskTypeError{Type: t}
}

func (e *InvalidTaskTypeError) Error() string {
	return fmt.Sprintf("invalid task type: %q", string(e.Type))
}

func (e *InvalidTaskTypeError) Unwrap() error { return ErrInvalidTaskType }

// RateLimitError records a throttled call to an upstream provider.
// RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// NewRateLimitError builds a RateLimitError for the given provider.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ExternalAPIError records a failed call to an upstream provider. A
// StatusCode of zero means no HTTP response was received.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// NewExternalAPIError builds an ExternalAPIError wrapping cause.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

func (e *ExternalAPIError) Unwrap() error { return e.Cause }

// Is treats server errors and unreachable providers as ErrServiceUnavailable.
func (e *ExternalAPIError) Is(target error) bool {
	return target == ErrServiceUnavailable && (e.StatusCode == 0 || e.StatusCode >= 500)
}
