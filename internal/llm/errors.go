package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failed provider call. A StatusCode of zero means the HTTP
// exchange itself failed and no response was received; Type and Code carry
// the provider's own classification when one came back.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether a retry of the same request could succeed:
// rate limiting, server-side failures, and calls that never got a response.
func (e *APIError) IsTransient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// isTransientError reports whether err is an APIError eligible for retry.
// Anything else (marshaling failures, context cancellation) is permanent.
func isTransientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return false
}
