package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps provider response bodies. Completions are small;
// anything larger is a misbehaving endpoint.
const maxResponseBytes = 10 << 20

// apiTransport is the HTTP plumbing shared by the completion providers:
// JSON request encoding, bounded response reads, provider error parsing,
// and a retry loop over transient failures.
type apiTransport struct {
	client   *http.Client
	provider string

	maxRetries int
	// backoff returns the wait before retry attempt n (n >= 1).
	backoff func(n int) time.Duration
	// parseError turns a non-200 response into a provider APIError.
	parseError func(statusCode int, body []byte) *APIError
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends one JSON request and decodes the 200 response into out.
// Network failures surface as transient APIErrors with status code 0 so
// the retry loop and the circuit breaker treat them uniformly.
func (t *apiTransport) postJSON(ctx context.Context, endpoint string, headers map[string]string, reqBody, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", t.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", t.provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return &APIError{
			Provider:   t.provider,
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return &APIError{
			Provider:   t.provider,
			StatusCode: 0,
			Message:    fmt.Sprintf("read response body: %v", err),
			Type:       "network_error",
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return t.parseError(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", t.provider, err)
	}
	return nil
}

// withRetries runs fn, retrying transient errors up to maxRetries times.
// Permanent errors return immediately; context cancellation is honored
// between attempts.
func (t *apiTransport) withRetries(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context cancelled during retry wait: %w", t.provider, ctx.Err())
			case <-time.After(t.backoff(attempt)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: exhausted %d retries: %w", t.provider, t.maxRetries, lastErr)
}

// exponentialBackoff doubles the base delay on each attempt.
func exponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		return base * time.Duration(1<<(n-1))
	}
}

// linearBackoff grows the delay proportionally to the attempt number.
func linearBackoff(base time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		return base * time.Duration(n)
	}
}
