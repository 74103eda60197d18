package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is returned when a provider answers without any text content
var ErrEmptyResponse = errors.New("provider returned no content")

// APIError is the normalized form of a provider-side failure. StatusCode follows
// HTTP semantics regardless of the underlying transport.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP-equivalent status of err, or 0 when err does not
// carry one. Context errors map to 408 (deadline) and 499 (canceled).
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout
	}
	if errors.Is(err, context.Canceled) {
		return 499
	}
	return 0
}
