package llm

import (
	"errors"
	"fmt"
)

// ErrUnconfigured is returned when no backend credentials are
// configured. Callers check for it with errors.Is and skip straight to
// their statistical fallback without incurring network latency.
var ErrUnconfigured = errors.New("llm: no credentials configured")

// AuthError indicates the bearer credential could not be obtained or
// refreshed. Not retriable within a single call.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("llm: credential refresh failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RequestError indicates a network, timeout, or non-2xx failure from
// the generation endpoint. The caller may retry on a later cycle; the
// client does not retry internally.
type RequestError struct {
	StatusCode int // 0 for transport-level failures
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: generation request failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: generation request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
