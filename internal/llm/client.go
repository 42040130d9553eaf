// Package llm provides the text-generation backend client used by the
// analysis agents. Agents treat the backend as an enrichment source:
// every call site has a deterministic fallback, so failures here are
// expected and must be cheap to detect.
package llm

import "context"

// Health describes the backend's current availability.
type Health string

const (
	// Healthy means credentials are configured and a token is available.
	Healthy Health = "healthy"
	// Degraded means credentials are configured but a token could not
	// currently be obtained.
	Degraded Health = "degraded"
	// Unhealthy means no credentials are configured; generation calls
	// will fail immediately with ErrUnconfigured.
	Unhealthy Health = "unhealthy"
)

// SampleOptions are the sampling parameters passed with each
// generation request. Zero values are omitted from the wire request so
// the backend applies its own defaults.
type SampleOptions struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	StopSequences     []string
}

// Client is the contract each agent has with the text-generation
// backend. Implementations must be safe for concurrent use: the three
// agents call GenerateText from independent goroutines.
type Client interface {
	// GenerateText sends prompt to the backend and returns the raw
	// generated text. Returns ErrUnconfigured when no credentials are
	// present (no network call is made), an *AuthError when the
	// credential refresh fails, or a *RequestError for network,
	// timeout, and non-2xx failures.
	GenerateText(ctx context.Context, prompt string, opts SampleOptions) (string, error)

	// HealthCheck reports availability without making a generation
	// call.
	HealthCheck(ctx context.Context) Health
}
