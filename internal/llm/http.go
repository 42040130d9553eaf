package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jouleworks/gridmind/internal/httpkit"
)

// tokenSkew is how long before expiry a cached token is considered
// stale. Refreshing early avoids racing the backend's clock.
const tokenSkew = 60 * time.Second

// HTTPClient talks to an HTTP text-generation backend using bearer
// credentials obtained from a token endpoint. Tokens are cached and
// refreshed shortly before expiry.
type HTTPClient struct {
	baseURL      string
	authURL      string
	clientID     string
	clientSecret string
	model        string
	httpClient   *http.Client
	logger       *slog.Logger
	nowFunc      func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithModel sets the model name sent with generation requests.
func WithModel(model string) Option {
	return func(c *HTTPClient) { c.model = model }
}

// NewHTTPClient creates a backend client. Empty clientID or
// clientSecret puts the client in unconfigured mode: GenerateText
// returns ErrUnconfigured without any network activity.
func NewHTTPClient(baseURL, authURL, clientID, clientSecret string, timeout time.Duration, logger *slog.Logger, opts ...Option) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger.With("component", "llm"),
		nowFunc:      time.Now,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithLogger(logger),
		),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether credentials are present.
func (c *HTTPClient) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// tokenResponse is the token endpoint's reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// bearerToken returns a valid cached token or refreshes one. The lock
// is held across the refresh so concurrent agents do not stampede the
// token endpoint; the refresh itself is a single fast form POST.
func (c *HTTPClient) bearerToken(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrUnconfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if c.token != "" && now.Before(c.tokenExpiry.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", &AuthError{Err: fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, body)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Err: fmt.Errorf("token endpoint returned empty access_token")}
	}

	c.token = tok.AccessToken
	c.tokenExpiry = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Debug("bearer token refreshed", "expires_in", tok.ExpiresIn)

	return c.token, nil
}

// generateRequest is the generation endpoint's request body.
type generateRequest struct {
	Model      string         `json:"model"`
	Input      string         `json:"input"`
	Parameters genParameters  `json:"parameters"`
}

type genParameters struct {
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	Temperature       float64  `json:"temperature,omitempty"`
	TopP              float64  `json:"top_p,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

// generateResponse is the generation endpoint's reply.
type generateResponse struct {
	Results []struct {
		GeneratedText string `json:"generated_text"`
	} `json:"results"`
}

// GenerateText implements Client. One request, no internal retry:
// agents fall back to statistical output on any failure, so retrying
// here would only delay the cycle.
func (c *HTTPClient) GenerateText(ctx context.Context, prompt string, opts SampleOptions) (string, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return "", err
	}

	body := generateRequest{
		Model: c.model,
		Input: prompt,
		Parameters: genParameters{
			MaxNewTokens:      opts.MaxTokens,
			Temperature:       opts.Temperature,
			TopP:              opts.TopP,
			RepetitionPenalty: opts.RepetitionPenalty,
			StopSequences:     opts.StopSequences,
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", &RequestError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", &RequestError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := c.nowFunc()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RequestError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", &RequestError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", body),
		}
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", &RequestError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(gen.Results) == 0 {
		return "", &RequestError{Err: fmt.Errorf("empty results")}
	}

	c.logger.Debug("generation complete",
		"model", c.model,
		"prompt_len", len(prompt),
		"output_len", len(gen.Results[0].GeneratedText),
		"elapsed", c.nowFunc().Sub(start),
	)

	return gen.Results[0].GeneratedText, nil
}

// HealthCheck implements Client. It never issues a generation call:
// unconfigured is unhealthy, a fresh cached token is healthy, and
// otherwise one token refresh decides healthy versus degraded.
func (c *HTTPClient) HealthCheck(ctx context.Context) Health {
	if !c.Configured() {
		return Unhealthy
	}

	c.mu.Lock()
	fresh := c.token != "" && c.nowFunc().Before(c.tokenExpiry.Add(-tokenSkew))
	c.mu.Unlock()
	if fresh {
		return Healthy
	}

	if _, err := c.bearerToken(ctx); err != nil {
		return Degraded
	}
	return Healthy
}
