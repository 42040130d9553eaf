package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newBackend starts a fake token + generation backend. tokenStatus and
// genStatus control the responses; tokenCalls counts refreshes.
func newBackend(t *testing.T, tokenStatus, genStatus int, genText string, tokenCalls *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenCalls != nil {
			tokenCalls.Add(1)
		}
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if genStatus != http.StatusOK {
			w.WriteHeader(genStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"generated_text": genText}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *HTTPClient {
	return NewHTTPClient(srv.URL, srv.URL+"/token", "id", "secret", 5*time.Second, nil)
}

func TestGenerateText_Success(t *testing.T) {
	srv := newBackend(t, http.StatusOK, http.StatusOK, "generated output", nil)
	c := newTestClient(srv)

	got, err := c.GenerateText(context.Background(), "prompt", SampleOptions{MaxTokens: 100})
	if err != nil {
		t.Fatalf("GenerateText error: %v", err)
	}
	if got != "generated output" {
		t.Errorf("GenerateText = %q, want %q", got, "generated output")
	}
}

func TestGenerateText_Unconfigured(t *testing.T) {
	c := NewHTTPClient("http://example.invalid", "http://example.invalid/token", "", "", time.Second, nil)

	_, err := c.GenerateText(context.Background(), "prompt", SampleOptions{})
	if !errors.Is(err, ErrUnconfigured) {
		t.Errorf("error = %v, want ErrUnconfigured", err)
	}
}

func TestGenerateText_AuthFailure(t *testing.T) {
	srv := newBackend(t, http.StatusForbidden, http.StatusOK, "", nil)
	c := newTestClient(srv)

	_, err := c.GenerateText(context.Background(), "prompt", SampleOptions{})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("error = %T (%v), want *AuthError", err, err)
	}
}

func TestGenerateText_RequestFailure(t *testing.T) {
	srv := newBackend(t, http.StatusOK, http.StatusInternalServerError, "", nil)
	c := newTestClient(srv)

	_, err := c.GenerateText(context.Background(), "prompt", SampleOptions{})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %T (%v), want *RequestError", err, err)
	}
	if reqErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", reqErr.StatusCode)
	}
}

func TestGenerateText_TokenCached(t *testing.T) {
	var calls atomic.Int64
	srv := newBackend(t, http.StatusOK, http.StatusOK, "out", &calls)
	c := newTestClient(srv)

	for range 3 {
		if _, err := c.GenerateText(context.Background(), "p", SampleOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("token endpoint called %d times, want 1 (cached)", calls.Load())
	}
}

func TestGenerateText_TokenRefreshNearExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := newBackend(t, http.StatusOK, http.StatusOK, "out", &calls)
	c := newTestClient(srv)

	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	if _, err := c.GenerateText(context.Background(), "p", SampleOptions{}); err != nil {
		t.Fatal(err)
	}

	// Jump to 30s before expiry, inside the refresh skew window.
	now = now.Add(3600*time.Second - 30*time.Second)
	if _, err := c.GenerateText(context.Background(), "p", SampleOptions{}); err != nil {
		t.Fatal(err)
	}

	if calls.Load() != 2 {
		t.Errorf("token endpoint called %d times, want 2 (refresh near expiry)", calls.Load())
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		c := NewHTTPClient("http://example.invalid", "http://example.invalid/token", "", "", time.Second, nil)
		if got := c.HealthCheck(context.Background()); got != Unhealthy {
			t.Errorf("HealthCheck = %v, want Unhealthy", got)
		}
	})

	t.Run("token obtainable", func(t *testing.T) {
		srv := newBackend(t, http.StatusOK, http.StatusOK, "", nil)
		c := newTestClient(srv)
		if got := c.HealthCheck(context.Background()); got != Healthy {
			t.Errorf("HealthCheck = %v, want Healthy", got)
		}
	})

	t.Run("token refresh failing", func(t *testing.T) {
		srv := newBackend(t, http.StatusServiceUnavailable, http.StatusOK, "", nil)
		c := newTestClient(srv)
		if got := c.HealthCheck(context.Background()); got != Degraded {
			t.Errorf("HealthCheck = %v, want Degraded", got)
		}
	})

	t.Run("cached token skips network", func(t *testing.T) {
		var calls atomic.Int64
		srv := newBackend(t, http.StatusOK, http.StatusOK, "", &calls)
		c := newTestClient(srv)

		if _, err := c.GenerateText(context.Background(), "p", SampleOptions{}); err != nil {
			t.Fatal(err)
		}
		before := calls.Load()
		if got := c.HealthCheck(context.Background()); got != Healthy {
			t.Errorf("HealthCheck = %v, want Healthy", got)
		}
		if calls.Load() != before {
			t.Error("HealthCheck refreshed a token that was still fresh")
		}
	})
}
