package httpkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient()
	if c.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", c.Timeout)
	}
}

func TestNewClient_CustomTimeout(t *testing.T) {
	c := NewClient(WithTimeout(5 * time.Second))
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.Timeout)
	}
}

func TestNewClient_ZeroTimeout(t *testing.T) {
	c := NewClient(WithTimeout(0))
	if c.Timeout != 0 {
		t.Errorf("timeout = %v, want 0 (disabled)", c.Timeout)
	}
}

func TestNewClient_UserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("gridmind-test/1.0"))
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "gridmind-test/1.0" {
		t.Errorf("User-Agent = %q, want gridmind-test/1.0", gotUA)
	}
}

func TestNewClient_DefaultUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	DrainAndClose(resp.Body, 1024)

	if !strings.HasPrefix(gotUA, "gridmind/") {
		t.Errorf("default User-Agent = %q, want gridmind/ prefix", gotUA)
	}
}

func TestNewTransport_HasTimeouts(t *testing.T) {
	tr := NewTransport()
	if tr.TLSHandshakeTimeout != DefaultTLSHandshakeTimeout {
		t.Errorf("TLSHandshakeTimeout = %v, want %v", tr.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout)
	}
	if tr.ResponseHeaderTimeout != DefaultResponseHeader {
		t.Errorf("ResponseHeaderTimeout = %v, want %v", tr.ResponseHeaderTimeout, DefaultResponseHeader)
	}
	if tr.MaxIdleConnsPerHost != DefaultMaxIdleConnsPerHost {
		t.Errorf("MaxIdleConnsPerHost = %d, want %d", tr.MaxIdleConnsPerHost, DefaultMaxIdleConnsPerHost)
	}
}

func TestReadErrorBody(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("bad request details"))
	got := ReadErrorBody(rc, 1024)
	if got != "bad request details" {
		t.Errorf("ReadErrorBody = %q", got)
	}
}

func TestReadErrorBody_Truncated(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("0123456789"))
	got := ReadErrorBody(rc, 4)
	if got != "0123" {
		t.Errorf("ReadErrorBody = %q, want truncated to 4 bytes", got)
	}
}

func TestReadErrorBody_Nil(t *testing.T) {
	if got := ReadErrorBody(nil, 1024); got != "" {
		t.Errorf("ReadErrorBody(nil) = %q, want empty", got)
	}
}

// errRoundTripper fails a fixed number of times before succeeding.
type errRoundTripper struct {
	failures int
	calls    int
	err      error
}

func (rt *errRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.calls++
	if rt.calls <= rt.failures {
		return nil, rt.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    req,
	}, nil
}

func TestRetryTransport_RetriesOnECONNREFUSED(t *testing.T) {
	base := &errRoundTripper{failures: 2, err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED)}
	rt := &retryTransport{base: base, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest("GET", "http://example.invalid/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip error after retries: %v", err)
	}
	DrainAndClose(resp.Body, 64)
	if base.calls != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", base.calls)
	}
}

func TestRetryTransport_ExhaustsRetries(t *testing.T) {
	base := &errRoundTripper{failures: 100, err: fmt.Errorf("dial: %w", syscall.EHOSTUNREACH)}
	rt := &retryTransport{base: base, count: 2, delay: time.Millisecond}

	req, _ := http.NewRequest("GET", "http://example.invalid/", nil)
	_, err := rt.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if base.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", base.calls)
	}
}

func TestRetryTransport_NoRetryOnNonRetryableError(t *testing.T) {
	base := &errRoundTripper{failures: 100, err: fmt.Errorf("some permanent failure")}
	rt := &retryTransport{base: base, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest("GET", "http://example.invalid/", nil)
	_, err := rt.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if base.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", base.calls)
	}
}

func TestRetryTransport_RespectsContextCancellation(t *testing.T) {
	base := &errRoundTripper{failures: 100, err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED)}
	rt := &retryTransport{base: base, count: 10, delay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", "http://example.invalid/", nil)

	done := make(chan error, 1)
	go func() {
		_, err := rt.RoundTrip(req)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RoundTrip did not honor context cancellation")
	}
}

func TestRetryTransport_NoRetryWithoutGetBody(t *testing.T) {
	base := &errRoundTripper{failures: 100, err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED)}
	rt := &retryTransport{base: base, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest("POST", "http://example.invalid/", io.NopCloser(strings.NewReader("body")))
	req.GetBody = nil

	_, err := rt.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if base.calls != 1 {
		t.Errorf("calls = %d, want 1 (unrewindable body must not retry)", base.calls)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("wrapped: %w", syscall.ECONNREFUSED), true},
		{fmt.Errorf("wrapped: %w", syscall.EHOSTUNREACH), true},
		{fmt.Errorf("wrapped: %w", syscall.ENETUNREACH), true},
		{fmt.Errorf("wrapped: %w", syscall.EPIPE), false},
		{fmt.Errorf("plain error"), false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
