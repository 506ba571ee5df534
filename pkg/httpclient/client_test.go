package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetJSONDecodesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"1","count":"2"}`))
	}))
	defer srv.Close()

	var out struct {
		Status string `json:"status"`
		Count  string `json:"count"`
	}
	c := New(WithMaxRetries(0))
	if err := c.GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Status != "1" || out.Count != "2" {
		t.Errorf("decoded %+v", out)
	}
}

func TestGetJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing key", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(0))
	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("want *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", statusErr.StatusCode)
	}
}

func TestRetriesServerErrorThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(WithMaxRetries(2), WithBaseDelay(10*time.Millisecond))
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do after retry: %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(3), WithBaseDelay(time.Millisecond))
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if resp != nil {
		resp.Body.Close()
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("400 must not be retried, server saw %d calls", got)
	}
}

func TestRetrySleepObservesCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(WithMaxRetries(3), WithHeaderParser(ParseRetryAfterHeader))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Do(req)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("want context.Canceled during backoff, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel; backoff sleep ignores ctx")
	}
}

func TestParseOpenAIHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	h.Set("x-ratelimit-remaining-requests", "42")
	h.Set("x-ratelimit-remaining-tokens", "9000")

	info := ParseOpenAIHeaders(h)
	if info.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v", info.RetryAfter)
	}
	if info.RequestsRemaining != 42 || info.TokensRemaining != 9000 {
		t.Errorf("remaining = %+v", info)
	}
}

func TestParseAnthropicHeaders(t *testing.T) {
	reset := time.Now().Add(time.Minute).UTC().Format(time.RFC3339)
	h := http.Header{}
	h.Set("retry-after", "3")
	h.Set("anthropic-ratelimit-requests-reset", reset)

	info := ParseAnthropicHeaders(h)
	if info.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v", info.RetryAfter)
	}
	if info.ResetTime == 0 {
		t.Errorf("ResetTime not parsed from %q", reset)
	}
}
