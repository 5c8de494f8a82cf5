package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGetUsesRetryAfterHeaderWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(http.DefaultClient, zap.NewNop(), "")
	resp, obs, err := c.Get(context.Background(), srv.URL, "test-route")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if obs.RetryAfterMs != 1000 {
		t.Fatalf("expected 1000ms retry from header, got %d", obs.RetryAfterMs)
	}
}

func TestGetHeaderTakesPrecedenceOverBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"retry_after": 0.5, "global": false}`))
	}))
	defer srv.Close()

	c := New(http.DefaultClient, zap.NewNop(), "")
	resp, obs, err := c.Get(context.Background(), srv.URL, "test-route")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if !obs.RateLimited {
		t.Fatalf("expected rate limited observation")
	}
	if obs.RetryAfterMs != 1000 {
		t.Fatalf("expected header's 1000ms to take precedence over body's 500ms, got %d", obs.RetryAfterMs)
	}
}

func TestGetFallsBackToBodyWhenNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"retry_after": 0.5, "global": false}`))
	}))
	defer srv.Close()

	c := New(http.DefaultClient, zap.NewNop(), "")
	resp, obs, err := c.Get(context.Background(), srv.URL, "test-route")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if !obs.RateLimited {
		t.Fatalf("expected rate limited observation")
	}
	if obs.RetryAfterMs != 500 {
		t.Fatalf("expected 500ms retry from body, got %d", obs.RetryAfterMs)
	}
}

func TestGetSerializesPerBucketAndEnforcesCooldown(t *testing.T) {
	var callCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset-After", "0.2")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(http.DefaultClient, zap.NewNop(), "")

	start := time.Now()
	resp1, obs1, err := c.Get(context.Background(), srv.URL, "route-a")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	resp1.Body.Close()
	if !obs1.RemainingZero {
		t.Fatalf("expected remaining-zero observation on first call")
	}

	resp2, _, err := c.Get(context.Background(), srv.URL, "route-a")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	resp2.Body.Close()
	elapsed := time.Since(start)
	if elapsed < 200*time.Millisecond {
		t.Fatalf("expected second call to wait out the bucket cooldown, elapsed %v", elapsed)
	}
}

func TestGetRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset-After", "5")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(http.DefaultClient, zap.NewNop(), "")
	resp, _, err := c.Get(context.Background(), srv.URL, "route-b")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = c.Get(ctx, srv.URL, "route-b")
	if err == nil {
		t.Fatalf("expected context deadline error while waiting out cooldown")
	}
}
