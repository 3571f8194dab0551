package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/benvon/hawkeye-api/internal/ratelimit"
	"go.uber.org/zap"
)

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

func (failingLimiter) Close() error { return nil }

func TestRateLimit(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.NewMemoryLimiter(2, time.Minute, 100)
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	defer func() { _ = limiter.Close() }()

	calls := 0
	handler := RateLimit(limiter, true, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remoteAddr, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = remoteAddr
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := send("10.0.0.1:1000", "")
	if first.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("Expected X-RateLimit-Limit 2, got %s", got)
	}
	if got := first.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("Expected X-RateLimit-Remaining 1, got %s", got)
	}
	if first.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("Expected X-RateLimit-Reset to be set")
	}

	// same host, different port: same client
	if w := send("10.0.0.1:2000", ""); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	rejected := send("10.0.0.1:3000", "")
	if rejected.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rejected.Code)
	}
	if calls != 2 {
		t.Errorf("Expected handler to run twice, ran %d times", calls)
	}

	var body RateLimitResponse
	if err := json.Unmarshal(rejected.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Error != "Too many requests" {
		t.Errorf("Expected error 'Too many requests', got '%s'", body.Error)
	}
	if body.RetryAfter < 1 || body.RetryAfter > 60 {
		t.Errorf("Expected retryAfter in [1,60], got %d", body.RetryAfter)
	}
	if got := rejected.Header().Get("Retry-After"); got != strconv.Itoa(body.RetryAfter) {
		t.Errorf("Expected Retry-After %d, got %s", body.RetryAfter, got)
	}
	if got := rejected.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("Expected X-RateLimit-Remaining 0, got %s", got)
	}

	// a forwarded client is keyed separately
	if w := send("10.0.0.1:4000", "203.0.113.9, 10.0.0.1"); w.Code != http.StatusOK {
		t.Errorf("Expected forwarded client to be allowed, got %d", w.Code)
	}
}

func TestRateLimit_IgnoresForwardedHeadersUnlessTrusted(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.NewMemoryLimiter(1, time.Minute, 100)
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	defer func() { _ = limiter.Close() }()

	handler := RateLimit(limiter, false, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for _, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "10.0.0.7:1234"
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK {
		t.Errorf("Expected first request allowed, got %d", codes[0])
	}
	for i, code := range codes[1:] {
		if code != http.StatusTooManyRequests {
			t.Errorf("Expected rotated header request %d to be limited, got %d", i+2, code)
		}
	}
}

func TestRateLimit_FailOpen(t *testing.T) {
	t.Parallel()

	handler := RateLimit(failingLimiter{}, false, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("Expected no rate limit headers when the limiter fails")
	}
}
