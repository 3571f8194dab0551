package middleware

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout bounds a whole request, including payment settlement
	DefaultRequestTimeout = 30 * time.Second

	timeoutBody = `{"error":"Service unavailable","message":"Request timed out"}`
)

// Timeout cancels the request context after timeout and answers 503.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
