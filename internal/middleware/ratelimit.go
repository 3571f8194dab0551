package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	logpkg "github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/ratelimit"
	"github.com/benvon/hawkeye-api/internal/request"
	"go.uber.org/zap"
)

// RateLimitResponse is the 429 body
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimit enforces limiter per client IP. X-Forwarded-For and X-Real-IP are
// only used as the key when trustProxy is set. Limiter errors fail open.
func RateLimit(limiter ratelimit.Limiter, trustProxy bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := request.ClientKey(r, trustProxy)

			decision, err := limiter.Check(r.Context(), clientID)
			if err != nil {
				logger.Warn("rate_limit_check_failed",
					zap.String("error", logpkg.SanitizeError(err)),
					zap.String("client_ip", logpkg.SanitizeClientID(clientID)),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				logger.Info("rate_limit_exceeded",
					zap.String("client_ip", logpkg.SanitizeClientID(clientID)),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.Int("retry_after", decision.RetryAfter),
				)

				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				if err := json.NewEncoder(w).Encode(RateLimitResponse{
					Error:      "Too many requests",
					Message:    fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", decision.RetryAfter),
					RetryAfter: decision.RetryAfter,
				}); err != nil {
					logger.Error("failed_to_encode_rate_limit_response", zap.Error(err))
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
