package middleware

import (
	"net/http"

	logpkg "github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/request"
	"go.uber.org/zap"
)

// Audit logs refused requests: unpaid calls on metered routes, oversized bodies
// and rate limit violations.
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			var event string
			switch wrapped.statusCode {
			case http.StatusRequestEntityTooLarge:
				event = "oversized_request"
			case http.StatusPaymentRequired:
				event = "payment_required"
			case http.StatusTooManyRequests:
				event = "rate_limit_violation"
			default:
				return
			}

			logger.Warn(event,
				zap.Int("status_code", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeClientID(request.ClientIP(r))),
				zap.String("request_id", request.RequestIDFromContext(r.Context())),
			)
		})
	}
}
