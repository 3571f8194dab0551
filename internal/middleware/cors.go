package middleware

import (
	"net/http"

	"github.com/benvon/hawkeye-api/internal/request"
	"github.com/rs/cors"
)

// Headers browsers may read from cross-origin responses
var exposedHeaders = []string{
	request.RequestIDHeader,
	"X-PAYMENT-RESPONSE",
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}

// CORS allows every origin for GET, POST and OPTIONS. Preflights are answered by
// rs/cors; any other OPTIONS request is short-circuited with 200 as well.
func CORS() func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type", "Authorization", "X-Payment"},
		ExposedHeaders:       exposedHeaders,
		MaxAge:               86400,
		OptionsSuccessStatus: http.StatusOK,
	})

	return func(next http.Handler) http.Handler {
		return c.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
