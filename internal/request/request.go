package request

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestIDHeader carries the request ID in and out of the service
const RequestIDHeader = "X-Request-ID"

// ClientIP extracts the client address used as the rate-limit key. It respects
// X-Forwarded-For (first entry) and X-Real-IP, then falls back to the host part
// of RemoteAddr so that separate connections from one host share a key.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return RemoteIP(r)
}

// RemoteIP returns the host part of the connection's RemoteAddr, ignoring any
// forwarding headers.
func RemoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}

// ClientKey picks the rate-limit key. Forwarding headers are only honoured when
// trustProxy is set, since any client can write them.
func ClientKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		return ClientIP(r)
	}
	return RemoteIP(r)
}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request ID, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
