package middleware

import (
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		enableHSTS bool
		tls        bool
		expectHSTS bool
	}{
		{name: "plain http", enableHSTS: true, tls: false, expectHSTS: false},
		{name: "tls without hsts", enableHSTS: false, tls: true, expectHSTS: false},
		{name: "tls with hsts", enableHSTS: true, tls: true, expectHSTS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := SecurityHeaders(tt.enableHSTS)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest("GET", "/health", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("Expected nosniff, got '%s'", got)
			}
			if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Errorf("Expected DENY, got '%s'", got)
			}
			hasHSTS := w.Header().Get("Strict-Transport-Security") != ""
			if hasHSTS != tt.expectHSTS {
				t.Errorf("Expected HSTS=%v, got %v", tt.expectHSTS, hasHSTS)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	t.Parallel()

	handler := MaxRequestSize(16, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name         string
		body         string
		declared     bool
		expectStatus int
	}{
		{name: "small body", body: "{}", declared: true, expectStatus: http.StatusOK},
		{name: "declared too large", body: strings.Repeat("x", 32), declared: true, expectStatus: http.StatusRequestEntityTooLarge},
		{name: "undeclared too large", body: strings.Repeat("x", 32), declared: false, expectStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("POST", "/api/security-audit", strings.NewReader(tt.body))
			if !tt.declared {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectStatus {
				t.Errorf("Expected status %d, got %d", tt.expectStatus, w.Code)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	handler := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))

	req := httptest.NewRequest("GET", "/api/verify-agent", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Request timed out") {
		t.Errorf("Expected timeout body, got %q", w.Body.String())
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status      int
		expectEvent string
	}{
		{status: http.StatusOK},
		{status: http.StatusBadRequest},
		{status: http.StatusForbidden},
		{status: http.StatusRequestEntityTooLarge, expectEvent: "oversized_request"},
		{status: http.StatusPaymentRequired, expectEvent: "payment_required"},
		{status: http.StatusTooManyRequests, expectEvent: "rate_limit_violation"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			handler := Audit(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))

			if tt.expectEvent == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no audit entries, got %d", logs.Len())
				}
				return
			}
			if logs.FilterMessage(tt.expectEvent).Len() != 1 {
				t.Errorf("Expected one %s entry, got %v", tt.expectEvent, logs.All())
			}
		})
	}
}
