package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	logpkg "github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/request"
	"github.com/benvon/hawkeye-api/internal/validation"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

var errInvalidJSON = &validation.Error{Message: "Invalid JSON body"}

// respondJSON sends data as the whole JSON body
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response
func respondJSONError(w http.ResponseWriter, r *http.Request, status int, errorType, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     errorType,
		Message:   logpkg.SanitizeString(message, logpkg.MaxErrorMessageLength),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

// respondValidationError answers 400 for client input problems
func respondValidationError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	logger.Info("validation_failed",
		zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		zap.String("request_id", request.RequestIDFromContext(r.Context())),
		zap.String("error", logpkg.SanitizeError(err)),
	)
	respondJSONError(w, r, http.StatusBadRequest, "Validation failed", err.Error())
}

// respondInternalError logs err and answers 500. The cause is only echoed in debug mode.
func respondInternalError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, debug bool, event string, err error) {
	logger.Error(event,
		zap.Error(err),
		zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		zap.String("request_id", request.RequestIDFromContext(r.Context())),
	)
	message := "Internal server error"
	if debug {
		message = err.Error()
	}
	respondJSONError(w, r, http.StatusInternalServerError, "Internal server error", message)
}

// decodeJSONObject reads the body as a JSON object. An empty body decodes to an
// empty object.
func decodeJSONObject(r *http.Request) (map[string]any, error) {
	fields := map[string]any{}
	if r.Body == nil {
		return fields, nil
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, fmt.Errorf("request body exceeds maximum size of %d bytes: %w", maxBytesErr.Limit, err)
		}
		return nil, errInvalidJSON
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// respondDecodeError maps decodeJSONObject failures to 400 or 413
func respondDecodeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		respondJSONError(w, r, http.StatusRequestEntityTooLarge, "Request entity too large", err.Error())
		return
	}
	respondValidationError(w, r, logger, err)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
