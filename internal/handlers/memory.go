package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/hawkeye-api/internal/memory"
	"github.com/benvon/hawkeye-api/internal/validation"
	"go.uber.org/zap"
)

// MemorySearcher looks up stored memories
type MemorySearcher interface {
	Query(ctx context.Context, text string) (memory.Result, error)
}

// MemoryHandler serves POST /api/memory-query
type MemoryHandler struct {
	store  MemorySearcher
	logger *zap.Logger
	debug  bool
}

// NewMemoryHandler creates a memory query handler
func NewMemoryHandler(store MemorySearcher, logger *zap.Logger, debug bool) *MemoryHandler {
	return &MemoryHandler{store: store, logger: logger, debug: debug}
}

// Query handles POST /api/memory-query
func (h *MemoryHandler) Query(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeJSONObject(r)
	if err != nil {
		respondDecodeError(w, r, h.logger, err)
		return
	}

	query, err := validation.StringField(fields, "query")
	if err != nil {
		respondValidationError(w, r, h.logger, err)
		return
	}
	req := validation.MemoryQueryRequest{Query: query}
	if err := validation.Struct(req); err != nil {
		respondValidationError(w, r, h.logger, err)
		return
	}

	result, err := h.store.Query(r.Context(), req.Query)
	if err != nil {
		respondInternalError(w, r, h.logger, h.debug, "memory_query_failed", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
