package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/hawkeye-api/internal/chain"
	logpkg "github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/request"
	"github.com/benvon/hawkeye-api/internal/validation"
	"go.uber.org/zap"
)

// AgentVerifier checks an agent id against the identity registry
type AgentVerifier interface {
	Verify(ctx context.Context, agentID string) (chain.Verification, error)
}

// VerifyHandler serves GET /api/verify-agent
type VerifyHandler struct {
	verifier AgentVerifier
	logger   *zap.Logger
}

// NewVerifyHandler creates an agent verification handler
func NewVerifyHandler(verifier AgentVerifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, logger: logger}
}

// Verify handles GET /api/verify-agent?agentId=
//
// Registry failures never surface as errors: the client gets 200 with
// verified=false and a fixed message, and the cause goes to the log.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agentId")

	if err := validation.Required(map[string]any{"agentId": agentID}, "agentId"); err != nil {
		respondValidationError(w, r, h.logger, err)
		return
	}
	req := validation.VerifyAgentRequest{AgentID: agentID}
	if err := validation.Struct(req); err != nil {
		respondValidationError(w, r, h.logger, err)
		return
	}

	result, err := h.verifier.Verify(r.Context(), req.AgentID)
	if err != nil {
		if validation.IsValidationError(err) {
			respondValidationError(w, r, h.logger, err)
			return
		}

		fields := []zap.Field{
			zap.String("agent_id", logpkg.SanitizeString(req.AgentID, logpkg.MaxGeneralStringLength)),
			zap.String("request_id", request.RequestIDFromContext(r.Context())),
			zap.String("error", logpkg.SanitizeError(err)),
		}
		if !errors.Is(err, chain.ErrUnavailable) {
			fields = append(fields, zap.Bool("unexpected", true))
		}
		h.logger.Error("chain_verification_failed", fields...)

		respondJSON(w, http.StatusOK, chain.Unavailable(req.AgentID))
		return
	}

	respondJSON(w, http.StatusOK, result)
}
