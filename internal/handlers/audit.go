package handlers

import (
	"net/http"

	"github.com/benvon/hawkeye-api/internal/scanner"
	"github.com/benvon/hawkeye-api/internal/validation"
	"go.uber.org/zap"
)

// AuditResponse is the body of POST /api/security-audit
type AuditResponse struct {
	Issues    []scanner.Issue `json:"issues"`
	Summary   string          `json:"summary"`
	Timestamp string          `json:"timestamp"`
}

// AuditHandler serves POST /api/security-audit
type AuditHandler struct {
	scanner *scanner.Scanner
	logger  *zap.Logger
}

// NewAuditHandler creates a security audit handler. A nil scanner uses the built-in rules.
func NewAuditHandler(s *scanner.Scanner, logger *zap.Logger) *AuditHandler {
	if s == nil {
		s = scanner.Default()
	}
	return &AuditHandler{scanner: s, logger: logger}
}

// Audit handles POST /api/security-audit
func (h *AuditHandler) Audit(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeJSONObject(r)
	if err != nil {
		respondDecodeError(w, r, h.logger, err)
		return
	}

	code, err := validation.StringField(fields, "code")
	if err != nil {
		respondValidationError(w, r, h.logger, err)
		return
	}
	req := validation.SecurityAuditRequest{Code: code}
	if err := validation.Struct(req); err != nil {
		respondValidationError(w, r, h.logger, err)
		return
	}

	report := h.scanner.Scan(req.Code)
	h.logger.Debug("security_audit_completed", zap.Int("issues", len(report.Issues)))

	respondJSON(w, http.StatusOK, AuditResponse{
		Issues:    report.Issues,
		Summary:   report.Summary,
		Timestamp: timestamp(),
	})
}
