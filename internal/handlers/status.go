package handlers

import (
	"net/http"
)

// AgentID is this service's identity in the on-chain registry
const AgentID = "2079"

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Service        string   `json:"service"`
	Version        string   `json:"version"`
	AgentID        string   `json:"agentId"`
	Capabilities   []string `json:"capabilities"`
	PaymentAddress string   `json:"paymentAddress"`
}

// Status handles GET /api/status
func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Service:        "Hawkeye Agent API",
		Version:        ServiceVersion,
		AgentID:        AgentID,
		Capabilities:   []string{"security-audit", "memory-storage", "contract-verification"},
		PaymentAddress: h.paymentAddress,
	})
}
