package handlers

import (
	"net/http"

	"github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/payment"
	"github.com/gorilla/mux"
)

// ServiceVersion is reported by / and /api/status
const ServiceVersion = "1.0.0"

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// Endpoint describes one route in the service index
type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// IndexResponse is the body of GET /
type IndexResponse struct {
	Service        string     `json:"service"`
	Version        string     `json:"version"`
	Description    string     `json:"description"`
	PaymentAddress string     `json:"paymentAddress"`
	Network        string     `json:"network"`
	Protocol       string     `json:"protocol"`
	Endpoints      []Endpoint `json:"endpoints"`
	Timestamp      string     `json:"timestamp"`
}

// EchoResponse is the body of GET /test
type EchoResponse struct {
	Message   string              `json:"message"`
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Query     map[string][]string `json:"query"`
	Timestamp string              `json:"timestamp"`
}

// SystemHandler serves the free informational routes
type SystemHandler struct {
	paymentAddress string
	network        string
	endpoints      []Endpoint
}

// NewSystemHandler builds the route index from the metered route table
func NewSystemHandler(paymentAddress, network string, metered []payment.Route) *SystemHandler {
	endpoints := []Endpoint{
		{Method: http.MethodGet, Path: "/health", Price: "free", Description: "Liveness check"},
		{Method: http.MethodGet, Path: "/", Price: "free", Description: "Service index"},
		{Method: http.MethodGet, Path: "/test", Price: "free", Description: "Echo request method, path and query"},
		{Method: http.MethodGet, Path: "/openapi.json", Price: "free", Description: "OpenAPI document (JSON)"},
		{Method: http.MethodGet, Path: "/openapi.yaml", Price: "free", Description: "OpenAPI document (YAML)"},
	}
	for _, rt := range metered {
		endpoints = append(endpoints, Endpoint{
			Method:      rt.Method,
			Path:        rt.Path,
			Price:       rt.Price,
			Description: rt.Description,
		})
	}
	return &SystemHandler{
		paymentAddress: paymentAddress,
		network:        network,
		endpoints:      endpoints,
	}
}

// RegisterRoutes registers the free routes on the root router
func (h *SystemHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/test", h.Echo).Methods(http.MethodGet)
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
}

// Health handles GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   logger.ServiceName,
		Timestamp: timestamp(),
	})
}

// Index handles GET /
func (h *SystemHandler) Index(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, IndexResponse{
		Service:        "Hawkeye Agent API",
		Version:        ServiceVersion,
		Description:    "Pay-per-call agent services: status, memory lookup, identity verification and contract review",
		PaymentAddress: h.paymentAddress,
		Network:        h.network,
		Protocol:       "x402",
		Endpoints:      h.endpoints,
		Timestamp:      timestamp(),
	})
}

// Echo handles GET /test
func (h *SystemHandler) Echo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, EchoResponse{
		Message:   "Test endpoint reached",
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Timestamp: timestamp(),
	})
}
