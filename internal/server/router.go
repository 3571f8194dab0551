// Package server assembles the HTTP router and server.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/benvon/hawkeye-api/internal/config"
	"github.com/benvon/hawkeye-api/internal/handlers"
	"github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/middleware"
	"github.com/benvon/hawkeye-api/internal/payment"
	"github.com/benvon/hawkeye-api/internal/ratelimit"
	"github.com/benvon/hawkeye-api/internal/scanner"
	"github.com/benvon/hawkeye-api/internal/telemetry"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Deps are the collaborators the router needs
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Limiter  ratelimit.Limiter
	Gate     *payment.Gate // nil leaves /api unmetered
	Memory   handlers.MemorySearcher
	Verifier handlers.AgentVerifier
	Scanner  *scanner.Scanner
	Routes   []payment.Route
	Tracing  bool
}

// NewRouter wires middleware and routes. Global middleware runs in this order:
// request ID, tracing, security headers, CORS, panic recovery, logging, audit,
// body size limit, timeout, rate limit. The payment gate applies to /api only.
func NewRouter(d Deps) (*mux.Router, error) {
	if d.Config == nil {
		return nil, errors.New("router requires config")
	}
	if d.Limiter == nil {
		return nil, errors.New("router requires a rate limiter")
	}
	if d.Memory == nil || d.Verifier == nil {
		return nil, errors.New("router requires memory and verifier backends")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Routes == nil {
		d.Routes = payment.DefaultRoutes()
	}
	debug := d.Config.DebugErrors()

	global := []mux.MiddlewareFunc{middleware.RequestID}
	if d.Tracing {
		global = append(global, telemetry.Middleware(logger.ServiceName))
	}
	global = append(global,
		middleware.SecurityHeaders(d.Config.EnableHSTS),
		middleware.CORS(),
		middleware.ErrorHandler(d.Logger, debug),
		middleware.Logging(d.Logger),
		middleware.Audit(d.Logger),
		middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, d.Logger),
		middleware.Timeout(middleware.DefaultRequestTimeout),
		middleware.RateLimit(d.Limiter, d.Config.TrustProxy, d.Logger),
	)

	r := mux.NewRouter()
	r.Use(global...)

	// mux skips middleware for unmatched requests, so wrap the fallbacks explicitly
	r.NotFoundHandler = chain(http.HandlerFunc(handlers.NotFound), global)
	r.MethodNotAllowedHandler = chain(http.HandlerFunc(handlers.MethodNotAllowed), global)

	system := handlers.NewSystemHandler(d.Config.PayTo, d.Config.PaymentNetwork, d.Routes)
	system.RegisterRoutes(r)

	openAPI, err := handlers.NewOpenAPIHandler()
	if err != nil {
		return nil, err
	}
	openAPI.RegisterRoutes(r)

	memoryHandler := handlers.NewMemoryHandler(d.Memory, d.Logger, debug)
	verifyHandler := handlers.NewVerifyHandler(d.Verifier, d.Logger)
	auditHandler := handlers.NewAuditHandler(d.Scanner, d.Logger)

	api := r.PathPrefix("/api").Subrouter()
	if d.Gate != nil {
		api.Use(d.Gate.Middleware)
	}
	api.HandleFunc("/status", system.Status).Methods(http.MethodGet)
	api.HandleFunc("/memory-query", memoryHandler.Query).Methods(http.MethodPost)
	api.HandleFunc("/verify-agent", verifyHandler.Verify).Methods(http.MethodGet)
	api.HandleFunc("/security-audit", auditHandler.Audit).Methods(http.MethodPost)

	// Any path answers OPTIONS; CORS has already written the response by then
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r, nil
}

func chain(h http.Handler, mws []mux.MiddlewareFunc) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NewHTTPServer returns a server with the write deadline above the request timeout
func NewHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
