package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/request"
	"go.uber.org/zap"
)

// Client-facing 402 reasons
const (
	ErrMsgHeaderRequired   = "X-PAYMENT header is required"
	ErrMsgMalformed        = "Invalid or malformed payment header"
	ErrMsgNoMatch          = "Unable to find matching payment requirements"
	ErrMsgInvalid          = "Payment is invalid"
	ErrMsgUnavailable      = "payment verification unavailable"
	ErrMsgSettlementFailed = "Payment settlement failed"
)

// GateConfig configures a Gate.
type GateConfig struct {
	PayTo       string
	Network     string
	Asset       string
	AssetName   string
	AssetVer    string
	BaseURL     string
	Routes      []Route
	Facilitator Facilitator
	Logger      *zap.Logger
}

// Gate enforces payment on metered routes. Requests for routes outside its table
// pass through untouched.
type Gate struct {
	requirements map[string]Requirements
	facilitator  Facilitator
	logger       *zap.Logger
}

// NewGate precomputes the requirements for every route.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Facilitator == nil {
		return nil, errors.New("payment gate requires a facilitator")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AssetName == "" {
		cfg.AssetName = "USD Coin"
	}
	if cfg.AssetVer == "" {
		cfg.AssetVer = "2"
	}

	g := &Gate{
		requirements: make(map[string]Requirements, len(cfg.Routes)),
		facilitator:  cfg.Facilitator,
		logger:       cfg.Logger,
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	for _, rt := range cfg.Routes {
		amount, err := AtomicAmount(rt.Price, USDCDecimals)
		if err != nil {
			return nil, fmt.Errorf("route %s %s: %w", rt.Method, rt.Path, err)
		}
		g.requirements[routeKey(rt.Method, rt.Path)] = Requirements{
			Scheme:            SchemeExact,
			Network:           cfg.Network,
			MaxAmountRequired: amount,
			Resource:          baseURL + rt.Path,
			Description:       rt.Description,
			MimeType:          "application/json",
			PayTo:             cfg.PayTo,
			MaxTimeoutSeconds: DefaultMaxTimeoutSeconds,
			Asset:             cfg.Asset,
			Extra:             map[string]string{"name": cfg.AssetName, "version": cfg.AssetVer},
		}
	}
	return g, nil
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Requirements returns the payment requirements for a route, if it is metered.
func (g *Gate) Requirements(method, path string) (Requirements, bool) {
	req, ok := g.requirements[routeKey(method, path)]
	return req, ok
}

// Middleware wraps next with the payment check.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs, ok := g.Requirements(r.Method, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		log := g.logger.With(
			zap.String("request_id", request.RequestIDFromContext(r.Context())),
			zap.String("path", logger.SanitizePath(r.URL.Path)),
		)

		header := r.Header.Get(HeaderPayment)
		if header == "" {
			writePaymentRequired(w, ErrMsgHeaderRequired, reqs, "")
			return
		}

		payload, err := DecodePayload(header)
		if err != nil {
			log.Info("payment_payload_rejected", zap.String("error", logger.SanitizeError(err)))
			writePaymentRequired(w, ErrMsgMalformed, reqs, "")
			return
		}
		if payload.Scheme != reqs.Scheme || payload.Network != reqs.Network {
			writePaymentRequired(w, ErrMsgNoMatch, reqs, "")
			return
		}

		verdict, err := g.facilitator.Verify(r.Context(), payload, reqs)
		if err != nil {
			log.Error("payment_verification_unavailable", zap.String("error", logger.SanitizeError(err)))
			writePaymentRequired(w, ErrMsgUnavailable, reqs, "")
			return
		}
		if !verdict.IsValid {
			reason := verdict.InvalidReason
			if reason == "" {
				reason = ErrMsgInvalid
			}
			log.Info("payment_invalid",
				zap.String("reason", logger.SanitizeString(reason, logger.MaxGeneralStringLength)),
				zap.String("payer", logger.SanitizeClientID(verdict.Payer)),
			)
			writePaymentRequired(w, reason, reqs, verdict.Payer)
			return
		}

		buf := newBufferedWriter()
		next.ServeHTTP(buf, r)

		if buf.status >= http.StatusBadRequest {
			buf.flushTo(w)
			return
		}

		settlement, err := g.facilitator.Settle(r.Context(), payload, reqs)
		if err != nil {
			log.Error("payment_settlement_unavailable", zap.String("error", logger.SanitizeError(err)))
			writePaymentRequired(w, ErrMsgSettlementFailed, reqs, verdict.Payer)
			return
		}
		if !settlement.Success {
			reason := ErrMsgSettlementFailed
			if settlement.ErrorReason != "" {
				reason = settlement.ErrorReason
			}
			log.Warn("payment_settlement_failed",
				zap.String("reason", logger.SanitizeString(reason, logger.MaxGeneralStringLength)),
				zap.String("payer", logger.SanitizeClientID(verdict.Payer)),
			)
			writePaymentRequired(w, reason, reqs, verdict.Payer)
			return
		}

		encoded, err := EncodeHeader(settlement)
		if err != nil {
			log.Error("payment_response_encode_failed", zap.Error(err))
		} else {
			buf.Header().Set(HeaderPaymentResponse, encoded)
		}

		log.Info("payment_settled",
			zap.String("payer", logger.SanitizeClientID(settlement.Payer)),
			zap.String("transaction", settlement.Transaction),
			zap.String("amount", reqs.MaxAmountRequired),
		)
		buf.flushTo(w)
	})
}

func writePaymentRequired(w http.ResponseWriter, reason string, reqs Requirements, payer string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(PaymentRequiredResponse{
		X402Version: X402Version,
		Error:       reason,
		Accepts:     []Requirements{reqs},
		Payer:       payer,
	})
}

// bufferedWriter holds a handler's response until settlement has succeeded.
type bufferedWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.status = code
	b.wroteHeader = true
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}
