package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPayTo = "0x71f08aEfe062d28c7AD37344dC0D64e0adF8941E"

// fakeFacilitator is an in-process x402 facilitator.
type fakeFacilitator struct {
	mu          sync.Mutex
	verify      VerifyResponse
	settle      SettleResponse
	verifyCode  int
	settleCode  int
	verifyCalls int
	settleCalls int
	lastBody    map[string]json.RawMessage
}

func (f *fakeFacilitator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.lastBody = body

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/verify":
		f.verifyCalls++
		if f.verifyCode != 0 {
			w.WriteHeader(f.verifyCode)
		}
		_ = json.NewEncoder(w).Encode(f.verify)
	case "/settle":
		f.settleCalls++
		if f.settleCode != 0 {
			w.WriteHeader(f.settleCode)
		}
		_ = json.NewEncoder(w).Encode(f.settle)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeFacilitator) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls, f.settleCalls
}

func newTestGate(t *testing.T, facilitatorURL string) *Gate {
	t.Helper()
	g, err := NewGate(GateConfig{
		PayTo:       testPayTo,
		Network:     "base",
		Asset:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		BaseURL:     "https://api.example.com/",
		Routes:      DefaultRoutes(),
		Facilitator: NewClient(facilitatorURL, nil),
	})
	require.NoError(t, err)
	return g
}

func paymentHeader(network string) string {
	p := `{"x402Version":1,"scheme":"exact","network":"` + network + `","payload":{"signature":"0xabc"}}`
	return base64.StdEncoding.EncodeToString([]byte(p))
}

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Handler", "ran")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"service":"Hawkeye Agent API"}`))
	})
}

func decode402(t *testing.T, rr *httptest.ResponseRecorder) PaymentRequiredResponse {
	t.Helper()
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	var body PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestGate_Requirements(t *testing.T) {
	t.Parallel()
	g := newTestGate(t, "http://facilitator.invalid")

	req, ok := g.Requirements(http.MethodGet, "/api/verify-agent")
	require.True(t, ok)
	assert.Equal(t, Requirements{
		Scheme:            SchemeExact,
		Network:           "base",
		MaxAmountRequired: "10000",
		Resource:          "https://api.example.com/api/verify-agent",
		Description:       "Verify ERC-8004 agent identity",
		MimeType:          "application/json",
		PayTo:             testPayTo,
		MaxTimeoutSeconds: 60,
		Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Extra:             map[string]string{"name": "USD Coin", "version": "2"},
	}, req)

	_, ok = g.Requirements(http.MethodPost, "/api/verify-agent")
	assert.False(t, ok)
	_, ok = g.Requirements(http.MethodGet, "/health")
	assert.False(t, ok)
}

func TestNewGate_Errors(t *testing.T) {
	t.Parallel()
	_, err := NewGate(GateConfig{Routes: DefaultRoutes()})
	assert.Error(t, err)

	_, err = NewGate(GateConfig{
		Facilitator: NewClient("http://x", nil),
		Routes:      []Route{{Method: "GET", Path: "/x", Price: "cheap"}},
	})
	assert.Error(t, err)
}

func TestGate_UnmeteredPassesThrough(t *testing.T) {
	t.Parallel()
	g := newTestGate(t, "http://facilitator.invalid")

	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ran", rr.Header().Get("X-Handler"))
}

func TestGate_MissingHeader(t *testing.T) {
	t.Parallel()
	g := newTestGate(t, "http://facilitator.invalid")

	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	body := decode402(t, rr)
	assert.Equal(t, X402Version, body.X402Version)
	assert.Equal(t, ErrMsgHeaderRequired, body.Error)
	require.Len(t, body.Accepts, 1)
	assert.Equal(t, "1000", body.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "https://api.example.com/api/status", body.Accepts[0].Resource)
	assert.Empty(t, rr.Header().Get("X-Handler"))
}

func TestGate_MalformedHeader(t *testing.T) {
	t.Parallel()
	fac := &fakeFacilitator{}
	srv := httptest.NewServer(fac)
	defer srv.Close()
	g := newTestGate(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderPayment, "!!!")
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)

	assert.Equal(t, ErrMsgMalformed, decode402(t, rr).Error)
	verifies, _ := fac.counts()
	assert.Zero(t, verifies)
}

func TestGate_WrongNetwork(t *testing.T) {
	t.Parallel()
	fac := &fakeFacilitator{}
	srv := httptest.NewServer(fac)
	defer srv.Close()
	g := newTestGate(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderPayment, paymentHeader("base-sepolia"))
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)

	assert.Equal(t, ErrMsgNoMatch, decode402(t, rr).Error)
}

func TestGate_InvalidPayment(t *testing.T) {
	t.Parallel()
	fac := &fakeFacilitator{verify: VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds", Payer: "0xpayer"}}
	srv := httptest.NewServer(fac)
	defer srv.Close()
	g := newTestGate(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderPayment, paymentHeader("base"))
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)

	body := decode402(t, rr)
	assert.Equal(t, "insufficient_funds", body.Error)
	assert.Equal(t, "0xpayer", body.Payer)
	_, settles := fac.counts()
	assert.Zero(t, settles)
	assert.Empty(t, rr.Header().Get("X-Handler"))
}

func TestGate_ValidPaymentSettles(t *testing.T) {
	t.Parallel()
	fac := &fakeFacilitator{
		verify: VerifyResponse{IsValid: true, Payer: "0xpayer"},
		settle: SettleResponse{Success: true, Transaction: "0xtx", Network: "base", Payer: "0xpayer"},
	}
	srv := httptest.NewServer(fac)
	defer srv.Close()
	g := newTestGate(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderPayment, paymentHeader("base"))
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ran", rr.Header().Get("X-Handler"))
	assert.JSONEq(t, `{"service":"Hawkeye Agent API"}`, rr.Body.String())

	raw, err := base64.StdEncoding.DecodeString(rr.Header().Get(HeaderPaymentResponse))
	require.NoError(t, err)
	var settlement SettleResponse
	require.NoError(t, json.Unmarshal(raw, &settlement))
	assert.Equal(t, "0xtx", settlement.Transaction)

	verifies, settles := fac.counts()
	assert.Equal(t, 1, verifies)
	assert.Equal(t, 1, settles)

	fac.mu.Lock()
	defer fac.mu.Unlock()
	assert.JSONEq(t, `1`, string(fac.lastBody["x402Version"]))
	var sent Requirements
	require.NoError(t, json.Unmarshal(fac.lastBody["paymentRequirements"], &sent))
	assert.Equal(t, "1000", sent.MaxAmountRequired)
}

func TestGate_HandlerErrorSkipsSettlement(t *testing.T) {
	t.Parallel()
	fac := &fakeFacilitator{
		verify: VerifyResponse{IsValid: true},
		settle: SettleResponse{Success: true},
	}
	srv := httptest.NewServer(fac)
	defer srv.Close()
	g := newTestGate(t, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/memory-query", strings.NewReader(`{}`))
	req.Header.Set(HeaderPayment, paymentHeader("base"))
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusBadRequest)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rr.Header().Get(HeaderPaymentResponse))
	_, settles := fac.counts()
	assert.Zero(t, settles)
}

func TestGate_SettlementFailure(t *testing.T) {
	t.Parallel()
	fac := &fakeFacilitator{
		verify:     VerifyResponse{IsValid: true},
		settle:     SettleResponse{Success: false, ErrorReason: "invalid_transaction_state"},
		settleCode: http.StatusBadRequest,
	}
	srv := httptest.NewServer(fac)
	defer srv.Close()
	g := newTestGate(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderPayment, paymentHeader("base"))
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)

	body := decode402(t, rr)
	assert.Equal(t, "invalid_transaction_state", body.Error)
	assert.NotContains(t, rr.Body.String(), "Hawkeye Agent API")
	assert.Empty(t, rr.Header().Get("X-Handler"))
}

func TestGate_FacilitatorUnavailable(t *testing.T) {
	t.Parallel()
	fac := &fakeFacilitator{verifyCode: http.StatusBadGateway}
	srv := httptest.NewServer(fac)
	defer srv.Close()
	g := newTestGate(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderPayment, paymentHeader("base"))
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)

	assert.Equal(t, ErrMsgUnavailable, decode402(t, rr).Error)
}

func TestGate_FacilitatorUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	g := newTestGate(t, url)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderPayment, paymentHeader("base"))
	rr := httptest.NewRecorder()
	g.Middleware(okHandler(http.StatusOK)).ServeHTTP(rr, req)

	assert.Equal(t, ErrMsgUnavailable, decode402(t, rr).Error)
}

func TestClient_DecodeFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	p, err := DecodePayload(paymentHeader("base"))
	require.NoError(t, err)
	_, err = NewClient(srv.URL, nil).Verify(context.Background(), p, Requirements{})
	assert.ErrorIs(t, err, ErrFacilitatorUnavailable)
}

func TestBufferedWriter(t *testing.T) {
	t.Parallel()
	b := newBufferedWriter()
	_, _ = b.Write([]byte("a"))
	b.WriteHeader(http.StatusTeapot)
	_, _ = b.Write([]byte("b"))

	rr := httptest.NewRecorder()
	b.flushTo(rr)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ab", rr.Body.String())
}
