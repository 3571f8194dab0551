// Package chain checks agent identities against an on-chain registry with a
// single eth_call.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/benvon/hawkeye-api/internal/validation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds the eth_call round trip
	DefaultTimeout = 10 * time.Second
	// NotRegisteredReason is reported when the registry returns no data
	NotRegisteredReason = "Not registered"

	tracerName = "github.com/benvon/hawkeye-api/internal/chain"
)

// Caller is the subset of *rpc.Client the verifier needs.
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Verification is the outcome reported to clients.
type Verification struct {
	AgentID   string `json:"agentId"`
	Verified  bool   `json:"verified"`
	Reason    string `json:"reason,omitempty"`
	Registry  string `json:"registry,omitempty"`
	Network   string `json:"network,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Unavailable builds the client-facing result for a failed lookup.
func Unavailable(agentID string) Verification {
	return Verification{AgentID: agentID, Verified: false, Error: UnavailableMessage}
}

// Verifier issues registry lookups.
type Verifier struct {
	caller   Caller
	registry common.Address
	network  string
	timeout  time.Duration
	now      func() time.Time
	tracer   trace.Tracer
}

// Option configures a Verifier
type Option func(*Verifier)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithClock overrides time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithTracerProvider records spans on tp instead of the global provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(v *Verifier) { v.tracer = tp.Tracer(tracerName) }
}

// NewVerifier builds a verifier on an existing RPC caller.
func NewVerifier(caller Caller, registry common.Address, network string, opts ...Option) *Verifier {
	v := &Verifier{
		caller:   caller,
		registry: registry,
		network:  network,
		timeout:  DefaultTimeout,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Dial creates a verifier talking JSON-RPC to rpcURL. For HTTP endpoints no
// connection is made until the first call.
func Dial(ctx context.Context, rpcURL string, registry common.Address, network string, opts ...Option) (*Verifier, error) {
	v := NewVerifier(nil, registry, network, opts...)
	client, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(&http.Client{Timeout: v.timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	v.caller = client
	return v, nil
}

// Registry returns the registry contract address
func (v *Verifier) Registry() common.Address {
	return v.registry
}

// Network returns the network label reported to clients
func (v *Verifier) Network() string {
	return v.network
}

// Close releases the RPC client
func (v *Verifier) Close() {
	if v.caller != nil {
		v.caller.Close()
	}
}

// EncodeAgentID renders a decimal agent id as 0x-prefixed big-endian hex,
// zero-padded to 32 digits. Larger ids keep every digit.
func EncodeAgentID(agentID string) (string, error) {
	if !validation.IsNumericString(agentID) {
		return "", &validation.Error{Message: "agentId must be a numeric string"}
	}
	n, ok := new(big.Int).SetString(agentID, 10)
	if !ok {
		return "", &validation.Error{Message: "agentId must be a numeric string"}
	}
	return fmt.Sprintf("0x%032x", n), nil
}

// Verify looks agentID up in the registry. A nil error always comes with a
// usable Verification. Transport, timeout and HTTP status failures are returned
// as *UnavailableError; node error replies and empty results are "Not registered". The call is attempted once and is not cancelled by the
// caller's context, only by the verifier timeout.
func (v *Verifier) Verify(ctx context.Context, agentID string) (Verification, error) {
	data, err := EncodeAgentID(agentID)
	if err != nil {
		return Verification{}, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	ctx, span := v.tracer.Start(ctx, "chain.eth_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("chain.registry", v.registry.Hex()),
			attribute.String("chain.network", v.network),
		),
	)
	defer span.End()

	call := map[string]string{
		"to":   v.registry.Hex(),
		"data": data,
	}

	var result string
	if err := v.caller.CallContext(ctx, &result, "eth_call", call, "latest"); err != nil {
		// A JSON-RPC error reply (a revert) or a reply without a result means the
		// node answered and the registry has no record for the id.
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) || errors.Is(err, rpc.ErrNoResult) {
			span.SetAttributes(attribute.Bool("agent.verified", false))
			return notRegistered(agentID), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "eth_call failed")
		return Verification{}, &UnavailableError{AgentID: agentID, Err: err}
	}

	if result == "" || result == "0x" {
		span.SetAttributes(attribute.Bool("agent.verified", false))
		return notRegistered(agentID), nil
	}

	span.SetAttributes(attribute.Bool("agent.verified", true))
	return Verification{
		AgentID:   agentID,
		Verified:  true,
		Registry:  v.registry.Hex(),
		Network:   v.network,
		Timestamp: v.now().UTC().Format(time.RFC3339),
	}, nil
}

func notRegistered(agentID string) Verification {
	return Verification{AgentID: agentID, Verified: false, Reason: NotRegisteredReason}
}
