// Package payment implements an x402 pay-per-call gate. Payment payloads are
// checked and settled by a remote facilitator; this package never inspects
// signatures itself.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// X402Version is the protocol version spoken by the gate
	X402Version = 1
	// SchemeExact charges a fixed amount per call
	SchemeExact = "exact"

	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"

	DefaultMaxTimeoutSeconds = 60
)

// ErrMalformedPayload is returned when the X-PAYMENT header cannot be decoded
var ErrMalformedPayload = errors.New("malformed payment payload")

// Requirements describe what a client must pay for one resource.
type Requirements struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	Resource          string            `json:"resource"`
	Description       string            `json:"description"`
	MimeType          string            `json:"mimeType"`
	PayTo             string            `json:"payTo"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Asset             string            `json:"asset"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Payload is the decoded X-PAYMENT header. The scheme-specific part is kept raw
// and forwarded to the facilitator untouched.
type Payload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// PaymentRequiredResponse is the 402 body
type PaymentRequiredResponse struct {
	X402Version int            `json:"x402Version"`
	Error       string         `json:"error"`
	Accepts     []Requirements `json:"accepts"`
	Payer       string         `json:"payer,omitempty"`
}

// DecodePayload parses a base64 encoded JSON payment payload.
func DecodePayload(header string) (*Payload, error) {
	header = strings.TrimSpace(header)
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(header, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Scheme == "" || p.Network == "" || len(p.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing scheme, network or payload", ErrMalformedPayload)
	}
	return &p, nil
}

// EncodeHeader renders v as base64 JSON for use in an x402 header.
func EncodeHeader(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
