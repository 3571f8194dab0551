package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrFacilitatorUnavailable wraps transport and protocol failures talking to the facilitator
var ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

// VerifyResponse is the facilitator's verdict on a payload.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is returned once the facilitator has submitted the payment.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// Facilitator verifies and settles payments on behalf of the gate.
type Facilitator interface {
	Verify(ctx context.Context, payload *Payload, req Requirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload *Payload, req Requirements) (*SettleResponse, error)
}

type facilitatorRequest struct {
	X402Version         int          `json:"x402Version"`
	PaymentPayload      *Payload     `json:"paymentPayload"`
	PaymentRequirements Requirements `json:"paymentRequirements"`
}

// Client talks to an x402 facilitator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a facilitator client. A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Verify asks the facilitator whether payload satisfies req.
func (c *Client) Verify(ctx context.Context, payload *Payload, req Requirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "/verify", payload, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle asks the facilitator to execute a verified payment.
func (c *Client) Settle(ctx context.Context, payload *Payload, req Requirements) (*SettleResponse, error) {
	var out SettleResponse
	if err := c.post(ctx, "/settle", payload, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload *Payload, req Requirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	})
	if err != nil {
		return fmt.Errorf("encode facilitator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFacilitatorUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFacilitatorUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrFacilitatorUnavailable, path, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned status %d", ErrFacilitatorUnavailable, path, resp.StatusCode)
	}
	// 4xx responses still carry a verdict body
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s response (status %d): %v", ErrFacilitatorUnavailable, path, resp.StatusCode, err)
	}
	return nil
}
