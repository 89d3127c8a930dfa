package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/internal/loopbacktoken"
	"github.com/x402gate/seller/internal/retry"
)

// FacilitatorClient talks to one of a facilitator's verify/settle endpoint
// pairs over loopback HTTP, authenticating with a shared secret wrapped as a
// short-lived signed token minted fresh for every call.
type FacilitatorClient struct {
	BaseURL       string
	SharedSecret  string
	HTTPClient    *http.Client
	VerifyTimeout time.Duration
	SettleTimeout time.Duration
}

// NewFacilitatorClient builds a client with the timeouts this module uses
// for loopback calls (30s each, per the facilitator's own endpoint timeouts).
func NewFacilitatorClient(baseURL, sharedSecret string) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:       baseURL,
		SharedSecret:  sharedSecret,
		HTTPClient:    &http.Client{},
		VerifyTimeout: 30 * time.Second,
		SettleTimeout: 30 * time.Second,
	}
}

type facilitatorRequest struct {
	Payload      x402.PaymentPayload      `json:"payload"`
	Requirements x402.PaymentRequirements `json:"requirements"`
}

// endpointForMode returns the verify/settle path pair the mode's
// settlement discriminator selects.
func endpointForMode(requirements x402.PaymentRequirements) (verifyPath, settlePath string) {
	if requirements.Extra.SettlementMode == x402.SettlementModeTransfer {
		return "/x402/verify-transfer", "/x402/settle-transfer"
	}
	return "/x402/verify", "/x402/settle"
}

// transientError reports every error from a facilitator call as retryable:
// an unreachable port, a 5xx status, or an undecodable body. A structured
// {valid:false} verdict decodes without error and so is never retried.
func transientError(err error) bool {
	return err != nil
}

// Verify posts payload/requirements to the facilitator's verify endpoint.
// Connection failures are retried with backoff; a 200 response with
// {valid:false} is returned as-is, never retried.
func (c *FacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResult, error) {
	verifyPath, _ := endpointForMode(requirements)

	result, err := retry.WithSimpleRetry(ctx, func() (x402.VerifyResult, error) {
		return postFacilitator(ctx, c, verifyPath, c.VerifyTimeout, payload, requirements, func(body []byte) (x402.VerifyResult, error) {
			var out x402.VerifyResult
			return out, json.Unmarshal(body, &out)
		})
	}, transientError)
	if err != nil {
		return x402.VerifyResult{}, err
	}
	return result, nil
}

// Settle posts payload/requirements to the facilitator's settle endpoint.
// Per the gate's contract (§5), a transport failure here is NOT retried —
// a duplicate settle attempt risks a wasted, reverting transaction.
func (c *FacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettlementResult, error) {
	_, settlePath := endpointForMode(requirements)

	return postFacilitator(ctx, c, settlePath, c.SettleTimeout, payload, requirements, func(body []byte) (x402.SettlementResult, error) {
		var out x402.SettlementResult
		return out, json.Unmarshal(body, &out)
	})
}

func postFacilitator[T any](ctx context.Context, c *FacilitatorClient, path string, timeout time.Duration, payload x402.PaymentPayload, requirements x402.PaymentRequirements, decode func([]byte) (T, error)) (T, error) {
	var zero T

	body, err := json.Marshal(facilitatorRequest{Payload: payload, Requirements: requirements})
	if err != nil {
		return zero, fmt.Errorf("gate: failed to marshal facilitator request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("gate: failed to build facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, err := loopbacktoken.Sign(c.SharedSecret, loopbacktoken.DefaultTTL, "gate-loopback"); err == nil {
		req.Header.Set("X-Loopback-Token", token)
	} else {
		req.Header.Set("X-API-Key", c.SharedSecret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("gate: facilitator %s unreachable: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("gate: failed to read facilitator response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return zero, fmt.Errorf("gate: facilitator %s returned status %d", path, resp.StatusCode)
	}

	out, err := decode(respBody)
	if err != nil {
		return zero, fmt.Errorf("gate: failed to decode facilitator response: %w", err)
	}
	return out, nil
}
