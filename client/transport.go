package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/encoding"
)

// Transport is an http.RoundTripper that transparently pays for 402
// responses: it performs the original request, and on a 402 it parses the
// PAYMENT-REQUIRED header, signs a matching requirement, and retries once
// with a PAYMENT-SIGNATURE header attached. Non-402 responses (including the
// retry's own response) pass through untouched.
type Transport struct {
	Signer *Signer
	Base   http.RoundTripper

	// LastSettlement is set after a successful paid retry that carried a
	// PAYMENT-RESPONSE header, for callers that want to inspect the receipt.
	LastSettlement *x402.SettlementResult
}

// New402Transport wraps base (http.DefaultTransport if nil) with signer.
func New402Transport(signer *Signer, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Signer: signer, Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("client: failed to buffer request body: %w", err)
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	requirementsHeader := resp.Header.Get("Payment-Required")
	if requirementsHeader == "" {
		return resp, nil
	}
	resp.Body.Close()

	accepts, err := encoding.DecodeRequirements(requirementsHeader)
	if err != nil {
		return nil, fmt.Errorf("client: failed to decode PAYMENT-REQUIRED header: %w", err)
	}

	requirement, err := t.Signer.SelectRequirement(accepts)
	if err != nil {
		return nil, fmt.Errorf("client: no acceptable payment requirement: %w", err)
	}

	payload, err := t.Signer.Sign(*requirement)
	if err != nil {
		return nil, fmt.Errorf("client: failed to sign payment: %w", err)
	}
	encoded, err := encoding.EncodePayment(*payload)
	if err != nil {
		return nil, fmt.Errorf("client: failed to encode payment: %w", err)
	}

	retryReq := req.Clone(req.Context())
	if bodyBytes != nil {
		retryReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	retryReq.Header.Set("Payment-Signature", encoded)

	retryResp, err := t.Base.RoundTrip(retryReq)
	if err != nil {
		return nil, err
	}

	if settlementHeader := retryResp.Header.Get("Payment-Response"); settlementHeader != "" {
		if settlement, err := encoding.DecodeSettlement(settlementHeader); err == nil {
			t.LastSettlement = &settlement
		}
	}

	return retryResp, nil
}
