package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/encoding"
)

func TestTransportPaysOn402(t *testing.T) {
	requirements := []x402.PaymentRequirements{{
		Scheme:  x402.SchemeExact,
		Network: "eip155:84532",
		Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:   "0x2222222222222222222222222222222222222222",
		Amount:  "1000000",
		Extra:   x402.Extra{AssetTransferMethod: "eip3009"},
	}}
	encodedRequirements, err := encoding.EncodeRequirements(requirements)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sig := r.Header.Get("Payment-Signature"); sig != "" {
			sawSignature = true
			w.Header().Set("Payment-Response", mustEncodeSettlement(t))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("paid resource"))
			return
		}
		w.Header().Set("Payment-Required", encodedRequirements)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	s := testSigner(t)
	transport := New402Transport(s, nil)
	httpClient := &http.Client{Transport: transport}

	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if !sawSignature {
		t.Fatal("expected retry to carry a Payment-Signature header")
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if transport.LastSettlement == nil || !transport.LastSettlement.Success {
		t.Error("expected a successful settlement to be captured")
	}
}

func TestTransportPassesThroughNon402(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("free resource"))
	}))
	defer server.Close()

	s := testSigner(t)
	httpClient := &http.Client{Transport: New402Transport(s, nil)}

	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestTransportFailsWhenNoAssetMatches(t *testing.T) {
	requirements := []x402.PaymentRequirements{{
		Scheme:  x402.SchemeExact,
		Network: "eip155:84532",
		Asset:   "0x9999999999999999999999999999999999999999",
		PayTo:   "0x2222222222222222222222222222222222222222",
		Amount:  "1000000",
		Extra:   x402.Extra{AssetTransferMethod: "eip3009"},
	}}
	encodedRequirements, _ := encoding.EncodeRequirements(requirements)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Payment-Required", encodedRequirements)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	s := testSigner(t)
	httpClient := &http.Client{Transport: New402Transport(s, nil)}

	_, err := httpClient.Get(server.URL)
	if err == nil {
		t.Fatal("expected an error when no configured asset matches")
	}
}

func mustEncodeSettlement(t *testing.T) string {
	t.Helper()
	encoded, err := encoding.EncodeSettlement(x402.SettlementResult{
		Success:     true,
		Transaction: "0xabc",
		X402Version: x402.Version,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return encoded
}
