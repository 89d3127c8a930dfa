package evm

import "testing"

func TestNewNonceUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		nonce, err := NewNonce()
		if err != nil {
			t.Fatalf("NewNonce: %v", err)
		}
		if len(nonce) != 66 {
			t.Errorf("expected 32-byte hex nonce (66 chars with 0x prefix), got %d: %s", len(nonce), nonce)
		}
		if seen[nonce] {
			t.Error("duplicate nonce generated")
		}
		seen[nonce] = true
	}
}
