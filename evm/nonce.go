package evm

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// NewNonce generates a cryptographically secure 32-byte EIP-3009 nonce,
// returned in 0x-prefixed hex form.
func NewNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return common.BytesToHash(nonce[:]).Hex(), nil
}
