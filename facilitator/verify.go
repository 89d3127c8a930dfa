package facilitator

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/evm"
)

// chainReader is the subset of *chain.Client the Verifier needs for its two
// chain-dependent checks (balance, escrow static-call simulation). Narrowing
// to an interface here lets tests substitute a fake instead of a live RPC
// endpoint; *chain.Client satisfies it without any change on that side.
type chainReader interface {
	BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error)
	StaticCallSettlePayment(ctx context.Context, escrowAdapter, asset common.Address, orderID string, from common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) error
}

// Verifier runs the off-chain checks that decide whether a signed
// authorization may be settled. It never broadcasts a transaction.
type Verifier struct {
	cfg   Config
	chain chainReader
}

// NewVerifier builds a Verifier bound to chain and cfg.
func NewVerifier(c chainReader, cfg Config) *Verifier {
	return &Verifier{cfg: cfg, chain: c}
}

func invalid(reason string) (x402.VerifyResult, error) {
	return x402.VerifyResult{Valid: false, Reason: reason}, nil
}

// Verify runs the eleven ordered checks for mode m, failing on the first
// that does not hold. It returns (result, nil) for every failed check; the
// only error it returns is a failed on-chain balance read.
func (v *Verifier) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements, m mode) (x402.VerifyResult, error) {
	auth := payload.Payload.Authorization

	// 1. protocol version
	if payload.X402Version != x402.Version {
		return invalid("unsupported x402 version")
	}
	// 2. scheme
	if payload.Scheme != x402.SchemeExact {
		return invalid("unsupported scheme")
	}
	// 3. network
	if payload.Network != string(v.cfg.Network) {
		return invalid("wrong network")
	}
	// 4. asset must be registered and advertise eip3009
	asset, err := v.cfg.Assets.Lookup(requirements.Asset)
	if err != nil {
		return invalid("unsupported asset")
	}
	if !asset.EIP3009 {
		return invalid("asset does not support eip3009")
	}
	// 5. mode discriminator
	if !matchesMode(requirements, m) {
		return invalid("settlement mode mismatch")
	}
	if m == modeEscrow && !v.cfg.escrowConfigured() {
		return invalid("escrow adapter not configured")
	}

	assetAddr := common.HexToAddress(requirements.Asset)
	from := common.HexToAddress(auth.From)

	// 6. EIP-712 recovery
	digest, err := evm.Digest(evm.Domain{
		Name:              asset.DomainName,
		Version:           asset.DomainVersion,
		ChainID:           v.cfg.ChainID,
		VerifyingContract: assetAddr,
	}, auth)
	if err != nil {
		return invalid(fmt.Sprintf("invalid authorization: %v", err))
	}
	sigBytes, err := decodeSignature(payload.Payload.Signature)
	if err != nil {
		return invalid("invalid signature format")
	}
	ok, err := evm.VerifySignature(digest, sigBytes, from)
	if err != nil || !ok {
		return invalid("invalid signature")
	}

	// 7. destination
	switch m {
	case modeTransfer:
		if !x402.SameAddress(auth.To, requirements.PayTo) {
			return invalid(x402.ErrRecipientMismatch.Error())
		}
	case modeEscrow:
		if !x402.SameAddress(auth.To, v.cfg.EscrowAdapter.Hex()) {
			return invalid(x402.ErrRecipientMismatch.Error())
		}
	}

	// 8. balance
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return invalid("invalid authorization value")
	}
	balance, err := v.chain.BalanceOf(ctx, assetAddr, from)
	if err != nil {
		return x402.VerifyResult{}, fmt.Errorf("facilitator: balance check: %w", err)
	}
	if balance.Cmp(value) < 0 {
		return invalid("insufficient balance")
	}

	// 9. time window
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return invalid("invalid validAfter")
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return invalid("invalid validBefore")
	}
	now := big.NewInt(time.Now().Unix())
	if now.Cmp(validAfter) < 0 || now.Cmp(validBefore) > 0 {
		return invalid(x402.ErrExpiredAuthorization.Error())
	}

	// 10. amount
	required, err := x402.AmountToBigInt(requirements.Amount, 0)
	if err != nil {
		required, ok = new(big.Int).SetString(requirements.Amount, 10)
		if !ok {
			return invalid("invalid required amount")
		}
	}
	if value.Cmp(required) < 0 {
		return invalid(x402.ErrInsufficientAmount.Error())
	}

	// 11. escrow-only static-call simulation
	if m == modeEscrow {
		r, s, vByte, err := splitSignature(sigBytes)
		if err != nil {
			return invalid("invalid signature format")
		}
		if err := v.chain.StaticCallSettlePayment(ctx, v.cfg.EscrowAdapter, assetAddr, requirements.Extra.OrderID, from, value, validAfter, validBefore, common.HexToHash(auth.Nonce), vByte, r, s); err != nil {
			return invalid(fmt.Sprintf("escrow settlement would revert: %v", err))
		}
	}

	return x402.VerifyResult{Valid: true, Payer: auth.From}, nil
}

// decodeSignature parses a 0x-prefixed 65-byte hex signature.
func decodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")
	if len(sig) != 130 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig)/2)
	}
	out := make([]byte, 65)
	for i := 0; i < 65; i++ {
		b, err := strconv.ParseUint(sig[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

// splitSignature splits a 65-byte (r, s, v) signature into the components
// settlePayment's ABI expects.
func splitSignature(sig []byte) (r, s [32]byte, v uint8, err error) {
	if len(sig) != 65 {
		return r, s, 0, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return r, s, v, nil
}
