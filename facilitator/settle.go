package facilitator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/chain"
)

// chainWriter is the subset of *chain.Client the Settler needs to broadcast a
// settlement. Narrowing to an interface here lets tests substitute a fake
// instead of a live RPC endpoint; *chain.Client satisfies it unchanged.
type chainWriter interface {
	SendTransferWithAuthorization(ctx context.Context, asset common.Address, from, to common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) (*chain.Receipt, error)
	SendSettlePayment(ctx context.Context, escrowAdapter, asset common.Address, orderID string, from common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) (*chain.Receipt, error)
}

// Settler broadcasts a settlement transaction for an authorization that
// verify has already approved. It never re-runs verify's checks — by the
// time settle is called the caller is trusted to have just verified.
type Settler struct {
	cfg   Config
	chain chainWriter
}

// NewSettler builds a Settler bound to chain and cfg.
func NewSettler(c chainWriter, cfg Config) *Settler {
	return &Settler{cfg: cfg, chain: c}
}

func settleFailure(reason string) x402.SettlementResult {
	return x402.SettlementResult{Success: false, ErrorReason: reason, X402Version: x402.Version}
}

// Settle broadcasts the transfer (mode transfer) or settlePayment (mode
// escrow) call and waits for confirmation.
func (s *Settler) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements, m mode) (x402.SettlementResult, error) {
	auth := payload.Payload.Authorization

	sigBytes, err := decodeSignature(payload.Payload.Signature)
	if err != nil {
		return settleFailure("invalid signature format"), nil
	}
	r, sComponent, v, err := splitSignature(sigBytes)
	if err != nil {
		return settleFailure("invalid signature format"), nil
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return settleFailure("invalid authorization value"), nil
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return settleFailure("invalid validAfter"), nil
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return settleFailure("invalid validBefore"), nil
	}

	from := common.HexToAddress(auth.From)
	to := common.HexToAddress(auth.To)
	asset := common.HexToAddress(requirements.Asset)
	nonce := common.HexToHash(auth.Nonce)

	var receipt *chain.Receipt
	switch m {
	case modeTransfer:
		receipt, err = s.chain.SendTransferWithAuthorization(ctx, asset, from, to, value, validAfter, validBefore, nonce, v, r, sComponent)
	case modeEscrow:
		if !s.cfg.escrowConfigured() {
			return settleFailure("escrow adapter not configured"), nil
		}
		receipt, err = s.chain.SendSettlePayment(ctx, s.cfg.EscrowAdapter, asset, requirements.Extra.OrderID, from, value, validAfter, validBefore, nonce, v, r, sComponent)
	default:
		return settleFailure("unknown settlement mode"), nil
	}
	if err != nil {
		return settleFailure(fmt.Sprintf("settlement transaction failed: %v", err)), nil
	}
	if !receipt.Success {
		return x402.SettlementResult{
			Success:     false,
			ErrorReason: "transaction reverted",
			Transaction: receipt.TxHash,
			X402Version: x402.Version,
		}, nil
	}

	return x402.SettlementResult{
		Success:     true,
		Transaction: receipt.TxHash,
		Payer:       auth.From,
		Scheme:      payload.Scheme,
		Network:     payload.Network,
		X402Version: x402.Version,
	}, nil
}
