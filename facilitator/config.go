package facilitator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402gate/seller"
)

// Config is the boot-time configuration for a Service. It is immutable once
// the Service is constructed; there is no live-reload path.
type Config struct {
	// ListenAddr must be loopback-only (127.0.0.1:<port>); the service is
	// never exposed to the internet directly.
	ListenAddr string

	// Network is the single eip155 network this facilitator settles on.
	Network x402.NetworkTag
	ChainID *big.Int

	RPCURL        string
	RelayerKeyHex string

	// Assets is the boot-time registry of supported assets, keyed by address.
	Assets *x402.AssetRegistry

	// EscrowAdapter is the contract settlePayment is called on in escrow
	// mode. Zero address means escrow mode is unconfigured; verify/settle
	// calls that require escrow mode fail closed.
	EscrowAdapter common.Address

	// SharedSecret authenticates every endpoint but /health, compared in
	// constant time against X-API-Key / X-Facilitator-Key.
	SharedSecret string

	// DemoBuyerKeyHex, if set, enables /x402/demo-ai.
	DemoBuyerKeyHex string
}

func (c Config) escrowConfigured() bool {
	return c.EscrowAdapter != (common.Address{})
}
