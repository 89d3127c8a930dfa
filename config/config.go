// Package config loads this module's boot-time configuration from the
// environment, following the teacher's load-then-validate shape.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/x402gate/seller"
)

// Config is the full boot-time configuration for either the facilitator or
// the demo seller binary. Not every field is required by every binary;
// Validate checks only the set the facilitator service needs.
type Config struct {
	// RelayerPrivateKeyHex signs and broadcasts settlement transactions.
	RelayerPrivateKeyHex string
	// FacilitatorSharedSecret authenticates calls to the facilitator's HTTP API.
	FacilitatorSharedSecret string
	// FacilitatorPort is the loopback port the facilitator binds.
	FacilitatorPort int
	// EscrowAdapterAddress is optional; empty means escrow mode is unconfigured.
	EscrowAdapterAddress string

	// Treasury receives direct-transfer-mode payments.
	Treasury string
	// PriceAtomic is the integer, asset-smallest-unit price of the protected resource.
	PriceAtomic string

	// DemoBuyerKeyHex, if set, enables the facilitator's /x402/demo-ai endpoint.
	DemoBuyerKeyHex string
	// SellerURL is the demo seller endpoint the CLI/demo-ai flow targets.
	SellerURL string

	RPCURL        string
	Network       x402.NetworkTag
	AssetAddress  string
	AssetSymbol   string
	AssetDecimals int
	AssetDomain   string
	AssetVersion  string
	AssetEIP3009  bool

	PaymentLogPath string
}

// Load reads .env (ignoring a missing file, per the teacher's godotenv.Load
// fallback) and then every variable below from the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, reading configuration from the environment")
	}

	port, err := strconv.Atoi(getenv("X402_FACILITATOR_PORT", "3849"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid X402_FACILITATOR_PORT: %w", err)
	}
	decimals, err := strconv.Atoi(getenv("X402_ASSET_DECIMALS", "6"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid X402_ASSET_DECIMALS: %w", err)
	}
	eip3009, err := strconv.ParseBool(getenv("X402_ASSET_EIP3009", "true"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid X402_ASSET_EIP3009: %w", err)
	}

	cfg := &Config{
		RelayerPrivateKeyHex:     os.Getenv("ARENA_SIGNER_PRIVATE_KEY"),
		FacilitatorSharedSecret:  os.Getenv("X402_FACILITATOR_KEY"),
		FacilitatorPort:          port,
		EscrowAdapterAddress:     os.Getenv("X402_ADAPTER_ADDRESS"),
		Treasury:                 os.Getenv("X402_API_TREASURY"),
		PriceAtomic:              os.Getenv("X402_API_PRICE"),
		DemoBuyerKeyHex:          os.Getenv("DEMO_BUYER_KEY"),
		SellerURL:                os.Getenv("API_URL"),
		RPCURL:                   os.Getenv("X402_RPC_URL"),
		Network:                  x402.NetworkTag(getenv("X402_NETWORK", "eip155:84532")),
		AssetAddress:             os.Getenv("X402_ASSET_ADDRESS"),
		AssetSymbol:              getenv("X402_ASSET_SYMBOL", "USDC"),
		AssetDecimals:            decimals,
		AssetDomain:              getenv("X402_ASSET_DOMAIN_NAME", "USD Coin"),
		AssetVersion:             getenv("X402_ASSET_DOMAIN_VERSION", "2"),
		AssetEIP3009:             eip3009,
		PaymentLogPath:           getenv("X402_PAYMENT_LOG_PATH", "./payments.sqlite"),
	}
	return cfg, nil
}

// Validate checks the variables required to run the facilitator service.
// SRV_SERVICE_UNAVAILABLE is the error code a caller should surface for any
// failure here, per §6's table of machine-readable error codes.
func (c *Config) Validate() error {
	if c.RelayerPrivateKeyHex == "" {
		return x402.ErrServiceUnavailable.WithReason("ARENA_SIGNER_PRIVATE_KEY is required")
	}
	if c.FacilitatorSharedSecret == "" {
		return x402.ErrServiceUnavailable.WithReason("X402_FACILITATOR_KEY is required")
	}
	if c.RPCURL == "" {
		return x402.ErrServiceUnavailable.WithReason("X402_RPC_URL is required")
	}
	if c.AssetAddress == "" {
		return x402.ErrServiceUnavailable.WithReason("X402_ASSET_ADDRESS is required")
	}
	if err := x402.ValidateAddress(c.AssetAddress); err != nil {
		return x402.ErrServiceUnavailable.WithReason("X402_ASSET_ADDRESS is malformed").WithCause(err)
	}
	if c.Treasury == "" {
		return x402.ErrServiceUnavailable.WithReason("X402_API_TREASURY is required")
	}
	if _, err := c.Network.ChainID(); err != nil {
		return x402.ErrServiceUnavailable.WithReason("X402_NETWORK is malformed").WithCause(err)
	}
	return nil
}

// ChainID returns the configured network's numeric chain id as a *big.Int,
// for direct use with chain.Dial.
func (c *Config) ChainID() (*big.Int, error) {
	id, err := c.Network.ChainID()
	if err != nil {
		return nil, err
	}
	return big.NewInt(id), nil
}

// EscrowAdapter returns the configured escrow adapter address, or the zero
// address if escrow mode is unconfigured.
func (c *Config) EscrowAdapter() common.Address {
	if c.EscrowAdapterAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.EscrowAdapterAddress)
}

// AssetDescriptor builds this config's single configured asset as a
// x402.AssetDescriptor, ready for x402.NewAssetRegistry.
func (c *Config) AssetDescriptor() x402.AssetDescriptor {
	return x402.AssetDescriptor{
		Address:       c.AssetAddress,
		Symbol:        c.AssetSymbol,
		Decimals:      c.AssetDecimals,
		DomainName:    c.AssetDomain,
		DomainVersion: c.AssetVersion,
		EIP3009:       c.AssetEIP3009,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
