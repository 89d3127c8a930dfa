// Package client implements a reference x402 buyer: a signer that produces
// EIP-3009 transfer authorizations and an http.RoundTripper that drives the
// GET → 402 → sign → retry loop transparently for any http.Client.
package client

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/evm"
)

var (
	ErrInvalidKey      = errors.New("client: invalid private key")
	ErrInvalidKeystore = errors.New("client: invalid keystore file")
	ErrInvalidMnemonic = errors.New("client: invalid mnemonic")
	ErrNoMatchingAsset = errors.New("client: no configured asset matches the requirement")
	ErrAmountExceeded  = errors.New("client: requirement amount exceeds signer's configured maximum")
)

// AssetConfig is one asset the Signer is willing to pay with, plus the
// EIP-712 domain values needed to sign a transfer on it. Priority breaks ties
// when more than one configured asset matches a requirement; lower wins.
type AssetConfig struct {
	Address       string
	DomainName    string
	DomainVersion string
	Priority      int
}

// Signer holds a buyer's private key and signs EIP-3009 transferWithAuthorization
// messages against whichever configured asset a payment requirement names.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    x402.NetworkTag
	chainID    *big.Int
	assets     []AssetConfig
	maxAmount  *big.Int
}

// Option configures a Signer.
type Option func(*Signer) error

// New builds a Signer from the given options.
func New(network x402.NetworkTag, opts ...Option) (*Signer, error) {
	chainID, err := network.ChainID()
	if err != nil {
		return nil, err
	}

	s := &Signer{network: network, chainID: big.NewInt(chainID)}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, ErrInvalidKey
	}
	if len(s.assets) == 0 {
		return nil, fmt.Errorf("client: signer configured with no assets")
	}
	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the signing key from a hex string.
func WithPrivateKey(hexKey string) Option {
	return func(s *Signer) error {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		s.privateKey = privateKey
		return nil
	}
}

// WithKeystore loads a private key from an encrypted go-ethereum keystore file.
func WithKeystore(keystoreJSON []byte, password string) Option {
	return func(s *Signer) error {
		key, err := keystore.DecryptKey(keystoreJSON, password)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
		}
		s.privateKey = key.PrivateKey
		return nil
	}
}

// WithMnemonic derives a signing key from a BIP39 mnemonic following the
// standard Ethereum BIP44 path m/44'/60'/0'/0/{accountIndex}.
func WithMnemonic(mnemonic string, accountIndex uint32) Option {
	return func(s *Signer) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return ErrInvalidMnemonic
		}
		seed := bip39.NewSeed(mnemonic, "")
		privateKey, err := deriveEthereumKey(seed, accountIndex)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
		}
		s.privateKey = privateKey
		return nil
	}
}

// deriveEthereumKey walks BIP44 path m/44'/60'/0'/0/{index} from seed.
func deriveEthereumKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	for _, step := range []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild + 0,
		0,
		index,
	} {
		key, err = key.NewChildKey(step)
		if err != nil {
			return nil, err
		}
	}
	return crypto.ToECDSA(key.Key)
}

// WithAsset registers an asset the signer may pay with.
func WithAsset(address, domainName, domainVersion string) Option {
	return WithAssetPriority(address, domainName, domainVersion, 0)
}

// WithAssetPriority registers an asset with an explicit selection priority.
func WithAssetPriority(address, domainName, domainVersion string, priority int) Option {
	return func(s *Signer) error {
		s.assets = append(s.assets, AssetConfig{
			Address: address, DomainName: domainName, DomainVersion: domainVersion, Priority: priority,
		})
		return nil
	}
}

// WithMaxAmount caps the smallest-unit amount the signer will authorize in a
// single payment.
func WithMaxAmount(amount string) Option {
	return func(s *Signer) error {
		maxAmount, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return fmt.Errorf("client: invalid max amount %q", amount)
		}
		s.maxAmount = maxAmount
		return nil
	}
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address { return s.address }

// Sign builds and signs a transferWithAuthorization payload for requirement,
// choosing whichever configured asset matches it (by address) with the
// lowest priority value.
func (s *Signer) Sign(requirement x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	asset, err := s.pickAsset(requirement.Asset)
	if err != nil {
		return nil, err
	}

	value, err := x402.AmountToBigInt(requirement.Amount, 0)
	if err != nil {
		value, _ = new(big.Int).SetString(requirement.Amount, 10)
	}
	if s.maxAmount != nil && value.Cmp(s.maxAmount) > 0 {
		return nil, ErrAmountExceeded
	}

	nonceHex, err := evm.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("client: failed to generate nonce: %w", err)
	}

	timeout := requirement.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 3600
	}
	auth := x402.Authorization{
		From:        s.address.Hex(),
		To:          requirement.PayTo,
		Value:       value.String(),
		ValidAfter:  "0",
		ValidBefore: fmt.Sprintf("%d", time.Now().Unix()+int64(timeout)),
		Nonce:       nonceHex,
	}

	digest, err := evm.Digest(evm.Domain{
		Name:              asset.DomainName,
		Version:           asset.DomainVersion,
		ChainID:           s.chainID,
		VerifyingContract: common.HexToAddress(requirement.Asset),
	}, auth)
	if err != nil {
		return nil, fmt.Errorf("client: failed to build digest: %w", err)
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("client: failed to sign: %w", err)
	}
	signature[64] += 27

	return &x402.PaymentPayload{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     string(s.network),
		Payload: x402.EVMPayload{
			Signature:     "0x" + hex.EncodeToString(signature),
			Authorization: auth,
		},
	}, nil
}

func (s *Signer) pickAsset(address string) (AssetConfig, error) {
	var best AssetConfig
	found := false
	for _, a := range s.assets {
		if !x402.SameAddress(a.Address, address) {
			continue
		}
		if !found || a.Priority < best.Priority {
			best, found = a, true
		}
	}
	if !found {
		return AssetConfig{}, ErrNoMatchingAsset
	}
	return best, nil
}
