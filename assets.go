package x402

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AssetDescriptor is the static, boot-time configuration for one supported
// asset. The EIP-712 domain name/version it carries are the ones used for
// signature verification — never the client-supplied requirements.extra
// fields, which are advisory only (see SPEC_FULL.md §9 Open Questions).
type AssetDescriptor struct {
	Address       string
	Symbol        string
	Decimals      int
	DomainName    string
	DomainVersion string
	EIP3009       bool
}

// AssetRegistry is a process-wide, read-only-after-init table of supported
// assets keyed by checksummed address.
type AssetRegistry struct {
	byAddress map[common.Address]AssetDescriptor
}

// NewAssetRegistry builds a registry from the given descriptors. Addresses
// are normalized to go-ethereum's checksum form so lookups are
// case-insensitive with respect to the input but internally exact.
func NewAssetRegistry(assets ...AssetDescriptor) (*AssetRegistry, error) {
	reg := &AssetRegistry{byAddress: make(map[common.Address]AssetDescriptor, len(assets))}
	for _, a := range assets {
		if err := ValidateAddress(a.Address); err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.Symbol, err)
		}
		reg.byAddress[common.HexToAddress(a.Address)] = a
	}
	return reg, nil
}

// Lookup returns the descriptor for address, failing closed (ErrUnsupportedAsset)
// if the address is not present in the registry. This is the mechanism that
// resolves SPEC_FULL.md's Open Question: verification never falls back to a
// client-supplied domain name/version for an asset it doesn't recognize.
func (r *AssetRegistry) Lookup(address string) (AssetDescriptor, error) {
	if !common.IsHexAddress(address) {
		return AssetDescriptor{}, fmt.Errorf("%w: %q", ErrBadAddressFormat, address)
	}
	desc, ok := r.byAddress[common.HexToAddress(address)]
	if !ok {
		return AssetDescriptor{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, address)
	}
	return desc, nil
}

// Supported returns all registered assets, used by the facilitator's health
// endpoint (SPEC_FULL.md §4.2).
func (r *AssetRegistry) Supported() []AssetDescriptor {
	out := make([]AssetDescriptor, 0, len(r.byAddress))
	for _, d := range r.byAddress {
		out = append(out, d)
	}
	return out
}

// SameAddress reports whether two hex address strings refer to the same
// account, independent of checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
