package x402

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadAddressFormat is the sentinel wrapped by ValidateAddress; kept
// separate from the HTTP-facing ErrInvalidFormat (*Error) so internal
// validation can participate in errors.Is chains without constructing an
// HTTP-status-bearing value.
var ErrBadAddressFormat = errors.New("invalid address format")

// NetworkTag is the x402 network identifier format: "eip155:<chainId>".
type NetworkTag string

// ChainID extracts the numeric chain id from a network tag of the form
// "eip155:<chainId>". Returns an error if the tag is not in that form.
func (n NetworkTag) ChainID() (int64, error) {
	parts := strings.SplitN(string(n), ":", 2)
	if len(parts) != 2 || parts[0] != "eip155" {
		return 0, fmt.Errorf("%w: %q is not an eip155 network tag", ErrUnsupportedNetwork, n)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q has a non-numeric chain id", ErrUnsupportedNetwork, n)
	}
	return id, nil
}

// NewNetworkTag formats an eip155 network tag for the given chain id.
func NewNetworkTag(chainID int64) NetworkTag {
	return NetworkTag(fmt.Sprintf("eip155:%d", chainID))
}

// ValidateAddress checks that address is a well-formed 0x-prefixed 20-byte hex
// EVM address. It does not checksum-validate; go-ethereum's common.Address
// normalizes checksumming elsewhere.
func ValidateAddress(address string) error {
	if len(address) != 42 || (address[0:2] != "0x" && address[0:2] != "0X") {
		return fmt.Errorf("%w: %q is not a 0x-prefixed 20-byte address", ErrBadAddressFormat, address)
	}
	for i := 2; i < len(address); i++ {
		c := address[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return fmt.Errorf("%w: %q is not a 0x-prefixed 20-byte address", ErrBadAddressFormat, address)
		}
	}
	return nil
}
