package facilitator

import "github.com/x402gate/seller"

// mode is the settlement mode a request is being made under; matchesMode
// below checks that the requirement's mode discriminator agrees with it —
// the check verify step 5 runs before anything cryptographic. The two modes
// are a single tagged value switched on inside one Verify/Settle pair
// rather than two parallel handler families, so the eleven-step verify
// algorithm is not duplicated per mode.
type mode = x402.SettlementMode

const (
	modeTransfer = x402.SettlementModeTransfer
	modeEscrow   = x402.SettlementModeEscrow
)

// matchesMode reports whether requirements advertises the discriminator the
// given mode expects.
func matchesMode(requirements x402.PaymentRequirements, m mode) bool {
	switch m {
	case modeTransfer:
		return requirements.Extra.SettlementMode == modeTransfer
	case modeEscrow:
		return requirements.Extra.AssetTransferMethod == "eip3009"
	default:
		return false
	}
}
