// Package x402 implements the seller side of the x402 v2 HTTP micro-payment
// protocol: a client requesting a paid resource is refused with a 402 response
// describing what must be paid, signs a gasless EIP-3009 transfer authorization,
// and retries; the server verifies the signature off-chain, settles on-chain via
// a relayer, and returns the resource with a payment receipt attached.
package x402

import "math/big"

// Version is the x402 protocol version this module speaks. Payloads
// carrying any other value are rejected by verify.
const Version = 2

// SchemeExact is the only payment scheme this module supports.
const SchemeExact = "exact"

// SettlementMode selects how a verified authorization is settled on-chain.
type SettlementMode string

const (
	// SettlementModeTransfer calls transferWithAuthorization directly on the
	// asset contract, paying the requirement's PayTo address.
	SettlementModeTransfer SettlementMode = "transfer"

	// SettlementModeEscrow calls settlePayment on a configured escrow adapter,
	// which custodies funds against an orderId before release.
	SettlementModeEscrow SettlementMode = "escrow"
)

// Extra carries the scheme-specific fields the spec makes load-bearing for
// verification and settlement, alongside a residual free-form map for
// advisory/display-only fields a client or requirement author may attach.
// Name and Version are advisory only when read from client-supplied payloads:
// verification always resolves the EIP-712 domain from the AssetRegistry, never
// from these fields (see AssetRegistry.Lookup).
type Extra struct {
	SettlementMode      SettlementMode `json:"settlementMode,omitempty"`
	AssetTransferMethod string         `json:"assetTransferMethod,omitempty"`
	Name                string         `json:"name,omitempty"`
	Version             string         `json:"version,omitempty"`
	OrderID             string         `json:"orderId,omitempty"`
	Description         string         `json:"description,omitempty"`
	Other               map[string]any `json:"-"`
}

// PaymentRequirements describes one way a client may pay for a resource.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	Amount            string `json:"amount"`
	Resource          string `json:"resource,omitempty"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`
	Extra             Extra  `json:"extra"`
}

// Authorization is the EIP-3009 transferWithAuthorization message a buyer signs.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// EVMPayload is the scheme-specific payload carried inside a PaymentPayload
// for the "exact" scheme on an EVM chain.
type EVMPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is what a client base64-JSON-encodes into the
// PAYMENT-SIGNATURE request header.
type PaymentPayload struct {
	X402Version int        `json:"x402Version"`
	Scheme      string     `json:"scheme"`
	Network     string     `json:"network"`
	Payload     EVMPayload `json:"payload"`
}

// SettlementResult is what a facilitator returns after a settle call, and what
// the gate base64-JSON-encodes into the PAYMENT-RESPONSE header.
type SettlementResult struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Scheme      string `json:"scheme,omitempty"`
	Network     string `json:"network,omitempty"`
	X402Version int    `json:"x402Version"`
}

// VerifyResult is what a facilitator returns from a verify call.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Payer  string `json:"payer,omitempty"`
}

// AmountToBigInt converts a decimal amount string to *big.Int in the asset's
// smallest unit. For example, "1.5" with 6 decimals becomes 1500000.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	value := new(big.Float)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}

	multiplier := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, multiplier)

	result, accuracy := value.Int(nil)
	if accuracy != big.Exact {
		return nil, ErrInvalidAmount
	}
	return result, nil
}

// BigIntToAmount converts a *big.Int in smallest-unit terms to a decimal string.
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	f := new(big.Float).SetInt(value)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)
	return f.Text('f', decimals)
}

// FindMatchingRequirement returns the first requirement whose scheme and
// network match the payload.
func FindMatchingRequirement(payment PaymentPayload, requirements []PaymentRequirements) (*PaymentRequirements, error) {
	for i := range requirements {
		if requirements[i].Scheme == payment.Scheme && requirements[i].Network == payment.Network {
			return &requirements[i], nil
		}
	}
	return nil, ErrUnsupportedScheme
}
