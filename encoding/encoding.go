// Package encoding provides base64/JSON codecs for the values carried in
// x402 v2 HTTP headers: PAYMENT-REQUIRED, PAYMENT-SIGNATURE, and
// PAYMENT-RESPONSE.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/x402gate/seller"
)

// EncodePayment converts a PaymentPayload to the base64-encoded JSON string
// carried in a PAYMENT-SIGNATURE request header.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment reverses EncodePayment.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payment, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	return payment, nil
}

// EncodeSettlement converts a SettlementResult to the base64-encoded JSON
// string carried in a PAYMENT-RESPONSE header.
func EncodeSettlement(settlement x402.SettlementResult) (string, error) {
	settlementJSON, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(settlementJSON), nil
}

// DecodeSettlement reverses EncodeSettlement.
func DecodeSettlement(encoded string) (x402.SettlementResult, error) {
	var settlement x402.SettlementResult

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}

	return settlement, nil
}

// EncodeRequirements converts a requirements slice to the base64-encoded
// JSON array carried in a PAYMENT-REQUIRED response header. It always
// marshals as a JSON array, even with zero or one element — callers must
// never unmarshal it as a bare object.
func EncodeRequirements(requirements []x402.PaymentRequirements) (string, error) {
	if requirements == nil {
		requirements = []x402.PaymentRequirements{}
	}
	reqJSON, err := json.Marshal(requirements)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(reqJSON), nil
}

// DecodeRequirements reverses EncodeRequirements.
func DecodeRequirements(encoded string) ([]x402.PaymentRequirements, error) {
	var requirements []x402.PaymentRequirements

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return requirements, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &requirements); err != nil {
		return requirements, fmt.Errorf("failed to unmarshal requirements: %w", err)
	}

	return requirements, nil
}
