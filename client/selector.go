package client

import "github.com/x402gate/seller"

// SelectRequirement picks the first entry in accepts this signer can pay:
// scheme "exact", network matching the signer, either an explicit transfer
// settlement mode or an eip3009 transfer method, and an asset the signer has
// configured.
func (s *Signer) SelectRequirement(accepts []x402.PaymentRequirements) (*x402.PaymentRequirements, error) {
	for i := range accepts {
		req := &accepts[i]
		if req.Scheme != x402.SchemeExact {
			continue
		}
		if req.Network != string(s.network) {
			continue
		}
		if req.Extra.SettlementMode != x402.SettlementModeTransfer && req.Extra.AssetTransferMethod != "eip3009" {
			continue
		}
		if _, err := s.pickAsset(req.Asset); err == nil {
			return req, nil
		}
	}
	return nil, ErrNoMatchingAsset
}
