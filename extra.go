package x402

import "encoding/json"

// MarshalJSON flattens Extra's named fields together with its free-form Other
// map into a single JSON object, so the wire representation matches the
// map[string]interface{} shape clients and older tooling expect.
func (e Extra) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Other)+6)
	for k, v := range e.Other {
		out[k] = v
	}
	if e.SettlementMode != "" {
		out["settlementMode"] = e.SettlementMode
	}
	if e.AssetTransferMethod != "" {
		out["assetTransferMethod"] = e.AssetTransferMethod
	}
	if e.Name != "" {
		out["name"] = e.Name
	}
	if e.Version != "" {
		out["version"] = e.Version
	}
	if e.OrderID != "" {
		out["orderId"] = e.OrderID
	}
	if e.Description != "" {
		out["description"] = e.Description
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits an incoming JSON object into Extra's named fields plus
// a residual Other map for anything else.
func (e *Extra) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["settlementMode"]; ok {
		if s, ok := v.(string); ok {
			e.SettlementMode = SettlementMode(s)
		}
		delete(raw, "settlementMode")
	}

	named := map[string]*string{
		"assetTransferMethod": &e.AssetTransferMethod,
		"name":                &e.Name,
		"version":             &e.Version,
		"orderId":             &e.OrderID,
		"description":         &e.Description,
	}
	for key, dst := range named {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				*dst = s
			}
			delete(raw, key)
		}
	}

	if len(raw) > 0 {
		e.Other = raw
	}
	return nil
}
