package x402

import "testing"

func TestAssetRegistryLookup(t *testing.T) {
	reg, err := NewAssetRegistry(AssetDescriptor{
		Address:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Symbol:        "USDC",
		Decimals:      6,
		DomainName:    "USD Coin",
		DomainVersion: "2",
		EIP3009:       true,
	})
	if err != nil {
		t.Fatalf("NewAssetRegistry: %v", err)
	}

	desc, err := reg.Lookup("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	if err != nil {
		t.Fatalf("Lookup (different case): %v", err)
	}
	if desc.DomainName != "USD Coin" || desc.DomainVersion != "2" {
		t.Errorf("unexpected descriptor: %+v", desc)
	}

	if _, err := reg.Lookup("0x000000000000000000000000000000000000dEaD"); err == nil {
		t.Fatal("expected ErrUnsupportedAsset for unlisted address")
	}
}

func TestAssetRegistryRejectsBadAddress(t *testing.T) {
	if _, err := NewAssetRegistry(AssetDescriptor{Address: "not-an-address"}); err == nil {
		t.Fatal("expected error constructing registry with bad address")
	}
}
