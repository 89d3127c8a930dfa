package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/x402gate/seller"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testAuthorization(from common.Address) x402.Authorization {
	return x402.Authorization{
		From:        from.Hex(),
		To:          "0x2222222222222222222222222222222222222222",
		Value:       "1000000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000060",
		Nonce:       "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcd",
	}
}

func TestDigestSignAndRecover(t *testing.T) {
	privateKey, err := crypto.HexToECDSA(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("failed to parse private key: %v", err)
	}
	from := crypto.PubkeyToAddress(privateKey.PublicKey)

	domain := Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(8453),
		VerifyingContract: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
	}
	auth := testAuthorization(from)

	digest, err := Digest(domain, auth)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	signature[64] += 27

	recovered, err := Recover(digest, signature)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered != from {
		t.Errorf("recovered %s, want %s", recovered.Hex(), from.Hex())
	}

	ok, err := VerifySignature(digest, signature, from)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Error("expected signature to verify against signer address")
	}

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	ok, err = VerifySignature(digest, signature, other)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Error("signature should not verify against a different address")
	}
}

func TestDigestDiffersByChainID(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	auth := testAuthorization(from)
	contract := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	d1, err := Digest(Domain{Name: "USD Coin", Version: "2", ChainID: big.NewInt(8453), VerifyingContract: contract}, auth)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := Digest(Domain{Name: "USD Coin", Version: "2", ChainID: big.NewInt(1), VerifyingContract: contract}, auth)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if string(d1) == string(d2) {
		t.Error("digest should differ across chain ids")
	}
}

func TestDigestRejectsInvalidAmount(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	auth := testAuthorization(from)
	auth.Value = "not-a-number"

	if _, err := Digest(Domain{ChainID: big.NewInt(8453)}, auth); err == nil {
		t.Fatal("expected error for invalid value")
	}
}

func TestRecoverRejectsBadSignatureLength(t *testing.T) {
	if _, err := Recover(make([]byte, 32), make([]byte, 10)); err == nil {
		t.Fatal("expected error for short signature")
	}
}
