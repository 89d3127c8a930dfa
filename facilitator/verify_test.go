package facilitator

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/evm"
)

const verifyTestPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	testAssetAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testPayToAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testEscrowAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func testDomain() evm.Domain {
	return evm.Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(8453),
		VerifyingContract: testAssetAddr,
	}
}

func testRegistry(t *testing.T) *x402.AssetRegistry {
	t.Helper()
	registry, err := x402.NewAssetRegistry(x402.AssetDescriptor{
		Address:       testAssetAddr.Hex(),
		Symbol:        "USDC",
		Decimals:      6,
		DomainName:    "USD Coin",
		DomainVersion: "2",
		EIP3009:       true,
	})
	if err != nil {
		t.Fatalf("failed to build asset registry: %v", err)
	}
	return registry
}

func testVerifierConfig(t *testing.T) Config {
	return Config{
		Network:       x402.NetworkTag("eip155:8453"),
		ChainID:       big.NewInt(8453),
		Assets:        testRegistry(t),
		EscrowAdapter: testEscrowAddr,
	}
}

func transferRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:  x402.SchemeExact,
		Network: "eip155:8453",
		Asset:   testAssetAddr.Hex(),
		PayTo:   testPayToAddr.Hex(),
		Amount:  "1000000",
		Extra:   x402.Extra{SettlementMode: x402.SettlementModeTransfer},
	}
}

func escrowRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:  x402.SchemeExact,
		Network: "eip155:8453",
		Asset:   testAssetAddr.Hex(),
		PayTo:   testEscrowAddr.Hex(),
		Amount:  "1000000",
		Extra:   x402.Extra{AssetTransferMethod: "eip3009", OrderID: "order-1"},
	}
}

func testAuthorization(from, to common.Address, value string) x402.Authorization {
	now := time.Now().Unix()
	return x402.Authorization{
		From:        from.Hex(),
		To:          to.Hex(),
		Value:       value,
		ValidAfter:  strconv.FormatInt(now-10, 10),
		ValidBefore: strconv.FormatInt(now+3600, 10),
		Nonce:       "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcd",
	}
}

// signPayload signs auth with privateKey over the standard test domain and
// wraps the result into a PaymentPayload on network "eip155:8453".
func signPayload(t *testing.T, privateKey *ecdsa.PrivateKey, auth x402.Authorization) x402.PaymentPayload {
	t.Helper()
	digest, err := evm.Digest(testDomain(), auth)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	signature[64] += 27

	return x402.PaymentPayload{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     "eip155:8453",
		Payload: x402.EVMPayload{
			Signature:     "0x" + hex.EncodeToString(signature),
			Authorization: auth,
		},
	}
}

func mustPrivateKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	privateKey, err := crypto.HexToECDSA(verifyTestPrivateKeyHex)
	if err != nil {
		t.Fatalf("failed to parse private key: %v", err)
	}
	return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey)
}

func TestVerifyAcceptsValidTransfer(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testPayToAddr, "1000000")
	payload := signPayload(t, privateKey, auth)

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
	if result.Payer != from.Hex() {
		t.Errorf("payer = %s, want %s", result.Payer, from.Hex())
	}
}

func TestVerifyAcceptsValidEscrow(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testEscrowAddr, "1000000")
	payload := signPayload(t, privateKey, auth)

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, escrowRequirements(), modeEscrow)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testPayToAddr, "1000000")
	payload := signPayload(t, privateKey, auth)

	// Tamper with the authorization after signing so it no longer matches the
	// digest the signature was produced over; recovery then yields the wrong
	// signer address.
	payload.Payload.Authorization.Value = "2000000"

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for a tampered authorization")
	}
	if result.Reason != "invalid signature" {
		t.Errorf("reason = %q, want %q", result.Reason, "invalid signature")
	}
}

func TestVerifyRejectsWrongDestinationTransfer(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testEscrowAddr, "1000000")
	payload := signPayload(t, privateKey, auth)

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for a recipient that does not match payTo")
	}
	if result.Reason != "wrong payment destination" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestVerifyRejectsWrongDestinationEscrow(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testPayToAddr, "1000000")
	payload := signPayload(t, privateKey, auth)

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, escrowRequirements(), modeEscrow)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for a recipient that does not match the escrow adapter")
	}
	if result.Reason != "wrong payment destination" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestVerifyRejectsStaleWindow(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testPayToAddr, "1000000")
	past := time.Now().Add(-time.Hour).Unix()
	auth.ValidAfter = strconv.FormatInt(past-3600, 10)
	auth.ValidBefore = strconv.FormatInt(past, 10)
	payload := signPayload(t, privateKey, auth)

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for an expired authorization window")
	}
	if result.Reason != "authorization expired or not yet valid" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestVerifyRejectsFutureWindow(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testPayToAddr, "1000000")
	future := time.Now().Add(time.Hour).Unix()
	auth.ValidAfter = strconv.FormatInt(future, 10)
	auth.ValidBefore = strconv.FormatInt(future+3600, 10)
	payload := signPayload(t, privateKey, auth)

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for a not-yet-valid authorization window")
	}
	if result.Reason != "authorization expired or not yet valid" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestVerifyRejectsAmountMismatch(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testPayToAddr, "500000")
	payload := signPayload(t, privateKey, auth)

	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for an authorization below the required amount")
	}
	if result.Reason != "insufficient amount" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestVerifyRejectsEscrowStaticCallFailure(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	auth := testAuthorization(from, testEscrowAddr, "1000000")
	payload := signPayload(t, privateKey, auth)

	chain := &fakeChain{
		balance:   big.NewInt(2000000),
		staticErr: fmt.Errorf("execution reverted: order already settled"),
	}
	v := NewVerifier(chain, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, escrowRequirements(), modeEscrow)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result when the escrow static call would revert")
	}
	want := "escrow settlement would revert: execution reverted: order already settled"
	if result.Reason != want {
		t.Errorf("reason = %q, want %q", result.Reason, want)
	}
}

func TestVerifyRejectsUnsupportedVersion(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	payload := signPayload(t, privateKey, testAuthorization(from, testPayToAddr, "1000000"))
	payload.X402Version = 1

	v := NewVerifier(&fakeChain{}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid || result.Reason != "unsupported x402 version" {
		t.Errorf("got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestVerifyRejectsUnsupportedAsset(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	payload := signPayload(t, privateKey, testAuthorization(from, testPayToAddr, "1000000"))

	requirements := transferRequirements()
	requirements.Asset = "0x9999999999999999999999999999999999999999"

	v := NewVerifier(&fakeChain{}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, requirements, modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid || result.Reason != "unsupported asset" {
		t.Errorf("got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestVerifyRejectsInsufficientBalance(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	payload := signPayload(t, privateKey, testAuthorization(from, testPayToAddr, "1000000"))

	v := NewVerifier(&fakeChain{balance: big.NewInt(1)}, testVerifierConfig(t))
	result, err := v.Verify(context.Background(), payload, transferRequirements(), modeTransfer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid || result.Reason != "insufficient balance" {
		t.Errorf("got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestVerifyRejectsEscrowNotConfigured(t *testing.T) {
	privateKey, from := mustPrivateKey(t)
	payload := signPayload(t, privateKey, testAuthorization(from, testEscrowAddr, "1000000"))

	cfg := testVerifierConfig(t)
	cfg.EscrowAdapter = common.Address{}
	v := NewVerifier(&fakeChain{balance: big.NewInt(2000000)}, cfg)
	result, err := v.Verify(context.Background(), payload, escrowRequirements(), modeEscrow)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid || result.Reason != "escrow adapter not configured" {
		t.Errorf("got valid=%v reason=%q", result.Valid, result.Reason)
	}
}
