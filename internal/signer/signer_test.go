package signer

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/config"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

const testKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func testNetworks() config.Networks {
	return config.Networks{
		"base-sepolia": {
			ChainID:             84532,
			ValidatorPrivateKey: testKey,
			AssetAddress:        "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			AssetName:           "USDC",
			AssetVersion:        "2",
			AssetDecimals:       6,
		},
	}
}

func testAccept() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "1000",
		PayTo:             "0x1111111111111111111111111111111111111111",
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra: x402.RequirementExtra{
			Name:    "USDC",
			Version: "2",
		},
	}
}

func TestSignAuthorizationRecovers(t *testing.T) {
	networks := testNetworks()
	s := New(networks, log.NewTestLogger())

	accept := testAccept()
	payment, err := s.SignAuthorization(context.Background(), accept, "base-sepolia", nil)
	if err != nil {
		t.Fatalf("sign authorization: %v", err)
	}

	if payment.Network != "base-sepolia" {
		t.Errorf("network = %q", payment.Network)
	}
	if payment.Authorization.To != accept.PayTo {
		t.Errorf("to = %q, want %q", payment.Authorization.To, accept.PayTo)
	}
	if payment.Authorization.Value != accept.MaxAmountRequired {
		t.Errorf("value = %q, want %q", payment.Authorization.Value, accept.MaxAmountRequired)
	}

	// Recompute the typed-data hash from the returned authorization and
	// recover the signer.
	typedData := authorizationTypedData(accept, networks["base-sepolia"].ChainID, payment.Authorization)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}

	sig, err := hexutil.Decode(payment.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		t.Fatalf("signature length = %d", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)

	want, err := s.Address("base-sepolia")
	if err != nil {
		t.Fatalf("signer address: %v", err)
	}
	if recovered != want {
		t.Errorf("recovered %s, want %s", recovered.Hex(), want.Hex())
	}
	if payment.Authorization.From != want.Hex() {
		t.Errorf("authorization from = %s, want %s", payment.Authorization.From, want.Hex())
	}
}

func TestSignAuthorizationValidityWindow(t *testing.T) {
	s := New(testNetworks(), log.NewTestLogger())

	before := time.Now().Unix()
	payment, err := s.SignAuthorization(context.Background(), testAccept(), "base-sepolia", nil)
	if err != nil {
		t.Fatalf("sign authorization: %v", err)
	}
	after := time.Now().Unix()

	validAfter, err := strconv.ParseInt(payment.Authorization.ValidAfter, 10, 64)
	if err != nil {
		t.Fatalf("parse validAfter: %v", err)
	}
	validBefore, err := strconv.ParseInt(payment.Authorization.ValidBefore, 10, 64)
	if err != nil {
		t.Fatalf("parse validBefore: %v", err)
	}

	if validAfter > before {
		t.Errorf("validAfter %d is in the future (now %d)", validAfter, before)
	}
	if validBefore < after {
		t.Errorf("validBefore %d already passed (now %d)", validBefore, after)
	}
	if window := validBefore - validAfter; window < 60 {
		t.Errorf("validity window %ds too narrow", window)
	}
}

func TestSignAuthorizationUnknownNetwork(t *testing.T) {
	s := New(testNetworks(), log.NewTestLogger())

	_, err := s.SignAuthorization(context.Background(), testAccept(), "mainnet", nil)
	if err == nil {
		t.Fatal("expected error for unconfigured network")
	}
	if errors.KindOf(err) != errors.KindConfigurationMissing {
		t.Errorf("error kind = %v, want KindConfigurationMissing", errors.KindOf(err))
	}
	if !errors.Is(err, config.ErrNoValidatorKey) {
		t.Errorf("error does not wrap ErrNoValidatorKey: %v", err)
	}
}

func TestSignAuthorizationFreshNonces(t *testing.T) {
	s := New(testNetworks(), log.NewTestLogger())

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		payment, err := s.SignAuthorization(context.Background(), testAccept(), "base-sepolia", nil)
		if err != nil {
			t.Fatalf("sign authorization %d: %v", i, err)
		}
		if seen[payment.Authorization.Nonce] {
			t.Fatalf("nonce %s repeated", payment.Authorization.Nonce)
		}
		seen[payment.Authorization.Nonce] = true
	}
}

func TestLegacySignPaymentRecovers(t *testing.T) {
	s := NewLegacy(testNetworks(), log.NewTestLogger())

	proof, err := s.SignPayment("base-sepolia", "1000", "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("sign payment: %v", err)
	}

	message, err := proof.CanonicalMessage()
	if err != nil {
		t.Fatalf("canonical message: %v", err)
	}
	sig, err := hexutil.Decode(proof.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub).Hex(); got != proof.From {
		t.Errorf("recovered %s, claimed %s", got, proof.From)
	}
}

func TestLegacySignPaymentUnknownNetwork(t *testing.T) {
	s := NewLegacy(testNetworks(), log.NewTestLogger())

	_, err := s.SignPayment("mainnet", "1", "tok", "rcpt")
	if err == nil {
		t.Fatal("expected error for unconfigured network")
	}
	if !errors.Is(err, config.ErrNoValidatorKey) {
		t.Errorf("error does not wrap ErrNoValidatorKey: %v", err)
	}
}
