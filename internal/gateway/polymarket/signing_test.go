package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestHmacSignatureDeterministic(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

	a, err := hmacSignature(secret, 1700000000, "POST", "/order", `{"order":{}}`)
	if err != nil {
		t.Fatalf("hmacSignature: %v", err)
	}
	b, err := hmacSignature(secret, 1700000000, "POST", "/order", `{"order":{}}`)
	if err != nil {
		t.Fatalf("hmacSignature: %v", err)
	}
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}

	// any input change must change the signature
	c, _ := hmacSignature(secret, 1700000001, "POST", "/order", `{"order":{}}`)
	if a == c {
		t.Fatal("timestamp change did not change signature")
	}
	d, _ := hmacSignature(secret, 1700000000, "DELETE", "/order", `{"order":{}}`)
	if a == d {
		t.Fatal("method change did not change signature")
	}
}

func TestHmacSignatureMatchesReference(t *testing.T) {
	key := []byte("super-secret-key")
	secret := base64.URLEncoding.EncodeToString(key)

	got, err := hmacSignature(secret, 42, "GET", "/balance-allowance", "")
	if err != nil {
		t.Fatalf("hmacSignature: %v", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("42GET/balance-allowance"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	want = strings.ReplaceAll(want, "+", "-")
	want = strings.ReplaceAll(want, "/", "_")

	if got != want {
		t.Fatalf("signature = %q, want %q", got, want)
	}
	if strings.ContainsAny(got, "+/") {
		t.Fatal("signature must be base64url encoded")
	}
}

func TestHmacSignatureBadSecret(t *testing.T) {
	if _, err := hmacSignature("not!!valid!!base64", 1, "GET", "/", ""); err == nil {
		t.Fatal("invalid secret must fail")
	}
}

func TestSignOrderShape(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	od := &orderData{
		Salt:        123456,
		Maker:       addr,
		Signer:      addr,
		TokenID:     new(big.Int).SetInt64(99),
		MakerAmount: big.NewInt(50_000_000),
		TakerAmount: big.NewInt(100_000_000),
		Expiration:  big.NewInt(0),
		Nonce:       big.NewInt(0),
		FeeRateBps:  big.NewInt(0),
		Side:        0,
	}

	sig, err := signOrder(key, 137, od)
	if err != nil {
		t.Fatalf("signOrder: %v", err)
	}
	// 65-byte secp256k1 signature, hex with 0x prefix
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+130 {
		t.Fatalf("signature = %q (len %d), want 0x + 130 hex chars", sig, len(sig))
	}

	// deterministic hashing: same order and key re-sign identically
	again, err := signOrder(key, 137, od)
	if err != nil {
		t.Fatalf("signOrder: %v", err)
	}
	if sig != again {
		t.Fatal("re-signing the same order produced a different signature")
	}
}
