package blockchain

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"
)

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	w, err := NewWallet(base58.Encode(seed))
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	return w
}

func TestNewWalletAcceptsSeedAndFullKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	fromSeed, err := NewWallet(base58.Encode(seed))
	if err != nil {
		t.Fatalf("seed form: %v", err)
	}

	full := ed25519.NewKeyFromSeed(seed)
	fromFull, err := NewWallet(base58.Encode(full))
	if err != nil {
		t.Fatalf("full form: %v", err)
	}

	if fromSeed.Address() != fromFull.Address() {
		t.Fatal("both encodings must derive the same address")
	}
}

func TestNewWalletRejectsBadLength(t *testing.T) {
	if _, err := NewWallet(base58.Encode([]byte{1, 2, 3})); err == nil {
		t.Fatal("expected error for 3-byte key")
	}
}

func TestSignUnsignedTransaction(t *testing.T) {
	w := testWallet(t)
	s := NewSigner(w)

	message := []byte("serialized message bytes")
	tx := append([]byte{0}, message...) // zero signatures

	signedB64, err := s.SignBase64Transaction(base64.StdEncoding.EncodeToString(tx))
	if err != nil {
		t.Fatalf("SignBase64Transaction: %v", err)
	}

	signed, _ := base64.StdEncoding.DecodeString(signedB64)
	if signed[0] != 1 {
		t.Fatalf("expected one signature slot, got %d", signed[0])
	}
	sig := signed[1:65]
	if !ed25519.Verify(w.privateKey.Public().(ed25519.PublicKey), message, sig) {
		t.Fatal("signature does not verify against the message")
	}
	if string(signed[65:]) != string(message) {
		t.Fatal("message body altered")
	}
}

func TestSignFillsPlaceholderSlot(t *testing.T) {
	w := testWallet(t)
	s := NewSigner(w)

	message := []byte("versioned tx message")
	tx := make([]byte, 1+64+len(message))
	tx[0] = 1
	copy(tx[65:], message)

	signedB64, err := s.SignBase64Transaction(base64.StdEncoding.EncodeToString(tx))
	if err != nil {
		t.Fatalf("SignBase64Transaction: %v", err)
	}
	signed, _ := base64.StdEncoding.DecodeString(signedB64)
	if !ed25519.Verify(w.privateKey.Public().(ed25519.PublicKey), message, signed[1:65]) {
		t.Fatal("placeholder slot not filled with a valid signature")
	}
}

func TestSignRejectsMalformed(t *testing.T) {
	s := NewSigner(testWallet(t))
	if _, err := s.SignBase64Transaction("not-base64!!"); err == nil {
		t.Fatal("expected decode error")
	}
	// Claims 2 signatures but has no message behind them.
	short := base64.StdEncoding.EncodeToString([]byte{2, 0, 0})
	if _, err := s.SignBase64Transaction(short); err == nil {
		t.Fatal("expected malformed-transaction error")
	}
}
