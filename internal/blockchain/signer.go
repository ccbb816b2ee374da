package blockchain

import (
	"encoding/base64"
	"fmt"
)

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Signer signs serialized transactions produced by a swap router.
// Router-built transactions already carry a recent blockhash, so the
// signer needs no RPC access of its own.
type Signer struct {
	wallet *Wallet
}

// NewSigner creates a Signer over wallet.
func NewSigner(wallet *Wallet) *Signer {
	return &Signer{wallet: wallet}
}

// SignBase64Transaction signs a base64-encoded (versioned) Solana
// transaction whose fee payer is this wallet, filling the first
// signature slot, and returns the signed transaction base64-encoded.
//
// Wire layout: compact-u16 signature count, then count*64 signature
// bytes, then the message. Router-produced transactions carry either
// zero signatures (message only) or placeholder slots.
func (s *Signer) SignBase64Transaction(txBase64 string) (string, error) {
	tx, err := decodeBase64(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	if len(tx) == 0 {
		return "", fmt.Errorf("empty transaction")
	}

	sigCount := int(tx[0])

	if sigCount == 0 {
		message := tx[1:]
		signature := s.wallet.Sign(message)
		signed := make([]byte, 0, 1+len(signature)+len(message))
		signed = append(signed, 1)
		signed = append(signed, signature...)
		signed = append(signed, message...)
		return base64.StdEncoding.EncodeToString(signed), nil
	}

	messageOffset := 1 + sigCount*64
	if len(tx) <= messageOffset {
		return "", fmt.Errorf("malformed transaction: %d bytes for %d signatures", len(tx), sigCount)
	}

	signature := s.wallet.Sign(tx[messageOffset:])
	copy(tx[1:65], signature)
	return base64.StdEncoding.EncodeToString(tx), nil
}
