// Package ids defines the opaque identifier types shared across the
// signal-to-trade core: token mints and wallet addresses. Both are
// base58-encoded strings of the same shape but are kept as distinct
// Go types so a TokenId can never be passed where a WalletId is
// expected (and vice versa) without an explicit conversion.
package ids

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// TokenId is a Solana mint address.
type TokenId string

// WalletId is a Solana wallet (or program) address.
type WalletId string

const (
	minLen = 32
	maxLen = 44
)

// NewTokenId validates s and returns it as a TokenId.
func NewTokenId(s string) (TokenId, error) {
	if err := validate(s); err != nil {
		return "", fmt.Errorf("token id: %w", err)
	}
	return TokenId(s), nil
}

// NewWalletId validates s and returns it as a WalletId.
func NewWalletId(s string) (WalletId, error) {
	if err := validate(s); err != nil {
		return "", fmt.Errorf("wallet id: %w", err)
	}
	return WalletId(s), nil
}

// validate checks the 32-44 char base58 shape by attempting an actual
// base58 decode rather than a charset membership scan: a string can
// use only valid base58 characters and still fail to decode (e.g.
// overflow), so decoding is the stronger check.
func validate(s string) error {
	if len(s) < minLen || len(s) > maxLen {
		return fmt.Errorf("invalid length %d, want %d-%d", len(s), minLen, maxLen)
	}
	if _, err := base58.Decode(s); err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}
	return nil
}

func (t TokenId) String() string  { return string(t) }
func (w WalletId) String() string { return string(w) }

// Short returns a truncated form suitable for log fields.
func (t TokenId) Short() string { return short(string(t)) }
func (w WalletId) Short() string { return short(string(w)) }

func short(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "…"
}
