package blockchain

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Wallet holds the signing keypair. The private key only ever enters
// through NewWallet; load it from an environment variable or secret
// store, never from a checked-in file.
type Wallet struct {
	privateKey ed25519.PrivateKey
	address    string
}

// NewWallet derives a Wallet from a base58-encoded private key: a
// 64-byte seed+pubkey pair, or a bare 32-byte seed.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("private key length %d, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	w := &Wallet{
		privateKey: key,
		address:    base58.Encode(key.Public().(ed25519.PublicKey)),
	}
	log.Info().Str("address", w.address).Msg("wallet loaded")
	return w, nil
}

// Address returns the wallet's public key, base58-encoded.
func (w *Wallet) Address() string { return w.address }

// Sign signs message with the wallet's private key.
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.privateKey, message)
}

// BalanceTracker caches the wallet's SOL balance between refreshes so
// sizing checks don't hit RPC on every evaluation.
type BalanceTracker struct {
	wallet *Wallet
	rpc    *Client

	mu       sync.RWMutex
	lamports uint64
}

// NewBalanceTracker creates a tracker with a zero cached balance;
// call Refresh before first use.
func NewBalanceTracker(wallet *Wallet, rpc *Client) *BalanceTracker {
	return &BalanceTracker{wallet: wallet, rpc: rpc}
}

// Refresh re-reads the balance from RPC.
func (b *BalanceTracker) Refresh(ctx context.Context) error {
	lamports, err := b.rpc.GetBalance(ctx, b.wallet.Address())
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.lamports = lamports
	b.mu.Unlock()
	return nil
}

// BalanceSOL returns the last-refreshed balance in SOL.
func (b *BalanceTracker) BalanceSOL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return float64(b.lamports) / 1e9
}

// BalanceLamports returns the last-refreshed balance in lamports.
func (b *BalanceTracker) BalanceLamports() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lamports
}
