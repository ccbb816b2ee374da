package refdata

import (
	"context"
	"encoding/binary"
	"fmt"

	"memecore/internal/blockchain"
	"memecore/internal/ids"
	"memecore/internal/safety"
)

// SafetyFetcher implements safety.Fetcher over a direct read of the
// SPL mint account: authority state from the base layout, and the
// token-2022 extension TLV for delegate/fee/hook extensions.
type SafetyFetcher struct {
	rpc *blockchain.Client
}

// NewSafetyFetcher wires a SafetyFetcher to rpc.
func NewSafetyFetcher(rpc *blockchain.Client) *SafetyFetcher {
	return &SafetyFetcher{rpc: rpc}
}

// Fetch implements safety.Fetcher.
func (f *SafetyFetcher) Fetch(ctx context.Context, mint ids.TokenId) (safety.Data, error) {
	info, err := f.rpc.GetAccountInfo(ctx, mint.String())
	if err != nil {
		return safety.Data{}, fmt.Errorf("fetch mint account: %w", err)
	}
	if info == nil {
		return safety.Data{}, fmt.Errorf("mint account %s not found", mint.Short())
	}

	data, err := decodeMintAccount(info.Data)
	if err != nil {
		return safety.Data{}, err
	}

	if info.Owner == blockchain.Token2022ProgramID {
		applyExtensions(info.Data, &data)
	}

	return data, nil
}

// SPL mint account base layout (82 bytes): COption<Pubkey>
// mint_authority (4+32), supply u64, decimals u8, is_initialized
// bool, COption<Pubkey> freeze_authority (4+32).
const (
	mintAccountBaseLen   = 82
	mintSupplyOffset     = 36
	freezeAuthTagOffset  = 46
	extensionStartOffset = 166 // base + padding to 165 + account-type byte
)

func decodeMintAccount(raw []byte) (safety.Data, error) {
	if len(raw) < mintAccountBaseLen {
		return safety.Data{}, fmt.Errorf("mint account data too short: %d bytes", len(raw))
	}
	return safety.Data{
		MintAuthority:   binary.LittleEndian.Uint32(raw[0:4]) != 0,
		FreezeAuthority: binary.LittleEndian.Uint32(raw[freezeAuthTagOffset:freezeAuthTagOffset+4]) != 0,
	}, nil
}

func mintSupply(raw []byte) uint64 {
	if len(raw) < mintAccountBaseLen {
		return 0
	}
	return binary.LittleEndian.Uint64(raw[mintSupplyOffset : mintSupplyOffset+8])
}

// Token-2022 extension type discriminants (TLV entries after the
// account-type byte).
const (
	extTransferFeeConfig = 1
	extPermanentDelegate = 12
	extTransferHook      = 14
)

// applyExtensions walks the token-2022 TLV region and flags the
// extensions the analyzer cares about.
func applyExtensions(raw []byte, data *safety.Data) {
	pos := extensionStartOffset
	for pos+4 <= len(raw) {
		extType := int(binary.LittleEndian.Uint16(raw[pos : pos+2]))
		extLen := int(binary.LittleEndian.Uint16(raw[pos+2 : pos+4]))
		value := raw[pos+4:]
		if extLen > len(value) {
			return
		}
		value = value[:extLen]

		switch extType {
		case extPermanentDelegate:
			data.PermanentDelegate = true
		case extTransferHook:
			data.TransferHook = true
		case extTransferFeeConfig:
			// TransferFeeConfig: two authorities (64), withheld amount
			// (8), older fee (18), then the newer fee whose basis
			// points sit in its last two bytes.
			if len(value) >= 108 {
				data.TransferFeeBps = int(binary.LittleEndian.Uint16(value[106:108]))
			}
		}
		pos += 4 + extLen
	}
}
