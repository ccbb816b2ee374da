package refdata

import (
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"

	"memecore/internal/safety"
)

func TestDecodeBondingCurve(t *testing.T) {
	data := make([]byte, 8+8*5+1)
	binary.LittleEndian.PutUint64(data[8:16], 1_000_000_000_000)  // virtual token reserves
	binary.LittleEndian.PutUint64(data[16:24], 30_000_000_000)    // virtual sol reserves
	binary.LittleEndian.PutUint64(data[24:32], 800_000_000_000)   // real token reserves
	binary.LittleEndian.PutUint64(data[32:40], 0)                 // real sol reserves
	binary.LittleEndian.PutUint64(data[40:48], 1_000_000_000_000) // total supply
	data[48] = 0                                                  // not complete

	curve, err := decodeBondingCurve(data)
	if err != nil {
		t.Fatalf("decodeBondingCurve: %v", err)
	}
	if curve.Complete {
		t.Error("expected Complete=false")
	}
	price := curve.priceSOL()
	if price <= 0 {
		t.Errorf("expected positive price, got %v", price)
	}
}

func TestDecodeBondingCurveTooShort(t *testing.T) {
	if _, err := decodeBondingCurve([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestDecodeMintAccount(t *testing.T) {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint32(data[0:4], 0) // mint authority revoked
	binary.LittleEndian.PutUint64(data[36:44], 1_000_000_000_000)
	binary.LittleEndian.PutUint32(data[46:50], 1) // freeze authority active

	parsed, err := decodeMintAccount(data)
	if err != nil {
		t.Fatalf("decodeMintAccount: %v", err)
	}
	if parsed.MintAuthority {
		t.Error("expected mint authority revoked")
	}
	if !parsed.FreezeAuthority {
		t.Error("expected freeze authority still active")
	}
	if got := mintSupply(data); got != 1_000_000_000_000 {
		t.Errorf("expected supply 1e12, got %d", got)
	}
}

func TestApplyExtensionsTLV(t *testing.T) {
	data := make([]byte, extensionStartOffset)
	// PermanentDelegate (type 12, 32-byte pubkey), then TransferHook
	// (type 14, 64 bytes).
	ext := make([]byte, 0, 8+32+64)
	ext = append(ext, tlvEntry(extPermanentDelegate, 32)...)
	ext = append(ext, tlvEntry(extTransferHook, 64)...)
	data = append(data, ext...)

	var d safety.Data
	applyExtensions(data, &d)
	if !d.PermanentDelegate || !d.TransferHook {
		t.Fatalf("expected both extensions flagged: %+v", d)
	}
	if d.TransferFeeBps != 0 {
		t.Fatalf("no transfer fee configured, got %d", d.TransferFeeBps)
	}
}

func tlvEntry(extType, length int) []byte {
	out := make([]byte, 4+length)
	binary.LittleEndian.PutUint16(out[0:2], uint16(extType))
	binary.LittleEndian.PutUint16(out[2:4], uint16(length))
	return out
}

func TestAnchorEventDiscriminatorDistinct(t *testing.T) {
	if createEventDiscriminator == tradeEventDiscriminator {
		t.Error("expected distinct discriminators for CreateEvent and TradeEvent")
	}
}

func TestBorshReaderRoundTrip(t *testing.T) {
	var body []byte

	appendStr := func(s string) {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
		body = append(body, lenBuf...)
		body = append(body, []byte(s)...)
	}
	appendU64 := func(v uint64) {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		body = append(body, buf...)
	}

	appendStr("DogWifCoin")
	appendStr("WIF")
	appendStr("https://example.com")

	mintBytes := make([]byte, 32)
	mintBytes[0] = 7
	curveBytes := make([]byte, 32)
	curveBytes[0] = 9
	userBytes := make([]byte, 32)
	userBytes[0] = 11
	body = append(body, mintBytes...)
	body = append(body, curveBytes...)
	body = append(body, userBytes...)

	evt, ok := decodeCreateEvent(body)
	if !ok {
		t.Fatal("expected decodeCreateEvent to succeed")
	}
	if evt.Name != "DogWifCoin" || evt.Symbol != "WIF" {
		t.Errorf("unexpected name/symbol: %+v", evt)
	}
	if evt.Mint.String() != base58.Encode(mintBytes) {
		t.Errorf("unexpected mint: %v", evt.Mint)
	}

	_ = appendU64
}

func TestDecodeCreateEventTruncated(t *testing.T) {
	if _, ok := decodeCreateEvent([]byte{1, 2, 3}); ok {
		t.Error("expected decode failure on truncated body")
	}
}
