package refdata

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"memecore/internal/core"
	"memecore/internal/ids"
)

// pumpProgramID is the pump.fun bonding-curve program, whose logs
// carry self-CPI "Program data:" events for token creation and
// trades.
const pumpProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// Feed subscribes to pump.fun program logs and emits FeedEvents.
// Bonding-curve account subscriptions are added lazily, per mint, once
// the caller (cmd/bot's feed tee) calls TrackCurve after a
// NewTokenEvent.
type Feed struct {
	client *wsClient
	events chan core.FeedEvent

	mu         sync.Mutex
	curveSubs  map[ids.TokenId]uint64
	logsSubID  uint64
}

// Dial connects to a Solana websocket RPC endpoint and subscribes to
// pump.fun program logs.
func Dial(ctx context.Context, wsURL string) (*Feed, error) {
	client, err := dialWS(ctx, wsURL)
	if err != nil {
		return nil, err
	}

	f := &Feed{
		client:    client,
		events:    make(chan core.FeedEvent, 256),
		curveSubs: make(map[ids.TokenId]uint64),
	}

	subID, err := client.subscribe(ctx, "logsSubscribe", []interface{}{
		map[string]interface{}{"mentions": []string{pumpProgramID}},
		map[string]interface{}{"commitment": "confirmed"},
	}, f.handleLogsNotification)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscribe program logs: %w", err)
	}
	f.logsSubID = subID

	return f, nil
}

// Events implements core.DataFeed.
func (f *Feed) Events() <-chan core.FeedEvent { return f.events }

// Close implements core.DataFeed.
func (f *Feed) Close() error {
	close(f.events)
	return f.client.Close()
}

// TrackCurve subscribes to a mint's bonding-curve account for reserve
// updates, from which PriceSamples are derived. Call once per mint,
// after its NewTokenEvent.
func (f *Feed) TrackCurve(ctx context.Context, mint ids.TokenId, curveAddress string) error {
	f.mu.Lock()
	if _, exists := f.curveSubs[mint]; exists {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	subID, err := f.client.subscribe(ctx, "accountSubscribe", []interface{}{
		curveAddress,
		map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
	}, func(data json.RawMessage) {
		f.handleCurveUpdate(mint, data)
	})
	if err != nil {
		return fmt.Errorf("subscribe bonding curve %s: %w", curveAddress, err)
	}

	f.mu.Lock()
	f.curveSubs[mint] = subID
	f.mu.Unlock()
	return nil
}

// UntrackCurve unsubscribes a mint's bonding-curve account, once it
// graduates or leaves the watchlist.
func (f *Feed) UntrackCurve(mint ids.TokenId) {
	f.mu.Lock()
	subID, exists := f.curveSubs[mint]
	delete(f.curveSubs, mint)
	f.mu.Unlock()

	if exists {
		f.client.unsubscribe("accountUnsubscribe", subID)
	}
}

func (f *Feed) publish(evt core.FeedEvent) {
	select {
	case f.events <- evt:
	default:
		log.Warn().Msg("refdata feed event channel full, dropping event")
	}
}

// bondingCurveLayout mirrors pump.fun's BondingCurve account: an
// 8-byte Anchor discriminator followed by five little-endian u64
// fields and a bool.
type bondingCurveLayout struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

func decodeBondingCurve(data []byte) (bondingCurveLayout, error) {
	const headerLen = 8
	if len(data) < headerLen+8*5+1 {
		return bondingCurveLayout{}, fmt.Errorf("bonding curve data too short: %d bytes", len(data))
	}
	off := headerLen
	read64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		return v
	}
	return bondingCurveLayout{
		VirtualTokenReserves: read64(),
		VirtualSolReserves:   read64(),
		RealTokenReserves:    read64(),
		RealSolReserves:      read64(),
		TokenTotalSupply:     read64(),
		Complete:             data[off] != 0,
	}, nil
}

// priceSOL computes the marginal bonding-curve price from virtual
// reserves: SOL per token, at 9 and 6 decimals respectively.
func (b bondingCurveLayout) priceSOL() float64 {
	if b.VirtualTokenReserves == 0 {
		return 0
	}
	sol := float64(b.VirtualSolReserves) / 1e9
	tokens := float64(b.VirtualTokenReserves) / 1e6
	return sol / tokens
}

func (f *Feed) handleCurveUpdate(mint ids.TokenId, raw json.RawMessage) {
	var notif struct {
		Value struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &notif); err != nil || len(notif.Value.Data) == 0 {
		return
	}

	data, err := base64.StdEncoding.DecodeString(notif.Value.Data[0])
	if err != nil {
		return
	}

	curve, err := decodeBondingCurve(data)
	if err != nil {
		return
	}

	f.publish(core.FeedEvent{
		Kind: core.FeedEventPrice,
		Price: &core.PriceSample{
			Mint:         mint,
			PriceSOL:     curve.priceSOL(),
			MarketCapSOL: curve.priceSOL() * float64(curve.TokenTotalSupply) / 1e6,
			Liquidity:    float64(curve.RealSolReserves) / 1e9,
		},
	})
}

var (
	createEventDiscriminator = anchorEventDiscriminator("CreateEvent")
	tradeEventDiscriminator  = anchorEventDiscriminator("TradeEvent")
)

// anchorEventDiscriminator reproduces Anchor's own event-discriminator
// algorithm: the first 8 bytes of sha256("event:<Name>").
func anchorEventDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

func (f *Feed) handleLogsNotification(raw json.RawMessage) {
	var notif struct {
		Value struct {
			Logs []string `json:"logs"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &notif); err != nil {
		return
	}

	for _, line := range notif.Value.Logs {
		const prefix = "Program data: "
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, prefix))
		if err != nil || len(payload) < 8 {
			continue
		}

		var disc [8]byte
		copy(disc[:], payload[:8])
		body := payload[8:]

		switch disc {
		case createEventDiscriminator:
			if evt, ok := decodeCreateEvent(body); ok {
				f.publish(core.FeedEvent{Kind: core.FeedEventNewToken, NewToken: &evt})
			}
		case tradeEventDiscriminator:
			if evt, ok := decodeTradeEvent(body); ok {
				f.publish(core.FeedEvent{Kind: core.FeedEventTrade, Trade: &evt})
			}
		}
	}
}

// borshReader walks a little-endian Borsh-encoded byte slice.
type borshReader struct {
	data []byte
	off  int
}

func (r *borshReader) u64() uint64 {
	if r.off+8 > len(r.data) {
		r.off = len(r.data) + 1
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off : r.off+8])
	r.off += 8
	return v
}

func (r *borshReader) i64() int64 { return int64(r.u64()) }

func (r *borshReader) boolean() bool {
	if r.off >= len(r.data) {
		r.off = len(r.data) + 1
		return false
	}
	v := r.data[r.off] != 0
	r.off++
	return v
}

func (r *borshReader) pubkey() string {
	if r.off+32 > len(r.data) {
		r.off = len(r.data) + 1
		return ""
	}
	s := base58.Encode(r.data[r.off : r.off+32])
	r.off += 32
	return s
}

func (r *borshReader) str() string {
	if r.off+4 > len(r.data) {
		r.off = len(r.data) + 1
		return ""
	}
	n := int(binary.LittleEndian.Uint32(r.data[r.off : r.off+4]))
	r.off += 4
	if r.off+n > len(r.data) {
		r.off = len(r.data) + 1
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

func (r *borshReader) ok() bool { return r.off <= len(r.data) }

// decodeCreateEvent parses pump.fun's CreateEvent: name, symbol, uri
// (Borsh strings), then mint, bondingCurve, user (pubkeys).
func decodeCreateEvent(body []byte) (core.NewTokenEvent, bool) {
	r := &borshReader{data: body}
	name := r.str()
	symbol := r.str()
	_ = r.str() // uri, unused
	mint := r.pubkey()
	bondingCurve := r.pubkey()
	user := r.pubkey()
	if !r.ok() || mint == "" {
		return core.NewTokenEvent{}, false
	}

	tokenID, err := ids.NewTokenId(mint)
	if err != nil {
		return core.NewTokenEvent{}, false
	}
	creator, err := ids.NewWalletId(user)
	if err != nil {
		return core.NewTokenEvent{}, false
	}

	return core.NewTokenEvent{
		Mint:            tokenID,
		Creator:         creator,
		Symbol:          symbol,
		Name:            name,
		BondingCurveKey: bondingCurve,
	}, true
}

// decodeTradeEvent parses pump.fun's TradeEvent: mint, solAmount,
// tokenAmount, isBuy, user, timestamp, then the post-trade virtual
// SOL and token reserves; the real-reserve fields after them are not
// read.
func decodeTradeEvent(body []byte) (core.TradeEvent, bool) {
	r := &borshReader{data: body}
	mint := r.pubkey()
	solAmountLamports := r.u64()
	tokenAmountRaw := r.u64()
	isBuy := r.boolean()
	user := r.pubkey()
	timestamp := r.i64()
	virtualSolReserves := r.u64()
	virtualTokenReserves := r.u64()
	if !r.ok() || mint == "" {
		return core.TradeEvent{}, false
	}

	tokenID, err := ids.NewTokenId(mint)
	if err != nil {
		return core.TradeEvent{}, false
	}
	trader, err := ids.NewWalletId(user)
	if err != nil {
		return core.TradeEvent{}, false
	}

	side := core.SideSell
	if isBuy {
		side = core.SideBuy
	}

	priceSOL := 0.0
	if virtualTokenReserves > 0 {
		priceSOL = (float64(virtualSolReserves) / 1e9) / (float64(virtualTokenReserves) / 1e6)
	}

	return core.TradeEvent{
		Timestamp:   core.Timestamp(timestamp * 1000),
		Mint:        tokenID,
		Trader:      trader,
		Side:        side,
		TokenAmount: float64(tokenAmountRaw) / 1e6,
		SOLAmount:   float64(solAmountLamports) / 1e9,
		PriceSOL:    priceSOL,
	}, true
}
