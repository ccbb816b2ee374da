package smartmoney

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"memecore/internal/core"
	"memecore/internal/ids"
)

func wallet(t *testing.T, s string) ids.WalletId {
	t.Helper()
	id, err := ids.NewWalletId(s)
	if err != nil {
		t.Fatalf("NewWalletId: %v", err)
	}
	return id
}

func TestHeuristicClassifierRequiresMinTrades(t *testing.T) {
	history := []core.TradeRecord{
		{Closed: true, RealizedPnL: 1},
		{Closed: true, RealizedPnL: 1},
	}
	if (HeuristicClassifier{}).Classify(ids.WalletId(""), history) {
		t.Fatal("expected false with too few closed trades")
	}
}

func TestHeuristicClassifierRequiresWinRate(t *testing.T) {
	history := make([]core.TradeRecord, 5)
	for i := range history {
		history[i] = core.TradeRecord{Closed: true, RealizedPnL: -1}
	}
	if (HeuristicClassifier{}).Classify(ids.WalletId(""), history) {
		t.Fatal("expected false with 0% win rate")
	}
}

func TestHeuristicClassifierPassesOnGoodRecord(t *testing.T) {
	history := []core.TradeRecord{
		{Closed: true, RealizedPnL: 1},
		{Closed: true, RealizedPnL: 1},
		{Closed: true, RealizedPnL: 1},
		{Closed: true, RealizedPnL: 1},
		{Closed: true, RealizedPnL: -1},
	}
	if !(HeuristicClassifier{}).Classify(ids.WalletId(""), history) {
		t.Fatal("expected true with 80% win rate over 5 trades")
	}
}

type fakeHolders struct {
	wallets []ids.WalletId
	err     error
}

func (f fakeHolders) Holders(ctx context.Context, mint ids.TokenId) ([]ids.WalletId, error) {
	return f.wallets, f.err
}

type fakeHistory struct {
	calls int
	byWallet map[ids.WalletId][]core.TradeRecord
}

func (f *fakeHistory) History(ctx context.Context, wallet ids.WalletId) ([]core.TradeRecord, error) {
	f.calls++
	return f.byWallet[wallet], nil
}

func TestCountForCachesPerWallet(t *testing.T) {
	clock := core.NewFakeClock(core.FromTime(time.Unix(1_700_000_000, 0)))
	w1 := wallet(t, "11111111111111111111111111111111")
	w2 := wallet(t, "22222222222222222222222222222222")

	good := make([]core.TradeRecord, 5)
	for i := range good {
		good[i] = core.TradeRecord{Closed: true, RealizedPnL: 1}
	}

	hist := &fakeHistory{byWallet: map[ids.WalletId][]core.TradeRecord{w1: good}}
	holders := fakeHolders{wallets: []ids.WalletId{w1, w2}}

	tracker := New(clock, holders, hist, nil, 0, zerolog.Nop())
	mint, _ := ids.NewTokenId("33333333333333333333333333333333")

	count, smart := tracker.CountFor(context.Background(), mint)
	if count != 1 || len(smart) != 1 || smart[0] != w1 {
		t.Fatalf("expected 1 smart wallet (w1), got count=%d smart=%v", count, smart)
	}

	tracker.CountFor(context.Background(), mint)
	if hist.calls != 2 {
		t.Fatalf("expected 2 history fetches total (1 per wallet, cached second round), got %d", hist.calls)
	}
}

func TestCountForReturnsZeroOnHolderFetchError(t *testing.T) {
	clock := core.NewFakeClock(core.FromTime(time.Unix(1_700_000_000, 0)))
	holders := fakeHolders{err: errors.New("rpc down")}
	tracker := New(clock, holders, &fakeHistory{}, nil, 0, zerolog.Nop())
	mint, _ := ids.NewTokenId("33333333333333333333333333333333")

	count, smart := tracker.CountFor(context.Background(), mint)
	if count != 0 || smart != nil {
		t.Fatalf("expected (0, nil) on fetch error, got (%d, %v)", count, smart)
	}
}
