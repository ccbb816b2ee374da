package storage

import (
	"context"
	"path/filepath"
	"testing"

	"memecore/internal/core"
	"memecore/internal/ids"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Shutdown() })
	return db
}

func TestTradeJournalOpenCloseRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := core.TradeRecord{
		ID:            "pos-1",
		Mint:          ids.TokenId("So11111111111111111111111111111111111111112"),
		Symbol:        "TEST",
		EntryTime:     core.Timestamp(1000),
		EntryPriceSOL: 0.001,
		EntryAmount:   1.0,
		EntryTokens:   1000,
	}
	if err := db.Open(ctx, rec); err != nil {
		t.Fatalf("Open: %v", err)
	}

	recent, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Closed {
		t.Fatalf("expected one open trade, got %+v", recent)
	}

	err = db.Close(ctx, "pos-1", core.ExitRecord{
		ExitTime:    core.Timestamp(2000),
		Reason:      "take_profit",
		RealizedPnL: 0.5,
	})
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	recent, err = db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || !recent[0].Closed || recent[0].RealizedPnL != 0.5 {
		t.Fatalf("expected closed trade with pnl 0.5, got %+v", recent)
	}
}

func TestForTrainingFiltersByWindow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, ts := range []int64{1, 2, 3} {
		rec := core.TradeRecord{
			ID:        ids.TokenId("mint").String() + string(rune('a'+i)),
			Mint:      ids.TokenId("mint"),
			EntryTime: core.Timestamp(ts),
		}
		if err := db.Open(ctx, rec); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}

	trades, err := db.ForTraining(ctx, 0)
	if err != nil {
		t.Fatalf("ForTraining: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades with weeks=0 (no filter), got %d", len(trades))
	}
}

func TestSnapshotStorePutAndHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, ts := range []int64{1000, 2000, 3000} {
		snap := core.EquitySnapshot{
			Timestamp:      core.Timestamp(ts),
			WalletSOL:      10,
			TotalEquitySOL: 12,
			Source:         core.SnapshotPeriodic,
		}
		if err := db.Put(ctx, snap); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	history, err := db.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(history))
	}
	if history[0].Timestamp > history[len(history)-1].Timestamp {
		t.Error("expected snapshots ordered oldest first")
	}
}
