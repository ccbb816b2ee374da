package velocity

import (
	"fmt"
	"testing"
	"time"

	"memecore/internal/core"
	"memecore/internal/ids"
)

const mintA = ids.TokenId("MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

func trade(clock core.Clock, trader string, side core.Side, sig string) core.TradeEvent {
	return core.TradeEvent{
		Timestamp: clock.Now(),
		Mint:      mintA,
		Trader:    ids.WalletId(trader),
		Side:      side,
		SOLAmount: 1,
		Signature: sig,
	}
}

func TestMetricsCountBasedBuyPressure(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	tr := New(clock)

	tr.Record(trade(clock, "a", core.SideBuy, "s1"))
	tr.Record(trade(clock, "b", core.SideBuy, "s2"))
	tr.Record(trade(clock, "c", core.SideSell, "s3"))

	m, ok := tr.MetricsFor(mintA)
	if !ok {
		t.Fatal("expected metrics for recorded mint")
	}
	if m.TxCount != 3 || m.BuyCount != 2 || m.SellCount != 1 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.UniqueBuyers != 2 || m.UniqueSellers != 1 {
		t.Fatalf("unexpected unique counts: %+v", m)
	}
	want := 2.0 / 3.0
	if diff := m.BuyPressure - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected buy pressure %v, got %v", want, m.BuyPressure)
	}
}

func TestRecordDedupsBySignature(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	tr := New(clock)

	ev := trade(clock, "a", core.SideBuy, "same-sig")
	tr.Record(ev)
	tr.Record(ev)

	m, _ := tr.MetricsFor(mintA)
	if m.TxCount != 1 {
		t.Fatalf("replayed trade double-counted: tx_count=%d", m.TxCount)
	}
}

func TestMetricsExpireOutsideWindow(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	tr := New(clock)

	tr.Record(trade(clock, "a", core.SideBuy, "s1"))
	clock.Advance(61 * time.Second)
	tr.Record(trade(clock, "b", core.SideBuy, "s2"))

	m, _ := tr.MetricsFor(mintA)
	if m.TxCount != 1 {
		t.Fatalf("expected stale trade evicted, tx_count=%d", m.TxCount)
	}
}

func TestHasGoodVelocityGateOrder(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	tr := New(clock)

	for i := 0; i < 4; i++ {
		tr.Record(trade(clock, fmt.Sprintf("w%d", i), core.SideBuy, fmt.Sprintf("s%d", i)))
	}

	th := Thresholds{MaxMarketCapSOL: 100, MinTxCount: 3, MinUniqueBuyers: 3, MinBuyPressure: 0.6}

	if v := tr.HasGoodVelocity(mintA, 500, th); v.OK || v.Reason != "market cap above velocity ceiling" {
		t.Fatalf("expected mcap gate first, got %+v", v)
	}
	if v := tr.HasGoodVelocity(mintA, 50, th); !v.OK {
		t.Fatalf("expected pass, got %+v", v)
	}

	th.MinTxCount = 10
	if v := tr.HasGoodVelocity(mintA, 50, th); v.OK || v.Reason != "too few transactions" {
		t.Fatalf("expected tx gate, got %+v", v)
	}
}

func TestMomentumStrengthBands(t *testing.T) {
	cases := []struct {
		m    Metrics
		want Strength
	}{
		{Metrics{TxCount: 2, BuyCount: 2}, Unknown},
		{Metrics{TxCount: 12, BuyCount: 10, UniqueBuyers: 6, TxPerMinute: 12, BuyPressure: 10.0 / 12.0}, Strong},
		{Metrics{TxCount: 10, BuyCount: 4, TxPerMinute: 10, BuyPressure: 0.4}, Weak},
		{Metrics{TxCount: 10, BuyCount: 6, TxPerMinute: 2, BuyPressure: 0.6}, Weak},
		{Metrics{TxCount: 10, BuyCount: 6, UniqueBuyers: 4, TxPerMinute: 10, BuyPressure: 0.6}, Medium},
	}
	for i, c := range cases {
		if got := MomentumStrength(c.m); got != c.want {
			t.Errorf("case %d: expected %v, got %v", i, c.want, got)
		}
	}
}
