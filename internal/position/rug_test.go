package position

import (
	"fmt"
	"testing"
	"time"

	"memecore/internal/core"
	"memecore/internal/ids"
)

const creatorW = ids.WalletId("CreatorAAAAAAAAAAAAAAAAAAAAAAAAAA")

func rugTrade(clock core.Clock, trader string, side core.Side, solAmount, mcap, price float64) core.TradeEvent {
	return core.TradeEvent{
		Timestamp:    clock.Now(),
		Mint:         mintA,
		Trader:       ids.WalletId(trader),
		Side:         side,
		SOLAmount:    solAmount,
		MarketCapSOL: mcap,
		PriceSOL:     price,
	}
}

func TestCreatorLargeDumpIsImmediateExit(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)
	m.Watch(mintA, creatorW, 1.0)

	// A single creator sell worth 12% of mcap: the large-dump
	// critical rides on the creator's own sell, so it exits alone.
	alerts, exit := m.OnTrade(mintA, rugTrade(clock, string(creatorW), core.SideSell, 12, 100, 0.9))
	hasCritical := false
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			hasCritical = true
		}
	}
	if !hasCritical {
		t.Fatalf("12%% dump should be critical: %+v", alerts)
	}
	if !exit {
		t.Fatal("a creator sell dumping 12% of mcap must exit immediately")
	}
}

func TestRepeatCreatorSellsExit(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)
	m.Watch(mintA, creatorW, 1.0)

	// Two small creator sells: the first is a warning, the second a
	// creator-sell critical that exits on its own.
	_, exit := m.OnTrade(mintA, rugTrade(clock, string(creatorW), core.SideSell, 1, 100, 0.95))
	if exit {
		t.Fatal("a single small creator sell must not exit")
	}
	_, exit = m.OnTrade(mintA, rugTrade(clock, string(creatorW), core.SideSell, 1, 100, 0.9))
	if !exit {
		t.Fatal("second creator sell must force an exit")
	}
}

func TestTwoCriticalsWithinWindowExit(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)
	m.Watch(mintA, creatorW, 1.0)

	_, exit := m.OnTrade(mintA, rugTrade(clock, "whale-1", core.SideSell, 11, 100, 0.9))
	if exit {
		t.Fatal("one critical alone should not exit")
	}
	clock.Advance(10 * time.Second)
	_, exit = m.OnTrade(mintA, rugTrade(clock, "whale-2", core.SideSell, 11, 100, 0.8))
	if !exit {
		t.Fatal("two criticals within 60s must exit")
	}
}

func TestCriticalsExpireOutsideWindow(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)
	m.Watch(mintA, creatorW, 1.0)

	m.OnTrade(mintA, rugTrade(clock, "whale-1", core.SideSell, 11, 100, 0.9))
	clock.Advance(2 * time.Minute)
	_, exit := m.OnTrade(mintA, rugTrade(clock, "whale-2", core.SideSell, 11, 100, 0.8))
	if exit {
		t.Fatal("criticals two minutes apart must not combine")
	}
}

func TestSellRatioCritical(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)
	m.Watch(mintA, creatorW, 1.0)

	var sawRatioCritical bool
	for i := 0; i < 6; i++ {
		alerts, _ := m.OnTrade(mintA, rugTrade(clock, fmt.Sprintf("seller-%d", i), core.SideSell, 0.5, 100, 1.0))
		for _, a := range alerts {
			if a.Severity == SeverityCritical {
				sawRatioCritical = true
			}
		}
	}
	if !sawRatioCritical {
		t.Fatal("all-sell flow over 5 trades should raise a critical")
	}
}

func TestCollapseFromIntraHoldHigh(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)
	m.Watch(mintA, creatorW, 1.0)

	// Ride up to 2x, then a print 60% below the high.
	m.OnTrade(mintA, rugTrade(clock, "buyer-1", core.SideBuy, 1, 100, 2.0))
	alerts, _ := m.OnTrade(mintA, rugTrade(clock, "buyer-2", core.SideBuy, 1, 100, 0.8))

	found := false
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("60%% collapse after upside should be critical: %+v", alerts)
	}
}

func TestNoUpsideNoCollapseAlert(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)
	m.Watch(mintA, creatorW, 1.0)

	// Straight down from entry with no prior upside: stop-loss
	// territory, not a rug signature.
	alerts, _ := m.OnTrade(mintA, rugTrade(clock, "buyer-1", core.SideBuy, 1, 100, 0.4))
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			t.Fatalf("no-upside drawdown raised a critical: %+v", alerts)
		}
	}
}

func TestUnwatchedMintIgnored(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	m := NewRugMonitor(clock)

	alerts, exit := m.OnTrade(mintA, rugTrade(clock, "anyone", core.SideSell, 50, 100, 0.1))
	if alerts != nil || exit {
		t.Fatal("unwatched mint must be ignored")
	}
}
