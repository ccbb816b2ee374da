package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"memecore/internal/core"
	"memecore/internal/entry"
	"memecore/internal/events"
	"memecore/internal/ids"
	"memecore/internal/position"
	"memecore/internal/pump"
	"memecore/internal/risk"
	"memecore/internal/safety"
	"memecore/internal/scoring"
	"memecore/internal/smartmoney"
	"memecore/internal/velocity"
	"memecore/internal/watchlist"
)

const creatorA = ids.WalletId("CreatorAAAAAAAAAAAAAAAAAAAAAAAAAA")

type stubSafety struct{ result safety.Result }

func (s stubSafety) Check(ctx context.Context, mint ids.TokenId) (safety.Result, bool, error) {
	return s.result, false, nil
}

type stubHolders struct{ holders []scoring.Holder }

func (s stubHolders) TopHolders(ctx context.Context, mint ids.TokenId) ([]scoring.Holder, error) {
	return s.holders, nil
}

type stubWalletFetcher struct{}

func (stubWalletFetcher) Holders(ctx context.Context, mint ids.TokenId) ([]ids.WalletId, error) {
	return nil, nil
}

type stubHistory struct{}

func (stubHistory) History(ctx context.Context, wallet ids.WalletId) ([]core.TradeRecord, error) {
	return nil, nil
}

type recordingExecutor struct {
	buys  int
	sells int
}

func (e *recordingExecutor) Buy(ctx context.Context, mint ids.TokenId, amountSOL float64, slippageBps int, urgency core.Urgency) (core.SwapResult, error) {
	e.buys++
	return core.SwapResult{Signature: "buy-sig", TokensReceived: 1_000_000, PriceEffective: 0.0001}, nil
}

func (e *recordingExecutor) Sell(ctx context.Context, mint ids.TokenId, tokenAmount float64, slippageBps int, urgency core.Urgency) (core.SwapResult, error) {
	e.sells++
	return core.SwapResult{Signature: "sell-sig", SOLReceived: tokenAmount * 0.0001}, nil
}

func (e *recordingExecutor) TokenBalance(ctx context.Context, mint ids.TokenId) (uint64, error) {
	return 1_000_000, nil
}

func (e *recordingExecutor) WalletBalanceSOL(ctx context.Context) (float64, error) {
	return 100, nil
}

func newTestOrchestrator(clock *core.FakeClock, exec core.SwapExecutor) (*Orchestrator, *watchlist.Watchlist, *velocity.Tracker, *events.Bus) {
	bus := events.NewBus()
	wl := watchlist.New(watchlist.Config{
		MinDataPoints:    5,
		MinAgeSeconds:    180,
		MaxDrawdownFromPeak: 0.5,
		MinMarketCapSOL:  10,
		MinUniqueTraders: 2,
	}, clock, bus)
	vel := velocity.New(clock)
	det := pump.New()
	eval := entry.New(entry.Config{
		SnipeMaxAge:          60 * time.Second,
		SnipeMinTx:           5,
		SnipeMinUniqueBuyers: 3,
		SnipeMinBuyPressure:  0.6,
		SnipeMaxMarketCapSOL: 200,
		MinDataPoints:        5,
		MinPumpHeat:          25,
	}, vel, det)
	smart := smartmoney.New(clock, stubWalletFetcher{}, stubHistory{}, nil, 0, zerolog.Nop())
	positions := position.NewTracker(3)
	rug := position.NewRugMonitor(clock)
	riskState := risk.NewState(100, clock.Now())

	o := New(Config{
		EnableTrading:   true,
		MinScoreToTrade: 50,
		SlippageBps:     500,
		Position: position.Config{
			StopLossFraction: 0.25,
			TPLadder:         []position.TPStep{{Multiple: 1.5, SellFraction: 0.5}},
			TrailingActivationMultiple: 2.0,
			TrailingDrawdownFraction:   0.25,
			MaxSellRetries:             3,
			SellRetryBaseDelay:         time.Millisecond,
		},
		Risk: risk.Config{
			BasePositionSOL:        1,
			MaxPositionSOL:         1,
			MaxFractionPerTrade:    0.1,
			MaxConcurrentPositions: 3,
			PauseDuration:          time.Hour,
		},
	}, clock, wl, vel, det,
		stubSafety{result: safety.Result{Safe: true}},
		smart,
		stubHolders{holders: []scoring.Holder{{Wallet: "w1", Percent: 0.05}}},
		eval, positions, rug, riskState, exec, nil, bus, zerolog.Nop())
	o.ctx = context.Background()
	return o, wl, vel, bus
}

// driveHealthyToken walks a token through discovery, a busy snipe-age
// window, and enough price history to clear the hard filters.
func driveHealthyToken(o *Orchestrator, wl *watchlist.Watchlist, vel *velocity.Tracker, clock *core.FakeClock, mint ids.TokenId) {
	o.onNewToken(core.NewTokenEvent{Timestamp: clock.Now(), Mint: mint, Creator: creatorA, Symbol: "TEST"})

	for i := 0; i < 8; i++ {
		tr := core.TradeEvent{
			Timestamp: clock.Now(),
			Mint:      mint,
			Trader:    ids.WalletId(fmt.Sprintf("buyer-%d", i)),
			Side:      core.SideBuy,
			SOLAmount: 1,
			PriceSOL:  0.0001,
			Signature: fmt.Sprintf("sig-%d", i),
		}
		vel.Record(tr)
		wl.RecordTrade(mint, tr)
	}

	// Age past the hard filter, then lay down fresh price samples.
	clock.Advance(200 * time.Second)
	for i := 0; i < 6; i++ {
		wl.RecordPrice(mint, core.PriceSample{
			Timestamp:    clock.Now(),
			Mint:         mint,
			PriceSOL:     0.0001 * (1 + float64(i)*0.02),
			MarketCapSOL: 100,
			Liquidity:    60_000,
		})
		clock.Advance(time.Second)
	}
	// Keep the trade window warm at evaluation time.
	for i := 0; i < 8; i++ {
		tr := core.TradeEvent{
			Timestamp: clock.Now(),
			Mint:      mint,
			Trader:    ids.WalletId(fmt.Sprintf("late-buyer-%d", i)),
			Side:      core.SideBuy,
			SOLAmount: 1,
			PriceSOL:  0.00011,
			Signature: fmt.Sprintf("late-sig-%d", i),
		}
		vel.Record(tr)
		wl.RecordTrade(mint, tr)
	}
}

func TestPipelineOpensPositionOnHealthyToken(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000_000))
	exec := &recordingExecutor{}
	o, wl, vel, bus := newTestOrchestrator(clock, exec)
	sub := bus.Subscribe(64)

	driveHealthyToken(o, wl, vel, clock, mintA)
	o.evaluate(mintA)

	if exec.buys != 1 {
		t.Fatalf("expected exactly one buy, got %d", exec.buys)
	}
	if !o.positions.Has(mintA) {
		t.Fatal("expected an open position")
	}

	var approved bool
	drainEvents(sub, func(e any) {
		if d, ok := e.(events.TradeDecision); ok && d.Approve {
			approved = true
		}
	})
	if !approved {
		t.Fatal("no approving TradeDecision published")
	}
}

func TestPipelineRejectsUnsafeToken(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000_000))
	exec := &recordingExecutor{}
	o, wl, vel, _ := newTestOrchestrator(clock, exec)
	o.safety = stubSafety{result: safety.Result{
		Safe:  false,
		Risks: []safety.RiskKind{safety.MintAuthorityActive},
	}}

	driveHealthyToken(o, wl, vel, clock, mintA)
	o.evaluate(mintA)

	if exec.buys != 0 {
		t.Fatalf("unsafe token bought %d times", exec.buys)
	}
}

func TestPipelineStopLossSellsInFull(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000_000))
	exec := &recordingExecutor{}
	o, wl, vel, bus := newTestOrchestrator(clock, exec)
	sub := bus.Subscribe(64)

	driveHealthyToken(o, wl, vel, clock, mintA)
	o.evaluate(mintA)
	if !o.positions.Has(mintA) {
		t.Fatal("setup: no position opened")
	}

	// A tick far below entry trips the stop loss.
	o.onPrice(core.PriceSample{Timestamp: clock.Now(), Mint: mintA, PriceSOL: 0.00001, MarketCapSOL: 100})

	if exec.sells != 1 {
		t.Fatalf("expected one full-exit sell, got %d", exec.sells)
	}
	if o.positions.Has(mintA) {
		t.Fatal("position should be closed and removed")
	}

	var closed bool
	drainEvents(sub, func(e any) {
		if c, ok := e.(events.PositionClosed); ok && c.Reason == string(position.ExitStopLoss) {
			closed = true
		}
	})
	if !closed {
		t.Fatal("no PositionClosed(stop_loss) event")
	}
}

func TestPipelineNoPumpExitAtALoss(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000_000))
	exec := &recordingExecutor{}
	o, wl, vel, _ := newTestOrchestrator(clock, exec)

	driveHealthyToken(o, wl, vel, clock, mintA)
	o.evaluate(mintA)
	if !o.positions.Has(mintA) {
		t.Fatal("setup: no position opened")
	}

	// Let the entry-window buys age out, then a sell-only dump: the
	// detector will classify Dumping, but the position is under water
	// (and above the stop), so momentum alone must not exit it.
	clock.Advance(70 * time.Second)
	for i := 0; i < 8; i++ {
		tr := core.TradeEvent{
			Timestamp: clock.Now(),
			Mint:      mintA,
			Trader:    ids.WalletId(fmt.Sprintf("dumper-%d", i)),
			Side:      core.SideSell,
			SOLAmount: 1,
			PriceSOL:  0.00009,
			Signature: fmt.Sprintf("dump-sig-%d", i),
		}
		vel.Record(tr)
		wl.RecordTrade(mintA, tr)
	}
	for i := 0; i < 5; i++ {
		wl.RecordPrice(mintA, core.PriceSample{
			Timestamp:    clock.Now(),
			Mint:         mintA,
			PriceSOL:     0.00011 - float64(i)*0.0000075,
			MarketCapSOL: 100,
		})
		clock.Advance(2 * time.Second)
	}

	// -20% from entry: below break-even, above the 25% stop.
	o.onPrice(core.PriceSample{Timestamp: clock.Now(), Mint: mintA, PriceSOL: 0.00008, MarketCapSOL: 100})

	if exec.sells != 0 {
		t.Fatalf("losing position exited on momentum: %d sells", exec.sells)
	}
	if !o.positions.Has(mintA) {
		t.Fatal("position should still be open")
	}
}

func drainEvents(ch <-chan any, fn func(any)) {
	for {
		select {
		case e := <-ch:
			fn(e)
		default:
			return
		}
	}
}
