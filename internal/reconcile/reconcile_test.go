package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"memecore/internal/core"
	"memecore/internal/events"
	"memecore/internal/ids"
	"memecore/internal/position"
	"memecore/internal/risk"
)

const (
	mintA = ids.TokenId("MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	mintB = ids.TokenId("MintBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
)

type stubExecutor struct {
	tokenBalances map[ids.TokenId]uint64
	walletSOL     float64
}

func (s *stubExecutor) Buy(ctx context.Context, mint ids.TokenId, amountSOL float64, slippageBps int, urgency core.Urgency) (core.SwapResult, error) {
	return core.SwapResult{}, nil
}

func (s *stubExecutor) Sell(ctx context.Context, mint ids.TokenId, tokenAmount float64, slippageBps int, urgency core.Urgency) (core.SwapResult, error) {
	return core.SwapResult{}, nil
}

func (s *stubExecutor) TokenBalance(ctx context.Context, mint ids.TokenId) (uint64, error) {
	return s.tokenBalances[mint], nil
}

func (s *stubExecutor) WalletBalanceSOL(ctx context.Context) (float64, error) {
	return s.walletSOL, nil
}

func (s *stubExecutor) AllTokenBalances(ctx context.Context) (map[ids.TokenId]uint64, error) {
	return s.tokenBalances, nil
}

func newReconciler(exec *stubExecutor, positions *position.Tracker, riskState *risk.State) (*Reconciler, *events.Bus) {
	bus := events.NewBus()
	cfg := Config{
		Interval: time.Second,
		Risk:     risk.Config{MaxConcurrentPositions: 5, PauseDuration: time.Hour},
	}
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	r := New(cfg, clock, exec, exec, positions, riskState, nil, nil, bus, zerolog.Nop())
	return r, bus
}

func TestPhantomPositionClosedWithFullLoss(t *testing.T) {
	positions := position.NewTracker(5)
	p := position.Open(mintA, "TEST", 1.0, 1_000_000, 0.5, core.PoolBondingCurve, core.Timestamp(1_000_000))
	positions.Add(p)

	riskState := risk.NewState(10, core.Timestamp(1_000_000))
	riskState.NotePositionOpened()

	exec := &stubExecutor{tokenBalances: map[ids.TokenId]uint64{mintA: 100}, walletSOL: 9.5}
	r, bus := newReconciler(exec, positions, riskState)
	sub := bus.Subscribe(16)

	r.Reconcile(context.Background())

	if positions.Has(mintA) {
		t.Fatal("phantom position still tracked")
	}
	if s := p.Snapshot(); s.RealizedPnL != -0.5 || s.CloseReason != position.ExitPhantom {
		t.Fatalf("unexpected close: %+v", s)
	}
	if snap := riskState.Snapshot(); snap.ConsecutiveLosses != 1 {
		t.Fatalf("phantom must count as a loss, got %+v", snap)
	}

	var sawPhantom bool
	for {
		select {
		case e := <-sub:
			if _, ok := e.(events.PhantomDetected); ok {
				sawPhantom = true
			}
		default:
			if !sawPhantom {
				t.Fatal("no PhantomDetected event")
			}
			return
		}
	}
}

func TestHealthyPositionUntouched(t *testing.T) {
	positions := position.NewTracker(5)
	p := position.Open(mintA, "TEST", 1.0, 1_000_000, 0.5, core.PoolBondingCurve, core.Timestamp(1_000_000))
	positions.Add(p)

	exec := &stubExecutor{tokenBalances: map[ids.TokenId]uint64{mintA: 900_000}, walletSOL: 10}
	r, _ := newReconciler(exec, positions, risk.NewState(10, core.Timestamp(1_000_000)))

	r.Reconcile(context.Background())

	if !positions.Has(mintA) || p.IsClosed() {
		t.Fatal("healthy position must survive reconciliation")
	}
}

func TestOrphanBalanceReported(t *testing.T) {
	positions := position.NewTracker(5)
	exec := &stubExecutor{tokenBalances: map[ids.TokenId]uint64{mintB: 5_000}, walletSOL: 10}
	r, bus := newReconciler(exec, positions, risk.NewState(10, core.Timestamp(1_000_000)))
	sub := bus.Subscribe(16)

	r.Reconcile(context.Background())

	for {
		select {
		case e := <-sub:
			if orphan, ok := e.(events.OrphanDetected); ok {
				if orphan.Mint != mintB || orphan.Balance != 5_000 {
					t.Fatalf("unexpected orphan: %+v", orphan)
				}
				return
			}
		default:
			t.Fatal("no OrphanDetected event")
		}
	}
}
