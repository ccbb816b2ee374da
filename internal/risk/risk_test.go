package risk

import (
	"testing"
	"time"

	"memecore/internal/core"
	"memecore/internal/velocity"
)

var cfg = Config{
	BasePositionSOL:        1.0,
	MaxPositionSOL:         0.8,
	MaxFractionPerTrade:    0.1,
	MaxConcurrentPositions: 3,
	MaxDrawdownFraction:    0.3,
	TiltedLossStreak:       3,
	DailyLossLimitSOL:      2.0,
	PauseDuration:          time.Hour,
}

func canTrade(s *State, at core.Timestamp) bool {
	ok, _ := s.CanTrade(cfg, at)
	return ok
}

func TestComputeSizeCapsAtMaxPosition(t *testing.T) {
	size := ComputeSize(cfg, 100, velocity.Strong, 1.0, 100)
	if size != cfg.MaxPositionSOL {
		t.Fatalf("expected cap at %v, got %v", cfg.MaxPositionSOL, size)
	}
}

func TestComputeSizeCapsAtFractionOfBalance(t *testing.T) {
	size := ComputeSize(cfg, 100, velocity.Strong, 1.0, 1.0)
	want := 1.0 * cfg.MaxFractionPerTrade
	if size != want {
		t.Fatalf("expected fraction cap %v, got %v", want, size)
	}
}

func TestComputeSizeScalesByScoreAndMomentum(t *testing.T) {
	size := ComputeSize(cfg, 50, velocity.Weak, 1.0, 1000)
	want := cfg.BasePositionSOL * 0.5 * 0.4
	if size != want {
		t.Fatalf("expected %v, got %v", want, size)
	}
}

func TestComputeSizeUnknownMomentumSizesLikeWeak(t *testing.T) {
	if ComputeSize(cfg, 80, velocity.Unknown, 1.0, 1000) != ComputeSize(cfg, 80, velocity.Weak, 1.0, 1000) {
		t.Fatal("unknown momentum should size like weak")
	}
}

func TestMoodMultiplierScalesSize(t *testing.T) {
	full := ComputeSize(cfg, 50, velocity.Medium, 1.0, 1000)
	half := ComputeSize(cfg, 50, velocity.Medium, 0.5, 1000)
	if diff := half - full/2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected half-sized position, got %v vs %v", half, full)
	}
}

func TestConsecutiveLossesTripsRisk(t *testing.T) {
	now := core.Now()
	s := NewState(10, now)

	var tripped bool
	var why string
	for i := 0; i < cfg.TiltedLossStreak; i++ {
		tripped, why = s.RecordTradeClose(cfg, -0.1, 10-float64(i)*0.1, now)
	}
	if !tripped || why != "consecutive losses" {
		t.Fatalf("expected trip on final loss, got tripped=%v why=%q", tripped, why)
	}

	paused, reason := s.Paused()
	if !paused || reason != "consecutive losses" {
		t.Fatalf("expected paused on consecutive losses, got paused=%v reason=%q", paused, reason)
	}
	if canTrade(s, now) {
		t.Fatal("expected CanTrade false while paused")
	}
}

func TestWinResetsLossStreak(t *testing.T) {
	now := core.Now()
	s := NewState(10, now)
	s.RecordTradeClose(cfg, -0.1, 10, now)
	s.RecordTradeClose(cfg, -0.1, 10, now)
	s.RecordTradeClose(cfg, 0.2, 10, now)
	s.RecordTradeClose(cfg, -0.1, 10, now)

	if paused, _ := s.Paused(); paused {
		t.Fatal("a win mid-streak must reset the loss counter")
	}
	if snap := s.Snapshot(); snap.ConsecutiveLosses != 1 {
		t.Fatalf("expected streak 1, got %d", snap.ConsecutiveLosses)
	}
}

func TestPauseExpiresAndReportsResume(t *testing.T) {
	now := core.Now()
	s := NewState(10, now)
	for i := 0; i < cfg.TiltedLossStreak; i++ {
		s.RecordTradeClose(cfg, -0.1, 10, now)
	}

	later := now.Add(cfg.PauseDuration + time.Second)
	ok, resumed := s.CanTrade(cfg, later)
	if !ok || !resumed {
		t.Fatalf("expected resume after pause expiry, got ok=%v resumed=%v", ok, resumed)
	}
	if _, resumed = s.CanTrade(cfg, later); resumed {
		t.Fatal("resume must be reported once")
	}
}

func TestDrawdownFromPeakTripsRisk(t *testing.T) {
	now := core.Now()
	s := NewState(10, now)
	s.RecordTradeClose(cfg, 5, 15, now)  // high-water mark 15
	s.RecordTradeClose(cfg, -5, 10, now) // drawdown 1-10/15 = 0.33 >= 0.3

	paused, reason := s.Paused()
	if !paused || reason != "max drawdown" {
		t.Fatalf("expected max drawdown trip, got paused=%v reason=%q", paused, reason)
	}
}

func TestDailyLossLimitTripsRisk(t *testing.T) {
	now := core.Now()
	s := NewState(10, now)
	s.RecordTradeClose(cfg, -1.2, 8.8, now)
	s.RecordTradeClose(cfg, 0.1, 8.9, now)
	tripped, why := s.RecordTradeClose(cfg, -1.0, 7.9, now)
	if !tripped || why != "daily loss limit" {
		t.Fatalf("expected daily loss trip, got tripped=%v why=%q", tripped, why)
	}
}

func TestConcurrencyCapBlocksNewTrades(t *testing.T) {
	now := core.Now()
	s := NewState(10, now)
	for i := 0; i < cfg.MaxConcurrentPositions; i++ {
		s.NotePositionOpened()
	}
	if canTrade(s, now) {
		t.Fatal("expected CanTrade false at concurrency cap")
	}
	s.NotePositionClosed()
	if !canTrade(s, now) {
		t.Fatal("expected CanTrade true after a position closes")
	}
}

func TestSnapshotDrawdownNeverNegative(t *testing.T) {
	now := core.Now()
	s := NewState(10, now)
	s.UpdateEquity(20)
	if snap := s.Snapshot(); snap.CurrentDrawdown != 0 {
		t.Fatalf("equity above high-water mark must show 0 drawdown, got %v", snap.CurrentDrawdown)
	}
}
