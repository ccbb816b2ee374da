// Package risk implements the Risk Guard: position sizing, the
// daily-loss and consecutive-loss circuit breakers, and the
// concurrency cap.
package risk

import (
	"sync"
	"time"

	"memecore/internal/core"
	"memecore/internal/velocity"
)

// Config holds the Risk Guard's tunables.
type Config struct {
	BasePositionSOL        float64
	MaxPositionSOL         float64
	MaxFractionPerTrade    float64 // of available balance
	MaxConcurrentPositions int

	MaxDrawdownFraction float64 // of peak equity; trips a pause
	TiltedLossStreak    int     // consecutive losses that trip a pause
	DailyLossLimitSOL   float64 // daily realized PnL floor; trips a pause

	PauseDuration time.Duration
}

// momentumMultiplier scales position size by the Velocity Tracker's
// momentum strength classification. Unknown momentum sizes like Weak:
// too little data is not a reason to bet big.
func momentumMultiplier(s velocity.Strength) float64 {
	switch s {
	case velocity.Strong:
		return 1.0
	case velocity.Medium:
		return 0.7
	default:
		return 0.4
	}
}

// ComputeSize derives a position size in SOL from the token score
// (0-100), the momentum strength, and the available balance, with an
// optional external multiplier (1.0 when unused). The result is
// capped by MaxPositionSOL and by available*MaxFractionPerTrade.
func ComputeSize(cfg Config, score float64, momentum velocity.Strength, moodMultiplier, availableBalanceSOL float64) float64 {
	if moodMultiplier <= 0 {
		moodMultiplier = 1.0
	}

	size := cfg.BasePositionSOL * (score / 100) * momentumMultiplier(momentum) * moodMultiplier

	if size > cfg.MaxPositionSOL {
		size = cfg.MaxPositionSOL
	}
	if cap := availableBalanceSOL * cfg.MaxFractionPerTrade; size > cap {
		size = cap
	}
	if size < 0 {
		size = 0
	}
	return size
}

// Snapshot is a read-only copy of the guard's state.
type Snapshot struct {
	Paused            bool
	PauseReason       string
	PauseUntil        core.Timestamp
	DailyPnLSOL       float64
	HighWaterMarkSOL  float64
	CurrentDrawdown   float64
	ConsecutiveLosses int
	ConsecutiveWins   int
	OpenPositions     int
}

// State tracks the Risk Guard's rolling equity and trip state. All
// mutation goes through its methods; safe for concurrent use.
type State struct {
	mu sync.Mutex

	highWaterMarkSOL float64
	lastEquitySOL    float64
	dailyPnLSOL      float64
	dailyResetAt     core.Timestamp
	consecutiveLoss  int
	consecutiveWin   int
	openPositions    int

	paused      bool
	pauseUntil  core.Timestamp
	pauseReason string
}

// NewState creates a State with the given starting equity as its
// initial high-water mark.
func NewState(startingEquitySOL float64, now core.Timestamp) *State {
	return &State{
		highWaterMarkSOL: startingEquitySOL,
		lastEquitySOL:    startingEquitySOL,
		dailyResetAt:     now,
	}
}

// RecordTradeClose folds a closed trade's realized PnL into the
// rolling daily total and win/loss streaks, advances the high-water
// mark, and evaluates the pause triggers. It reports whether this
// close tripped a pause, and the reason.
func (s *State) RecordTradeClose(cfg Config, realizedPnL, currentEquitySOL float64, now core.Timestamp) (tripped bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolloverDailyLocked(now)

	s.dailyPnLSOL += realizedPnL
	if realizedPnL < 0 {
		s.consecutiveLoss++
		s.consecutiveWin = 0
	} else {
		s.consecutiveWin++
		s.consecutiveLoss = 0
	}

	s.lastEquitySOL = currentEquitySOL
	if currentEquitySOL > s.highWaterMarkSOL {
		s.highWaterMarkSOL = currentEquitySOL
	}

	return s.evaluateTripsLocked(cfg, now)
}

func (s *State) rolloverDailyLocked(now core.Timestamp) {
	if now.Sub(s.dailyResetAt) >= 24*time.Hour {
		s.dailyPnLSOL = 0
		s.dailyResetAt = now
	}
}

func (s *State) drawdownLocked() float64 {
	if s.highWaterMarkSOL <= 0 {
		return 0
	}
	d := 1 - s.lastEquitySOL/s.highWaterMarkSOL
	if d < 0 {
		return 0
	}
	return d
}

func (s *State) evaluateTripsLocked(cfg Config, now core.Timestamp) (bool, string) {
	if s.paused {
		return false, ""
	}

	var reason string
	switch {
	case cfg.MaxDrawdownFraction > 0 && s.drawdownLocked() >= cfg.MaxDrawdownFraction:
		reason = "max drawdown"
	case cfg.TiltedLossStreak > 0 && s.consecutiveLoss >= cfg.TiltedLossStreak:
		reason = "consecutive losses"
	case cfg.DailyLossLimitSOL > 0 && s.dailyPnLSOL <= -cfg.DailyLossLimitSOL:
		reason = "daily loss limit"
	default:
		return false, ""
	}

	s.paused = true
	s.pauseReason = reason
	s.pauseUntil = now.Add(cfg.PauseDuration)
	return true, reason
}

// CanTrade reports whether a new position may be opened: not paused
// (or the pause has expired) and under the concurrency cap. The
// second result reports whether this call resumed an expired pause.
func (s *State) CanTrade(cfg Config, now core.Timestamp) (ok, resumed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		if now.Before(s.pauseUntil) {
			return false, false
		}
		s.paused = false
		s.pauseReason = ""
		resumed = true
	}

	return s.openPositions < cfg.MaxConcurrentPositions, resumed
}

// NotePositionOpened increments the open-position counter.
func (s *State) NotePositionOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPositions++
}

// NotePositionClosed decrements the open-position counter.
func (s *State) NotePositionClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openPositions > 0 {
		s.openPositions--
	}
}

// UpdateEquity folds a fresh equity reading into the drawdown
// tracking outside of a trade close (periodic snapshots).
func (s *State) UpdateEquity(equitySOL float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEquitySOL = equitySOL
	if equitySOL > s.highWaterMarkSOL {
		s.highWaterMarkSOL = equitySOL
	}
}

// Paused reports whether the guard is currently in a tripped pause,
// and why.
func (s *State) Paused() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, s.pauseReason
}

// ForcePause trips a pause regardless of state, for operator override
// via the control surface.
func (s *State) ForcePause(reason string, until core.Timestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.pauseReason = reason
	s.pauseUntil = until
}

// ForceResume clears a pause regardless of its expiry.
func (s *State) ForceResume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.pauseReason = ""
}

// Snapshot returns a read-only copy of the guard's state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Paused:            s.paused,
		PauseReason:       s.pauseReason,
		PauseUntil:        s.pauseUntil,
		DailyPnLSOL:       s.dailyPnLSOL,
		HighWaterMarkSOL:  s.highWaterMarkSOL,
		CurrentDrawdown:   s.drawdownLocked(),
		ConsecutiveLosses: s.consecutiveLoss,
		ConsecutiveWins:   s.consecutiveWin,
		OpenPositions:     s.openPositions,
	}
}
