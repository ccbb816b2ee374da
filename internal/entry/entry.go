// Package entry implements the two-tier Entry Evaluator: a fast
// "snipe" path for very young tokens judged on raw trade velocity,
// and a "safe" path driven by the Pump Detector for everything with
// enough price history. The two paths never cascade: a token inside
// the snipe window that fails the snipe gates waits, it is not
// re-judged against the pump gates.
package entry

import (
	"time"

	"memecore/internal/core"
	"memecore/internal/ids"
	"memecore/internal/pump"
	"memecore/internal/velocity"
)

// Config holds the tunables for both evaluation tiers.
type Config struct {
	SnipeMaxAge          time.Duration
	SnipeMinTx           int
	SnipeMinUniqueBuyers int
	SnipeMinBuyPressure  float64
	SnipeMaxMarketCapSOL float64

	MinDataPoints int
	MinPumpHeat   float64
}

// Source identifies which tier produced a Decision.
type Source int

const (
	SourceSnipe Source = iota
	SourcePump
)

func (s Source) String() string {
	if s == SourceSnipe {
		return "snipe"
	}
	return "pump"
}

// Outcome is the evaluator's verdict class.
type Outcome int

const (
	// Enter approves opening a position now.
	Enter Outcome = iota
	// Wait defers: the token is too young to judge, re-evaluate on
	// the next event.
	Wait
	// Skip rejects this evaluation.
	Skip
)

func (o Outcome) String() string {
	switch o {
	case Enter:
		return "enter"
	case Wait:
		return "wait"
	default:
		return "skip"
	}
}

// Decision is the evaluator's full verdict, carrying whichever tier's
// metrics informed it.
type Decision struct {
	Outcome  Outcome
	Source   Source
	Reason   string
	Velocity velocity.Metrics
	Pump     pump.Metrics
}

// Evaluator routes candidate tokens through the snipe or safe tier.
type Evaluator struct {
	cfg      Config
	velocity *velocity.Tracker
	detector *pump.Detector
}

// New creates an Evaluator over the shared velocity tracker and pump
// detector.
func New(cfg Config, vel *velocity.Tracker, det *pump.Detector) *Evaluator {
	return &Evaluator{cfg: cfg, velocity: vel, detector: det}
}

// Evaluate classifies mint into exactly one tier by age and applies
// that tier's gates. prices is the watchlist's retained series,
// oldest first; marketCapSOL is from the latest sample.
func (e *Evaluator) Evaluate(mint ids.TokenId, age time.Duration, prices []core.PriceSample, marketCapSOL float64, now core.Timestamp) Decision {
	if age <= e.cfg.SnipeMaxAge {
		return e.evaluateSnipe(mint, age, marketCapSOL)
	}
	return e.evaluateSafe(mint, prices, now)
}

func (e *Evaluator) evaluateSnipe(mint ids.TokenId, age time.Duration, marketCapSOL float64) Decision {
	verdict := e.velocity.HasGoodVelocity(mint, marketCapSOL, velocity.Thresholds{
		MaxMarketCapSOL: e.cfg.SnipeMaxMarketCapSOL,
		MinTxCount:      e.cfg.SnipeMinTx,
		MinUniqueBuyers: e.cfg.SnipeMinUniqueBuyers,
		MinBuyPressure:  e.cfg.SnipeMinBuyPressure,
	})
	if verdict.OK {
		return Decision{Outcome: Enter, Source: SourceSnipe, Reason: "snipe gates satisfied", Velocity: verdict.Metrics}
	}

	// Still inside the snipe window: the gates may yet fill in, so
	// wait for more trades rather than rejecting.
	if age < e.cfg.SnipeMaxAge {
		return Decision{Outcome: Wait, Source: SourceSnipe, Reason: "young", Velocity: verdict.Metrics}
	}
	return Decision{Outcome: Skip, Source: SourceSnipe, Reason: verdict.Reason, Velocity: verdict.Metrics}
}

func (e *Evaluator) evaluateSafe(mint ids.TokenId, prices []core.PriceSample, now core.Timestamp) Decision {
	if len(prices) < e.cfg.MinDataPoints {
		return Decision{Outcome: Skip, Source: SourcePump, Reason: "insufficient price history"}
	}

	vm, haveVM := e.velocity.MetricsFor(mint)
	m := e.detector.Evaluate(mint, prices, vm, haveVM, now)

	if pump.IsGoodEntry(m, e.cfg.MinPumpHeat) {
		return Decision{Outcome: Enter, Source: SourcePump, Reason: "phase " + m.Phase.String(), Velocity: vm, Pump: m}
	}
	return Decision{Outcome: Skip, Source: SourcePump, Reason: "phase " + m.Phase.String() + " not a good entry", Velocity: vm, Pump: m}
}
