// Package events implements the typed observer fan-out used by the
// pipeline orchestrator: every component emits a concrete, named
// struct instead of a dynamic string label, and a Bus delivers copies
// to every subscriber without guaranteeing cross-mint ordering.
package events

import (
	"sync"

	"memecore/internal/core"
	"memecore/internal/ids"
)

// TokenDiscovered fires when a NewTokenEvent is first seen.
type TokenDiscovered struct {
	Mint    ids.TokenId
	Creator ids.WalletId
	Symbol  string
	At      core.Timestamp
}

// TokenAdded fires from the Watchlist on add (idempotent; only the
// first add for a mint emits).
type TokenAdded struct {
	Mint    ids.TokenId
	Creator ids.WalletId
	At      core.Timestamp
}

// TokenRemoved fires when the Watchlist evicts a token.
type TokenRemoved struct {
	Mint   ids.TokenId
	Reason string
	At     core.Timestamp
}

// TokenReady fires the first time a token accumulates min_data_points
// price samples.
type TokenReady struct {
	Mint ids.TokenId
	At   core.Timestamp
}

// DevSold fires the first time a creator's cumulative sell fraction
// crosses the dev-dump threshold for a mint.
type DevSold struct {
	Mint           ids.TokenId
	SoldPercent    float64
	ThresholdUsed  float64
	At             core.Timestamp
}

// SafetyCheck reports a completed safety analysis.
type SafetyCheck struct {
	Mint   ids.TokenId
	Safe   bool
	Risks  []string
	Cached bool
	At     core.Timestamp
}

// SmartMoneyCheck reports a completed smart-money holder count.
type SmartMoneyCheck struct {
	Mint  ids.TokenId
	Count int
	At    core.Timestamp
}

// TradeDecision reports the orchestrator's approve/reject verdict for
// a candidate entry.
type TradeDecision struct {
	Mint     ids.TokenId
	Approve  bool
	SizeSOL  float64
	Score    float64
	Reasons  []string
	At       core.Timestamp
}

// TradeExecuted reports a completed swap submission.
type TradeExecuted struct {
	Mint      ids.TokenId
	Side      core.Side
	Signature string
	Success   bool
	At        core.Timestamp
}

// PositionOpened reports a new open position.
type PositionOpened struct {
	PositionID string
	Mint       ids.TokenId
	SizeSOL    float64
	EntryPrice float64
	At         core.Timestamp
}

// PartialClose reports a take-profit ladder step firing.
type PartialClose struct {
	PositionID string
	Mint       ids.TokenId
	LadderStep int
	FractionSold float64
	Price      float64
	At         core.Timestamp
}

// PositionClosed reports a position's terminal transition.
type PositionClosed struct {
	PositionID  string
	Mint        ids.TokenId
	Reason      string
	RealizedPnL float64
	At          core.Timestamp
}

// RugAlert reports a rug-monitor warning or critical signal.
type RugAlert struct {
	Mint     ids.TokenId
	Severity string // "warning" | "critical"
	Reason   string
	At       core.Timestamp
}

// PhantomDetected reports a reconciled phantom position.
type PhantomDetected struct {
	Mint ids.TokenId
	At   core.Timestamp
}

// OrphanDetected reports a positive on-chain balance with no matching
// Position; purely advisory, never acted on automatically.
type OrphanDetected struct {
	Mint    ids.TokenId
	Balance uint64
	At      core.Timestamp
}

// RiskPaused reports the Risk Guard entering a paused state.
type RiskPaused struct {
	Reason    string
	Until     core.Timestamp
	At        core.Timestamp
}

// RiskResumed reports the Risk Guard leaving a paused state.
type RiskResumed struct {
	At core.Timestamp
}

// StatsUpdate carries a periodic aggregate-stats snapshot.
type StatsUpdate struct {
	OpenPositions int
	DailyPnLSOL   float64
	CacheHitRate  float64
	At            core.Timestamp
}

// SoftFailure reports a stage that exhausted retries on a transient
// external error; the evaluation was skipped, nothing was cached.
type SoftFailure struct {
	Mint  ids.TokenId
	Stage string
	Err   string
	At    core.Timestamp
}

// InvariantViolation reports a logical error: an operation aborted
// without crashing the pipeline.
type InvariantViolation struct {
	Component string
	Detail    string
	At        core.Timestamp
}

// Bus is a minimal typed publish/subscribe fan-out. Subscribers
// receive every event published after they subscribe; delivery across
// different subscribers (and across mints) carries no ordering
// guarantee: emissions are advisory.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan any
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives all future published
// events. The channel is buffered; a slow subscriber drops events
// rather than blocking publishers.
func (b *Bus) Subscribe(buffer int) <-chan any {
	ch := make(chan any, buffer)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers event to every current subscriber, non-blocking.
func (b *Bus) Publish(event any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// slow subscriber; drop rather than block the pipeline.
		}
	}
}
