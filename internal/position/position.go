// Package position implements the Position Manager: position
// lifecycle (open, price ticks, partial and full exits, phantom
// reconciliation), the take-profit ladder, trailing stop, and the rug
// monitor.
package position

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"memecore/internal/core"
	"memecore/internal/ids"
)

// Status is a position's lifecycle state.
type Status int

const (
	StatusOpen Status = iota
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "open"
	}
}

// ExitReason names why a position was (or is being) closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTrailing   ExitReason = "trailing_stop"
	ExitRug        ExitReason = "rug_detected"
	ExitPump       ExitReason = "pump_exit"
	ExitPhantom    ExitReason = "phantom"
	ExitManual     ExitReason = "manual"
	ExitSellFailed ExitReason = "sell_failed"
)

// TPStep is one take-profit ladder rung: at Multiple times the entry
// price, sell SellFraction of the original token amount.
type TPStep struct {
	Multiple     float64
	SellFraction float64
}

// Config holds the tunables governing a position's exit machinery.
type Config struct {
	StopLossFraction           float64
	TPLadder                   []TPStep
	TrailingActivationMultiple float64
	TrailingDrawdownFraction   float64
	MaxSellRetries             int
	SellRetryBaseDelay         time.Duration

	// PhantomBalanceFraction is the on-chain balance, as a fraction
	// of entry tokens, below which a position counts as phantom.
	PhantomBalanceFraction float64
}

// Position is a single open (or closing) trade.
type Position struct {
	ID            uuid.UUID
	Mint          ids.TokenId
	Symbol        string
	EntryTime     core.Timestamp
	EntryPriceSOL float64
	EntryTokens   float64
	SizeSOL       float64
	PoolType      core.PoolType

	mu sync.RWMutex

	highestPrice      float64
	lastPrice         float64
	remainingFraction float64 // of EntryTokens still held, starts at 1.0
	tpSold            []bool  // parallel to Config.TPLadder

	trailingActive bool

	partialRealizedSOL float64 // accumulated proceeds from ladder sells

	status      Status
	closeReason ExitReason
	closeTime   core.Timestamp
	realizedPnL float64

	sellFailures int
}

// Open constructs a new Position from a completed entry swap.
func Open(mint ids.TokenId, symbol string, entryPriceSOL, entryTokens, sizeSOL float64, poolType core.PoolType, now core.Timestamp) *Position {
	return &Position{
		ID:                uuid.New(),
		Mint:              mint,
		Symbol:            symbol,
		EntryTime:         now,
		EntryPriceSOL:     entryPriceSOL,
		EntryTokens:       entryTokens,
		SizeSOL:           sizeSOL,
		PoolType:          poolType,
		highestPrice:      entryPriceSOL,
		lastPrice:         entryPriceSOL,
		remainingFraction: 1.0,
	}
}

// Snapshot is a read-only copy for display and reporting.
type Snapshot struct {
	ID                 uuid.UUID
	Mint               ids.TokenId
	Symbol             string
	EntryTime          core.Timestamp
	EntryPriceSOL      float64
	EntryTokens        float64
	SizeSOL            float64
	HighestPrice       float64
	LastPrice          float64
	RemainingFraction  float64
	TrailingActive     bool
	PartialRealizedSOL float64
	UnrealizedPnLSOL   float64
	UnrealizedPnLPct   float64
	Status             Status
	CloseReason        ExitReason
	RealizedPnL        float64
}

// Snapshot returns a thread-safe copy of the position's state.
func (p *Position) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	unrealized := p.unrealizedLocked()
	return Snapshot{
		ID:                 p.ID,
		Mint:               p.Mint,
		Symbol:             p.Symbol,
		EntryTime:          p.EntryTime,
		EntryPriceSOL:      p.EntryPriceSOL,
		EntryTokens:        p.EntryTokens,
		SizeSOL:            p.SizeSOL,
		HighestPrice:       p.highestPrice,
		LastPrice:          p.lastPrice,
		RemainingFraction:  p.remainingFraction,
		TrailingActive:     p.trailingActive,
		PartialRealizedSOL: p.partialRealizedSOL,
		UnrealizedPnLSOL:   unrealized,
		UnrealizedPnLPct:   p.unrealizedPctLocked(),
		Status:             p.status,
		CloseReason:        p.closeReason,
		RealizedPnL:        p.realizedPnL,
	}
}

// unrealizedLocked values the remaining tokens at the last price
// against their share of the entry cost.
func (p *Position) unrealizedLocked() float64 {
	return p.lastPrice*p.EntryTokens*p.remainingFraction - p.SizeSOL*p.remainingFraction
}

func (p *Position) unrealizedPctLocked() float64 {
	if p.EntryPriceSOL <= 0 {
		return 0
	}
	return (p.lastPrice - p.EntryPriceSOL) / p.EntryPriceSOL * 100
}

// UnrealizedPnLFraction returns the per-token gain fraction at the
// last price (0.10 == +10%), the figure pump-based exits key off.
func (p *Position) UnrealizedPnLFraction() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EntryPriceSOL <= 0 {
		return 0
	}
	return (p.lastPrice - p.EntryPriceSOL) / p.EntryPriceSOL
}

// Decision is an action the caller must execute (a partial or full
// sell). The Position never calls a SwapExecutor itself; it only
// decides.
type Decision struct {
	SellFraction float64 // of EntryTokens, not of remaining
	Reason       ExitReason
	LadderStep   int // -1 when not a ladder step
	Full         bool
}

// OnPrice folds in a new price sample and returns the exit decisions
// it triggers, evaluated in fixed order: stop loss, then every
// reached take-profit rung (rungs may stack on one tick), then the
// trailing stop. An empty slice means hold.
func (p *Position) OnPrice(cfg Config, priceSOL float64) []Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusOpen || p.EntryPriceSOL <= 0 || priceSOL <= 0 {
		return nil
	}

	if p.tpSold == nil {
		p.tpSold = make([]bool, len(cfg.TPLadder))
	}

	p.lastPrice = priceSOL
	if priceSOL > p.highestPrice {
		p.highestPrice = priceSOL
	}

	// Stop loss first: a crashed price exits in full regardless of
	// what the ladder would have done.
	if priceSOL <= p.EntryPriceSOL*(1-cfg.StopLossFraction) {
		return []Decision{{SellFraction: p.remainingFraction, Reason: ExitStopLoss, LadderStep: -1, Full: true}}
	}

	var decisions []Decision

	// Take-profit ladder: every unfired rung whose multiple this tick
	// reaches fires, in order. A gap up through several rungs scales
	// out all of them at once.
	multiple := priceSOL / p.EntryPriceSOL
	for i, step := range cfg.TPLadder {
		if p.tpSold[i] || multiple < step.Multiple {
			continue
		}
		p.tpSold[i] = true
		frac := step.SellFraction
		if frac > p.remainingFraction {
			frac = p.remainingFraction
		}
		p.remainingFraction -= frac
		decisions = append(decisions, Decision{SellFraction: frac, Reason: ExitTakeProfit, LadderStep: i})
		if p.remainingFraction <= 0 {
			return decisions
		}
	}

	// Trailing stop: arms at the activation multiple, then fires on a
	// fractional drawdown from the highest price seen since.
	if !p.trailingActive && p.highestPrice >= p.EntryPriceSOL*cfg.TrailingActivationMultiple {
		p.trailingActive = true
	}
	if p.trailingActive && priceSOL <= p.highestPrice*(1-cfg.TrailingDrawdownFraction) {
		frac := p.remainingFraction
		p.remainingFraction = 0
		decisions = append(decisions, Decision{SellFraction: frac, Reason: ExitTrailing, LadderStep: -1, Full: true})
	}

	return decisions
}

// TPSold returns a copy of the ladder-rung fired flags.
func (p *Position) TPSold() []bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]bool, len(p.tpSold))
	copy(out, p.tpSold)
	return out
}

// RestoreFraction returns an unfilled sell's fraction to the books
// (the swap failed, the tokens are still held). The ladder rung stays
// marked; the orchestrator escalates instead of re-firing it.
func (p *Position) RestoreFraction(frac float64) {
	p.mu.Lock()
	p.remainingFraction += frac
	if p.remainingFraction > 1 {
		p.remainingFraction = 1
	}
	p.mu.Unlock()
}

// RecordPartialProceeds accumulates the SOL received from a ladder
// sell into the realized tally carried to the final close.
func (p *Position) RecordPartialProceeds(solReceived float64) {
	p.mu.Lock()
	p.partialRealizedSOL += solReceived
	p.mu.Unlock()
}

// FullExitDecision returns a decision selling everything still held,
// for exits decided outside OnPrice (rug, pump, manual).
func (p *Position) FullExitDecision(reason ExitReason) (Decision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusOpen || p.remainingFraction <= 0 {
		return Decision{}, false
	}
	frac := p.remainingFraction
	p.remainingFraction = 0
	return Decision{SellFraction: frac, Reason: reason, LadderStep: -1, Full: true}, true
}

// MarkClosing transitions Open -> Closing while the exit swap is in
// flight. Reports false if the position was not open.
func (p *Position) MarkClosing(reason ExitReason) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusOpen {
		return false
	}
	p.status = StatusClosing
	p.closeReason = reason
	return true
}

// Close marks the position terminal. Realized P&L is the exit
// proceeds minus the full entry cost, plus whatever the ladder
// already realized. When the executor reported no received amount
// (exitSOLReceived <= 0), proceeds fall back to the last known price
// times the tokens sold, minus fees.
func (p *Position) Close(reason ExitReason, soldFraction, exitSOLReceived, feesSOL float64, now core.Timestamp) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	proceeds := exitSOLReceived
	if proceeds <= 0 {
		proceeds = p.lastPrice*p.EntryTokens*soldFraction - feesSOL
		if proceeds < 0 {
			proceeds = 0
		}
	}

	p.realizedPnL = proceeds - p.SizeSOL + p.partialRealizedSOL
	p.remainingFraction = 0
	p.status = StatusClosed
	p.closeReason = reason
	p.closeTime = now
	return p.realizedPnL
}

// ClosePhantom marks the position lost in full: the wallet holds
// effectively none of the tokens the books say it should, so the
// entire entry amount is written off.
func (p *Position) ClosePhantom(now core.Timestamp) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.realizedPnL = -p.SizeSOL
	p.remainingFraction = 0
	p.status = StatusClosed
	p.closeReason = ExitPhantom
	p.closeTime = now
	return p.realizedPnL
}

// IsPhantom reports whether an observed on-chain balance marks this
// position as phantom under cfg's threshold.
func (p *Position) IsPhantom(cfg Config, onChainTokens float64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.status == StatusClosed {
		return false
	}
	threshold := cfg.PhantomBalanceFraction
	if threshold <= 0 {
		threshold = 0.001
	}
	return onChainTokens < p.EntryTokens*threshold
}

// RecordSellFailure increments the retry counter and reports whether
// the attempts are exhausted.
func (p *Position) RecordSellFailure(cfg Config) (retriesLeft int, exhausted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sellFailures++
	left := cfg.MaxSellRetries - p.sellFailures
	return left, left <= 0
}

// SellRetryDelay returns the backoff before the next sell retry,
// exponential in the number of prior failures.
func (p *Position) SellRetryDelay(cfg Config) time.Duration {
	p.mu.RLock()
	failures := p.sellFailures
	p.mu.RUnlock()
	if failures <= 0 {
		return cfg.SellRetryBaseDelay
	}
	return cfg.SellRetryBaseDelay << uint(failures-1)
}

// CurrentStatus returns the position's lifecycle state.
func (p *Position) CurrentStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// IsClosed reports whether the position has reached a terminal state.
func (p *Position) IsClosed() bool {
	return p.CurrentStatus() == StatusClosed
}

// RemainingTokens returns the absolute token amount still held.
func (p *Position) RemainingTokens() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.EntryTokens * p.remainingFraction
}

// Tracker owns every live Position, keyed by mint: the manager never
// holds more than one position per token.
type Tracker struct {
	mu        sync.RWMutex
	positions map[ids.TokenId]*Position
	maxOpen   int
}

// NewTracker creates an empty Tracker allowing at most maxOpen
// concurrent positions.
func NewTracker(maxOpen int) *Tracker {
	return &Tracker{positions: make(map[ids.TokenId]*Position), maxOpen: maxOpen}
}

// CanOpen reports whether another position may be opened.
func (t *Tracker) CanOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions) < t.maxOpen
}

// Add registers a newly opened position.
func (t *Tracker) Add(p *Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[p.Mint] = p
}

// Get returns the live position for mint, or nil.
func (t *Tracker) Get(mint ids.TokenId) *Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[mint]
}

// Has reports whether mint has a live position.
func (t *Tracker) Has(mint ids.TokenId) bool {
	return t.Get(mint) != nil
}

// Remove drops mint's position (after it closes).
func (t *Tracker) Remove(mint ids.TokenId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, mint)
}

// Count returns the number of live positions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// All returns every live position.
func (t *Tracker) All() []*Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}

// Snapshots returns read-only copies of every live position.
func (t *Tracker) Snapshots() []Snapshot {
	all := t.All()
	out := make([]Snapshot, len(all))
	for i, p := range all {
		out[i] = p.Snapshot()
	}
	return out
}

// Mints returns the set of mints with a live position.
func (t *Tracker) Mints() []ids.TokenId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ids.TokenId, 0, len(t.positions))
	for m := range t.positions {
		out = append(out, m)
	}
	return out
}
