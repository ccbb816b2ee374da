// Package velocity keeps per-token 60-second trade windows and
// derives trade-flow metrics from them: buy pressure, transaction
// rate, unique buyer/seller counts, and a momentum-strength
// classification. Windows are sharded per mint and deduplicated by
// transaction signature.
package velocity

import (
	"sync"
	"time"

	"memecore/internal/core"
	"memecore/internal/ids"
	"memecore/internal/rollingwindow"
)

const (
	windowAge      = 60 * time.Second
	windowCapacity = 500
)

// Strength classifies how strongly recent trade flow favors buyers.
type Strength int

const (
	Unknown Strength = iota
	Weak
	Medium
	Strong
)

func (s Strength) String() string {
	switch s {
	case Weak:
		return "weak"
	case Medium:
		return "medium"
	case Strong:
		return "strong"
	default:
		return "unknown"
	}
}

// Metrics summarizes trade flow over the trailing 60-second window.
// BuyPressure is trade-count based (buys over total), not volume
// based: a single whale buy must not mask broad selling.
type Metrics struct {
	TxCount       int
	BuyCount      int
	SellCount     int
	UniqueBuyers  int
	UniqueSellers int
	TxPerMinute   float64
	BuyPressure   float64
	WindowStart   core.Timestamp
}

// Thresholds are the gates HasGoodVelocity applies, in order.
type Thresholds struct {
	MaxMarketCapSOL float64 // 0 disables the cap
	MinTxCount      int
	MinUniqueBuyers int
	MinBuyPressure  float64
}

// Verdict is the outcome of HasGoodVelocity.
type Verdict struct {
	OK      bool
	Metrics Metrics
	Reason  string
}

type tokenWindow struct {
	mu     sync.Mutex
	trades *rollingwindow.Window[core.TradeEvent]
	seen   map[string]struct{} // signature dedup
}

// Tracker owns the per-mint 60-second trade windows.
type Tracker struct {
	clock core.Clock

	mu     sync.RWMutex
	tokens map[ids.TokenId]*tokenWindow
}

// New creates an empty Tracker.
func New(clock core.Clock) *Tracker {
	return &Tracker{clock: clock, tokens: make(map[ids.TokenId]*tokenWindow)}
}

func (t *Tracker) window(mint ids.TokenId, create bool) *tokenWindow {
	t.mu.RLock()
	w := t.tokens[mint]
	t.mu.RUnlock()
	if w != nil || !create {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w = t.tokens[mint]; w == nil {
		w = &tokenWindow{
			trades: rollingwindow.New[core.TradeEvent](windowCapacity, windowAge, func(e core.TradeEvent) core.Timestamp { return e.Timestamp }),
			seen:   make(map[string]struct{}),
		}
		t.tokens[mint] = w
	}
	return w
}

// Record appends trade to its mint's window. A trade whose signature
// has already been recorded for that mint is dropped, so replayed
// feed events never double-count.
func (t *Tracker) Record(trade core.TradeEvent) {
	w := t.window(trade.Mint, true)

	w.mu.Lock()
	defer w.mu.Unlock()

	if trade.Signature != "" {
		if _, dup := w.seen[trade.Signature]; dup {
			return
		}
		w.seen[trade.Signature] = struct{}{}
	}
	w.trades.Add(trade, t.clock.Now())
}

// Forget drops mint's window entirely (token left the watchlist).
func (t *Tracker) Forget(mint ids.TokenId) {
	t.mu.Lock()
	delete(t.tokens, mint)
	t.mu.Unlock()
}

// MetricsFor computes Metrics for mint over its current window, or
// reports false when no trade has ever been recorded for it.
func (t *Tracker) MetricsFor(mint ids.TokenId) (Metrics, bool) {
	w := t.window(mint, false)
	if w == nil {
		return Metrics{}, false
	}

	now := t.clock.Now()

	w.mu.Lock()
	w.trades.Prune(now)
	trades := w.trades.Items()
	w.mu.Unlock()

	return compute(trades, now), true
}

func compute(trades []core.TradeEvent, now core.Timestamp) Metrics {
	m := Metrics{WindowStart: now.Add(-windowAge)}
	buyers := make(map[ids.WalletId]struct{})
	sellers := make(map[ids.WalletId]struct{})

	for _, tr := range trades {
		m.TxCount++
		switch tr.Side {
		case core.SideBuy:
			m.BuyCount++
			buyers[tr.Trader] = struct{}{}
		case core.SideSell:
			m.SellCount++
			sellers[tr.Trader] = struct{}{}
		}
	}

	m.UniqueBuyers = len(buyers)
	m.UniqueSellers = len(sellers)
	m.TxPerMinute = float64(m.TxCount) / windowAge.Minutes()

	denom := m.TxCount
	if denom < 1 {
		denom = 1
	}
	m.BuyPressure = float64(m.BuyCount) / float64(denom)

	return m
}

// HasGoodVelocity applies th's gates in order (market-cap ceiling, tx
// count, unique buyers, buy pressure) and returns the first failing
// gate's reason, or OK with the metrics that passed.
func (t *Tracker) HasGoodVelocity(mint ids.TokenId, marketCapSOL float64, th Thresholds) Verdict {
	m, ok := t.MetricsFor(mint)
	if !ok {
		return Verdict{Reason: "no trades recorded"}
	}

	if th.MaxMarketCapSOL > 0 && marketCapSOL > th.MaxMarketCapSOL {
		return Verdict{Metrics: m, Reason: "market cap above velocity ceiling"}
	}
	if m.TxCount < th.MinTxCount {
		return Verdict{Metrics: m, Reason: "too few transactions"}
	}
	if m.UniqueBuyers < th.MinUniqueBuyers {
		return Verdict{Metrics: m, Reason: "too few unique buyers"}
	}
	if m.BuyPressure < th.MinBuyPressure {
		return Verdict{Metrics: m, Reason: "buy pressure too low"}
	}
	return Verdict{OK: true, Metrics: m}
}

// MomentumStrength classifies m: Unknown below 3 trades, Strong on
// fast broad buying, Weak when buying is thin or slow, Medium
// otherwise.
func MomentumStrength(m Metrics) Strength {
	if m.TxCount < 3 {
		return Unknown
	}
	if m.BuyPressure >= 0.70 && m.TxPerMinute >= 10 && m.UniqueBuyers >= 5 {
		return Strong
	}
	if m.BuyPressure < 0.50 || m.TxPerMinute < 3 {
		return Weak
	}
	return Medium
}
