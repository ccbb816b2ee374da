// Rug monitor: watches the trade flow around an open position for
// coordinated-exit signatures (stacked independent checks, each with
// its own severity) and escalates to a full exit.
package position

import (
	"fmt"
	"sync"
	"time"

	"memecore/internal/core"
	"memecore/internal/ids"
	"memecore/internal/rollingwindow"
)

// Severity grades a rug alert.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityCritical
)

func (s Severity) String() string {
	if s == SeverityCritical {
		return "critical"
	}
	return "warning"
}

// Alert is one rug-monitor finding.
type Alert struct {
	Mint     ids.TokenId
	Severity Severity
	Reason   string
	At       core.Timestamp
}

const (
	rugWindow             = 60 * time.Second
	rugCreatorSellWarn    = 1
	rugCreatorSellCrit    = 2
	rugLargeSellCritFrac  = 0.10 // single sell over 10% of mcap
	rugLargeSellWarnFrac  = 0.05
	rugSellRatioThreshold = 0.75
	rugSellRatioMinTrades = 5
	rugCollapseDrawdown   = 0.50 // from the intra-hold high
	rugCriticalsToExit    = 2
)

type rugState struct {
	mu sync.Mutex

	creator      ids.WalletId
	entryPrice   float64
	creatorSells int
	intraHigh    float64
	sawUpside    bool

	trades    *rollingwindow.Window[core.TradeEvent]
	criticals *rollingwindow.Window[core.Timestamp]
}

// RugMonitor tracks per-mint rug signals for open positions.
type RugMonitor struct {
	clock core.Clock

	mu    sync.Mutex
	mints map[ids.TokenId]*rugState
}

// NewRugMonitor creates an empty monitor.
func NewRugMonitor(clock core.Clock) *RugMonitor {
	return &RugMonitor{clock: clock, mints: make(map[ids.TokenId]*rugState)}
}

// Watch starts monitoring mint for the lifetime of a position.
func (m *RugMonitor) Watch(mint ids.TokenId, creator ids.WalletId, entryPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mints[mint] = &rugState{
		creator:    creator,
		entryPrice: entryPrice,
		intraHigh:  entryPrice,
		trades:     rollingwindow.New[core.TradeEvent](500, rugWindow, func(e core.TradeEvent) core.Timestamp { return e.Timestamp }),
		criticals:  rollingwindow.New[core.Timestamp](32, rugWindow, func(t core.Timestamp) core.Timestamp { return t }),
	}
}

// Unwatch stops monitoring mint (position closed).
func (m *RugMonitor) Unwatch(mint ids.TokenId) {
	m.mu.Lock()
	delete(m.mints, mint)
	m.mu.Unlock()
}

// OnTrade folds one trade into mint's rug state. It returns the
// alerts the trade raised and whether the accumulated signals demand
// an immediate exit: any critical raised by the creator's own sell,
// or a second critical inside the 60-second window.
func (m *RugMonitor) OnTrade(mint ids.TokenId, trade core.TradeEvent) (alerts []Alert, exit bool) {
	m.mu.Lock()
	st := m.mints[mint]
	m.mu.Unlock()
	if st == nil {
		return nil, false
	}

	now := m.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.trades.Add(trade, now)

	if trade.PriceSOL > st.intraHigh {
		st.intraHigh = trade.PriceSOL
		if st.intraHigh > st.entryPrice {
			st.sawUpside = true
		}
	}

	criticalThisTrade := false
	raise := func(sev Severity, reason string) {
		alerts = append(alerts, Alert{Mint: mint, Severity: sev, Reason: reason, At: now})
		if sev == SeverityCritical {
			criticalThisTrade = true
			st.criticals.Add(now, now)
		}
	}

	isCreatorSell := trade.Side == core.SideSell && trade.Trader == st.creator
	if trade.Side == core.SideSell {
		if isCreatorSell {
			st.creatorSells++
			if st.creatorSells >= rugCreatorSellCrit {
				raise(SeverityCritical, fmt.Sprintf("creator sold %d times", st.creatorSells))
			} else {
				raise(SeverityWarning, "creator sold")
			}
		}

		if trade.MarketCapSOL > 0 {
			frac := trade.SOLAmount / trade.MarketCapSOL
			if frac > rugLargeSellCritFrac {
				raise(SeverityCritical, fmt.Sprintf("single sell %.1f%% of mcap", frac*100))
			} else if frac > rugLargeSellWarnFrac {
				raise(SeverityWarning, fmt.Sprintf("large sell %.1f%% of mcap", frac*100))
			}
		}
	}

	trades := st.trades.Items()
	if len(trades) >= rugSellRatioMinTrades {
		sells := 0
		for _, t := range trades {
			if t.Side == core.SideSell {
				sells++
			}
		}
		if ratio := float64(sells) / float64(len(trades)); ratio > rugSellRatioThreshold {
			raise(SeverityCritical, fmt.Sprintf("sell ratio %.2f over last %d trades", ratio, len(trades)))
		}
	}

	if st.sawUpside && st.intraHigh > 0 && trade.PriceSOL > 0 {
		if drop := (st.intraHigh - trade.PriceSOL) / st.intraHigh; drop > rugCollapseDrawdown {
			raise(SeverityCritical, fmt.Sprintf("price down %.0f%% from intra-hold high", drop*100))
		}
	}

	st.criticals.Prune(now)
	// A creator sell that trips any critical (repeat selling, a large
	// dump, a collapse) exits on its own; unrelated criticals need a
	// second one inside the window.
	exit = (isCreatorSell && criticalThisTrade) || st.criticals.Len() >= rugCriticalsToExit
	return alerts, exit
}
