// Package reconcile implements the periodic on-chain/bookkeeping
// reconciler: it closes phantom positions (books say tokens, chain
// says none), flags orphan balances (chain says tokens, books say
// nothing), and records periodic equity snapshots.
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"memecore/internal/core"
	"memecore/internal/events"
	"memecore/internal/ids"
	"memecore/internal/position"
	"memecore/internal/risk"
)

const balanceQueryTimeout = 10 * time.Second

// Config holds the reconciler's tunables.
type Config struct {
	Interval time.Duration // default 30s
	Position position.Config
	Risk     risk.Config
}

// Reconciler periodically audits open positions against on-chain
// balances. It never buys or sells in response to what it finds: a
// phantom is written off, an orphan is reported for the operator.
type Reconciler struct {
	cfg       Config
	clock     core.Clock
	executor  core.SwapExecutor
	auditor   core.BalanceAuditor // nil when the executor can't enumerate accounts
	positions *position.Tracker
	riskState *risk.State
	journal   core.TradeJournal
	snapshots core.SnapshotStore
	bus       *events.Bus
	log       zerolog.Logger
}

// New wires a Reconciler. auditor, journal and snapshots may be nil;
// the corresponding work is skipped.
func New(cfg Config, clock core.Clock, executor core.SwapExecutor, auditor core.BalanceAuditor, positions *position.Tracker, riskState *risk.State, journal core.TradeJournal, snapshots core.SnapshotStore, bus *events.Bus, log zerolog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Reconciler{
		cfg:       cfg,
		clock:     clock,
		executor:  executor,
		auditor:   auditor,
		positions: positions,
		riskState: riskState,
		journal:   journal,
		snapshots: snapshots,
		bus:       bus,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// Run loops until ctx is done, reconciling every Interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile performs one full pass: phantom detection across open
// positions, orphan detection across wallet token accounts, and an
// equity snapshot.
func (r *Reconciler) Reconcile(ctx context.Context) {
	r.reconcilePhantoms(ctx)
	r.detectOrphans(ctx)
	r.snapshotEquity(ctx)
}

func (r *Reconciler) reconcilePhantoms(ctx context.Context) {
	for _, p := range r.positions.All() {
		if p.CurrentStatus() != position.StatusOpen {
			continue
		}

		qctx, cancel := context.WithTimeout(ctx, balanceQueryTimeout)
		balance, err := r.executor.TokenBalance(qctx, p.Mint)
		cancel()
		if err != nil {
			// Transient RPC trouble is not evidence the tokens are
			// gone; skip this position until the next pass.
			r.log.Warn().Str("mint", p.Mint.Short()).Err(err).Msg("balance query failed")
			continue
		}

		if !p.IsPhantom(r.cfg.Position, float64(balance)) {
			continue
		}

		now := r.clock.Now()
		pnl := p.ClosePhantom(now)
		r.positions.Remove(p.Mint)
		r.riskState.NotePositionClosed()

		r.log.Error().
			Str("mint", p.Mint.Short()).
			Uint64("on_chain", balance).
			Float64("expected_tokens", p.EntryTokens).
			Float64("realized_pnl", pnl).
			Msg("phantom position closed")

		r.bus.Publish(events.PhantomDetected{Mint: p.Mint, At: now})
		r.bus.Publish(events.PositionClosed{
			PositionID:  p.ID.String(),
			Mint:        p.Mint,
			Reason:      string(position.ExitPhantom),
			RealizedPnL: pnl,
			At:          now,
		})

		equity := r.currentEquity(ctx)
		if tripped, reason := r.riskState.RecordTradeClose(r.cfg.Risk, pnl, equity, now); tripped {
			r.bus.Publish(events.RiskPaused{Reason: reason, Until: now.Add(r.cfg.Risk.PauseDuration), At: now})
		}

		if r.journal != nil {
			if err := r.journal.Close(ctx, p.ID.String(), core.ExitRecord{
				ExitTime:    now,
				Reason:      string(position.ExitPhantom),
				RealizedPnL: pnl,
			}); err != nil {
				r.log.Error().Err(err).Str("id", p.ID.String()).Msg("journal close failed")
			}
		}
	}
}

func (r *Reconciler) detectOrphans(ctx context.Context) {
	if r.auditor == nil {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, balanceQueryTimeout)
	balances, err := r.auditor.AllTokenBalances(qctx)
	cancel()
	if err != nil {
		r.log.Warn().Err(err).Msg("token account enumeration failed")
		return
	}

	open := make(map[ids.TokenId]struct{})
	for _, m := range r.positions.Mints() {
		open[m] = struct{}{}
	}

	for mint, balance := range balances {
		if balance == 0 {
			continue
		}
		if _, tracked := open[mint]; tracked {
			continue
		}
		r.log.Warn().Str("mint", mint.Short()).Uint64("balance", balance).Msg("orphan token balance")
		r.bus.Publish(events.OrphanDetected{Mint: mint, Balance: balance, At: r.clock.Now()})
	}
}

func (r *Reconciler) snapshotEquity(ctx context.Context) {
	walletSOL := r.currentWalletSOL(ctx)

	var positionsValue, unrealized float64
	snaps := r.positions.Snapshots()
	for _, s := range snaps {
		positionsValue += s.LastPrice * s.EntryTokens * s.RemainingFraction
		unrealized += s.UnrealizedPnLSOL
	}

	total := walletSOL + positionsValue
	r.riskState.UpdateEquity(total)

	if r.snapshots == nil {
		return
	}
	snap := core.EquitySnapshot{
		Timestamp:         r.clock.Now(),
		WalletSOL:         walletSOL,
		PositionsValueSOL: positionsValue,
		TotalEquitySOL:    total,
		UnrealizedPnLSOL:  unrealized,
		PositionCount:     len(snaps),
		Source:            core.SnapshotPeriodic,
	}
	if err := r.snapshots.Put(ctx, snap); err != nil {
		r.log.Error().Err(err).Msg("snapshot store put failed")
	}
}

func (r *Reconciler) currentWalletSOL(ctx context.Context) float64 {
	qctx, cancel := context.WithTimeout(ctx, balanceQueryTimeout)
	defer cancel()
	sol, err := r.executor.WalletBalanceSOL(qctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("wallet balance query failed")
		return 0
	}
	return sol
}

func (r *Reconciler) currentEquity(ctx context.Context) float64 {
	wallet := r.currentWalletSOL(ctx)
	var positionsValue float64
	for _, s := range r.positions.Snapshots() {
		positionsValue += s.LastPrice * s.EntryTokens * s.RemainingFraction
	}
	return wallet + positionsValue
}
