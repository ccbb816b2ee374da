// Package orchestrator wires the feed to the signal-to-trade
// pipeline: it serializes events per mint, runs the staged entry
// evaluation (hard filters, safety, entry tiers, scoring, risk), and
// drives position exits.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"memecore/internal/cache"
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

// HolderFetcher lists a mint's top holders with their supply share,
// for the concentration check. Implemented by an external
// collaborator (e.g. internal/feed/refdata).
type HolderFetcher interface {
	TopHolders(ctx context.Context, mint ids.TokenId) ([]scoring.Holder, error)
}

// Config holds the orchestrator's own tunables; component configs
// live with their components.
type Config struct {
	EnableTrading   bool
	MinScoreToTrade float64
	SlippageBps     int

	EvalDebounce time.Duration // after NewToken, lets metadata arrive
	MailboxDepth int

	HolderFetchTimeout time.Duration
	SwapTimeout        time.Duration

	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
	StatsInterval   time.Duration

	// AMMPrograms are excluded from holder concentration.
	AMMPrograms []string

	Position position.Config
	Risk     risk.Config
}

func (c *Config) setDefaults() {
	if c.EvalDebounce <= 0 {
		c.EvalDebounce = 100 * time.Millisecond
	}
	if c.MailboxDepth <= 0 {
		c.MailboxDepth = 64
	}
	if c.HolderFetchTimeout <= 0 {
		c.HolderFetchTimeout = 5 * time.Second
	}
	if c.SwapTimeout <= 0 {
		c.SwapTimeout = 60 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.CleanupMaxAge <= 0 {
		c.CleanupMaxAge = 10 * time.Minute
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 10 * time.Second
	}
}

// Orchestrator owns the per-mint mailboxes and the staged pipeline.
type Orchestrator struct {
	cfg   Config
	clock core.Clock
	log   zerolog.Logger

	watchlist *watchlist.Watchlist
	velocity  *velocity.Tracker
	detector  *pump.Detector
	safety    SafetyChecker
	smart     *smartmoney.Tracker
	holders   HolderFetcher
	evaluator *entry.Evaluator
	positions *position.Tracker
	rug       *position.RugMonitor
	riskState *risk.State
	executor  core.SwapExecutor
	journal   core.TradeJournal
	bus       *events.Bus

	ammPrograms map[ids.WalletId]struct{}
	holderCache *cache.Cache[[]scoring.Holder]

	mu        sync.Mutex
	mailboxes map[ids.TokenId]*mailbox
	creators  map[ids.TokenId]ids.WalletId
	symbols   map[ids.TokenId]string

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// SafetyChecker is the cached safety analyzer's surface the pipeline
// needs; satisfied by *safety.Analyzer.
type SafetyChecker interface {
	Check(ctx context.Context, mint ids.TokenId) (safety.Result, bool, error)
}

// New wires an Orchestrator from its collaborators.
func New(
	cfg Config,
	clock core.Clock,
	wl *watchlist.Watchlist,
	vel *velocity.Tracker,
	det *pump.Detector,
	saf SafetyChecker,
	smart *smartmoney.Tracker,
	holders HolderFetcher,
	eval *entry.Evaluator,
	positions *position.Tracker,
	rug *position.RugMonitor,
	riskState *risk.State,
	executor core.SwapExecutor,
	journal core.TradeJournal,
	bus *events.Bus,
	log zerolog.Logger,
) *Orchestrator {
	cfg.setDefaults()

	amm := make(map[ids.WalletId]struct{}, len(cfg.AMMPrograms))
	for _, p := range cfg.AMMPrograms {
		amm[ids.WalletId(p)] = struct{}{}
	}

	return &Orchestrator{
		cfg:         cfg,
		clock:       clock,
		log:         log.With().Str("component", "orchestrator").Logger(),
		watchlist:   wl,
		velocity:    vel,
		detector:    det,
		safety:      saf,
		smart:       smart,
		holders:     holders,
		evaluator:   eval,
		positions:   positions,
		rug:         rug,
		riskState:   riskState,
		executor:    executor,
		journal:     journal,
		bus:         bus,
		ammPrograms: amm,
		holderCache: cache.New[[]scoring.Holder](clock),
		mailboxes:   make(map[ids.TokenId]*mailbox),
		creators:    make(map[ids.TokenId]ids.WalletId),
		symbols:     make(map[ids.TokenId]string),
	}
}

// Start launches the background janitor/stats loops and begins
// consuming feed events. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context, feed <-chan core.FeedEvent) {
	o.ctx, o.cancel = context.WithCancel(ctx)

	o.wg.Add(3)
	go o.consume(feed)
	go o.janitor()
	go o.stats()
}

// Stop cancels all workers and waits for them to drain.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Lock()
	for _, mb := range o.mailboxes {
		mb.close()
	}
	o.mailboxes = make(map[ids.TokenId]*mailbox)
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) consume(feed <-chan core.FeedEvent) {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			o.HandleEvent(ev)
		}
	}
}

// HandleEvent routes one feed event to its mint's mailbox. Events for
// one mint are processed serially in arrival order; across mints they
// run concurrently.
func (o *Orchestrator) HandleEvent(ev core.FeedEvent) {
	mint, ok := eventMint(ev)
	if !ok {
		o.bus.Publish(events.InvariantViolation{Component: "orchestrator", Detail: "feed event with no mint", At: o.clock.Now()})
		return
	}
	o.mailboxFor(mint).deliver(msg{ev: ev})
}

func eventMint(ev core.FeedEvent) (ids.TokenId, bool) {
	switch ev.Kind {
	case core.FeedEventNewToken:
		if ev.NewToken != nil {
			return ev.NewToken.Mint, true
		}
	case core.FeedEventTrade:
		if ev.Trade != nil {
			return ev.Trade.Mint, true
		}
	case core.FeedEventPrice:
		if ev.Price != nil {
			return ev.Price.Mint, true
		}
	}
	return "", false
}

func (o *Orchestrator) mailboxFor(mint ids.TokenId) *mailbox {
	o.mu.Lock()
	defer o.mu.Unlock()
	mb, ok := o.mailboxes[mint]
	if !ok {
		mb = newMailbox(o.cfg.MailboxDepth, o.clock)
		o.mailboxes[mint] = mb
		o.wg.Add(1)
		go o.runMailbox(mint, mb)
	}
	return mb
}

func (o *Orchestrator) dropMailbox(mint ids.TokenId) {
	o.mu.Lock()
	mb := o.mailboxes[mint]
	delete(o.mailboxes, mint)
	delete(o.creators, mint)
	delete(o.symbols, mint)
	o.mu.Unlock()
	if mb != nil {
		mb.close()
	}
}

func (o *Orchestrator) symbolFor(mint ids.TokenId) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.symbols[mint]
}

func (o *Orchestrator) runMailbox(mint ids.TokenId, mb *mailbox) {
	defer o.wg.Done()
	for {
		m, ok := mb.next(o.ctx)
		if !ok {
			return
		}
		o.process(mint, m)
	}
}

func (o *Orchestrator) process(mint ids.TokenId, m msg) {
	defer func() {
		if r := recover(); r != nil {
			// A stage failure on one event must not halt the loop.
			o.log.Error().Str("mint", mint.Short()).Interface("panic", r).Msg("event handler panicked")
			o.bus.Publish(events.InvariantViolation{Component: "orchestrator", Detail: fmt.Sprint(r), At: o.clock.Now()})
		}
	}()

	switch {
	case m.evaluate:
		o.evaluate(mint)
	case m.ev.Kind == core.FeedEventNewToken:
		o.onNewToken(*m.ev.NewToken)
	case m.ev.Kind == core.FeedEventTrade:
		o.onTrade(*m.ev.Trade)
	case m.ev.Kind == core.FeedEventPrice:
		o.onPrice(*m.ev.Price)
	}
}

func (o *Orchestrator) onNewToken(ev core.NewTokenEvent) {
	now := o.clock.Now()
	o.bus.Publish(events.TokenDiscovered{Mint: ev.Mint, Creator: ev.Creator, Symbol: ev.Symbol, At: now})
	o.watchlist.Add(ev.Mint, ev.Creator)

	o.mu.Lock()
	o.creators[ev.Mint] = ev.Creator
	o.symbols[ev.Mint] = ev.Symbol
	o.mu.Unlock()

	// Debounce the first evaluation so initial trades and metadata
	// have a moment to arrive.
	mb := o.mailboxFor(ev.Mint)
	time.AfterFunc(o.cfg.EvalDebounce, func() {
		mb.deliver(msg{evaluate: true})
	})
}

func (o *Orchestrator) onTrade(ev core.TradeEvent) {
	o.velocity.Record(ev)
	o.watchlist.RecordTrade(ev.Mint, ev)

	if p := o.positions.Get(ev.Mint); p != nil {
		alerts, exit := o.rug.OnTrade(ev.Mint, ev)
		for _, a := range alerts {
			o.bus.Publish(events.RugAlert{Mint: a.Mint, Severity: a.Severity.String(), Reason: a.Reason, At: a.At})
		}
		if exit {
			o.exitFull(p, position.ExitRug)
			return
		}
	}

	// Re-evaluate entry only for tokens that already cleared hard
	// filters; everything else waits for its next scheduled pass.
	if !o.positions.Has(ev.Mint) && o.watchlist.LastEvalPassed(ev.Mint) {
		o.evaluate(ev.Mint)
	}
}

func (o *Orchestrator) onPrice(ev core.PriceSample) {
	o.watchlist.RecordPrice(ev.Mint, ev)

	if p := o.positions.Get(ev.Mint); p != nil {
		o.tickPosition(p, ev)
		return
	}

	o.evaluate(ev.Mint)
}

// janitor periodically evicts stale watchlist entries and the
// per-mint state hanging off them.
func (o *Orchestrator) janitor() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()

	sub := o.bus.Subscribe(256)

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.watchlist.Cleanup(o.cfg.CleanupMaxAge)
		case ev := <-sub:
			if removed, ok := ev.(events.TokenRemoved); ok {
				o.velocity.Forget(removed.Mint)
				o.detector.Forget(removed.Mint)
				o.dropMailbox(removed.Mint)
			}
		}
	}
}

func (o *Orchestrator) stats() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			snap := o.riskState.Snapshot()
			o.bus.Publish(events.StatsUpdate{
				OpenPositions: o.positions.Count(),
				DailyPnLSOL:   snap.DailyPnLSOL,
				At:            o.clock.Now(),
			})
		}
	}
}
