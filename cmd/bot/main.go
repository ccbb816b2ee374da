package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"memecore/internal/blockchain"
	"memecore/internal/config"
	"memecore/internal/control"
	"memecore/internal/core"
	"memecore/internal/entry"
	"memecore/internal/events"
	"memecore/internal/feed/refdata"
	"memecore/internal/feed/refswap"
	"memecore/internal/orchestrator"
	"memecore/internal/position"
	"memecore/internal/pump"
	"memecore/internal/reconcile"
	"memecore/internal/risk"
	"memecore/internal/safety"
	"memecore/internal/smartmoney"
	"memecore/internal/storage"
	"memecore/internal/tui"
	"memecore/internal/velocity"
	"memecore/internal/watchlist"
)

func main() {
	headless := os.Getenv("HEADLESS") == "1"

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if headless {
		setupLogger(os.Stderr)
	} else {
		// Logs go to a file so they don't fight the TUI for the
		// terminal.
		logFile, err := os.OpenFile("data/memecore.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file: %v\n", err)
			log.Logger = zerolog.Nop()
		} else {
			setupLogger(logFile)
		}
	}

	if err := run(configPath, headless); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func setupLogger(w *os.File) {
	if w == os.Stderr {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func run(configPath string, headless bool) error {
	banner()

	mgr, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	clock := core.RealClock{}
	bus := events.NewBus()

	// Persistence.
	db, err := storage.NewDB(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Shutdown()

	// Blockchain substrate + executor.
	privateKey := mgr.GetPrivateKey()
	if privateKey == "" {
		return fmt.Errorf("wallet private key not set (env %s)", cfg.Wallet.PrivateKeyEnv)
	}
	wallet, err := blockchain.NewWallet(privateKey)
	if err != nil {
		return err
	}

	rpc := blockchain.NewClient(cfg.RPC.PrimaryURL, cfg.RPC.FallbackURL, mgr.GetPrimaryAPIKey())
	balance := blockchain.NewBalanceTracker(wallet, rpc)
	signer := blockchain.NewSigner(wallet)

	router := refswap.NewRouterClient(
		cfg.Jupiter.QuoteAPIURL,
		cfg.Jupiter.SlippageBps,
		uint64(cfg.Fees.StaticPriorityFeeSol*1e9),
		nil,
		time.Duration(cfg.Jupiter.TimeoutSeconds)*time.Second,
	)
	executor := refswap.New(router, rpc, wallet, signer, balance)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if err := balance.Refresh(rootCtx); err != nil {
		log.Warn().Err(err).Msg("initial balance refresh failed")
	}
	startingEquity := balance.BalanceSOL()

	// Core components.
	wl := watchlist.New(watchlist.Config{
		MinDataPoints:          cfg.Watchlist.MinDataPoints,
		MinAgeSeconds:          cfg.Watchlist.MinAgeSeconds,
		MaxDrawdownFromPeak:    cfg.Watchlist.MaxDrawdownFromPeak,
		MinMarketCapSOL:        cfg.Watchlist.MinMarketCapSOL,
		MinUniqueTraders:       cfg.Watchlist.MinUniqueTraders,
		RequireUptrend:         cfg.Watchlist.RequireUptrend,
		GraduationLiquiditySOL: cfg.Watchlist.GraduationLiquiditySOL,
	}, clock, bus)

	vel := velocity.New(clock)
	detector := pump.New()

	analyzer := safety.New(clock, refdata.NewSafetyFetcher(rpc),
		time.Duration(cfg.Safety.CacheTTLSeconds)*time.Second)

	smart := smartmoney.New(clock,
		refdata.NewHolderFetcher(rpc),
		refdata.NewHistoryFetcher(),
		nil,
		time.Duration(cfg.SmartMoney.CacheTTLMinutes)*time.Minute,
		log.Logger)

	evaluator := entry.New(entry.Config{
		SnipeMaxAge:          time.Duration(cfg.Entry.SnipeMaxAgeSeconds) * time.Second,
		SnipeMinTx:           cfg.Entry.SnipeMinTx,
		SnipeMinUniqueBuyers: cfg.Entry.SnipeMinUniqueBuyers,
		SnipeMinBuyPressure:  cfg.Entry.SnipeMinBuyPressure,
		SnipeMaxMarketCapSOL: cfg.Entry.SnipeMaxMarketCapSOL,
		MinDataPoints:        cfg.Watchlist.MinDataPoints,
		MinPumpHeat:          cfg.Entry.MinPumpHeat,
	}, vel, detector)

	positionCfg := position.Config{
		StopLossFraction:           cfg.Position.StopLossFraction,
		TPLadder:                   tpLadder(cfg),
		TrailingActivationMultiple: cfg.Position.TrailingActivationMultiple,
		TrailingDrawdownFraction:   cfg.Position.TrailingDrawdownFraction,
		MaxSellRetries:             cfg.Position.MaxSellRetries,
		SellRetryBaseDelay:         time.Duration(cfg.Position.SellRetryBaseDelayMs) * time.Millisecond,
	}
	positions := position.NewTracker(cfg.Risk.MaxConcurrentPositions)
	rug := position.NewRugMonitor(clock)

	riskCfg := risk.Config{
		BasePositionSOL:        cfg.Risk.BasePositionSOL,
		MaxPositionSOL:         cfg.Risk.MaxPositionSOL,
		MaxFractionPerTrade:    cfg.Risk.MaxFractionPerTrade,
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
		MaxDrawdownFraction:    cfg.Risk.MaxDrawdownFraction,
		TiltedLossStreak:       cfg.Risk.TiltedLossStreak,
		DailyLossLimitSOL:      cfg.Risk.DailyLossLimitSOL,
		PauseDuration:          time.Duration(cfg.Risk.PauseCooldownMinutes) * time.Minute,
	}
	riskState := risk.NewState(startingEquity, clock.Now())

	// Feed.
	feed, err := refdata.Dial(rootCtx, cfg.RPC.WebSocketURL)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer feed.Close()

	// Orchestrator.
	orch := orchestrator.New(
		orchestrator.Config{
			EnableTrading:   cfg.Trading.EnableTrading,
			MinScoreToTrade: cfg.Scoring.MinScoreToTrade,
			SlippageBps:     cfg.Jupiter.SlippageBps,
			CleanupMaxAge:   time.Duration(cfg.Watchlist.CleanupMaxAgeMinutes) * time.Minute,
			AMMPrograms:     cfg.Trading.AMMPrograms,
			Position:        positionCfg,
			Risk:            riskCfg,
		},
		clock, wl, vel, detector, analyzer, smart,
		refdata.NewTopHolderFetcher(rpc),
		evaluator, positions, rug, riskState, executor, db, bus,
		log.Logger,
	)
	orch.Start(rootCtx, trackCurves(rootCtx, feed))
	defer orch.Stop()

	// Reconciler.
	rec := reconcile.New(
		reconcile.Config{Interval: mgr.GetReconcileInterval(), Position: positionCfg, Risk: riskCfg},
		clock, executor, executor, positions, riskState, db, db, bus, log.Logger,
	)
	go rec.Run(rootCtx)

	// Periodic wallet balance refresh.
	go func() {
		ticker := time.NewTicker(mgr.GetBalanceRefresh())
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if err := balance.Refresh(rootCtx); err != nil {
					log.Debug().Err(err).Msg("balance refresh failed")
				}
			}
		}
	}()

	// Control surface.
	ctl := control.New(
		control.Config{Host: cfg.Control.ListenHost, Port: cfg.Control.ListenPort},
		clock, wl, positions, riskState, riskCfg, log.Logger,
	)
	go func() {
		if err := ctl.Listen(); err != nil {
			log.Error().Err(err).Msg("control surface failed")
		}
	}()
	defer ctl.Shutdown()

	log.Info().
		Bool("trading_enabled", cfg.Trading.EnableTrading).
		Float64("wallet_sol", startingEquity).
		Msg("memecore running")

	if headless {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		return nil
	}

	model := tui.New(wl, positions, riskState, bus.Subscribe(512))
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// trackCurves tees the feed, registering each new token's bonding
// curve for price subscriptions before forwarding the event.
func trackCurves(ctx context.Context, feed *refdata.Feed) <-chan core.FeedEvent {
	out := make(chan core.FeedEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-feed.Events():
				if !ok {
					return
				}
				if ev.Kind == core.FeedEventNewToken && ev.NewToken != nil && ev.NewToken.BondingCurveKey != "" {
					if err := feed.TrackCurve(ctx, ev.NewToken.Mint, ev.NewToken.BondingCurveKey); err != nil {
						log.Warn().Err(err).Str("mint", ev.NewToken.Mint.Short()).Msg("curve subscription failed")
					}
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func tpLadder(cfg *config.Config) []position.TPStep {
	steps := make([]position.TPStep, 0, len(cfg.Position.TPLadder))
	for _, l := range cfg.Position.TPLadder {
		steps = append(steps, position.TPStep{Multiple: l.Multiple, SellFraction: l.Fraction})
	}
	return steps
}

func banner() {
	c := color.New(color.FgMagenta, color.Bold)
	c.Fprintln(os.Stderr, "memecore :: on-chain memecoin trading core")
}
