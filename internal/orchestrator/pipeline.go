// Staged entry evaluation and exit execution. Stages run in a fixed
// order and bail on the first reject. The safety fetch, the holder
// fetch and swap submission go through the shared retry wrapper with
// per-stage timeouts; the smart-money lookup and the wallet balance
// query are single attempts.
package orchestrator

import (
	"context"
	"time"

	"memecore/internal/core"
	"memecore/internal/entry"
	"memecore/internal/events"
	"memecore/internal/ids"
	"memecore/internal/position"
	"memecore/internal/pump"
	"memecore/internal/retry"
	"memecore/internal/risk"
	"memecore/internal/scoring"
	"memecore/internal/velocity"
	"memecore/internal/watchlist"
)

const (
	swapMaxAttempts = 3
	swapBaseDelay   = 500 * time.Millisecond

	balanceTimeout = 5 * time.Second
)

func classifySwapErr(err error) retry.Classification {
	if se, ok := core.AsSwapError(err); ok {
		switch se.Kind {
		case core.SwapErrRateLimited:
			return retry.RateLimited
		case core.SwapErrNetwork:
			return retry.Transient
		default:
			return retry.Permanent
		}
	}
	return retry.Transient
}

// evaluate runs the full entry pipeline for mint. Any stage that
// rejects ends the evaluation; only a candidate that reaches the
// score-minimum check emits a TradeDecision.
func (o *Orchestrator) evaluate(mint ids.TokenId) {
	now := o.clock.Now()

	// Stage 1: hard filters.
	if res := o.watchlist.PassesHardFilters(mint); !res.Pass {
		o.log.Debug().Str("mint", mint.Short()).Str("reason", res.Reason).Msg("hard filter reject")
		return
	}

	tok := o.watchlist.Get(mint)
	if tok == nil {
		return
	}
	prices := tok.Prices.Items()
	latest, ok := tok.Prices.Newest()
	if !ok {
		return
	}

	// Stage 2: safety.
	safetyRes, cached, err := o.safety.Check(o.ctx, mint)
	if err != nil {
		o.log.Warn().Str("mint", mint.Short()).Err(err).Msg("safety fetch failed")
		o.bus.Publish(events.SoftFailure{Mint: mint, Stage: "safety", Err: err.Error(), At: now})
		return
	}
	riskNames := make([]string, len(safetyRes.Risks))
	for i, r := range safetyRes.Risks {
		riskNames[i] = r.String()
	}
	o.bus.Publish(events.SafetyCheck{Mint: mint, Safe: safetyRes.Safe, Risks: riskNames, Cached: cached, At: now})
	if !safetyRes.Safe {
		o.log.Debug().Str("mint", mint.Short()).Strs("risks", riskNames).Msg("unsafe token")
		return
	}

	// Stage 3: entry tiers.
	decision := o.evaluator.Evaluate(mint, tok.Age(now), prices, latest.MarketCapSOL, now)
	switch decision.Outcome {
	case entry.Wait:
		return
	case entry.Skip:
		o.log.Debug().Str("mint", mint.Short()).Str("reason", decision.Reason).Msg("entry skip")
		return
	}

	// Stage 4: scoring (smart money + holder concentration; may time
	// out without killing the evaluation's chance on a later pass).
	smartCount, _ := o.smart.CountFor(o.ctx, mint)
	o.bus.Publish(events.SmartMoneyCheck{Mint: mint, Count: smartCount, At: now})

	holders, err := o.fetchHolders(mint)
	if err != nil {
		o.bus.Publish(events.SoftFailure{Mint: mint, Stage: "holders", Err: err.Error(), At: now})
		return
	}

	var momentumPct float64
	if features, ok := o.watchlist.ExtractFeatures(mint); ok {
		momentumPct = features.PriceChangePercent
	}

	score := scoring.Compute(scoring.Inputs{
		Safety:          safetyRes,
		SmartMoneyCount: smartCount,
		LiquidityUSD:    latest.Liquidity,
		Momentum1hPct:   momentumPct,
		Holders:         holders,
		AMMPrograms:     o.ammPrograms,
	})
	if !scoring.MeetsMinimum(score, o.cfg.MinScoreToTrade) {
		o.publishDecision(mint, false, 0, score.Total, []string{"score below minimum"}, now)
		return
	}

	// Stage 5: risk guard.
	canTrade, resumed := o.riskState.CanTrade(o.cfg.Risk, now)
	if resumed {
		o.bus.Publish(events.RiskResumed{At: now})
	}
	if !canTrade {
		_, reason := o.riskState.Paused()
		if reason == "" {
			reason = "position cap reached"
		}
		o.publishDecision(mint, false, 0, score.Total, []string{reason}, now)
		return
	}
	if !o.positions.CanOpen() || o.positions.Has(mint) {
		o.publishDecision(mint, false, 0, score.Total, []string{"position cap reached"}, now)
		return
	}

	available := o.walletBalance()
	size := risk.ComputeSize(o.cfg.Risk, score.Total, velocity.MomentumStrength(decision.Velocity), 1.0, available)
	if size <= 0 {
		o.publishDecision(mint, false, 0, score.Total, []string{"size computed to zero"}, now)
		return
	}

	// Stage 6: decision.
	o.publishDecision(mint, true, size, score.Total, []string{decision.Source.String() + " entry"}, now)

	if !o.cfg.EnableTrading {
		o.log.Info().Str("mint", mint.Short()).Float64("size_sol", size).Msg("trading disabled, skipping buy")
		return
	}

	// Stage 7: execute.
	o.executeBuy(tok, latest, size, now)
}

func (o *Orchestrator) publishDecision(mint ids.TokenId, approve bool, size, score float64, reasons []string, now core.Timestamp) {
	o.bus.Publish(events.TradeDecision{Mint: mint, Approve: approve, SizeSOL: size, Score: score, Reasons: reasons, At: now})
}

// fetchHolders caches the holder scan briefly: concentration barely
// moves between consecutive ticks, and the scan is the most expensive
// RPC call in the pipeline.
func (o *Orchestrator) fetchHolders(mint ids.TokenId) ([]scoring.Holder, error) {
	key := "holders:" + mint.String()
	if cached, ok := o.holderCache.Get(key); ok {
		return cached, nil
	}

	var holders []scoring.Holder
	err := retry.Do(o.ctx, swapMaxAttempts, swapBaseDelay, classifySwapErr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, o.cfg.HolderFetchTimeout)
		defer cancel()
		h, err := o.holders.TopHolders(hctx, mint)
		if err != nil {
			return err
		}
		holders = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.holderCache.Set(key, holders, 30*time.Second)
	return holders, nil
}

func (o *Orchestrator) walletBalance() float64 {
	ctx, cancel := context.WithTimeout(o.ctx, balanceTimeout)
	defer cancel()
	sol, err := o.executor.WalletBalanceSOL(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("wallet balance query failed")
		return 0
	}
	return sol
}

func (o *Orchestrator) executeBuy(tok *watchlist.WatchedToken, latest core.PriceSample, sizeSOL float64, now core.Timestamp) {
	mint := tok.Mint

	var result core.SwapResult
	err := retry.Do(o.ctx, swapMaxAttempts, swapBaseDelay, classifySwapErr, func(ctx context.Context) error {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.SwapTimeout)
		defer cancel()
		r, err := o.executor.Buy(sctx, mint, sizeSOL, o.cfg.SlippageBps, core.UrgencyHigh)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		o.log.Warn().Str("mint", mint.Short()).Err(err).Msg("buy failed")
		o.bus.Publish(events.SoftFailure{Mint: mint, Stage: "buy", Err: err.Error(), At: o.clock.Now()})
		return
	}

	entryPrice := result.PriceEffective
	if entryPrice <= 0 {
		entryPrice = latest.PriceSOL
	}

	p := position.Open(mint, o.symbolFor(mint), entryPrice, result.TokensReceived, sizeSOL, tok.CurrentPoolType(), o.clock.Now())
	o.positions.Add(p)
	o.riskState.NotePositionOpened()
	o.rug.Watch(mint, tok.Creator, entryPrice)

	o.bus.Publish(events.TradeExecuted{Mint: mint, Side: core.SideBuy, Signature: result.Signature, Success: true, At: o.clock.Now()})
	o.bus.Publish(events.PositionOpened{PositionID: p.ID.String(), Mint: mint, SizeSOL: sizeSOL, EntryPrice: entryPrice, At: o.clock.Now()})

	if o.journal != nil {
		if err := o.journal.Open(o.ctx, core.TradeRecord{
			ID:            p.ID.String(),
			Mint:          mint,
			Symbol:        p.Symbol,
			EntryTime:     p.EntryTime,
			EntryPriceSOL: entryPrice,
			EntryAmount:   sizeSOL,
			EntryTokens:   result.TokensReceived,
		}); err != nil {
			o.log.Error().Err(err).Str("mint", mint.Short()).Msg("journal open failed")
		}
	}
}

// tickPosition applies a price sample to an open position: stop loss,
// ladder, trailing, then the pump-based exit.
func (o *Orchestrator) tickPosition(p *position.Position, sample core.PriceSample) {
	for _, d := range p.OnPrice(o.cfg.Position, sample.PriceSOL) {
		o.executeSell(p, d)
		if p.IsClosed() {
			return
		}
	}
	if p.CurrentStatus() != position.StatusOpen {
		return
	}

	tok := o.watchlist.Get(p.Mint)
	if tok == nil {
		return
	}
	vm, haveVM := o.velocity.MetricsFor(p.Mint)
	metrics := o.detector.Evaluate(p.Mint, tok.Prices.Items(), vm, haveVM, o.clock.Now())
	// Pump-based exits only take profits: below +10% the stop loss
	// governs, not momentum.
	frac := p.UnrealizedPnLFraction()
	if pump.ShouldExit(metrics, frac) && frac > 0.10 {
		o.exitFull(p, position.ExitPump)
	}
}

func (o *Orchestrator) exitFull(p *position.Position, reason position.ExitReason) {
	d, ok := p.FullExitDecision(reason)
	if !ok {
		return
	}
	o.executeSell(p, d)
}

// executeSell submits the sell a Decision calls for, retrying with
// backoff; exhausted retries on a full exit close the position as
// sell-failed with an estimated P&L.
func (o *Orchestrator) executeSell(p *position.Position, d position.Decision) {
	tokens := p.EntryTokens * d.SellFraction
	if tokens <= 0 {
		return
	}

	if d.Full {
		p.MarkClosing(d.Reason)
	}

	var result core.SwapResult
	err := retry.Do(o.ctx, swapMaxAttempts, swapBaseDelay, classifySwapErr, func(ctx context.Context) error {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.SwapTimeout)
		defer cancel()
		r, err := o.executor.Sell(sctx, p.Mint, tokens, o.cfg.SlippageBps, core.UrgencyHigh)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	now := o.clock.Now()

	if err != nil {
		o.log.Error().Str("mint", p.Mint.Short()).Err(err).Msg("sell failed")
		o.bus.Publish(events.TradeExecuted{Mint: p.Mint, Side: core.SideSell, Success: false, At: now})
		if _, exhausted := p.RecordSellFailure(o.cfg.Position); exhausted || d.Full {
			pnl := p.Close(position.ExitSellFailed, d.SellFraction, 0, 0, now)
			o.finalizeClose(p, position.ExitSellFailed, pnl, now)
		} else {
			// Partial sell failed with retries left: the tokens are
			// still in the wallet, so put the fraction back.
			p.RestoreFraction(d.SellFraction)
		}
		return
	}

	o.bus.Publish(events.TradeExecuted{Mint: p.Mint, Side: core.SideSell, Signature: result.Signature, Success: true, At: now})

	if !d.Full {
		p.RecordPartialProceeds(result.SOLReceived)
		o.bus.Publish(events.PartialClose{
			PositionID:   p.ID.String(),
			Mint:         p.Mint,
			LadderStep:   d.LadderStep,
			FractionSold: d.SellFraction,
			Price:        result.PriceEffective,
			At:           now,
		})
		return
	}

	pnl := p.Close(d.Reason, d.SellFraction, result.SOLReceived, 0, now)
	o.finalizeClose(p, d.Reason, pnl, now)
}

func (o *Orchestrator) finalizeClose(p *position.Position, reason position.ExitReason, pnl float64, now core.Timestamp) {
	o.positions.Remove(p.Mint)
	o.rug.Unwatch(p.Mint)
	o.riskState.NotePositionClosed()

	o.bus.Publish(events.PositionClosed{
		PositionID:  p.ID.String(),
		Mint:        p.Mint,
		Reason:      string(reason),
		RealizedPnL: pnl,
		At:          now,
	})

	equity := o.walletBalance()
	for _, s := range o.positions.Snapshots() {
		equity += s.LastPrice * s.EntryTokens * s.RemainingFraction
	}
	if tripped, why := o.riskState.RecordTradeClose(o.cfg.Risk, pnl, equity, now); tripped {
		o.bus.Publish(events.RiskPaused{Reason: why, Until: now.Add(o.cfg.Risk.PauseDuration), At: now})
	}

	if o.journal != nil {
		if err := o.journal.Close(o.ctx, p.ID.String(), core.ExitRecord{ExitTime: now, Reason: string(reason), RealizedPnL: pnl}); err != nil {
			o.log.Error().Err(err).Str("id", p.ID.String()).Msg("journal close failed")
		}
	}

	// The token stays watchable only if something re-queues it; by
	// default a closed position retires its mint.
	o.watchlist.Remove(p.Mint, "position closed")
}
