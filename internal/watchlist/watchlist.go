// Package watchlist maintains per-token rolling state (price/trade
// history, dev-holding accounting, lifecycle) and the hard
// instant-reject filters gating everything downstream: a mutex-guarded
// map of mutex-guarded per-mint records.
package watchlist

import (
	"math"
	"sync"
	"time"

	"memecore/internal/core"
	"memecore/internal/events"
	"memecore/internal/ids"
	"memecore/internal/rollingwindow"
)

const (
	priceCapacity   = 300
	priceMaxAge     = 5 * time.Minute
	tradeCapacity   = 500
	tradeMaxAge     = 60 * time.Second
	bucketWidth     = 30 * time.Second
	bucketCapacity  = 10
	uniqueHistCap   = 64
	devSellEpsilon  = 1e-9
	devUnknownBump  = 0.1
	youngAgeSeconds = 180
)

// VolumeBucket counts trades within one 30-second window.
type VolumeBucket struct {
	Count     int
	Timestamp core.Timestamp
}

// UniqueTraderSample records the cumulative all-time unique trader
// count at the moment of a trade, used to derive growth over the
// last N samples.
type UniqueTraderSample struct {
	Count     int
	Timestamp core.Timestamp
}

// WatchedToken is the Watchlist's exclusively-owned per-mint record.
type WatchedToken struct {
	Mint      ids.TokenId
	Creator   ids.WalletId
	FirstSeen core.Timestamp
	PoolType  core.PoolType

	Prices *rollingwindow.Window[core.PriceSample]
	Trades *rollingwindow.Window[core.TradeEvent]

	mu sync.RWMutex

	peakPrice   float64
	lowestPrice float64

	devInitialHolding float64
	devSoldPercent    float64
	devSoldAt         *core.Timestamp
	devFlagged        bool

	volumeBuckets        *rollingwindow.Window[VolumeBucket]
	currentBucketStart   core.Timestamp
	currentBucketCount   int

	uniqueTradersAllTime map[ids.WalletId]struct{}
	uniqueTraderHistory  *rollingwindow.Window[UniqueTraderSample]

	tradeSeen map[string]struct{} // signature dedup

	lastEvalPassed bool
}

func tsOfPrice(p core.PriceSample) core.Timestamp   { return p.Timestamp }
func tsOfTrade(t core.TradeEvent) core.Timestamp    { return t.Timestamp }
func tsOfBucket(b VolumeBucket) core.Timestamp      { return b.Timestamp }
func tsOfUnique(u UniqueTraderSample) core.Timestamp { return u.Timestamp }

func newWatchedToken(mint ids.TokenId, creator ids.WalletId, now core.Timestamp) *WatchedToken {
	return &WatchedToken{
		Mint:                 mint,
		Creator:              creator,
		FirstSeen:            now,
		Prices:               rollingwindow.New[core.PriceSample](priceCapacity, priceMaxAge, tsOfPrice),
		Trades:               rollingwindow.New[core.TradeEvent](tradeCapacity, tradeMaxAge, tsOfTrade),
		volumeBuckets:        rollingwindow.New[VolumeBucket](bucketCapacity, 0, tsOfBucket),
		uniqueTradersAllTime: make(map[ids.WalletId]struct{}),
		uniqueTraderHistory:  rollingwindow.New[UniqueTraderSample](uniqueHistCap, 0, tsOfUnique),
		tradeSeen:            make(map[string]struct{}),
	}
}

// PeakPrice returns the monotone all-time-high price sample seen.
func (w *WatchedToken) PeakPrice() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.peakPrice
}

// LowestPrice returns the monotone all-time-low price sample seen.
func (w *WatchedToken) LowestPrice() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lowestPrice
}

// DevFlagged reports whether the creator has been flagged as having
// dumped past the configured threshold. Monotone: never clears.
func (w *WatchedToken) DevFlagged() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.devFlagged
}

// CurrentPoolType reports whether the token is still on its bonding
// curve or has graduated to a DEX AMM pool.
func (w *WatchedToken) CurrentPoolType() core.PoolType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.PoolType
}

// Age returns time elapsed since first_seen.
func (w *WatchedToken) Age(now core.Timestamp) time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return now.Sub(w.FirstSeen)
}

// Config holds the hard-filter and lifecycle tunables.
type Config struct {
	MinDataPoints       int
	MinAgeSeconds       int
	MaxDrawdownFromPeak float64
	MinMarketCapSOL     float64
	MinUniqueTraders    int
	RequireUptrend      bool

	GraduationLiquiditySOL float64
}

// Watchlist owns every WatchedToken record.
type Watchlist struct {
	cfg   Config
	clock core.Clock
	bus   *events.Bus

	mu     sync.RWMutex
	tokens map[ids.TokenId]*WatchedToken
}

// New creates an empty Watchlist.
func New(cfg Config, clock core.Clock, bus *events.Bus) *Watchlist {
	return &Watchlist{
		cfg:    cfg,
		clock:  clock,
		bus:    bus,
		tokens: make(map[ids.TokenId]*WatchedToken),
	}
}

// Add registers mint if not already present. Idempotent.
func (wl *Watchlist) Add(mint ids.TokenId, creator ids.WalletId) {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	if _, exists := wl.tokens[mint]; exists {
		return
	}

	now := wl.clock.Now()
	wl.tokens[mint] = newWatchedToken(mint, creator, now)
	wl.bus.Publish(events.TokenAdded{Mint: mint, Creator: creator, At: now})
}

// Get returns the record for mint, or nil.
func (wl *Watchlist) Get(mint ids.TokenId) *WatchedToken {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return wl.tokens[mint]
}

// RecordPrice appends a price sample to mint's history and maintains
// peak/lowest trackers. Emits TokenReady whenever the price window
// grows to min_data_points from below: once for a steady feed, and
// again if aged-out samples had first shrunk it under that count.
func (wl *Watchlist) RecordPrice(mint ids.TokenId, sample core.PriceSample) {
	tok := wl.Get(mint)
	if tok == nil {
		return
	}

	now := wl.clock.Now()
	wasReady := tok.Prices.Len() >= wl.cfg.MinDataPoints
	tok.Prices.Add(sample, now)

	tok.mu.Lock()
	if tok.peakPrice == 0 || sample.PriceSOL > tok.peakPrice {
		tok.peakPrice = sample.PriceSOL
	}
	if tok.lowestPrice == 0 || sample.PriceSOL < tok.lowestPrice {
		tok.lowestPrice = sample.PriceSOL
	}
	if wl.cfg.GraduationLiquiditySOL > 0 && sample.Liquidity >= wl.cfg.GraduationLiquiditySOL {
		tok.PoolType = core.PoolDexAmm
	}
	tok.mu.Unlock()

	nowReady := tok.Prices.Len() >= wl.cfg.MinDataPoints
	if !wasReady && nowReady {
		wl.bus.Publish(events.TokenReady{Mint: mint, At: now})
	}
}

// RecordTrade appends a trade, updates the 30s volume bucket and
// unique-trader growth sample, and runs dev-sell accounting. Trades
// with a signature already seen for this mint are ignored (dedup).
func (wl *Watchlist) RecordTrade(mint ids.TokenId, trade core.TradeEvent) {
	tok := wl.Get(mint)
	if tok == nil {
		return
	}

	tok.mu.Lock()
	if trade.Signature != "" {
		if _, seen := tok.tradeSeen[trade.Signature]; seen {
			tok.mu.Unlock()
			return
		}
		tok.tradeSeen[trade.Signature] = struct{}{}
	}
	tok.mu.Unlock()

	now := wl.clock.Now()
	tok.Trades.Add(trade, now)

	wl.updateVolumeBucket(tok, now)
	wl.updateUniqueTraderHistory(tok, trade, now)
	wl.evaluateDevSell(tok, trade, now)
}

func (wl *Watchlist) updateVolumeBucket(tok *WatchedToken, now core.Timestamp) {
	tok.mu.Lock()
	defer tok.mu.Unlock()

	if tok.currentBucketStart == 0 {
		tok.currentBucketStart = now
	}

	if now.Sub(tok.currentBucketStart) >= bucketWidth {
		tok.volumeBuckets.Add(VolumeBucket{Count: tok.currentBucketCount, Timestamp: tok.currentBucketStart}, now)
		tok.currentBucketStart = now
		tok.currentBucketCount = 1
	} else {
		tok.currentBucketCount++
	}
}

func (wl *Watchlist) updateUniqueTraderHistory(tok *WatchedToken, trade core.TradeEvent, now core.Timestamp) {
	tok.mu.Lock()
	tok.uniqueTradersAllTime[trade.Trader] = struct{}{}
	count := len(tok.uniqueTradersAllTime)
	tok.mu.Unlock()

	tok.uniqueTraderHistory.Add(UniqueTraderSample{Count: count, Timestamp: now}, now)
}

func (wl *Watchlist) evaluateDevSell(tok *WatchedToken, trade core.TradeEvent, now core.Timestamp) {
	if trade.Trader != tok.Creator {
		return
	}

	tok.mu.Lock()
	defer tok.mu.Unlock()

	if trade.Side == core.SideBuy {
		if tok.devInitialHolding == 0 {
			tok.devInitialHolding = trade.TokenAmount
		}
		return
	}

	// Sell by the creator.
	if tok.devFlagged {
		return
	}

	if tok.devInitialHolding > devSellEpsilon {
		tok.devSoldPercent += trade.TokenAmount / tok.devInitialHolding
	} else {
		tok.devSoldPercent += devUnknownBump
	}
	if tok.devSoldPercent > 1.0 {
		tok.devSoldPercent = 1.0
	}

	age := now.Sub(tok.FirstSeen)
	threshold := 0.05
	if age < youngAgeSeconds*time.Second {
		threshold = 0.02
	}

	if tok.devSoldPercent > threshold {
		tok.devFlagged = true
		at := now
		tok.devSoldAt = &at
		wl.bus.Publish(events.DevSold{
			Mint:          tok.Mint,
			SoldPercent:   tok.devSoldPercent,
			ThresholdUsed: threshold,
			At:            now,
		})
	}
}

// FilterResult is the outcome of PassesHardFilters.
type FilterResult struct {
	Pass   bool
	Reason string
}

func pass() FilterResult          { return FilterResult{Pass: true} }
func reject(reason string) FilterResult { return FilterResult{Pass: false, Reason: reason} }

// PassesHardFilters evaluates the instant-reject rules in a fixed
// order, returning the first failing rule's reason.
func (wl *Watchlist) PassesHardFilters(mint ids.TokenId) FilterResult {
	tok := wl.Get(mint)
	if tok == nil {
		return reject("unknown token")
	}

	now := wl.clock.Now()

	if tok.DevFlagged() {
		wl.markEval(tok, false)
		return reject("dev sold")
	}

	if tok.Prices.Len() < wl.cfg.MinDataPoints {
		wl.markEval(tok, false)
		return reject("insufficient data")
	}

	if now.Sub(tok.FirstSeen) < time.Duration(wl.cfg.MinAgeSeconds)*time.Second {
		wl.markEval(tok, false)
		return reject("too young")
	}

	peak := tok.PeakPrice()
	latest, ok := tok.Prices.Newest()
	if !ok {
		wl.markEval(tok, false)
		return reject("insufficient data")
	}
	if peak > 0 {
		drawdown := (peak - latest.PriceSOL) / peak
		if drawdown > wl.cfg.MaxDrawdownFromPeak {
			wl.markEval(tok, false)
			return reject("crashed")
		}
	}

	if latest.MarketCapSOL < wl.cfg.MinMarketCapSOL {
		wl.markEval(tok, false)
		return reject("low mcap")
	}

	uniqueTraders := uniqueTradersInWindow(tok.Trades.Items())
	if uniqueTraders < wl.cfg.MinUniqueTraders {
		wl.markEval(tok, false)
		return reject("wash risk")
	}

	if wl.cfg.RequireUptrend {
		if older, found := tok.Prices.FirstOlderThan(60*time.Second, now); found && older.PriceSOL > 0 {
			if latest.PriceSOL < 0.98*older.PriceSOL {
				wl.markEval(tok, false)
				return reject("downtrend")
			}
		}
	}

	wl.markEval(tok, true)
	return pass()
}

func (wl *Watchlist) markEval(tok *WatchedToken, passed bool) {
	tok.mu.Lock()
	tok.lastEvalPassed = passed
	tok.mu.Unlock()
}

// LastEvalPassed reports whether mint passed hard filters on its most
// recent evaluation (used by the orchestrator to gate re-evaluation
// on trade events without rerunning the full filter chain).
func (wl *Watchlist) LastEvalPassed(mint ids.TokenId) bool {
	tok := wl.Get(mint)
	if tok == nil {
		return false
	}
	tok.mu.RLock()
	defer tok.mu.RUnlock()
	return tok.lastEvalPassed
}

func uniqueTradersInWindow(trades []core.TradeEvent) int {
	seen := make(map[ids.WalletId]struct{}, len(trades))
	for _, t := range trades {
		seen[t.Trader] = struct{}{}
	}
	return len(seen)
}

// Cleanup drops tokens aged past maxAge with no trade in the last 60s.
func (wl *Watchlist) Cleanup(maxAge time.Duration) int {
	now := wl.clock.Now()

	wl.mu.Lock()
	defer wl.mu.Unlock()

	removed := 0
	for mint, tok := range wl.tokens {
		if now.Sub(tok.FirstSeen) <= maxAge {
			continue
		}
		if tok.Trades.CountSince(60*time.Second, now) > 0 {
			continue
		}
		delete(wl.tokens, mint)
		removed++
		wl.bus.Publish(events.TokenRemoved{Mint: mint, Reason: "aged out", At: now})
	}
	return removed
}

// Remove drops mint unconditionally (e.g. after a position closes
// with no re-evaluation queued).
func (wl *Watchlist) Remove(mint ids.TokenId, reason string) {
	wl.mu.Lock()
	_, existed := wl.tokens[mint]
	delete(wl.tokens, mint)
	wl.mu.Unlock()

	if existed {
		wl.bus.Publish(events.TokenRemoved{Mint: mint, Reason: reason, At: wl.clock.Now()})
	}
}

// Count returns the number of tracked tokens.
func (wl *Watchlist) Count() int {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return len(wl.tokens)
}

// WatchlistFeatures are the derived signals the scoring/entry layers
// read off a token's rolling state, computed fresh on every call
// rather than cached, since they feed decisions that must reflect the
// latest tick.
type WatchlistFeatures struct {
	PriceChangePercent   float64 // over the retained price window
	Volatility           float64 // stddev of 1-step returns
	DrawdownFromPeak     float64
	BuyPressure          float64 // fraction of recent trades that are buys
	VolumeTrend          float64 // last bucket vs. mean of prior buckets
	VolumeAcceleration   float64 // last bucket / previous bucket
	AgeSeconds           float64
	UniqueTraders        int
	DevHoldingResidual   float64 // 1 - dev_sold_percent, clamped to [0,1]
	UniqueTraderGrowth   int     // growth over the last 10 unique-trader samples
	MomentumOverride     bool    // strong uptrend despite thin sample count
}

// ExtractFeatures derives WatchlistFeatures for mint, or reports false
// if the token is unknown or has no price history yet.
func (wl *Watchlist) ExtractFeatures(mint ids.TokenId) (WatchlistFeatures, bool) {
	tok := wl.Get(mint)
	if tok == nil {
		return WatchlistFeatures{}, false
	}

	prices := tok.Prices.Items()
	if len(prices) == 0 {
		return WatchlistFeatures{}, false
	}

	now := wl.clock.Now()
	first, last := prices[0], prices[len(prices)-1]

	var priceChangePercent float64
	if first.PriceSOL > 0 {
		priceChangePercent = (last.PriceSOL - first.PriceSOL) / first.PriceSOL * 100
	}

	volatility := stddevOfReturns(prices)

	peak := tok.PeakPrice()
	var drawdown float64
	if peak > 0 {
		drawdown = (peak - last.PriceSOL) / peak
	}

	trades := tok.Trades.Items()
	var buys int
	for _, t := range trades {
		if t.Side == core.SideBuy {
			buys++
		}
	}
	var buyPressure float64
	if len(trades) > 0 {
		buyPressure = float64(buys) / float64(len(trades))
	}

	buckets := tok.volumeBuckets.Items()
	volumeTrend, volumeAccel := volumeBucketTrend(buckets)

	tok.mu.RLock()
	devResidual := 1 - tok.devSoldPercent
	tok.mu.RUnlock()
	if devResidual < 0 {
		devResidual = 0
	}

	uniqueHist := tok.uniqueTraderHistory.NewestFirst()
	var growth int
	if n := len(uniqueHist); n > 0 {
		oldestIdx := n - 1
		if n > 10 {
			oldestIdx = 9
		}
		growth = uniqueHist[0].Count - uniqueHist[oldestIdx].Count
	}

	age := now.Sub(tok.FirstSeen)

	// A momentum override flags a token still thin on samples but
	// already showing a strong, broad-based uptrend: buy pressure
	// dominant and price up meaningfully from its first retained
	// sample, worth a second look even before min_data_points.
	momentumOverride := len(prices) < wl.cfg.MinDataPoints &&
		buyPressure >= 0.65 &&
		priceChangePercent >= 20

	return WatchlistFeatures{
		PriceChangePercent: priceChangePercent,
		Volatility:         volatility,
		DrawdownFromPeak:   drawdown,
		BuyPressure:        buyPressure,
		VolumeTrend:        volumeTrend,
		VolumeAcceleration: volumeAccel,
		AgeSeconds:         age.Seconds(),
		UniqueTraders:      uniqueTradersInWindow(trades),
		DevHoldingResidual: devResidual,
		UniqueTraderGrowth: growth,
		MomentumOverride:   momentumOverride,
	}, true
}

func stddevOfReturns(prices []core.PriceSample) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1].PriceSOL <= 0 {
			continue
		}
		returns = append(returns, (prices[i].PriceSOL-prices[i-1].PriceSOL)/prices[i-1].PriceSOL)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}

// volumeBucketTrend compares the most recent completed bucket against
// the mean of prior buckets (trend) and the immediately preceding
// bucket (acceleration).
func volumeBucketTrend(buckets []VolumeBucket) (trend, acceleration float64) {
	if len(buckets) == 0 {
		return 0, 0
	}
	last := buckets[len(buckets)-1]
	if len(buckets) == 1 {
		return 0, 0
	}

	prior := buckets[:len(buckets)-1]
	var sum float64
	for _, b := range prior {
		sum += float64(b.Count)
	}
	mean := sum / float64(len(prior))
	if mean > 0 {
		trend = (float64(last.Count) - mean) / mean
	}

	prev := prior[len(prior)-1]
	if prev.Count > 0 {
		acceleration = float64(last.Count) / float64(prev.Count)
	}
	return trend, acceleration
}
