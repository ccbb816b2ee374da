// Package smartmoney tracks how many of a mint's holders are
// classified as historically profitable traders ("smart money").
// Classification is pluggable (Classifier); a bundled heuristic
// implementation ships for when no external scoring service is
// configured.
package smartmoney

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"memecore/internal/cache"
	"memecore/internal/core"
	"memecore/internal/ids"
)

const (
	defaultCacheTTL = time.Hour

	minTradesForClassification = 5
	minWinRate                 = 0.6
)

// Classifier decides whether a wallet's trade history marks it as
// smart money. Swappable so an external scoring service can replace
// the bundled heuristic without touching the tracker.
type Classifier interface {
	Classify(wallet ids.WalletId, history []core.TradeRecord) bool
}

// HeuristicClassifier flags a wallet as smart money when it has a
// minimum number of closed trades and a win rate of at least minWinRate.
type HeuristicClassifier struct{}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(_ ids.WalletId, history []core.TradeRecord) bool {
	closed := 0
	wins := 0
	for _, t := range history {
		if !t.Closed {
			continue
		}
		closed++
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	if closed < minTradesForClassification {
		return false
	}
	return float64(wins)/float64(closed) >= minWinRate
}

// HolderFetcher lists a mint's current holder wallets. Implemented by
// an external collaborator (e.g. internal/feed/refdata).
type HolderFetcher interface {
	Holders(ctx context.Context, mint ids.TokenId) ([]ids.WalletId, error)
}

// HistoryFetcher retrieves a wallet's historical trade record for
// classification. Implemented by an external collaborator.
type HistoryFetcher interface {
	History(ctx context.Context, wallet ids.WalletId) ([]core.TradeRecord, error)
}

// Tracker counts smart-money holders per mint, caching each wallet's
// classification independently so the expensive history fetch is
// amortized across every mint that wallet holds.
type Tracker struct {
	clock      core.Clock
	holders    HolderFetcher
	history    HistoryFetcher
	classifier Classifier
	cache      *cache.Cache[bool]
	ttl        time.Duration
	log        zerolog.Logger
}

// New creates a Tracker. classifier may be nil, in which case
// HeuristicClassifier is used; ttl <= 0 falls back to one hour.
func New(clock core.Clock, holders HolderFetcher, history HistoryFetcher, classifier Classifier, ttl time.Duration, log zerolog.Logger) *Tracker {
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Tracker{
		clock:      clock,
		holders:    holders,
		history:    history,
		classifier: classifier,
		cache:      cache.New[bool](clock),
		ttl:        ttl,
		log:        log,
	}
}

// CountFor returns how many of mint's current holders classify as
// smart money, and which wallets they are. Any fetch error is logged
// and treated as "no smart money found" rather than propagated: a
// down holder-fetch service should not block the pipeline.
func (t *Tracker) CountFor(ctx context.Context, mint ids.TokenId) (int, []ids.WalletId) {
	wallets, err := t.holders.Holders(ctx, mint)
	if err != nil {
		t.log.Warn().Str("mint", mint.Short()).Err(err).Msg("smart money holder fetch failed")
		return 0, nil
	}

	var smart []ids.WalletId
	for _, w := range wallets {
		if t.isSmartMoney(ctx, w) {
			smart = append(smart, w)
		}
	}
	return len(smart), smart
}

func (t *Tracker) isSmartMoney(ctx context.Context, wallet ids.WalletId) bool {
	key := "smartmoney:" + wallet.String()

	if cached, ok := t.cache.Get(key); ok {
		return cached
	}

	hist, err := t.history.History(ctx, wallet)
	if err != nil {
		t.log.Warn().Str("wallet", wallet.Short()).Err(err).Msg("smart money history fetch failed")
		return false
	}

	verdict := t.classifier.Classify(wallet, hist)
	t.cache.Set(key, verdict, t.ttl)
	return verdict
}
