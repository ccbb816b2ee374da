// Package safety implements the Safety Analyzer: a pure
// classification from a token's on-chain authorities and extensions
// to a closed set of named risk kinds, plus a cached wrapper around
// the external metadata fetch.
package safety

import (
	"context"
	"time"

	"memecore/internal/cache"
	"memecore/internal/core"
	"memecore/internal/ids"
	"memecore/internal/retry"
)

const (
	defaultCacheTTL = 24 * time.Hour
	fetchTimeout    = 5 * time.Second
	maxAttempts  = 3
	baseDelay    = 200 * time.Millisecond

	// Transfer fees above 1% are treated as a toll-booth token.
	highTransferFeeBps = 100
)

// RiskKind is a closed enumeration of the safety concerns the
// analyzer checks for.
type RiskKind int

const (
	MintAuthorityActive RiskKind = iota
	FreezeAuthorityActive
	PermanentDelegate
	HighTransferFee
	TransferHook
	MutableMetadata
)

func (r RiskKind) String() string {
	switch r {
	case MintAuthorityActive:
		return "mint_authority_active"
	case FreezeAuthorityActive:
		return "freeze_authority_active"
	case PermanentDelegate:
		return "permanent_delegate"
	case HighTransferFee:
		return "high_transfer_fee"
	case TransferHook:
		return "transfer_hook"
	case MutableMetadata:
		return "mutable_metadata"
	default:
		return "unknown"
	}
}

// Critical reports whether this risk alone makes a token unsafe to
// hold: an active mint or freeze authority lets the creator dilute or
// trap holders outright.
func (r RiskKind) Critical() bool {
	return r == MintAuthorityActive || r == FreezeAuthorityActive
}

// Data is the on-chain token state the analyzer classifies. Fetching
// it is an external concern (Fetcher); classification itself is pure.
type Data struct {
	MintAuthority   bool // authority still present
	FreezeAuthority bool
	PermanentDelegate bool // token-2022 extension present
	TransferFeeBps  int
	TransferHook    bool
	MetadataMutable bool
}

// Result is the analyzer's verdict for one mint.
type Result struct {
	Mint      ids.TokenId
	Safe      bool
	Risks     []RiskKind
	CheckedAt core.Timestamp
}

// HasRisk reports whether kind appears in the result's risk list.
func (r Result) HasRisk(kind RiskKind) bool {
	for _, k := range r.Risks {
		if k == kind {
			return true
		}
	}
	return false
}

// HasCriticalRisk reports whether any critical risk is present.
func (r Result) HasCriticalRisk() bool {
	for _, k := range r.Risks {
		if k.Critical() {
			return true
		}
	}
	return false
}

// Analyze is a pure function: the same Data always yields the same
// risk list. A token is safe when it carries no risks, or when
// mutable metadata is the only one (nearly every memecoin launches
// with mutable metadata).
func Analyze(mint ids.TokenId, data Data, now core.Timestamp) Result {
	var risks []RiskKind

	if data.MintAuthority {
		risks = append(risks, MintAuthorityActive)
	}
	if data.FreezeAuthority {
		risks = append(risks, FreezeAuthorityActive)
	}
	if data.PermanentDelegate {
		risks = append(risks, PermanentDelegate)
	}
	if data.TransferFeeBps > highTransferFeeBps {
		risks = append(risks, HighTransferFee)
	}
	if data.TransferHook {
		risks = append(risks, TransferHook)
	}
	if data.MetadataMutable {
		risks = append(risks, MutableMetadata)
	}

	safe := len(risks) == 0 || (len(risks) == 1 && risks[0] == MutableMetadata)
	return Result{Mint: mint, Safe: safe, Risks: risks, CheckedAt: now}
}

// Fetcher retrieves the on-chain safety data for a mint. Implemented
// by an external collaborator (e.g. internal/feed/refdata); never
// referenced concretely here.
type Fetcher interface {
	Fetch(ctx context.Context, mint ids.TokenId) (Data, error)
}

// Analyzer caches Analyze results per mint so repeated evaluations of
// an unchanged token don't re-fetch on-chain data. A fetch failure
// propagates without populating the cache.
type Analyzer struct {
	clock   core.Clock
	fetcher Fetcher
	cache   *cache.Cache[Result]
	ttl     time.Duration
}

// New creates an Analyzer backed by fetcher, using clock as its cache
// time source. ttl <= 0 falls back to 24 hours.
func New(clock core.Clock, fetcher Fetcher, ttl time.Duration) *Analyzer {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Analyzer{
		clock:   clock,
		fetcher: fetcher,
		cache:   cache.New[Result](clock),
		ttl:     ttl,
	}
}

// Check returns the cached Result for mint if still fresh, otherwise
// fetches fresh Data with retries and classifies it. The bool reports
// whether the result came from cache.
func (a *Analyzer) Check(ctx context.Context, mint ids.TokenId) (Result, bool, error) {
	key := "token_safety:" + mint.String()

	if cached, ok := a.cache.Get(key); ok {
		return cached, true, nil
	}

	var data Data
	err := retry.Do(ctx, maxAttempts, baseDelay, classifyFetchErr, func(ctx context.Context) error {
		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		d, err := a.fetcher.Fetch(fctx, mint)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		return Result{}, false, err
	}

	result := Analyze(mint, data, a.clock.Now())
	a.cache.Set(key, result, a.ttl)
	return result, false, nil
}

// Stats exposes the underlying cache's hit/miss counters.
func (a *Analyzer) Stats() cache.Stats {
	return a.cache.Stats()
}

func classifyFetchErr(error) retry.Classification {
	return retry.Transient
}
