package core

import (
	"context"
	"errors"

	"memecore/internal/ids"
)

// DataFeed is the inbound market-data collaborator. The core makes no
// assumption about its transport (WebSocket, REST poll, replay log);
// it only requires per-mint timestamp-ordered delivery on Events().
type DataFeed interface {
	Events() <-chan FeedEvent
	Close() error
}

// Urgency hints the swap executor's fee/compute-unit aggressiveness.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyHigh
)

// SwapResult is the outcome of a successful buy or sell.
type SwapResult struct {
	Signature      string
	TokensReceived float64
	SOLReceived    float64
	PriceEffective float64
}

// SwapErrorKind classifies a failed swap for retry/abort decisions.
type SwapErrorKind int

const (
	SwapErrUnknown SwapErrorKind = iota
	SwapErrInsufficientLiquidity
	SwapErrPriceImpactTooHigh
	SwapErrRouteNotFound
	SwapErrRateLimited
	SwapErrNetwork
)

func (k SwapErrorKind) String() string {
	switch k {
	case SwapErrInsufficientLiquidity:
		return "insufficient_liquidity"
	case SwapErrPriceImpactTooHigh:
		return "price_impact_too_high"
	case SwapErrRouteNotFound:
		return "route_not_found"
	case SwapErrRateLimited:
		return "rate_limited"
	case SwapErrNetwork:
		return "network_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether this error kind should be retried with
// backoff (rate limit, transient network) as opposed to surfaced
// immediately to the caller (liquidity/route/impact are permanent for
// this attempt).
func (k SwapErrorKind) Retryable() bool {
	switch k {
	case SwapErrRateLimited, SwapErrNetwork:
		return true
	default:
		return false
	}
}

// SwapError wraps an underlying error with its classification.
type SwapError struct {
	Kind SwapErrorKind
	Err  error
}

func (e *SwapError) Error() string { return e.Kind.String() + ": " + e.Err.Error() }
func (e *SwapError) Unwrap() error { return e.Err }

// AsSwapError extracts a *SwapError from err, if any.
func AsSwapError(err error) (*SwapError, bool) {
	var se *SwapError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// SwapExecutor is the outbound execution collaborator.
type SwapExecutor interface {
	Buy(ctx context.Context, mint ids.TokenId, amountSOL float64, slippageBps int, urgency Urgency) (SwapResult, error)
	Sell(ctx context.Context, mint ids.TokenId, tokenAmount float64, slippageBps int, urgency Urgency) (SwapResult, error)
	TokenBalance(ctx context.Context, mint ids.TokenId) (uint64, error)
	WalletBalanceSOL(ctx context.Context) (float64, error)
}

// BalanceAuditor is the optional wallet-wide balance view used by the
// reconciler to detect orphan tokens. Executors that can enumerate
// every token account implement it alongside SwapExecutor.
type BalanceAuditor interface {
	AllTokenBalances(ctx context.Context) (map[ids.TokenId]uint64, error)
}

// TradeRecord is the append-only journal entry for an opened
// position; Exit fields are zero until the journal's Close is called.
type TradeRecord struct {
	ID            string
	Mint          ids.TokenId
	Symbol        string
	EntryTime     Timestamp
	EntryPriceSOL float64
	EntryAmount   float64
	EntryTokens   float64
	ExitTime      Timestamp
	ExitReason    string
	RealizedPnL   float64
	Closed        bool
}

// ExitRecord carries the fields recorded when a position closes.
type ExitRecord struct {
	ExitTime    Timestamp
	Reason      string
	RealizedPnL float64
}

// TradeJournal is the append-only persistence collaborator.
type TradeJournal interface {
	Open(ctx context.Context, record TradeRecord) error
	Close(ctx context.Context, id string, exit ExitRecord) error
	Recent(ctx context.Context, limit int) ([]TradeRecord, error)
	ForTraining(ctx context.Context, weeks int) ([]TradeRecord, error)
}

// SnapshotSource records why an EquitySnapshot was taken.
type SnapshotSource int

const (
	SnapshotPeriodic SnapshotSource = iota
	SnapshotTradeClose
	SnapshotStartup
)

// EquitySnapshot is a point-in-time portfolio valuation.
type EquitySnapshot struct {
	Timestamp         Timestamp
	WalletSOL         float64
	PositionsValueSOL float64
	TotalEquitySOL    float64
	UnrealizedPnLSOL  float64
	PositionCount     int
	Source            SnapshotSource
}

// SnapshotStore persists EquitySnapshots.
type SnapshotStore interface {
	Put(ctx context.Context, snap EquitySnapshot) error
	History(ctx context.Context, hours int) ([]EquitySnapshot, error)
}
