package core

import "memecore/internal/ids"

// Side is the direction of a trade.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// PoolType distinguishes a bonding-curve token from one that has
// graduated to a DEX AMM pool.
type PoolType int

const (
	PoolBondingCurve PoolType = iota
	PoolDexAmm
)

func (p PoolType) String() string {
	if p == PoolDexAmm {
		return "dex_amm"
	}
	return "bonding_curve"
}

// PriceSample is a point-in-time price/liquidity observation for a
// mint, produced by an external price adapter.
type PriceSample struct {
	Timestamp    Timestamp
	Mint         ids.TokenId
	PriceSOL     float64
	PriceUSD     float64
	MarketCapSOL float64
	Liquidity    float64
	Volume24h    float64
}

// TradeEvent is a single on-chain swap affecting a mint.
type TradeEvent struct {
	Timestamp    Timestamp
	Mint         ids.TokenId
	Trader       ids.WalletId
	Side         Side
	TokenAmount  float64
	SOLAmount    float64
	MarketCapSOL float64
	PriceSOL     float64
	Signature    string
}

// NewTokenEvent announces a token entering the feed's universe.
type NewTokenEvent struct {
	Timestamp           Timestamp
	Mint                ids.TokenId
	Creator             ids.WalletId
	Symbol              string
	Name                string
	InitialPriceSOL     float64
	InitialMarketCapSOL float64
	BondingCurveKey     string
	VirtualSOL          float64
	VirtualTokens       float64
}

// FeedEventKind discriminates the union carried by FeedEvent.
type FeedEventKind int

const (
	FeedEventNewToken FeedEventKind = iota
	FeedEventTrade
	FeedEventPrice
)

// FeedEvent is the single inbound message type delivered by a
// DataFeed. Exactly one of NewToken/Trade/Price is populated,
// matching Kind.
type FeedEvent struct {
	Kind     FeedEventKind
	NewToken *NewTokenEvent
	Trade    *TradeEvent
	Price    *PriceSample
}
