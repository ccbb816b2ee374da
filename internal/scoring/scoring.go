// Package scoring implements the Scoring Engine: a banded point
// combination of safety, smart-money, liquidity, and momentum axes
// with a holder-concentration penalty.
package scoring

import (
	"math"
	"sort"

	"memecore/internal/ids"
	"memecore/internal/safety"
)

const (
	maxSafety     = 40.0
	maxSmartMoney = 30.0
	maxLiquidity  = 20.0
	maxMomentum   = 10.0

	concentrationPenaltyFactor = 0.8

	topHolderLimit  = 0.15 // strict >: a top-1 holder over 15%
	top10HolderLimit = 0.50 // strict >: top-10 holders over 50%
)

// Holder is one token-account holder with its share of supply.
type Holder struct {
	Wallet  ids.WalletId
	Percent float64 // 0..1 of total supply
}

// Inputs is everything the engine combines for one token.
type Inputs struct {
	Safety          safety.Result
	SmartMoneyCount int
	LiquidityUSD    float64
	Momentum1hPct   float64
	Holders         []Holder
	// AMMPrograms are pool/program addresses excluded from the
	// concentration check; a bonding curve holding 90% of supply is
	// structure, not concentration.
	AMMPrograms map[ids.WalletId]struct{}
}

// Score is the computed result. Total is always
// floor((safety+smart_money+liquidity+momentum) * penalty).
type Score struct {
	Total                float64 // 0..100
	Safety               float64 // 0..40
	SmartMoney           float64 // 0..30
	Liquidity            float64 // 0..20
	Momentum             float64 // 0..10
	ConcentrationApplied bool
	Flags                []string
}

// Compute combines the axes per the fixed band tables, then applies
// the 20% concentration penalty when the filtered holder distribution
// is top-heavy.
func Compute(in Inputs) Score {
	s := Score{}

	s.Safety = safetyPoints(in.Safety, &s.Flags)
	s.SmartMoney = smartMoneyPoints(in.SmartMoneyCount)
	s.Liquidity = liquidityPoints(in.LiquidityUSD)
	s.Momentum = momentumPoints(in.Momentum1hPct)

	sum := s.Safety + s.SmartMoney + s.Liquidity + s.Momentum

	if concentrated(in.Holders, in.AMMPrograms) {
		s.ConcentrationApplied = true
		s.Flags = append(s.Flags, "holder_concentration")
		sum *= concentrationPenaltyFactor
	}

	s.Total = math.Floor(sum)
	return s
}

// safetyPoints awards the full band to a clean token, a reduced band
// when only minor risks are present, and nothing when a critical
// authority risk exists.
func safetyPoints(result safety.Result, flags *[]string) float64 {
	if result.HasCriticalRisk() {
		*flags = append(*flags, "critical_safety_risk")
		return 0
	}
	if len(result.Risks) > 0 {
		*flags = append(*flags, "minor_safety_risks")
		return maxSafety / 2
	}
	return maxSafety
}

func smartMoneyPoints(count int) float64 {
	switch {
	case count >= 5:
		return 30
	case count >= 3:
		return 22
	case count >= 1:
		return 15
	default:
		return 0
	}
}

func liquidityPoints(usd float64) float64 {
	switch {
	case usd >= 50_000:
		return 20
	case usd >= 20_000:
		return 15
	case usd >= 10_000:
		return 10
	case usd >= 5_000:
		return 5
	default:
		return 0
	}
}

// momentumPoints rewards a strong-but-not-parabolic hourly move: the
// full band inside (20%, 100%), a half band for any other move above
// 5% (one at or above 100% included), nothing otherwise (flat or
// negative).
func momentumPoints(pct1h float64) float64 {
	if pct1h > 20 && pct1h < 100 {
		return 10
	}
	if pct1h > 5 {
		return 5
	}
	return 0
}

// concentrated reports whether, after excluding AMM program
// addresses, the top holder exceeds 15% or the top ten exceed 50% of
// supply (both strict).
func concentrated(holders []Holder, ammPrograms map[ids.WalletId]struct{}) bool {
	var filtered []float64
	for _, h := range holders {
		if _, isAMM := ammPrograms[h.Wallet]; isAMM {
			continue
		}
		filtered = append(filtered, h.Percent)
	}
	if len(filtered) == 0 {
		return false
	}

	// Holder fetches usually return descending order, but don't rely
	// on it.
	sort.Sort(sort.Reverse(sort.Float64Slice(filtered)))

	top1 := filtered[0]
	var top10 float64
	for i, p := range filtered {
		if i >= 10 {
			break
		}
		top10 += p
	}

	return top1 > topHolderLimit || top10 > top10HolderLimit
}

// MeetsMinimum reports whether score clears the configured trading
// threshold.
func MeetsMinimum(score Score, minScore float64) bool {
	return score.Total >= minScore
}
