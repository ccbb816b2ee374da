// Package refswap is a reference core.SwapExecutor wired to Jupiter's
// Metis swap API for routing and to direct Solana RPC for signing and
// submission.
package refswap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"memecore/internal/blockchain"
	"memecore/internal/core"
	"memecore/internal/ids"
)

// tokenDecimals is the standard SPL decimals for pump.fun-style
// memecoin mints; a reference adapter assumption, not a protocol
// guarantee.
const tokenDecimals = 6

// Executor implements core.SwapExecutor (and core.BalanceAuditor)
// against Jupiter + Solana RPC.
type Executor struct {
	router  *RouterClient
	rpc     *blockchain.Client
	wallet  *blockchain.Wallet
	signer  *blockchain.Signer
	balance *blockchain.BalanceTracker
}

// New wires an Executor from already-constructed collaborators.
func New(router *RouterClient, rpc *blockchain.Client, wallet *blockchain.Wallet, signer *blockchain.Signer, balance *blockchain.BalanceTracker) *Executor {
	return &Executor{router: router, rpc: rpc, wallet: wallet, signer: signer, balance: balance}
}

// Buy swaps amountSOL of wrapped SOL into mint.
func (e *Executor) Buy(ctx context.Context, mint ids.TokenId, amountSOL float64, slippageBps int, urgency core.Urgency) (core.SwapResult, error) {
	lamports := uint64(amountSOL * 1e9)
	return e.swap(ctx, SOLMint, string(mint), lamports, slippageBps, urgency)
}

// Sell swaps tokenAmount of mint back into wrapped SOL.
func (e *Executor) Sell(ctx context.Context, mint ids.TokenId, tokenAmount float64, slippageBps int, urgency core.Urgency) (core.SwapResult, error) {
	rawAmount := uint64(tokenAmount * pow10(tokenDecimals))
	return e.swap(ctx, string(mint), SOLMint, rawAmount, slippageBps, urgency)
}

func (e *Executor) swap(ctx context.Context, inputMint, outputMint string, amountRaw uint64, slippageBps int, urgency core.Urgency) (core.SwapResult, error) {
	quote, rawQuote, err := e.router.GetQuote(ctx, inputMint, outputMint, amountRaw, slippageBps)
	if err != nil {
		return core.SwapResult{}, classifyErr(err)
	}

	swapTxBase64, err := e.router.GetSwapTransaction(ctx, rawQuote, e.wallet.Address())
	if err != nil {
		return core.SwapResult{}, classifyErr(err)
	}

	signedTx, err := e.signer.SignBase64Transaction(swapTxBase64)
	if err != nil {
		return core.SwapResult{}, &core.SwapError{Kind: core.SwapErrUnknown, Err: err}
	}

	// High-urgency swaps skip preflight simulation; a failed race is
	// cheaper than a missed one.
	sig, err := e.rpc.SendTransaction(ctx, signedTx, urgency == core.UrgencyHigh)
	if err != nil {
		return core.SwapResult{}, classifyErr(err)
	}

	outAmount, err := strconv.ParseFloat(quote.OutAmount, 64)
	if err != nil {
		return core.SwapResult{}, fmt.Errorf("parse out amount: %w", err)
	}
	inAmount, err := strconv.ParseFloat(quote.InAmount, 64)
	if err != nil {
		return core.SwapResult{}, fmt.Errorf("parse in amount: %w", err)
	}

	result := core.SwapResult{Signature: sig}
	if outputMint == SOLMint {
		result.SOLReceived = outAmount / 1e9
		if inAmount > 0 {
			result.PriceEffective = result.SOLReceived / (inAmount / pow10(tokenDecimals))
		}
	} else {
		result.TokensReceived = outAmount / pow10(tokenDecimals)
		if result.TokensReceived > 0 {
			result.PriceEffective = (inAmount / 1e9) / result.TokensReceived
		}
	}
	return result, nil
}

// TokenBalance returns the wallet's current holding of mint, in raw
// token units.
func (e *Executor) TokenBalance(ctx context.Context, mint ids.TokenId) (uint64, error) {
	accounts, err := e.rpc.GetTokenAccounts(ctx, e.wallet.Address(), string(mint))
	if err != nil {
		return 0, classifyErr(err)
	}
	var total uint64
	for _, acc := range accounts {
		total += acc.Amount
	}
	return total, nil
}

// AllTokenBalances implements core.BalanceAuditor: every token the
// wallet holds, across both token programs.
func (e *Executor) AllTokenBalances(ctx context.Context) (map[ids.TokenId]uint64, error) {
	accounts, err := e.rpc.GetTokenAccounts(ctx, e.wallet.Address(), "")
	if err != nil {
		return nil, classifyErr(err)
	}
	balances := make(map[ids.TokenId]uint64, len(accounts))
	for _, acc := range accounts {
		balances[ids.TokenId(acc.Mint)] += acc.Amount
	}
	return balances, nil
}

// WalletBalanceSOL refreshes and returns the wallet's SOL balance.
func (e *Executor) WalletBalanceSOL(ctx context.Context) (float64, error) {
	if err := e.balance.Refresh(ctx); err != nil {
		return 0, classifyErr(err)
	}
	return e.balance.BalanceSOL(), nil
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// classifyErr maps a raw transport/quote error into a core.SwapError
// by inspecting the message Jupiter/RPC returns, since neither
// collaborator surfaces a typed error.
func classifyErr(err error) *core.SwapError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no route") || strings.Contains(msg, "route not found"):
		return &core.SwapError{Kind: core.SwapErrRouteNotFound, Err: err}
	case strings.Contains(msg, "price impact"):
		return &core.SwapError{Kind: core.SwapErrPriceImpactTooHigh, Err: err}
	case strings.Contains(msg, "insufficient"):
		return &core.SwapError{Kind: core.SwapErrInsufficientLiquidity, Err: err}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &core.SwapError{Kind: core.SwapErrRateLimited, Err: err}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "http request"):
		return &core.SwapError{Kind: core.SwapErrNetwork, Err: err}
	default:
		return &core.SwapError{Kind: core.SwapErrUnknown, Err: err}
	}
}
