package refdata

import (
	"context"
	"fmt"
	"sort"

	"memecore/internal/blockchain"
	"memecore/internal/ids"
	"memecore/internal/scoring"
)

const topHolderCount = 20

// TopHolderFetcher implements the scoring pipeline's holder lookup:
// the largest holders of a mint with their share of total supply,
// from the same holder scan the other fetchers use plus the mint
// account's supply field.
type TopHolderFetcher struct {
	rpc *blockchain.Client
}

// NewTopHolderFetcher wires a TopHolderFetcher to rpc.
func NewTopHolderFetcher(rpc *blockchain.Client) *TopHolderFetcher {
	return &TopHolderFetcher{rpc: rpc}
}

// TopHolders returns up to 20 largest holders of mint, each with its
// fraction of supply.
func (f *TopHolderFetcher) TopHolders(ctx context.Context, mint ids.TokenId) ([]scoring.Holder, error) {
	info, err := f.rpc.GetAccountInfo(ctx, mint.String())
	if err != nil {
		return nil, fmt.Errorf("fetch mint account: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("mint account %s not found", mint.Short())
	}
	supply := mintSupply(info.Data)
	if supply == 0 {
		return nil, fmt.Errorf("mint %s has zero supply", mint.Short())
	}

	holders, err := f.rpc.GetTokenHolders(ctx, mint.String())
	if err != nil {
		return nil, fmt.Errorf("fetch holders: %w", err)
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Amount > holders[j].Amount })
	if len(holders) > topHolderCount {
		holders = holders[:topHolderCount]
	}

	out := make([]scoring.Holder, 0, len(holders))
	for _, h := range holders {
		w, err := ids.NewWalletId(h.Owner)
		if err != nil {
			continue
		}
		out = append(out, scoring.Holder{Wallet: w, Percent: float64(h.Amount) / float64(supply)})
	}
	return out, nil
}
