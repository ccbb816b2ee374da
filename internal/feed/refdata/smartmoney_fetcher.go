package refdata

import (
	"context"
	"sort"

	"memecore/internal/blockchain"
	"memecore/internal/core"
	"memecore/internal/ids"
)

const maxHoldersScanned = 50

// HolderFetcher implements smartmoney.HolderFetcher over the same
// getProgramAccounts holder scan the TopHolderFetcher uses, limited to
// the largest holders: smart-money tracking cares about wallets that
// can move the market, not the long tail.
type HolderFetcher struct {
	rpc *blockchain.Client
}

// NewHolderFetcher wires a HolderFetcher to rpc.
func NewHolderFetcher(rpc *blockchain.Client) *HolderFetcher {
	return &HolderFetcher{rpc: rpc}
}

// Holders implements smartmoney.HolderFetcher.
func (f *HolderFetcher) Holders(ctx context.Context, mint ids.TokenId) ([]ids.WalletId, error) {
	holders, err := f.rpc.GetTokenHolders(ctx, mint.String())
	if err != nil {
		return nil, err
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Amount > holders[j].Amount })
	if len(holders) > maxHoldersScanned {
		holders = holders[:maxHoldersScanned]
	}

	wallets := make([]ids.WalletId, 0, len(holders))
	for _, h := range holders {
		w, err := ids.NewWalletId(h.Owner)
		if err != nil {
			continue
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// HistoryFetcher implements smartmoney.HistoryFetcher. A real deployment
// needs a transaction-history indexer (e.g. Helius's enhanced
// transactions API) to reconstruct another wallet's past trades; plain
// RPC only exposes raw, unparsed signatures. Until that indexer is
// wired in, HistoryFetcher reports no history, which HeuristicClassifier
// correctly treats as "not yet provably smart money" rather than a
// false positive.
type HistoryFetcher struct{}

// NewHistoryFetcher constructs a HistoryFetcher.
func NewHistoryFetcher() *HistoryFetcher { return &HistoryFetcher{} }

// History implements smartmoney.HistoryFetcher.
func (f *HistoryFetcher) History(ctx context.Context, wallet ids.WalletId) ([]core.TradeRecord, error) {
	return nil, nil
}
