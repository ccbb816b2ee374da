// Package blockchain is the thin Solana RPC substrate under the
// reference feed and swap adapters: a JSON-RPC client with a
// primary/fallback pair and a circuit breaker, wallet key handling,
// and versioned-transaction signing.
package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Solana program addresses the adapters filter on.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

const (
	circuitFailureLimit = 5
	circuitOpenFor      = 10 * time.Second
)

// RPCError is a JSON-RPC 2.0 error payload.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client is a Solana JSON-RPC client. Calls go to the primary URL
// until repeated failures open the circuit, then to the fallback
// until the primary cools off.
type Client struct {
	primaryURL  string
	fallbackURL string
	apiKey      string
	http        *http.Client

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
}

// NewClient creates a Client. fallbackURL may be empty.
func NewClient(primaryURL, fallbackURL, apiKey string) *Client {
	return &Client{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		apiKey:      apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) circuitOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures < circuitFailureLimit {
		return false
	}
	if time.Since(c.lastFailure) > circuitOpenFor {
		c.failures = 0
		return false
	}
	return true
}

func (c *Client) noteResult(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.failures = 0
		return
	}
	c.failures++
	c.lastFailure = time.Now()
	if c.failures == circuitFailureLimit {
		log.Warn().Str("url", c.primaryURL).Msg("rpc circuit opened, using fallback")
	}
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	url := c.primaryURL
	usingFallback := false
	if c.fallbackURL != "" && c.circuitOpen() {
		url = c.fallbackURL
		usingFallback = true
	}

	err := c.post(ctx, url, method, params, out)
	if !usingFallback {
		c.noteResult(err)
		if err != nil && c.fallbackURL != "" {
			return c.post(ctx, c.fallbackURL, method, params, out)
		}
	}
	return err
}

func (c *Client) post(ctx context.Context, url, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, string(raw))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// GetBalance returns pubkey's balance in lamports.
func (c *Client) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{pubkey}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// SendTransaction submits a base64-encoded signed transaction and
// returns its signature.
func (c *Client) SendTransaction(ctx context.Context, signedTxBase64 string, skipPreflight bool) (string, error) {
	params := []any{
		signedTxBase64,
		map[string]any{"encoding": "base64", "skipPreflight": skipPreflight, "maxRetries": 3},
	}
	var sig string
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// AccountInfo is the raw account state returned by getAccountInfo.
type AccountInfo struct {
	Owner string
	Data  []byte // decoded from base64
}

// GetAccountInfo fetches an account's raw data, or nil if the account
// does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var result struct {
		Value *struct {
			Owner string   `json:"owner"`
			Data  []string `json:"data"` // [payload, encoding]
		} `json:"value"`
	}
	params := []any{pubkey, map[string]string{"encoding": "base64", "commitment": "confirmed"}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil || len(result.Value.Data) == 0 {
		return nil, nil
	}
	raw, err := decodeBase64(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return &AccountInfo{Owner: result.Value.Owner, Data: raw}, nil
}

// TokenHolder is one SPL token account holding a given mint.
type TokenHolder struct {
	Owner  string
	Amount uint64
}

// GetTokenHolders scans the SPL Token Program for every non-empty
// token account holding mint (165-byte accounts, mint at byte offset
// 0). This is an expensive full-table call; callers should cache.
func (c *Client) GetTokenHolders(ctx context.Context, mint string) ([]TokenHolder, error) {
	params := []any{
		TokenProgramID,
		map[string]any{
			"encoding": "jsonParsed",
			"filters": []any{
				map[string]any{"dataSize": 165},
				map[string]any{"memcmp": map[string]any{"offset": 0, "bytes": mint}},
			},
		},
	}

	var result []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Owner       string `json:"owner"`
						TokenAmount struct {
							Amount string `json:"amount"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	}
	if err := c.call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, err
	}

	holders := make([]TokenHolder, 0, len(result))
	for _, r := range result {
		amount, _ := strconv.ParseUint(r.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if amount == 0 {
			continue
		}
		holders = append(holders, TokenHolder{Owner: r.Account.Data.Parsed.Info.Owner, Amount: amount})
	}
	return holders, nil
}

// TokenAccount is one token account owned by a wallet.
type TokenAccount struct {
	Address  string
	Mint     string
	Amount   uint64
	Decimals uint8
}

// GetTokenAccounts lists owner's token accounts. With a mint it
// filters to that mint; without one it enumerates both the original
// Token Program and Token-2022, failing outright if either scan
// fails, since a partial listing would read as zero balances.
func (c *Client) GetTokenAccounts(ctx context.Context, owner, mint string) ([]TokenAccount, error) {
	if mint != "" {
		return c.tokenAccounts(ctx, owner, map[string]string{"mint": mint})
	}

	accounts, err := c.tokenAccounts(ctx, owner, map[string]string{"programId": TokenProgramID})
	if err != nil {
		return nil, err
	}
	accounts2022, err := c.tokenAccounts(ctx, owner, map[string]string{"programId": Token2022ProgramID})
	if err != nil {
		return nil, fmt.Errorf("token-2022 scan: %w", err)
	}
	return append(accounts, accounts2022...), nil
}

func (c *Client) tokenAccounts(ctx context.Context, owner string, filter map[string]string) ([]TokenAccount, error) {
	params := []any{owner, filter, map[string]string{"encoding": "jsonParsed"}}

	var result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals uint8  `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return nil, err
	}

	accounts := make([]TokenAccount, 0, len(result.Value))
	for _, v := range result.Value {
		amount, _ := strconv.ParseUint(v.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		accounts = append(accounts, TokenAccount{
			Address:  v.Pubkey,
			Mint:     v.Account.Data.Parsed.Info.Mint,
			Amount:   amount,
			Decimals: v.Account.Data.Parsed.Info.TokenAmount.Decimals,
		})
	}
	return accounts, nil
}
