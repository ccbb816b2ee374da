// Jupiter Metis router client: quote and swap-transaction fetch over
// a shared HTTP/2 connection, with API-key rotation across requests.
package refswap

import (
	"context"
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
)

// DefaultRouterURL is Jupiter's Metis swap API.
const DefaultRouterURL = "https://api.jup.ag/swap/v1"

// SOLMint is the wrapped-SOL mint every quote routes against.
const SOLMint = "So11111111111111111111111111111111111111112"

// Quote is the subset of Jupiter's quote response the executor reads.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	InAmount       string          `json:"inAmount"`
	OutputMint     string          `json:"outputMint"`
	OutAmount      string          `json:"outAmount"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      json.RawMessage `json:"routePlan"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports any             `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// RouterClient talks to the Jupiter swap API.
type RouterClient struct {
	baseURL     string
	slippageBps int
	maxFee      uint64
	apiKeys     []string
	keyIdx      atomic.Uint32
	http        *http.Client
}

// NewRouterClient creates a client. apiKeys may be empty for the
// public tier.
func NewRouterClient(baseURL string, slippageBps int, maxPriorityFeeLamports uint64, apiKeys []string, timeout time.Duration) *RouterClient {
	if baseURL == "" {
		baseURL = DefaultRouterURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RouterClient{
		baseURL:     baseURL,
		slippageBps: slippageBps,
		maxFee:      maxPriorityFeeLamports,
		apiKeys:     apiKeys,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http2.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				ReadIdleTimeout: 30 * time.Second,
				PingTimeout:     10 * time.Second,
			},
		},
	}
}

func (c *RouterClient) nextKey() string {
	if len(c.apiKeys) == 0 {
		return ""
	}
	i := c.keyIdx.Add(1)
	return c.apiKeys[int(i)%len(c.apiKeys)]
}

func (c *RouterClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if key := c.nextKey(); key != "" {
		req.Header.Set("x-api-key", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("router http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// GetQuote fetches a route for swapping amountRaw of inputMint into
// outputMint, returning both the parsed quote and the raw JSON (the
// swap endpoint wants the quote echoed back verbatim). slippageBps 0
// falls back to the client default.
func (c *RouterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amountRaw uint64, slippageBps int) (Quote, json.RawMessage, error) {
	if slippageBps <= 0 {
		slippageBps = c.slippageBps
	}
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.baseURL, inputMint, outputMint, amountRaw, slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return Quote{}, nil, err
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return Quote{}, nil, fmt.Errorf("decode quote: %w", err)
	}
	if quote.OutAmount == "" {
		return Quote{}, nil, fmt.Errorf("no route found for %s -> %s", inputMint, outputMint)
	}
	return quote, body, nil
}

// GetSwapTransaction asks the router to build the serialized
// transaction for rawQuote, to be signed by userPubkey.
func (c *RouterClient) GetSwapTransaction(ctx context.Context, rawQuote json.RawMessage, userPubkey string) (string, error) {
	payload := swapRequest{
		QuoteResponse:           rawQuote,
		UserPublicKey:           userPubkey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	}
	if c.maxFee > 0 {
		payload.PrioritizationFeeLamports = map[string]any{
			"priorityLevelWithMaxLamports": map[string]any{
				"maxLamports":   c.maxFee,
				"priorityLevel": "veryHigh",
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var sr swapResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}
	if sr.SwapTransaction == "" {
		return "", fmt.Errorf("router returned no transaction")
	}
	return sr.SwapTransaction, nil
}
