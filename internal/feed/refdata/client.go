// Package refdata is a reference core.DataFeed implementation over a
// Solana RPC websocket endpoint: program-log subscriptions for token
// creations and trades, account subscriptions for bonding-curve
// price tracking.
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// accountCallback receives the raw `value` field of an
// accountNotification/logsNotification.
type accountCallback func(data json.RawMessage)

// wsClient is a minimal Solana `accountSubscribe`/`logsSubscribe`
// client: one connection, a request-id counter, and a dispatch table
// from subscription id to callback.
type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu       sync.Mutex
	pending  map[uint64]chan json.RawMessage // request id -> response waiter
	subs     map[uint64]accountCallback      // subscription id -> handler
	pendingToSubKind map[uint64]string       // request id -> "account"/"logs" (for subscribe correlation)

	closeOnce sync.Once
	closed    chan struct{}
}

func dialWS(ctx context.Context, url string) (*wsClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &wsClient{
		conn:    conn,
		pending: make(map[uint64]chan json.RawMessage),
		subs:    make(map[uint64]accountCallback),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription uint64          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// subscribe issues method (accountSubscribe/logsSubscribe) with params
// and registers cb against the returned subscription id.
func (c *wsClient) subscribe(ctx context.Context, method string, params []interface{}, cb accountCallback) (uint64, error) {
	id := c.nextID.Add(1)

	wait := make(chan json.RawMessage, 1)
	c.mu.Lock()
	c.pending[id] = wait
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return 0, fmt.Errorf("write subscribe request: %w", err)
	}

	select {
	case raw := <-wait:
		var subID uint64
		if err := json.Unmarshal(raw, &subID); err != nil {
			return 0, fmt.Errorf("parse subscription id: %w", err)
		}
		c.mu.Lock()
		c.subs[subID] = cb
		c.mu.Unlock()
		return subID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.closed:
		return 0, fmt.Errorf("websocket closed")
	}
}

func (c *wsClient) unsubscribe(method string, subID uint64) {
	c.mu.Lock()
	delete(c.subs, subID)
	c.mu.Unlock()

	id := c.nextID.Add(1)
	c.writeMu.Lock()
	_ = c.conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: []interface{}{subID}})
	c.writeMu.Unlock()
}

func (c *wsClient) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("refdata websocket read failed, closing")
			c.Close()
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			log.Warn().Err(err).Msg("refdata websocket: malformed message")
			continue
		}

		if resp.Params != nil {
			c.mu.Lock()
			cb, ok := c.subs[resp.Params.Subscription]
			c.mu.Unlock()
			if ok {
				cb(resp.Params.Result)
			}
			continue
		}

		if resp.ID != 0 {
			c.mu.Lock()
			wait, ok := c.pending[resp.ID]
			delete(c.pending, resp.ID)
			c.mu.Unlock()
			if ok {
				if resp.Error != nil {
					wait <- json.RawMessage(fmt.Sprintf(`"error: %s"`, resp.Error.Message))
				} else {
					wait <- resp.Result
				}
			}
		}
	}
}

func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
