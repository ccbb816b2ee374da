// Per-mint mailbox: a bounded FIFO that preserves a single token's
// event order while applying backpressure. On overflow, consecutive
// price updates coalesce (only the newest survives) and trade events
// older than the velocity window are dropped; nothing ever blocks the
// feed reader.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"memecore/internal/core"
)

const staleTradeAge = 60 * time.Second

type msg struct {
	ev       core.FeedEvent
	evaluate bool // internal re-evaluation request, no feed payload
}

type mailbox struct {
	clock core.Clock
	depth int

	mu     sync.Mutex
	queue  []msg
	closed bool
	notify chan struct{} // 1-buffered wakeup
}

func newMailbox(depth int, clock core.Clock) *mailbox {
	return &mailbox{
		clock:  clock,
		depth:  depth,
		notify: make(chan struct{}, 1),
	}
}

// deliver enqueues m, applying the overflow policy when full.
func (mb *mailbox) deliver(m msg) {
	mb.mu.Lock()

	if mb.closed {
		mb.mu.Unlock()
		return
	}

	full := len(mb.queue) >= mb.depth
	if full {
		mb.compactLocked()
	}

	if full && m.ev.Kind == core.FeedEventPrice && m.ev.Price != nil {
		// Coalesce on overflow: a newer price supersedes the queued one.
		for i := len(mb.queue) - 1; i >= 0; i-- {
			q := mb.queue[i]
			if !q.evaluate && q.ev.Kind == core.FeedEventPrice {
				mb.queue[i] = m
				mb.mu.Unlock()
				mb.wake()
				return
			}
		}
	}

	if len(mb.queue) >= mb.depth {
		// Still full after compaction: shed the event rather than
		// block the feed.
		mb.mu.Unlock()
		return
	}

	mb.queue = append(mb.queue, m)
	mb.mu.Unlock()
	mb.wake()
}

// compactLocked drops what overflow policy allows: stale trades
// first, then all but the newest queued price.
func (mb *mailbox) compactLocked() {
	now := mb.clock.Now()
	cutoff := now.Add(-staleTradeAge)

	kept := mb.queue[:0]
	lastPriceIdx := -1
	for _, q := range mb.queue {
		if !q.evaluate && q.ev.Kind == core.FeedEventTrade && q.ev.Trade != nil && q.ev.Trade.Timestamp.Before(cutoff) {
			continue
		}
		if !q.evaluate && q.ev.Kind == core.FeedEventPrice {
			if lastPriceIdx >= 0 {
				kept[lastPriceIdx] = q
				continue
			}
			lastPriceIdx = len(kept)
		}
		kept = append(kept, q)
	}
	mb.queue = kept
}

func (mb *mailbox) wake() {
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

// next blocks until a message is available, the mailbox closes, or
// ctx is done.
func (mb *mailbox) next(ctx context.Context) (msg, bool) {
	for {
		mb.mu.Lock()
		if len(mb.queue) > 0 {
			m := mb.queue[0]
			mb.queue = mb.queue[1:]
			mb.mu.Unlock()
			return m, true
		}
		closed := mb.closed
		mb.mu.Unlock()

		if closed {
			return msg{}, false
		}

		select {
		case <-ctx.Done():
			return msg{}, false
		case <-mb.notify:
		}
	}
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	mb.wake()
}
