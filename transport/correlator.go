package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	channerics "github.com/niceyeti/channerics/channels"
)

// responseTimeout is how long SendReceive waits for a matching send_id
// before giving up.
const responseTimeout = 1 * time.Second

// cleanupSweepInterval is how often the cleanup task wakes to evict expired
// pending entries. The original wakes at the earliest known deadline (or
// every 100ms if the queue is empty); a fixed sweep is simpler and, since
// every entry's deadline is exactly responseTimeout out, never misses an
// eviction by more than this interval.
const cleanupSweepInterval = 100 * time.Millisecond

// correlator implements the send_id pending-response buffer shared by the
// serial and UDP managers: a waiter blocks on a channel that the reader's
// deliver call closes over, and a background sweep evicts anything nobody
// claimed within responseTimeout.
type correlator struct {
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]pendingEntry
}

type pendingEntry struct {
	ch       chan json.RawMessage
	deadline time.Time
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[int64]pendingEntry)}
}

// reserve allocates the next send_id and registers a waiter for it.
func (c *correlator) reserve() (int64, chan json.RawMessage) {
	id := c.nextID.Add(1)
	ch := make(chan json.RawMessage, 1)
	c.mu.Lock()
	c.pending[id] = pendingEntry{ch: ch, deadline: time.Now().Add(responseTimeout)}
	c.mu.Unlock()
	return id, ch
}

// deliver is called by the reader task for every inbound frame carrying a
// send_id. Frames without a registered waiter (already claimed, already
// GC'd, or never requested) are silently dropped.
func (c *correlator) deliver(sendID int64, raw json.RawMessage) {
	c.mu.Lock()
	entry, ok := c.pending[sendID]
	if ok {
		delete(c.pending, sendID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case entry.ch <- raw:
	default:
	}
}

// abandon removes a waiter's registration after it times out, so a late
// arrival is discarded rather than delivered to a channel nobody reads.
func (c *correlator) abandon(sendID int64) {
	c.mu.Lock()
	delete(c.pending, sendID)
	c.mu.Unlock()
}

// sweep runs until ctx is cancelled, periodically evicting pending entries
// whose deadline has passed and were never claimed by deliver.
func (c *correlator) sweep(ctx context.Context) {
	for range channerics.NewTicker(ctx.Done(), cleanupSweepInterval) {
		now := time.Now()
		c.mu.Lock()
		for id, entry := range c.pending {
			if entry.deadline.Before(now) {
				delete(c.pending, id)
			}
		}
		c.mu.Unlock()
	}
}

// pendingCount reports the number of unclaimed waiters, for tests.
func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// inboundEnvelope is the minimal shape needed to read send_id off an
// otherwise-opaque inbound frame before handing the full frame to the
// board's update_state merge.
type inboundEnvelope struct {
	SendID *int64 `json:"send_id"`
}

// decodeInbound extracts send_id from a raw inbound frame. Returns ok=false
// if the frame carries no send_id, per the reader task's "only enqueues
// frames that contain send_id" contract.
func decodeInbound(raw []byte) (sendID int64, ok bool) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Error().Err(err).Str("data", string(raw)).Msg("transport: JSON decode error on inbound frame")
		return 0, false
	}
	if env.SendID == nil {
		return 0, false
	}
	return *env.SendID, true
}
