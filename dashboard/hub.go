package dashboard

import (
	"context"
	"sync/atomic"

	channerics "github.com/niceyeti/channerics/channels"
)

// maxViewers bounds how many browser tabs can hold a live websocket at
// once. The teacher's single-client server assumed exactly one; this
// dashboard is meant for a test-stand control room, not a public service,
// so a small fixed fan-out is enough and keeps channerics.Broadcast's
// contract (every output channel is read continuously) easy to satisfy.
const maxViewers = 8

// hub fans one stream of snapshots out to up to maxViewers concurrent
// websocket viewers. Each of the N broadcast outputs is drained
// permanently by a background goroutine regardless of whether a viewer is
// currently attached, so a slow or absent viewer never stalls the
// broadcast for the others.
type hub struct {
	publish chan Snapshot
	slots   []*slot
	free    chan int
}

type slot struct {
	ch      <-chan Snapshot
	current atomic.Pointer[chan Snapshot]
}

func newHub(ctx context.Context) *hub {
	publish := make(chan Snapshot, 1)
	outputs := channerics.Broadcast(ctx.Done(), publish, maxViewers)

	h := &hub{
		publish: publish,
		slots:   make([]*slot, maxViewers),
		free:    make(chan int, maxViewers),
	}
	for i, out := range outputs {
		s := &slot{ch: out}
		h.slots[i] = s
		h.free <- i
		go s.drain(ctx)
	}
	return h
}

// drain keeps reading a broadcast output for as long as ctx lives,
// forwarding to whichever viewer channel is currently attached, if any.
func (s *slot) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-s.ch:
			if !ok {
				return
			}
			if dst := s.current.Load(); dst != nil {
				select {
				case *dst <- snap:
				default:
					// viewer's inbound buffer is still full from the last
					// snapshot; drop this one rather than block the hub.
				}
			}
		}
	}
}

// Publish pushes the latest snapshot toward every attached viewer. A
// publish already in flight wins; this one is dropped rather than
// blocking the caller, since only the freshest snapshot matters.
func (h *hub) Publish(snap Snapshot) {
	select {
	case h.publish <- snap:
	default:
	}
}

// acquire reserves a slot for a newly connected viewer and returns the
// channel it should read Snapshots from, plus a release func. ok is false
// when the dashboard is already at capacity.
func (h *hub) acquire() (ch chan Snapshot, release func(), ok bool) {
	select {
	case idx := <-h.free:
		deliver := make(chan Snapshot, 1)
		h.slots[idx].current.Store(&deliver)
		return deliver, func() {
			h.slots[idx].current.Store(nil)
			h.free <- idx
		}, true
	default:
		return nil, nil, false
	}
}
