package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"groundctl/board"
)

func TestCorrelatorDeliversToWaiter(t *testing.T) {
	Convey("Given a reserved waiter", t, func() {
		c := newCorrelator()
		id, ch := c.reserve()
		So(c.pendingCount(), ShouldEqual, 1)

		Convey("delivering its send_id wakes the waiter and clears the entry", func() {
			c.deliver(id, json.RawMessage(`{"ok":true}`))
			select {
			case raw := <-ch:
				So(string(raw), ShouldEqual, `{"ok":true}`)
			case <-time.After(time.Second):
				t.Fatal("waiter never received delivery")
			}
			So(c.pendingCount(), ShouldEqual, 0)
		})

		Convey("delivering an unknown send_id is a silent no-op", func() {
			c.deliver(id+999, json.RawMessage(`{}`))
			So(c.pendingCount(), ShouldEqual, 1)
		})
	})
}

func TestCorrelatorAbandon(t *testing.T) {
	Convey("Given a reserved waiter that times out", t, func() {
		c := newCorrelator()
		id, _ := c.reserve()
		c.abandon(id)

		Convey("a late delivery for that id is dropped", func() {
			So(c.pendingCount(), ShouldEqual, 0)
			c.deliver(id, json.RawMessage(`{"late":true}`))
			So(c.pendingCount(), ShouldEqual, 0)
		})
	})
}

func TestCorrelatorSweepEvictsExpiredEntries(t *testing.T) {
	Convey("Given a waiter whose deadline has already passed", t, func() {
		c := newCorrelator()
		id, _ := c.reserve()
		c.mu.Lock()
		entry := c.pending[id]
		entry.deadline = time.Now().Add(-time.Second)
		c.pending[id] = entry
		c.mu.Unlock()

		Convey("the sweep task evicts it within one sweep interval", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*cleanupSweepInterval)
			defer cancel()
			go c.sweep(ctx)
			time.Sleep(2 * cleanupSweepInterval)
			So(c.pendingCount(), ShouldEqual, 0)
		})
	})
}

func TestDecodeInboundRequiresSendID(t *testing.T) {
	Convey("Given a frame with no send_id", t, func() {
		_, ok := decodeInbound([]byte(`{"pts":{"main":{"value":1}}}`))

		Convey("decodeInbound reports ok=false", func() {
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given a frame carrying send_id", t, func() {
		id, ok := decodeInbound([]byte(`{"send_id":42,"pts":{}}`))

		Convey("decodeInbound extracts it", func() {
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, int64(42))
		})
	})
}

func TestInjectSendIDAddsField(t *testing.T) {
	Convey("Given an arbitrary frame value", t, func() {
		frame := map[string]any{"servos": map[string]any{"main": map[string]any{"angle": 10}}}
		raw, err := injectSendID(frame, 7)
		So(err, ShouldBeNil)

		Convey("the marshaled frame carries send_id", func() {
			var decoded map[string]json.RawMessage
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)
			So(decoded, ShouldContainKey, "send_id")
			So(string(decoded["send_id"]), ShouldEqual, "7")
		})
	})
}

func TestDecodeRawStateStripsEnvelope(t *testing.T) {
	Convey("Given an inbound frame with envelope and hw-type fields", t, func() {
		raw := []byte(`{"send_id":3,"timestamp":1.5,"servos":{"main":{"angle":12.5,"armed":true}}}`)
		rs, err := decodeRawState(raw)
		So(err, ShouldBeNil)

		Convey("the envelope keys are gone and the hw-type payload survives", func() {
			So(rs, ShouldNotContainKey, board.HardwareType("send_id"))
			So(rs, ShouldNotContainKey, board.HardwareType("timestamp"))
			So(rs, ShouldContainKey, board.Servos)
			item := rs[board.Servos]
			So(item, ShouldContainKey, "main")
		})
	})
}
