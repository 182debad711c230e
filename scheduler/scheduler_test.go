package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"groundctl/board"
)

func mustRaw(s string) json.RawMessage { return json.RawMessage(s) }

// recordingTransport captures every frame passed to SendReceive without
// doing any real I/O, so scheduler ticks can be observed directly.
type recordingTransport struct {
	mu     sync.Mutex
	frames []any
}

func (r *recordingTransport) SendReceive(ctx context.Context, frame any) error {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	return nil
}
func (r *recordingTransport) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (r *recordingTransport) Close() error                  { return nil }

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func sensorBoard(t *testing.T) *board.Board {
	t.Helper()
	spec := board.BoardSpec{
		IsActuator:      false,
		PollingInterval: 0.02,
		PTS:             map[string]json.RawMessage{"chamber": json.RawMessage(`{"channel":1,"value":100}`)},
	}
	b, err := board.New("PTSBoard", spec, nil)
	if err != nil {
		t.Fatalf("board.New: %v", err)
	}
	return b
}

func actuatorBoard(t *testing.T) *board.Board {
	t.Helper()
	safe := 20.0
	spec := board.BoardSpec{
		IsActuator:      true,
		PollingInterval: 0.02,
		IdleInterval:    0.02,
		ActiveInterval:  0.01,
		Servos: map[string]board.ServoSpec{
			"main": {Channel: 0, SafeAngle: &safe},
		},
	}
	b, err := board.New("ActuatorBoard", spec, nil)
	if err != nil {
		t.Fatalf("board.New: %v", err)
	}
	return b
}

func TestSchedulerTicksSensorBoard(t *testing.T) {
	Convey("Given a scheduler over a sensor board and a recording transport", t, func() {
		b := sensorBoard(t)
		rt := &recordingTransport{}
		s := New(b, rt)

		Convey("running it briefly submits at least one sensor-query frame", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
			defer cancel()
			_ = s.Run(ctx)
			So(rt.count(), ShouldBeGreaterThan, 0)
		})
	})
}

func TestSchedulerSubmitsFreshDesiredStateCopy(t *testing.T) {
	Convey("Given a scheduler over an actuator board", t, func() {
		b := actuatorBoard(t)
		rt := &recordingTransport{}
		s := New(b, rt)

		Convey("each submitted frame reflects the board's desired state at send time, not a frozen snapshot", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			go s.Run(ctx)
			time.Sleep(25 * time.Millisecond)
			cancel()

			newAngle := 45.0
			err := b.UpdateState(board.RawState{
				board.Servos: {"main": mustRaw(`{"armed":true}`)},
			})
			So(err, ShouldBeNil)
			err = b.UpdateDesiredState(board.RawState{
				board.Servos: {"main": mustRaw(`{"angle":45}`)},
			})
			So(err, ShouldBeNil)

			frame := actuatorFrame(b)
			servos, ok := frame["servos"].(map[string]*board.ServoItem)
			So(ok, ShouldBeTrue)
			So(servos["main"].Angle, ShouldEqual, newAngle)
		})
	})
}

func TestSetRetunesAllSchedulers(t *testing.T) {
	Convey("Given a Set wrapping two schedulers", t, func() {
		b1 := actuatorBoard(t)
		b2 := actuatorBoard(t)
		s1 := New(b1, &recordingTransport{})
		s2 := New(b2, &recordingTransport{})
		set := NewSet(s1, s2)

		Convey("SetAllActive retunes both to their active_interval", func() {
			set.SetAllActive()
			So(s1.interval, ShouldEqual, b1.Config.ActiveInterval)
			So(s2.interval, ShouldEqual, b2.Config.ActiveInterval)
		})

		Convey("SetAllIdle retunes both to their idle_interval", func() {
			set.SetAllIdle()
			So(s1.interval, ShouldEqual, b1.Config.IdleInterval)
			So(s2.interval, ShouldEqual, b2.Config.IdleInterval)
		})
	})
}
