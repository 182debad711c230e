package timekeeper

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCycleEndPacing(t *testing.T) {
	Convey("Given a TimeKeeper paced at 20ms", t, func() {
		tk := New("test", 20*time.Millisecond, 0)
		ctx := context.Background()

		Convey("CycleEnd blocks roughly until the next tick boundary", func() {
			start := time.Now()
			tk.CycleEnd(ctx)
			elapsed := time.Since(start)
			So(elapsed, ShouldBeGreaterThanOrEqualTo, 15*time.Millisecond)
			So(elapsed, ShouldBeLessThan, 100*time.Millisecond)
		})

		Convey("CycleEnd does not skip cycles to catch up on overrun", func() {
			time.Sleep(50 * time.Millisecond) // simulate a slow cycle body, overrunning several ticks
			start := time.Now()
			tk.CycleEnd(ctx)
			elapsed := time.Since(start)
			So(elapsed, ShouldBeLessThan, 5*time.Millisecond)
			So(tk.GetCycle(), ShouldEqual, 1)
		})

		Convey("CycleEnd returns early when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(context.Background())
			cancel()
			start := time.Now()
			tk.CycleEnd(cctx)
			So(time.Since(start), ShouldBeLessThan, 5*time.Millisecond)
		})
	})
}

func TestStatechangeResetsCycleAndEpoch(t *testing.T) {
	Convey("Given a running TimeKeeper", t, func() {
		tk := New("test", 5*time.Millisecond, 0)
		ctx := context.Background()
		tk.CycleEnd(ctx)
		tk.CycleEnd(ctx)
		So(tk.GetCycle(), ShouldEqual, 2)

		Convey("Statechange resets the cycle counter and epoch", func() {
			tk.Statechange()
			So(tk.GetCycle(), ShouldEqual, 0)
			So(tk.TimeSinceStatechange(), ShouldBeLessThan, 5*time.Millisecond)
		})
	})
}

func TestSetIntervalResetsCycle(t *testing.T) {
	Convey("Given a running TimeKeeper at cycle 3", t, func() {
		tk := New("test", 5*time.Millisecond, 0)
		ctx := context.Background()
		tk.CycleEnd(ctx)
		tk.CycleEnd(ctx)
		tk.CycleEnd(ctx)
		So(tk.GetCycle(), ShouldEqual, 3)

		Convey("SetInterval resets the cycle counter", func() {
			tk.SetInterval(10 * time.Millisecond)
			So(tk.GetCycle(), ShouldEqual, 0)
		})
	})
}

func TestShouldDebugLog(t *testing.T) {
	Convey("Given a TimeKeeper with a debug interval of 3 cycles", t, func() {
		tk := New("test", 10*time.Millisecond, 30*time.Millisecond)

		Convey("it reports true on the first cycle and every 3rd cycle after", func() {
			So(tk.ShouldDebugLog(), ShouldBeTrue) // cycle 0
			tk.cycle.Store(1)
			So(tk.ShouldDebugLog(), ShouldBeFalse)
			tk.cycle.Store(3)
			So(tk.ShouldDebugLog(), ShouldBeTrue)
		})
	})

	Convey("Given a TimeKeeper with no debug interval", t, func() {
		tk := New("test", 10*time.Millisecond, 0)
		So(tk.ShouldDebugLog(), ShouldBeFalse)
	})
}
