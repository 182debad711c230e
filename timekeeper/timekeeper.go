// Package timekeeper paces a fixed-cadence loop against a monotonic clock.
//
// A TimeKeeper does not skip cycles to catch up after an overrun: cycle_end
// always computes the next tick as statechange_epoch + (cycle+1)*cycle_time
// and either sleeps until that instant or returns immediately if it has
// already passed. Under sustained overrun the loop runs at best-effort
// maximum rate, never faster than nominal and never paced slower than real
// time allows it to catch up.
package timekeeper

import (
	"context"
	"sync/atomic"
	"time"
)

// TimeKeeper paces a loop at a target cycle_time, tracking cycle count and
// time since the last statechange epoch. All reads are safe for concurrent
// use (e.g. a dashboard polling TimeSinceStatechange while the owning loop
// calls CycleEnd); only one goroutine should drive CycleStart/CycleEnd.
type TimeKeeper struct {
	name  string
	start time.Time

	cycleTimeNanos int64 // atomic, so SetInterval can race-safely be read by CycleEnd
	debugInterval  time.Duration

	statechangeEpoch atomic.Int64 // nanoseconds since start, monotonic
	cycle            atomic.Int64
}

// New returns a TimeKeeper named name, paced at cycleTime, with an optional
// debug logging interval (zero disables the periodic debug cadence; callers
// that want debug output decide what to log at that cadence themselves via
// ShouldDebugLog).
func New(name string, cycleTime time.Duration, debugInterval time.Duration) *TimeKeeper {
	tk := &TimeKeeper{
		name:          name,
		start:         time.Now(),
		debugInterval: debugInterval,
	}
	atomic.StoreInt64(&tk.cycleTimeNanos, int64(cycleTime))
	return tk
}

// Name returns the TimeKeeper's name, for logging.
func (tk *TimeKeeper) Name() string { return tk.name }

// SetInterval changes the cycle_time and resets the cycle counter and the
// statechange epoch to now, mirroring the Python TimeKeeper.set_interval.
func (tk *TimeKeeper) SetInterval(cycleTime time.Duration) {
	atomic.StoreInt64(&tk.cycleTimeNanos, int64(cycleTime))
	tk.cycle.Store(0)
	tk.statechangeEpoch.Store(int64(time.Since(tk.start)))
}

func (tk *TimeKeeper) cycleTime() time.Duration {
	return time.Duration(atomic.LoadInt64(&tk.cycleTimeNanos))
}

// CycleStart marks the beginning of a cycle. It is a no-op beyond exposing a
// symmetric call alongside CycleEnd, matching the source's cycle_start/
// cycle_end pairing; callers that want per-cycle debug logging should check
// ShouldDebugLog after calling CycleStart.
func (tk *TimeKeeper) CycleStart() {}

// ShouldDebugLog reports whether the current cycle falls on the configured
// debug interval boundary. Returns false if no debug interval was set.
func (tk *TimeKeeper) ShouldDebugLog() bool {
	if tk.debugInterval <= 0 {
		return false
	}
	cycleTime := tk.cycleTime()
	if cycleTime <= 0 {
		return false
	}
	cyclesPerDebug := int64(tk.debugInterval / cycleTime)
	if cyclesPerDebug <= 0 {
		return true
	}
	return tk.cycle.Load()%cyclesPerDebug == 0
}

// CycleEnd suspends until the next scheduled tick: statechange_epoch +
// (cycle+1)*cycle_time. If that instant has already passed it returns
// immediately without skipping cycles. It returns early if ctx is
// cancelled, so shutdown is never blocked on a full cycle_time.
func (tk *TimeKeeper) CycleEnd(ctx context.Context) {
	cycle := tk.cycle.Add(1)
	epoch := time.Duration(tk.statechangeEpoch.Load())
	next := tk.start.Add(epoch + time.Duration(cycle)*tk.cycleTime())

	wait := time.Until(next)
	if wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Statechange resets the cycle counter and the statechange epoch to now.
func (tk *TimeKeeper) Statechange() {
	tk.cycle.Store(0)
	tk.statechangeEpoch.Store(int64(time.Since(tk.start)))
}

// TimeSinceStart returns elapsed time since the TimeKeeper was constructed.
func (tk *TimeKeeper) TimeSinceStart() time.Duration {
	return time.Since(tk.start)
}

// TimeSinceStatechange returns elapsed time since the last Statechange (or
// construction, if Statechange was never called).
func (tk *TimeKeeper) TimeSinceStatechange() time.Duration {
	epoch := time.Duration(tk.statechangeEpoch.Load())
	return time.Since(tk.start) - epoch
}

// GetCycle returns the current cycle count since the last Statechange.
func (tk *TimeKeeper) GetCycle() int64 {
	return tk.cycle.Load()
}
