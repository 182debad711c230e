// Package telemetry provides Gauge, a lock-free float64 readout that can be
// read without taking a board's state mutex. No other package in this
// module reads or writes a Gauge; the dashboard builds its snapshots
// directly from the state machine and boards.
package telemetry

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Gauge encapsulates a float64 for non-locking atomic reads and writes.
// A dashboard poller and a scheduler's tick are expected to touch the
// same Gauge concurrently; CompareAndSwap means a write that loses a race
// is simply retried inside Set or Add rather than silently corrupting the
// bit pattern a locked write would otherwise need a mutex to prevent.
type Gauge struct {
	val float64
}

// NewGauge returns a Gauge initialized to val.
func NewGauge(val float64) *Gauge {
	return &Gauge{val: val}
}

// Read atomically loads the current value.
func (g *Gauge) Read() float64 {
	bits := atomic.LoadUint64((*uint64)(unsafe.Pointer(&g.val)))
	return math.Float64frombits(bits)
}

// Set atomically stores newVal, retrying until the CAS succeeds against
// whatever concurrent writer (if any) got there first.
func (g *Gauge) Set(newVal float64) {
	for {
		old := g.Read()
		if atomic.CompareAndSwapUint64(
			(*uint64)(unsafe.Pointer(&g.val)),
			math.Float64bits(old),
			math.Float64bits(newVal),
		) {
			return
		}
	}
}

// Add atomically adds delta to the current value and returns the result.
func (g *Gauge) Add(delta float64) float64 {
	for {
		old := g.Read()
		newVal := old + delta
		if atomic.CompareAndSwapUint64(
			(*uint64)(unsafe.Pointer(&g.val)),
			math.Float64bits(old),
			math.Float64bits(newVal),
		) {
			return newVal
		}
	}
}
