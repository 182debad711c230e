package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Set owns every board's Scheduler and satisfies statemachine's
// SchedulerController, so the state machine can retune all of them in
// lockstep on Idle/Hotfire transitions without knowing their count.
type Set struct {
	schedulers []*Scheduler
}

// NewSet wraps schedulers as a single SchedulerController.
func NewSet(schedulers ...*Scheduler) *Set {
	return &Set{schedulers: schedulers}
}

// SetAllIdle retunes every scheduler to its board's idle_interval.
func (s *Set) SetAllIdle() {
	for _, sch := range s.schedulers {
		sch.SetIdle()
	}
}

// SetAllActive retunes every scheduler to its board's active_interval.
func (s *Set) SetAllActive() {
	for _, sch := range s.schedulers {
		sch.SetActive()
	}
}

// Run starts every scheduler concurrently and blocks until ctx is
// cancelled or one reports a fatal error.
func (s *Set) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sch := range s.schedulers {
		sch := sch
		g.Go(func() error { return sch.Run(gctx) })
	}
	return g.Wait()
}
