package statemachine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"groundctl/board"
	"groundctl/hotfire"
	"groundctl/timekeeper"
)

// SchedulerController lets a state drop every board's CommandScheduler into
// its idle or active polling cadence without the statemachine package
// importing the scheduler package directly.
type SchedulerController interface {
	SetAllIdle()
	SetAllActive()
}

// HotfireRecorder persists a board-state log for the duration of a hotfire,
// implemented by the datalog package.
type HotfireRecorder interface {
	Open(boards []*board.Board) error
	WriteRow(boards []*board.Board) error
	Close() error
}

// Machine owns the current state, the fixed-cadence main loop, and every
// collaborator a state's loop hook may need.
type Machine struct {
	mu      sync.Mutex
	current State

	tk         *timekeeper.TimeKeeper
	boards     atomic.Pointer[board.Set]
	hotfire    *hotfire.Controller
	schedulers SchedulerController
	recorder   HotfireRecorder

	// startupGrace and abortCooldown are the Startup auto-exit delay and
	// the EngineAbort-to-Idle cool-down gate (spec defaults 5s and 2s).
	// Exposed as fields, not constants, so tests can shrink them.
	startupGrace  time.Duration
	abortCooldown time.Duration
}

const (
	defaultStartupGrace  = 5 * time.Second
	defaultAbortCooldown = 2 * time.Second
)

// New constructs a Machine in Startup. schedulers and recorder may be nil
// (tests exercise the machine without either wired).
func New(boards *board.Set, hc *hotfire.Controller, schedulers SchedulerController, recorder HotfireRecorder) *Machine {
	m := &Machine{
		tk:            timekeeper.New("StateMachine", time.Millisecond, time.Minute),
		hotfire:       hc,
		schedulers:    schedulers,
		recorder:      recorder,
		startupGrace:  defaultStartupGrace,
		abortCooldown: defaultAbortCooldown,
	}
	m.boards.Store(boards)
	m.current = NewStartupState()
	m.current.Setup(m)
	return m
}

// CurrentName reports the active state's name.
func (m *Machine) CurrentName() Name {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.StateName()
}

// TimeSinceStatechange is exposed for dashboard/telemetry consumers.
func (m *Machine) TimeSinceStatechange() time.Duration {
	return m.tk.TimeSinceStatechange()
}

// Boards exposes the board set, for the command router's read-only queries
// and for states' loop hooks. Safe for concurrent use with ReplaceBoards.
func (m *Machine) Boards() *board.Set { return m.boards.Load() }

// ReplaceBoards swaps in a freshly built board set, for the command
// router's "reload hardware json" verb. Schedulers and transports already
// wired to the old *board.Board values are unaffected; wiring them to the
// replacement set is the caller's responsibility.
func (m *Machine) ReplaceBoards(boards *board.Set) {
	m.boards.Store(boards)
}

// HotfireController exposes the shared controller, for the command
// router's sequence get/set verbs.
func (m *Machine) HotfireController() *hotfire.Controller { return m.hotfire }

// TransitionTo attempts to move the machine to target, consulting the
// current state's CanTransitionTo. An illegal transition leaves the
// machine's state untouched and returns a non-nil error carrying the
// state's reason string.
func (m *Machine) TransitionTo(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		allowed, reason := m.current.CanTransitionTo(m, target.StateName())
		if !allowed {
			log.Warn().
				Str("from", string(m.current.StateName())).
				Str("to", string(target.StateName())).
				Str("reason", reason).
				Msg("rejected state transition")
			return fmt.Errorf("cannot transition from %s to %s: %s", m.current.StateName(), target.StateName(), reason)
		}
		m.current.Teardown(m)
	}

	log.Info().Str("from", string(stateNameOrNone(m.current))).Str("to", string(target.StateName())).Msg("transitioning state")
	m.current = target
	m.tk.Statechange()
	m.current.Setup(m)
	return nil
}

func stateNameOrNone(s State) Name {
	if s == nil {
		return "none"
	}
	return s.StateName()
}

// Run drives the main loop at the timekeeper's configured cadence until ctx
// is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.mu.Lock()
		current := m.current
		m.mu.Unlock()

		m.tk.CycleStart()
		current.Loop(ctx, m)
		m.tk.CycleEnd(ctx)
	}
}
