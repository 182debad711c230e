// Package statemachine drives the top-level operational state machine:
// Startup, Idle, Hotfire, EngineAbort, FTS, Launch, Hover. Each state is a
// stateless value implementing State; Machine owns the current state, the
// transition matrix, and the fixed-cadence main loop.
package statemachine

import "context"

// Name identifies one of the seven closed states.
type Name string

const (
	Startup     Name = "Startup"
	Idle        Name = "Idle"
	Hotfire     Name = "Hotfire"
	EngineAbort Name = "EngineAbort"
	FTS         Name = "FTS"
	Launch      Name = "Launch"
	Hover       Name = "Hover"
)

// State is one node of the operational state machine. Implementations are
// stateless: all machine-owned data (the clock, the boards, the hotfire
// controller) lives on *Machine and is passed explicitly.
type State interface {
	StateName() Name
	Setup(m *Machine)
	Loop(ctx context.Context, m *Machine)
	Teardown(m *Machine)
	// CanTransitionTo reports whether this state permits transitioning to
	// target, and a human-readable reason either way.
	CanTransitionTo(m *Machine, target Name) (bool, string)
}
