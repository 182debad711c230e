// Package dashboard serves a read-only HTTP and websocket mirror of the
// ground control backend: current state, board actual/desired state, and
// hotfire T-time. It never accepts writes; every mutation path runs
// through the command router instead, so the dashboard cannot violate the
// arming firewall or race it.
package dashboard

import (
	"groundctl/board"
	"groundctl/statemachine"
)

// Snapshot is the single payload shape served by every route and pushed
// over every websocket: a complete picture of the system at one instant.
type Snapshot struct {
	State                string                 `json:"state"`
	TimeSinceStatechange float64                `json:"time_since_statechange"`
	TTime                *float64               `json:"t_time,omitempty"`
	Boards               map[string]board.State `json:"boards"`
	DesiredStates        map[string]board.State `json:"desired_states"`
}

// buildSnapshot reads the machine's current state and every board's
// actual/desired state. Each read takes its own lock momentarily; the
// result is a snapshot assembled from several independently-consistent
// reads, not one atomic transaction, which is adequate for a dashboard
// that refreshes several times a second.
func buildSnapshot(m *statemachine.Machine) Snapshot {
	snap := Snapshot{
		State:                string(m.CurrentName()),
		TimeSinceStatechange: m.TimeSinceStatechange().Seconds(),
		Boards:               map[string]board.State{},
		DesiredStates:        map[string]board.State{},
	}

	if m.CurrentName() == statemachine.Hotfire {
		t := m.HotfireController().GetT(snap.TimeSinceStatechange)
		snap.TTime = &t
	}

	for _, b := range m.Boards().All() {
		snap.Boards[b.Name] = b.State()
		if b.Config.IsActuator {
			snap.DesiredStates[b.Name] = b.DesiredState()
		}
	}
	return snap
}
