package statemachine

import (
	"context"

	"github.com/rs/zerolog/log"

	"groundctl/board"
)

// pushDesiredState applies a per-board desired-state set, skipping and
// warning on any board name the hotfire controller named that isn't
// actually configured, mirroring the original's "board not found" warning.
func pushDesiredState(m *Machine, boardStates map[string]board.RawState) {
	for name, rs := range boardStates {
		b := m.Boards().Get(name)
		if b == nil {
			log.Warn().Str("board", name).Msg("board not found while applying hotfire desired state")
			continue
		}
		if err := b.UpdateDesiredState(rs); err != nil {
			log.Error().Err(err).Str("board", name).Msg("failed to apply hotfire desired state")
		}
	}
}

// --- Startup -----------------------------------------------------------

type startupState struct{}

func NewStartupState() State { return startupState{} }

func (startupState) StateName() Name { return Startup }
func (startupState) Setup(m *Machine) {}

func (startupState) Loop(ctx context.Context, m *Machine) {
	if m.tk.TimeSinceStatechange() > m.startupGrace {
		m.Boards().DisarmAll()
		m.TransitionTo(NewIdleState())
	}
}

func (startupState) Teardown(m *Machine) {}

func (startupState) CanTransitionTo(m *Machine, target Name) (bool, string) {
	switch target {
	case Idle, EngineAbort, FTS:
		return true, "valid transition"
	default:
		return false, "invalid transition"
	}
}

// --- Idle ----------------------------------------------------------------

type idleState struct{}

func NewIdleState() State { return idleState{} }

func (idleState) StateName() Name { return Idle }

func (idleState) Setup(m *Machine) {
	if m.schedulers != nil {
		m.schedulers.SetAllIdle()
	}
}

func (idleState) Loop(ctx context.Context, m *Machine) {}
func (idleState) Teardown(m *Machine)                  {}

func (idleState) CanTransitionTo(m *Machine, target Name) (bool, string) {
	switch target {
	case Hotfire, EngineAbort, FTS, Launch:
		return true, "valid transition"
	default:
		return false, "invalid transition"
	}
}

// --- Hotfire ---------------------------------------------------------------

type hotfireState struct{}

func NewHotfireState() State { return hotfireState{} }

func (hotfireState) StateName() Name { return Hotfire }

func (hotfireState) Setup(m *Machine) {
	if m.schedulers != nil {
		m.schedulers.SetAllActive()
	}
	if m.recorder != nil {
		if err := m.recorder.Open(m.Boards().All()); err != nil {
			log.Error().Err(err).Msg("failed to open hotfire data log")
		}
	}
}

func (hotfireState) Loop(ctx context.Context, m *Machine) {
	tsc := m.tk.TimeSinceStatechange().Seconds()
	T := m.hotfire.GetT(tsc)

	if m.tk.GetCycle()%100 == 0 {
		log.Info().Float64("T", T).Msg("hotfire in progress")
	}

	ds := m.hotfire.DesiredState(tsc)
	pushDesiredState(m, ds)

	if m.recorder != nil {
		if err := m.recorder.WriteRow(m.Boards().All()); err != nil {
			log.Error().Err(err).Msg("failed to write hotfire data log row")
		}
	}

	if m.hotfire.IsComplete(tsc) {
		log.Info().Float64("T", T).Msg("hotfire complete")
		m.TransitionTo(NewIdleState())
	}
}

func (hotfireState) Teardown(m *Machine) {
	if m.recorder != nil {
		if err := m.recorder.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close hotfire data log")
		}
	}
}

func (hotfireState) CanTransitionTo(m *Machine, target Name) (bool, string) {
	switch target {
	case EngineAbort, FTS:
		return true, "valid transition"
	case Idle:
		if m.hotfire.IsComplete(m.tk.TimeSinceStatechange().Seconds()) {
			return true, "valid transition"
		}
		return false, "hotfire not complete"
	default:
		return false, "invalid transition"
	}
}

// --- EngineAbort ---------------------------------------------------------

type engineAbortState struct{}

func NewEngineAbortState() State { return engineAbortState{} }

func (engineAbortState) StateName() Name { return EngineAbort }
func (engineAbortState) Setup(m *Machine) {}

func (engineAbortState) Loop(ctx context.Context, m *Machine) {
	ds := m.hotfire.AbortDesiredState()
	pushDesiredState(m, ds)
}

func (engineAbortState) Teardown(m *Machine) {}

func (engineAbortState) CanTransitionTo(m *Machine, target Name) (bool, string) {
	switch target {
	case FTS:
		return true, "valid transition"
	case Idle:
		since := m.tk.TimeSinceStatechange()
		if since >= m.abortCooldown {
			return true, "valid transition"
		}
		return false, "cannot return to idle, cool-down not elapsed"
	default:
		return false, "invalid transition"
	}
}

// --- FTS -----------------------------------------------------------------

type ftsState struct{}

func NewFTSState() State { return ftsState{} }

func (ftsState) StateName() Name              { return FTS }
func (ftsState) Setup(m *Machine)             {}
func (ftsState) Loop(ctx context.Context, m *Machine) {}
func (ftsState) Teardown(m *Machine)          {}

func (ftsState) CanTransitionTo(m *Machine, target Name) (bool, string) {
	if target == Idle {
		return true, "valid transition"
	}
	return false, "invalid transition"
}

// --- Launch ----------------------------------------------------------------

type launchState struct{}

func NewLaunchState() State { return launchState{} }

func (launchState) StateName() Name              { return Launch }
func (launchState) Setup(m *Machine)             {}
func (launchState) Loop(ctx context.Context, m *Machine) {}
func (launchState) Teardown(m *Machine)          {}

func (launchState) CanTransitionTo(m *Machine, target Name) (bool, string) {
	switch target {
	case EngineAbort, FTS, Hover:
		return true, "valid transition"
	default:
		return false, "invalid transition"
	}
}

// --- Hover -----------------------------------------------------------------

type hoverState struct{}

func NewHoverState() State { return hoverState{} }

func (hoverState) StateName() Name              { return Hover }
func (hoverState) Setup(m *Machine)             {}
func (hoverState) Loop(ctx context.Context, m *Machine) {}
func (hoverState) Teardown(m *Machine)          {}

func (hoverState) CanTransitionTo(m *Machine, target Name) (bool, string) {
	switch target {
	case Idle, EngineAbort, FTS:
		return true, "valid transition"
	default:
		return false, "invalid transition"
	}
}
