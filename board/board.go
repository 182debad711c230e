// Package board models a single embedded device: its read-only
// configuration, its mirrored actual state, and (for actuator boards) its
// commanded desired state. Board.UpdateState and Board.UpdateDesiredState
// are the only two ways either mutates; UpdateDesiredState enforces the
// arming firewall (spec §4.3) regardless of caller, so the hotfire
// controller, the command router, and a disarm-all sweep all go through
// the same safety check.
package board

import (
	"sync"
)

// Board is a named device: its config, its actual-state mirror, and (if
// IsActuator) its desired-state. state and desiredState never share
// substructure; every map/slice reachable from one is independently
// allocated from the other.
type Board struct {
	Name   string
	Config Config

	mu           sync.RWMutex
	state        State
	desiredState State
}

// New constructs a Board from its spec and the hw-type field defaults
// loaded from hardware_config.json's state_defaults section. Boards are
// created once at startup from configuration and never re-created at
// runtime (a config reload replaces the whole board set).
func New(name string, spec BoardSpec, defaults map[HardwareType]rawDefault) (*Board, error) {
	b := &Board{
		Name:   name,
		Config: newConfig(name, spec),
	}

	state := State{}
	if len(spec.PTS) > 0 {
		state.PTS = map[string]*PTSItem{}
		for item, raw := range spec.PTS {
			i := &PTSItem{}
			if err := applyDefaultThenOverride(i, defaults[PTS], raw); err != nil {
				return nil, err
			}
			state.PTS[item] = i
		}
	}
	if len(spec.TCS) > 0 {
		state.TCS = map[string]*TCSItem{}
		for item, raw := range spec.TCS {
			i := &TCSItem{}
			if err := applyDefaultThenOverride(i, defaults[TCS], raw); err != nil {
				return nil, err
			}
			state.TCS[item] = i
		}
	}
	if len(spec.LoadCells) > 0 {
		state.LoadCells = map[string]*LoadCellItem{}
		for item, raw := range spec.LoadCells {
			i := &LoadCellItem{}
			if err := applyDefaultThenOverride(i, defaults[LoadCells], raw); err != nil {
				return nil, err
			}
			state.LoadCells[item] = i
		}
	}
	if len(spec.Servos) > 0 {
		state.Servos = map[string]*ServoItem{}
		for item, servo := range spec.Servos {
			i := &ServoItem{Channel: servo.Channel}
			if d, ok := defaults[Servos]; ok {
				if err := mergeFields(i, d.raw); err != nil {
					return nil, err
				}
				i.Channel = servo.Channel // defaults must not clobber the configured channel
			}
			state.Servos[item] = i
		}
	}
	if len(spec.Solenoids) > 0 {
		state.Solenoids = map[string]*SolenoidItem{}
		for item, raw := range spec.Solenoids {
			i := &SolenoidItem{}
			if err := applyDefaultThenOverride(i, defaults[Solenoids], raw); err != nil {
				return nil, err
			}
			state.Solenoids[item] = i
		}
	}
	if len(spec.Pyros) > 0 {
		state.Pyros = map[string]*PyroItem{}
		for item, raw := range spec.Pyros {
			i := &PyroItem{}
			if err := applyDefaultThenOverride(i, defaults[Pyros], raw); err != nil {
				return nil, err
			}
			state.Pyros[item] = i
		}
	}
	if len(spec.IMUs) > 0 {
		state.IMUs = map[string]*IMUItem{}
		for item, raw := range spec.IMUs {
			i := &IMUItem{}
			if err := applyDefaultThenOverride(i, defaults[IMUs], raw); err != nil {
				return nil, err
			}
			state.IMUs[item] = i
		}
	}
	if len(spec.GNSS) > 0 {
		state.GNSS = map[string]*GNSSItem{}
		for item, raw := range spec.GNSS {
			i := &GNSSItem{}
			if err := applyDefaultThenOverride(i, defaults[GNSS], raw); err != nil {
				return nil, err
			}
			state.GNSS[item] = i
		}
	}
	b.state = state

	if spec.IsActuator {
		// Deep-copy, never alias: the source's recorded bug was exactly
		// state and desired_state sharing nested containers.
		b.desiredState = state.DeepCopy()
		if len(spec.Servos) > 0 {
			b.desiredState.Servos = map[string]*ServoItem{}
			for item, servo := range spec.Servos {
				d := &ServoItem{Channel: servo.Channel, Armed: false}
				if servo.SafeAngle != nil {
					d.Armed = true
					d.Angle = *servo.SafeAngle
				}
				b.desiredState.Servos[item] = d
			}
		}
	}

	return b, nil
}

// rawDefault wraps a hw-type's default field values so zero-value
// map-lookup misses (defaults[hwType]) are distinguishable from an empty
// but present default object.
type rawDefault struct {
	raw []byte
}

func applyDefaultThenOverride(dst any, def rawDefault, override []byte) error {
	if def.raw != nil {
		if err := mergeFields(dst, def.raw); err != nil {
			return err
		}
	}
	return mergeFields(dst, override)
}

// State returns a deep copy of the board's actual-state mirror, safe for
// the caller to retain or mutate.
func (b *Board) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.DeepCopy()
}

// DesiredState returns a deep copy of the board's desired state. Returns
// the zero State for non-actuator boards.
func (b *Board) DesiredState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.desiredState.DeepCopy()
}

// UpdateState merges an inbound actual-state frame (typically a transport
// response) into the board's state mirror. Unknown hw-types and unknown
// item names are silently ignored, for firmware forward-compatibility.
func (b *Board) UpdateState(incoming RawState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for item, raw := range incoming[PTS] {
		if dst, ok := b.state.PTS[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[TCS] {
		if dst, ok := b.state.TCS[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[LoadCells] {
		if dst, ok := b.state.LoadCells[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[Servos] {
		if dst, ok := b.state.Servos[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[Solenoids] {
		if dst, ok := b.state.Solenoids[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[Pyros] {
		if dst, ok := b.state.Pyros[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[IMUs] {
		if dst, ok := b.state.IMUs[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[GNSS] {
		if dst, ok := b.state.GNSS[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateDesiredState merges an inbound desired-state frame through the
// arming firewall (spec §4.3): non-armed fields of an item only take
// effect if the item's current actual state is armed; a disarmed item's
// desired "powered" is always forced false; an explicit "armed" field is
// always mirrored, and a servo transitioning armed->disarmed has its
// desired angle reset to the configured disarm angle. Non-actuator
// hw-types (sensors) have no arming concept and are merged unconditionally.
func (b *Board) UpdateDesiredState(incoming RawState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for item, raw := range incoming[PTS] {
		if dst, ok := b.desiredState.PTS[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[TCS] {
		if dst, ok := b.desiredState.TCS[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[LoadCells] {
		if dst, ok := b.desiredState.LoadCells[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[IMUs] {
		if dst, ok := b.desiredState.IMUs[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}
	for item, raw := range incoming[GNSS] {
		if dst, ok := b.desiredState.GNSS[item]; ok {
			if err := mergeFields(dst, raw); err != nil {
				return err
			}
		}
	}

	for item, raw := range incoming[Servos] {
		actual, ok := b.state.Servos[item]
		if !ok {
			continue
		}
		desired, ok := b.desiredState.Servos[item]
		if !ok {
			continue
		}
		disarmAngle := b.Config.ServoDisarmAngle(item)
		if err := mergeActuatorItem(actual, desired, raw, func() { desired.Angle = disarmAngle }); err != nil {
			return err
		}
	}
	for item, raw := range incoming[Solenoids] {
		actual, ok := b.state.Solenoids[item]
		if !ok {
			continue
		}
		desired, ok := b.desiredState.Solenoids[item]
		if !ok {
			continue
		}
		if err := mergeActuatorItem(actual, desired, raw, nil); err != nil {
			return err
		}
	}
	for item, raw := range incoming[Pyros] {
		actual, ok := b.state.Pyros[item]
		if !ok {
			continue
		}
		desired, ok := b.desiredState.Pyros[item]
		if !ok {
			continue
		}
		if err := mergeActuatorItem(actual, desired, raw, nil); err != nil {
			return err
		}
	}
	return nil
}

// DisarmAll forces armed=false on every servo, solenoid, and pyro in the
// board's desired state. Pure local mutation; no transport I/O. A no-op on
// non-actuator boards.
func (b *Board) DisarmAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, servo := range b.desiredState.Servos {
		servo.Armed = false
	}
	for _, solenoid := range b.desiredState.Solenoids {
		solenoid.Armed = false
	}
	for _, pyro := range b.desiredState.Pyros {
		pyro.Armed = false
	}
}
