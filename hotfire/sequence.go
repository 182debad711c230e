// Package hotfire models a hotfire timeline: a set of board desired-state
// keyframes indexed by time-since-ignition, with linear interpolation
// ("ramping") between adjacent keyframes for servo angles. A Sequence is
// immutable once built; Controller pairs it with the running clock.
package hotfire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"groundctl/board"
)

// Keyframe is every named board's desired state at a point on the hotfire timeline.
// BoardStates is keyed by board name; each board's RawState is merged onto
// that board's desired state via Board.UpdateDesiredState, so a keyframe
// must explicitly arm an item before any other field of it takes effect.
type Keyframe struct {
	Time        float64
	BoardStates map[string]board.RawState
}

// Sequence is a parsed, time-sorted hotfire timeline. Every field is
// read-only after ParseJSON or ParseYAML returns.
type Sequence struct {
	TimeBeforeIgnition float64
	HotfireSafingTime  float64
	StartEndState      map[string]board.RawState

	keyframes   []Keyframe // sorted by Time ascending
	endTime     float64    // keyframes[last].Time + HotfireSafingTime
}

// wireSequence is the on-disk shape of configs/hotfiresequence.json (and,
// by extension, its YAML import/export form): a flat map of
// stringified-float timestamps to per-board raw desired-state frames.
type wireSequence struct {
	TimeBeforeIgnition float64                                         `json:"time_before_ignition" yaml:"time_before_ignition"`
	HotfireSafingTime  float64                                         `json:"hotfire_safing_time" yaml:"hotfire_safing_time"`
	StartEndDesiredState map[string]map[string]map[string]json.RawMessage `json:"start_end_desiredstate" yaml:"start_end_desiredstate"`
	Sequence           map[string]map[string]map[string]map[string]json.RawMessage `json:"sequence" yaml:"sequence"`
}

// ParseJSON builds a Sequence from a configs/hotfiresequence.json payload.
func ParseJSON(raw []byte) (*Sequence, error) {
	var w wireSequence
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parsing hotfire sequence: %w", err)
	}
	return fromWire(w)
}

func fromWire(w wireSequence) (*Sequence, error) {
	if len(w.Sequence) == 0 {
		return nil, fmt.Errorf("hotfire sequence has no keyframes")
	}

	s := &Sequence{
		TimeBeforeIgnition: w.TimeBeforeIgnition,
		HotfireSafingTime:  w.HotfireSafingTime,
		StartEndState:      toRawStates(w.StartEndDesiredState),
	}

	type timedKey struct {
		t   float64
		key string
	}
	ordered := make([]timedKey, 0, len(w.Sequence))
	for timestr := range w.Sequence {
		t, err := strconv.ParseFloat(timestr, 64)
		if err != nil {
			return nil, fmt.Errorf("hotfire sequence key %q is not a number: %w", timestr, err)
		}
		ordered = append(ordered, timedKey{t: t, key: timestr})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].t < ordered[j].t })

	s.keyframes = make([]Keyframe, 0, len(ordered))
	for _, tk := range ordered {
		s.keyframes = append(s.keyframes, Keyframe{
			Time:        tk.t,
			BoardStates: toRawStates(w.Sequence[tk.key]),
		})
	}
	s.endTime = s.keyframes[len(s.keyframes)-1].Time + s.HotfireSafingTime
	return s, nil
}

func toRawStates(m map[string]map[string]map[string]json.RawMessage) map[string]board.RawState {
	if m == nil {
		return nil
	}
	out := make(map[string]board.RawState, len(m))
	for boardName, byHWType := range m {
		rs := board.RawState{}
		for hwType, byItem := range byHWType {
			rs[board.HardwareType(hwType)] = byItem
		}
		out[boardName] = rs
	}
	return out
}

// EndTime is the timestamp, in seconds since ignition, at which the hotfire
// is considered complete (last keyframe plus the configured safing window).
func (s *Sequence) EndTime() float64 { return s.endTime }

// StartTime is the first keyframe's timestamp.
func (s *Sequence) StartTime() float64 { return s.keyframes[0].Time }
