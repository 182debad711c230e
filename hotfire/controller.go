package hotfire

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"groundctl/board"
)

// servoFields is the subset of a servo keyframe's raw JSON the ramping
// logic needs to read and rewrite; every other field (armed, powered, ...)
// passes through mergeFields untouched on the consuming Board.
type servoFields struct {
	Angle       *float64 `json:"angle,omitempty"`
	RampToNext  bool     `json:"ramp_to_next,omitempty"`
}

// Controller tracks the active Sequence and answers "what should every
// board's desired state be at time T" and "is the hotfire done yet",
// mirroring the original HotfireController's get_hotfire_desiredstate and
// is_hotfire_complete.
type Controller struct {
	seq *Sequence
}

// NewController wraps a parsed Sequence.
func NewController(seq *Sequence) *Controller {
	return &Controller{seq: seq}
}

// Sequence returns the controller's active timeline, for "get hotfire
// sequence" command responses and re-export.
func (c *Controller) Sequence() *Sequence { return c.seq }

// SetSequence swaps in a newly uploaded timeline. Only valid while not
// actively hotfiring; callers (the command router) enforce that.
func (c *Controller) SetSequence(seq *Sequence) { c.seq = seq }

// GetT converts a wall-clock time-since-statechange into the sequence's
// ignition-relative time T (negative before ignition).
func (c *Controller) GetT(timeSinceStatechange float64) float64 {
	return timeSinceStatechange - c.seq.TimeBeforeIgnition
}

// IsComplete reports whether T has passed the sequence's end time.
func (c *Controller) IsComplete(timeSinceStatechange float64) bool {
	return c.GetT(timeSinceStatechange) > c.seq.endTime
}

// AbortDesiredState is the safe board-state set to command on an engine
// abort, independent of where in the timeline the abort occurred.
func (c *Controller) AbortDesiredState() map[string]board.RawState {
	return c.seq.StartEndState
}

// DesiredState returns, for the given wall-clock time-since-statechange,
// the desired state every named board should be commanded to. Before the
// first keyframe or after the last, StartEndState is returned unmodified.
// Between two keyframes, servo angles marked ramp_to_next are linearly
// interpolated against the next keyframe's angle for the same board/item;
// the ramp_to_next marker itself is stripped from the returned frame so it
// never reaches Board.UpdateDesiredState. The result is not a deep copy:
// StartEndState is returned as stored, and unramped entries share their
// maps and JSON bytes with the stored keyframes.
func (c *Controller) DesiredState(timeSinceStatechange float64) map[string]board.RawState {
	T := c.GetT(timeSinceStatechange)
	kfs := c.seq.keyframes

	if T < kfs[0].Time || T > kfs[len(kfs)-1].Time {
		return c.seq.StartEndState
	}

	idx := 0
	for idx+1 < len(kfs) && T >= kfs[idx+1].Time {
		idx++
	}

	current := kfs[idx]
	out := make(map[string]board.RawState, len(current.BoardStates))
	for boardName, rs := range current.BoardStates {
		out[boardName] = applyRamping(rs, boardName, idx, kfs, T)
	}
	return out
}

// applyRamping copies rs, and for every servo item carrying ramp_to_next
// true, replaces its angle with the linear interpolation between this
// keyframe and the next one's angle for the same board and item.
func applyRamping(rs board.RawState, boardName string, idx int, kfs []Keyframe, T float64) board.RawState {
	servos, ok := rs[board.Servos]
	if !ok {
		return rs
	}

	out := board.RawState{}
	for hwType, items := range rs {
		out[hwType] = items
	}
	rampedServos := make(map[string]json.RawMessage, len(servos))
	for item, raw := range servos {
		rampedServos[item] = rampServoItem(raw, boardName, item, idx, kfs, T)
	}
	out[board.Servos] = rampedServos
	return out
}

func rampServoItem(raw json.RawMessage, boardName, item string, idx int, kfs []Keyframe, T float64) json.RawMessage {
	var fields servoFields
	if err := json.Unmarshal(raw, &fields); err != nil || !fields.RampToNext || fields.Angle == nil {
		return raw
	}
	if idx+1 >= len(kfs) {
		log.Error().Str("board", boardName).Str("servo", item).Msg("hotfire sequence is not long enough to apply ramping logic")
		return stripRampToNext(raw)
	}
	next, ok := kfs[idx+1].BoardStates[boardName]
	if !ok {
		return stripRampToNext(raw)
	}
	nextServos, ok := next[board.Servos]
	if !ok {
		return stripRampToNext(raw)
	}
	nextRaw, ok := nextServos[item]
	if !ok {
		return stripRampToNext(raw)
	}
	var nextFields servoFields
	if err := json.Unmarshal(nextRaw, &nextFields); err != nil || nextFields.Angle == nil {
		return stripRampToNext(raw)
	}

	lastTime := kfs[idx].Time
	nextTime := kfs[idx+1].Time
	weighted := (*fields.Angle*(nextTime-T) + *nextFields.Angle*(T-lastTime)) / (nextTime - lastTime)

	merged := decodeObject(raw)
	merged["angle"] = jsonNumber(weighted)
	delete(merged, "ramp_to_next")
	out, err := json.Marshal(merged)
	if err != nil {
		return stripRampToNext(raw)
	}
	return out
}

func stripRampToNext(raw json.RawMessage) json.RawMessage {
	merged := decodeObject(raw)
	delete(merged, "ramp_to_next")
	out, err := json.Marshal(merged)
	if err != nil {
		return raw
	}
	return out
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]json.RawMessage{}
	}
	return m
}

func jsonNumber(f float64) json.RawMessage {
	b, _ := json.Marshal(f)
	return b
}
