package hotfire

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"groundctl/board"
)

// ParseYAML builds a Sequence from a YAML-encoded timeline, the same shape
// as the JSON form but letting engineers hand-author sequences with
// comments and anchors. This is a supplement over the original JSON-only
// format.
func ParseYAML(raw []byte) (*Sequence, error) {
	var w wireSequence
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parsing hotfire sequence yaml: %w", err)
	}
	return fromWire(w)
}

// ExportJSON renders the sequence back to configs/hotfiresequence.json's
// wire shape.
func (s *Sequence) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(s.toWire(), "", "    ")
}

// ExportYAML renders the sequence to the YAML supplement format.
func (s *Sequence) ExportYAML() ([]byte, error) {
	return yaml.Marshal(s.toWire())
}

func (s *Sequence) toWire() wireSequence {
	w := wireSequence{
		TimeBeforeIgnition:   s.TimeBeforeIgnition,
		HotfireSafingTime:    s.HotfireSafingTime,
		StartEndDesiredState: fromRawStates(s.StartEndState),
		Sequence:             make(map[string]map[string]map[string]map[string]json.RawMessage, len(s.keyframes)),
	}
	for _, kf := range s.keyframes {
		key := strconv.FormatFloat(kf.Time, 'g', -1, 64)
		w.Sequence[key] = fromRawStates(kf.BoardStates)
	}
	return w
}

func fromRawStates(m map[string]board.RawState) map[string]map[string]map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]map[string]map[string]json.RawMessage, len(m))
	for boardName, rs := range m {
		byHWType := make(map[string]map[string]json.RawMessage, len(rs))
		for hwType, byItem := range rs {
			byHWType[string(hwType)] = byItem
		}
		out[boardName] = byHWType
	}
	return out
}
