package board

import "fmt"

// BuildAll constructs one Board per entry in cfg.Boards, in an
// unspecified but stable order is not required by callers: the result is
// indexed by name via Set.
func BuildAll(cfg HardwareConfig) (*Set, error) {
	defaults := make(map[HardwareType]rawDefault, len(cfg.StateDefaults))
	for hwType, raw := range cfg.StateDefaults {
		defaults[hwType] = rawDefault{raw: raw}
	}

	boards := make(map[string]*Board, len(cfg.Boards))
	for name, spec := range cfg.Boards {
		b, err := New(name, spec, defaults)
		if err != nil {
			return nil, fmt.Errorf("building board %q: %w", name, err)
		}
		boards[name] = b
	}
	return &Set{boards: boards}, nil
}

// Set is the collection of boards loaded from configuration, indexed by
// name. Boards are created once at startup and never added or removed at
// runtime; a config reload replaces the whole Set.
type Set struct {
	boards map[string]*Board
}

// Get returns the named board, or nil if no such board is configured.
func (s *Set) Get(name string) *Board {
	if s == nil {
		return nil
	}
	return s.boards[name]
}

// All returns every board in the set, in no particular order.
func (s *Set) All() []*Board {
	out := make([]*Board, 0, len(s.boards))
	for _, b := range s.boards {
		out = append(out, b)
	}
	return out
}

// DisarmAll calls DisarmAll on every board in the set.
func (s *Set) DisarmAll() {
	for _, b := range s.boards {
		b.DisarmAll()
	}
}
