// Package hwconfig loads hardware_config.json into the board package's
// schema. It is deliberately thin:
// shape validation only (the two top-level keys hardware_config.json must
// carry), no hot-reload file watching, no semantic validation of channel
// numbers or ranges. Richer validation is an external collaborator's job.
package hwconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"groundctl/board"
)

// Load reads and unmarshals a hardware_config.json file at path. It
// refuses to return a config missing either top-level key, since a board
// set built from one silently has no boards or no defaults.
func Load(path string) (board.HardwareConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return board.HardwareConfig{}, fmt.Errorf("reading hardware config %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse unmarshals raw JSON bytes into a board.HardwareConfig, same shape
// validation as Load.
func Parse(raw []byte) (board.HardwareConfig, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return board.HardwareConfig{}, fmt.Errorf("parsing hardware config: %w", err)
	}
	if _, ok := top["boards"]; !ok {
		return board.HardwareConfig{}, fmt.Errorf("hardware config missing required top-level key %q", "boards")
	}
	if _, ok := top["state_defaults"]; !ok {
		return board.HardwareConfig{}, fmt.Errorf("hardware config missing required top-level key %q", "state_defaults")
	}

	var cfg board.HardwareConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return board.HardwareConfig{}, fmt.Errorf("decoding hardware config: %w", err)
	}
	return cfg, nil
}
