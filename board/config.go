package board

import (
	"encoding/json"
	"time"
)

// HardwareConfig is the on-disk shape of configs/hardware_config.json.
// Loading and reloading it is an external collaborator's job (see the
// hwconfig package); Config itself only models the result.
type HardwareConfig struct {
	Boards        map[string]BoardSpec          `json:"boards"`
	StateDefaults map[HardwareType]json.RawMessage `json:"state_defaults"`
}

// SerialSpec is a board's serial transport parameters.
type SerialSpec struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baudrate"`
}

// UDPSpec is a board's UDP transport parameters.
type UDPSpec struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// ServoSpec is a configured servo channel, including its optional safe and
// disarm angles.
type ServoSpec struct {
	Channel     int      `json:"channel"`
	SafeAngle   *float64 `json:"safe_angle,omitempty"`
	DisarmAngle *float64 `json:"disarm_angle,omitempty"`
}

// BoardSpec is one board's entry under "boards" in hardware_config.json.
type BoardSpec struct {
	IsActuator      bool    `json:"is_actuator"`
	PollingInterval float64 `json:"polling_interval"`
	IdleInterval    float64 `json:"idle_interval"`
	ActiveInterval  float64 `json:"active_interval"`

	Serial *SerialSpec `json:"serial,omitempty"`
	UDP    *UDPSpec    `json:"udp,omitempty"`

	PTS       map[string]json.RawMessage `json:"pts,omitempty"`
	TCS       map[string]json.RawMessage `json:"tcs,omitempty"`
	LoadCells map[string]json.RawMessage `json:"loadcells,omitempty"`
	Servos    map[string]ServoSpec       `json:"servos,omitempty"`
	Solenoids map[string]json.RawMessage `json:"solenoids,omitempty"`
	Pyros     map[string]json.RawMessage `json:"pyros,omitempty"`
	IMUs      map[string]json.RawMessage `json:"imus,omitempty"`
	GNSS      map[string]json.RawMessage `json:"gnss,omitempty"`
}

// Config is a board's read-only runtime metadata, derived once from a
// BoardSpec at construction and never mutated afterward.
type Config struct {
	Name            string
	IsActuator      bool
	PollingInterval time.Duration
	IdleInterval    time.Duration
	ActiveInterval  time.Duration
	Serial          *SerialSpec
	UDP             *UDPSpec

	servoDisarmAngles map[string]float64
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func newConfig(name string, spec BoardSpec) Config {
	cfg := Config{
		Name:            name,
		IsActuator:      spec.IsActuator,
		PollingInterval: seconds(spec.PollingInterval),
		IdleInterval:    seconds(spec.IdleInterval),
		ActiveInterval:  seconds(spec.ActiveInterval),
		Serial:          spec.Serial,
		UDP:             spec.UDP,
	}
	if len(spec.Servos) > 0 {
		cfg.servoDisarmAngles = make(map[string]float64, len(spec.Servos))
		for name, servo := range spec.Servos {
			if servo.DisarmAngle != nil {
				cfg.servoDisarmAngles[name] = *servo.DisarmAngle
			}
		}
	}
	return cfg
}

// ServoDisarmAngle returns the configured disarm_angle for a servo, falling
// back to 0 if absent (spec §9's resolved open question).
func (c Config) ServoDisarmAngle(item string) float64 {
	return c.servoDisarmAngles[item]
}
