package board

import (
	"encoding/json"
	"reflect"
	"strings"
)

// RawState is the wire shape of an inbound hw_type -> item_name -> item
// frame, parsed just far enough to locate per-item JSON objects; the
// per-item fields are decoded field-by-field onto typed state by
// mergeFields, so no untyped value ever reaches the stored State.
type RawState map[HardwareType]map[string]json.RawMessage

// mergeFields applies only the fields present in raw onto dst, leaving
// every other field of dst untouched. dst must be a pointer to a struct
// whose fields carry `json:"..."` tags; raw is decoded as a JSON object
// and matched against those tags. This is the one place the core touches
// an untyped map (map[string]json.RawMessage) on the way to fully typed
// state, per the "parse at the edges" design note.
func mergeFields(dst any, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}

	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		raw, ok := fields[name]
		if !ok {
			continue
		}
		fieldPtr := reflect.New(sf.Type)
		if err := json.Unmarshal(raw, fieldPtr.Interface()); err != nil {
			return err
		}
		v.Field(i).Set(fieldPtr.Elem())
	}
	return nil
}

// armedProbe decodes only the "armed" key of a raw item frame, used to
// detect an explicit arm/disarm request independent of whether the item
// is currently armed.
func armedProbe(raw json.RawMessage) (*bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var probe struct {
		Armed *bool `json:"armed"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	return probe.Armed, nil
}

// mergeActuatorItem implements the arming firewall (spec §4.3) for a
// single actuator item: fields besides "armed" are only copied onto
// desired when actual is currently armed; otherwise desired is forced
// unpowered. The explicit "armed" field, if present, is always mirrored
// onto desired regardless of the branch above. onDisarm, if non-nil, runs
// whenever this call observes an armed-to-disarmed transition (servos use
// it to reset their angle to the configured disarm angle).
func mergeActuatorItem(actual, desired armable, raw json.RawMessage, onDisarm func()) error {
	// Captured before mergeFields runs: "armed" carries a json tag like
	// every other field, so a generic merge would otherwise overwrite
	// desired's armed state before we ever get to compare against it.
	wasArmed := desired.GetArmed()

	if actual.GetArmed() {
		if err := mergeFields(desired, raw); err != nil {
			return err
		}
	} else {
		desired.ClearPowered()
	}

	explicitArmed, err := armedProbe(raw)
	if err != nil {
		return err
	}
	if explicitArmed != nil {
		desired.SetArmed(*explicitArmed)
		if wasArmed && !*explicitArmed && onDisarm != nil {
			onDisarm()
		}
	}
	return nil
}
