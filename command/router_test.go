package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"groundctl/board"
	"groundctl/hotfire"
	"groundctl/statemachine"
)

const testSequenceJSON = `{
	"time_before_ignition": 0,
	"hotfire_safing_time": 0,
	"start_end_desiredstate": {},
	"sequence": {"0": {}, "1": {}}
}`

const testHardwareConfig = `{
	"boards": {
		"ActuatorBoard": {
			"is_actuator": true,
			"servos": {"main": {"channel": 0, "safe_angle": 20, "disarm_angle": 7.5}}
		}
	},
	"state_defaults": {}
}`

func testRouter(t *testing.T) (*Router, *statemachine.Machine) {
	t.Helper()
	var cfg board.HardwareConfig
	if err := json.Unmarshal([]byte(testHardwareConfig), &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	set, err := board.BuildAll(cfg)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	seq, err := hotfire.ParseJSON([]byte(testSequenceJSON))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	m := statemachine.New(set, hotfire.NewController(seq), nil, nil)
	m.TransitionTo(statemachine.NewIdleState())

	dir := t.TempDir()
	path := filepath.Join(dir, "hardware_config.json")
	if err := os.WriteFile(path, []byte(testHardwareConfig), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return New(m, path, cfg), m
}

func decodeResponse(t *testing.T, raw []byte) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestGetState(t *testing.T) {
	Convey("Given a router over a machine in Idle", t, func() {
		r, _ := testRouter(t)

		Convey("get state reports Idle", func() {
			resp := decodeResponse(t, r.Handle([]byte(`{"command":"get state"}`)))
			So(resp.Response, ShouldEqual, string(statemachine.Idle))
		})
	})
}

func TestMalformedRequestNeverCrashes(t *testing.T) {
	Convey("Given a router and a malformed JSON request", t, func() {
		r, _ := testRouter(t)

		Convey("Handle returns a response rather than panicking", func() {
			raw := r.Handle([]byte(`{not json`))
			var resp Response
			err := json.Unmarshal(raw, &resp)
			So(err, ShouldBeNil)
			So(resp.Response, ShouldNotBeNil)
		})
	})
}

func TestUnknownVerb(t *testing.T) {
	Convey("Given a router and an unrecognized command", t, func() {
		r, _ := testRouter(t)

		Convey("Handle reports the verb as unknown rather than erroring", func() {
			resp := decodeResponse(t, r.Handle([]byte(`{"command":"make coffee"}`)))
			So(resp.Response, ShouldContainSubstring, "unknown command")
		})
	})
}

func TestStartHotfireSequenceTransitions(t *testing.T) {
	Convey("Given a router over a machine in Idle", t, func() {
		r, m := testRouter(t)

		Convey("start hotfire sequence moves the machine to Hotfire", func() {
			resp := decodeResponse(t, r.Handle([]byte(`{"command":"start hotfire sequence"}`)))
			So(resp.Response, ShouldEqual, "ok")
			So(m.CurrentName(), ShouldEqual, statemachine.Hotfire)
		})

		Convey("update desired state is rejected once Hotfire is entered", func() {
			r.Handle([]byte(`{"command":"start hotfire sequence"}`))
			req := `{"command":"update desired state","data":{"board":"ActuatorBoard","state":{"servos":{"main":{"angle":5}}}}}`
			resp := decodeResponse(t, r.Handle([]byte(req)))
			So(resp.Response, ShouldContainSubstring, "locked during hotfire")
		})
	})
}

func TestUpdateDesiredStateAppliesToNamedBoard(t *testing.T) {
	Convey("Given a router over a machine in Idle with an armed servo", t, func() {
		r, m := testRouter(t)
		b := m.Boards().Get("ActuatorBoard")
		err := b.UpdateState(board.RawState{board.Servos: {"main": json.RawMessage(`{"armed":true}`)}})
		So(err, ShouldBeNil)

		Convey("update desired state changes the board's desired angle", func() {
			req := `{"command":"update desired state","data":{"board":"ActuatorBoard","state":{"servos":{"main":{"angle":33}}}}}`
			resp := decodeResponse(t, r.Handle([]byte(req)))
			So(resp.Response, ShouldEqual, "ok")
			So(b.DesiredState().Servos["main"].Angle, ShouldEqual, float64(33))
		})

		Convey("an unknown board name is reported, not a crash", func() {
			req := `{"command":"update desired state","data":{"board":"NoSuchBoard","state":{}}}`
			resp := decodeResponse(t, r.Handle([]byte(req)))
			So(resp.Response, ShouldContainSubstring, "unknown board")
		})
	})
}

func TestReloadHardwareJSON(t *testing.T) {
	Convey("Given a router pointed at its fixture config path", t, func() {
		r, m := testRouter(t)
		beforePtr := fmt.Sprintf("%p", m.Boards().Get("ActuatorBoard"))

		Convey("reload hardware json rebuilds the board set with a fresh Board instance", func() {
			resp := decodeResponse(t, r.Handle([]byte(`{"command":"reload hardware json"}`)))
			So(resp.Response, ShouldEqual, "ok")
			after := m.Boards().Get("ActuatorBoard")
			So(after, ShouldNotBeNil)
			So(fmt.Sprintf("%p", after), ShouldNotEqual, beforePtr)
		})
	})
}

func TestGetAndSetHotfireSequence(t *testing.T) {
	Convey("Given a router over a machine with a loaded sequence", t, func() {
		r, m := testRouter(t)

		Convey("get hotfire sequence round-trips through set", func() {
			getResp := decodeResponse(t, r.Handle([]byte(`{"command":"get hotfire sequence"}`)))
			raw, err := json.Marshal(getResp.Response)
			So(err, ShouldBeNil)

			setReq := append(append([]byte(`{"command":"set hotfire sequence","data":`), raw...), '}')
			setResp := decodeResponse(t, r.Handle(setReq))
			So(setResp.Response, ShouldEqual, "ok")
			So(m.HotfireController().Sequence().EndTime(), ShouldEqual, float64(1))
		})
	})
}
