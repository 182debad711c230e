package hotfire

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"groundctl/board"
)

const testSequenceJSON = `{
	"time_before_ignition": 5,
	"hotfire_safing_time": 2,
	"start_end_desiredstate": {
		"ActuatorBoard": {
			"servos": {
				"main": {"armed": true, "angle": 0}
			}
		}
	},
	"sequence": {
		"0": {
			"ActuatorBoard": {
				"servos": {
					"main": {"armed": true, "angle": 0, "ramp_to_next": true}
				}
			}
		},
		"10": {
			"ActuatorBoard": {
				"servos": {
					"main": {"armed": true, "angle": 90}
				}
			}
		}
	}
}`

func mustParse(t *testing.T) *Sequence {
	seq, err := ParseJSON([]byte(testSequenceJSON))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	return seq
}

func servoAngle(t *testing.T, rs board.RawState) float64 {
	t.Helper()
	raw, ok := rs[board.Servos]["main"]
	if !ok {
		t.Fatalf("no servo 'main' in raw state")
	}
	var fields servoFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal servo fields: %v", err)
	}
	if fields.Angle == nil {
		t.Fatalf("servo has no angle field")
	}
	return *fields.Angle
}

func TestSequenceParsing(t *testing.T) {
	Convey("Given a two-keyframe sequence", t, func() {
		seq := mustParse(t)

		Convey("keyframes are sorted by time ascending", func() {
			So(len(seq.keyframes), ShouldEqual, 2)
			So(seq.keyframes[0].Time, ShouldEqual, 0)
			So(seq.keyframes[1].Time, ShouldEqual, 10)
		})

		Convey("end time is the last keyframe plus the safing window", func() {
			So(seq.EndTime(), ShouldEqual, 12)
		})
	})
}

func TestRampMidpointInterpolation(t *testing.T) {
	Convey("Given a controller over a ramping sequence", t, func() {
		c := NewController(mustParse(t))

		Convey("at the ignition-relative midpoint between 0 and 90 degrees, the angle is halfway", func() {
			// time_before_ignition=5, so t=10 is T=5, midway between the keyframes at 0 and 10
			ds := c.DesiredState(10)
			angle := servoAngle(t, ds["ActuatorBoard"])
			So(angle, ShouldEqual, 45)
		})

		Convey("at the first keyframe exactly, the angle is unramped", func() {
			ds := c.DesiredState(5)
			angle := servoAngle(t, ds["ActuatorBoard"])
			So(angle, ShouldEqual, 0)
		})

		Convey("ramp_to_next is stripped from the returned frame", func() {
			ds := c.DesiredState(10)
			raw := ds["ActuatorBoard"][board.Servos]["main"]
			var fields servoFields
			So(json.Unmarshal(raw, &fields), ShouldBeNil)
			So(fields.RampToNext, ShouldBeFalse)
		})
	})
}

func TestStartEndStateBeforeAndAfterSequence(t *testing.T) {
	Convey("Given a controller over a sequence", t, func() {
		c := NewController(mustParse(t))

		Convey("before ignition, the start/end desired state applies", func() {
			ds := c.DesiredState(0)
			angle := servoAngle(t, ds["ActuatorBoard"])
			So(angle, ShouldEqual, 0)
		})

		Convey("after the last keyframe, the start/end desired state applies again", func() {
			ds := c.DesiredState(20)
			angle := servoAngle(t, ds["ActuatorBoard"])
			So(angle, ShouldEqual, 0)
		})
	})
}

func TestHotfireCompletion(t *testing.T) {
	Convey("Given a controller over a sequence ending at T=10 with a 2s safing window", t, func() {
		c := NewController(mustParse(t))

		Convey("is not complete before the safing window elapses", func() {
			So(c.IsComplete(5+11), ShouldBeFalse)
		})

		Convey("is complete once T exceeds the end time", func() {
			So(c.IsComplete(5+13), ShouldBeTrue)
		})
	})
}

func TestExportRoundTrip(t *testing.T) {
	Convey("Given a parsed sequence", t, func() {
		seq := mustParse(t)

		Convey("exporting to JSON and reparsing yields an equivalent timeline", func() {
			raw, err := seq.ExportJSON()
			So(err, ShouldBeNil)
			reparsed, err := ParseJSON(raw)
			So(err, ShouldBeNil)
			So(reparsed.EndTime(), ShouldEqual, seq.EndTime())
			So(len(reparsed.keyframes), ShouldEqual, len(seq.keyframes))
		})

		Convey("exporting to YAML and reparsing yields an equivalent timeline", func() {
			raw, err := seq.ExportYAML()
			So(err, ShouldBeNil)
			reparsed, err := ParseYAML(raw)
			So(err, ShouldBeNil)
			So(reparsed.EndTime(), ShouldEqual, seq.EndTime())
		})
	})
}
