package hwconfig

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const validConfig = `{
	"boards": {
		"ActuatorBoard": {
			"is_actuator": true,
			"polling_interval": 0.1,
			"servos": {"main": {"channel": 0, "safe_angle": 20, "disarm_angle": 7.5}}
		}
	},
	"state_defaults": {
		"servos": {"armed": false}
	}
}`

func TestParseValidConfig(t *testing.T) {
	Convey("Given a hardware config with both required top-level keys", t, func() {
		cfg, err := Parse([]byte(validConfig))

		Convey("it parses into a board.HardwareConfig", func() {
			So(err, ShouldBeNil)
			So(cfg.Boards, ShouldContainKey, "ActuatorBoard")
		})
	})
}

func TestParseMissingBoardsKey(t *testing.T) {
	Convey("Given a config missing the boards key", t, func() {
		_, err := Parse([]byte(`{"state_defaults": {}}`))

		Convey("Parse refuses to initialize", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseMissingStateDefaultsKey(t *testing.T) {
	Convey("Given a config missing the state_defaults key", t, func() {
		_, err := Parse([]byte(`{"boards": {}}`))

		Convey("Parse refuses to initialize", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseMalformedJSON(t *testing.T) {
	Convey("Given malformed JSON", t, func() {
		_, err := Parse([]byte(`{not json`))

		Convey("Parse returns an error rather than panicking", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoadMissingFile(t *testing.T) {
	Convey("Given a path that does not exist", t, func() {
		_, err := Load("/nonexistent/hardware_config.json")

		Convey("Load returns an error", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
