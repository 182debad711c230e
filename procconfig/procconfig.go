// Package procconfig resolves groundctl's process-level configuration:
// where to find the hardware and hotfire-sequence files, which addresses
// to listen on, and where to write hotfire logs. Flags take precedence
// over environment variables, which take precedence over an optional
// groundctl.yaml, which takes precedence over the defaults below.
package procconfig

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Config is every value main.go needs to wire the running system, decided
// once at startup.
type Config struct {
	Debug bool

	HardwareConfigPath string
	HotfireSequencePath string

	// CommandAddr is the UDP address the CommandRouter listens on for
	// operator requests.
	CommandAddr string

	// DashboardAddr is the HTTP address the dashboard listens on.
	DashboardAddr string

	DatalogDir string

	// Calibration is written verbatim into each hotfire CSV log's header
	// comment line.
	Calibration map[string]float64
}

func defaults() Config {
	return Config{
		Debug:               false,
		HardwareConfigPath:  "./configs/hardware_config.json",
		HotfireSequencePath: "./configs/hotfiresequence.json",
		CommandAddr:         "0.0.0.0:8888",
		DashboardAddr:       ":8889",
		DatalogDir:          "./logs",
		Calibration:         map[string]float64{},
	}
}

// Load resolves a Config from flags, then GROUNDCTL_*-prefixed
// environment variables, then an optional yaml file at configPath (if
// non-empty and present), falling back to defaults() for anything none
// of those set.
func Load(args []string, configPath string) (Config, error) {
	cfg := defaults()

	vp := viper.New()
	vp.SetEnvPrefix("groundctl")
	vp.AutomaticEnv()
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		vp.SetConfigFile(configPath)
		vp.SetConfigType("yaml")
		if err := vp.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("reading %s: %w", configPath, err)
			}
		}
	}

	fs := flag.NewFlagSet("groundctl", flag.ContinueOnError)
	debug := fs.Bool("debug", vp.GetBool("debug"), "enable debug logging")
	hwPath := fs.String("hardware-config", orDefault(vp.GetString("hardware_config"), cfg.HardwareConfigPath), "path to hardware_config.json")
	seqPath := fs.String("hotfire-sequence", orDefault(vp.GetString("hotfire_sequence"), cfg.HotfireSequencePath), "path to the hotfire sequence file")
	cmdAddr := fs.String("command-addr", orDefault(vp.GetString("command_addr"), cfg.CommandAddr), "UDP address for operator commands")
	dashAddr := fs.String("dashboard-addr", orDefault(vp.GetString("dashboard_addr"), cfg.DashboardAddr), "HTTP address for the dashboard")
	logDir := fs.String("datalog-dir", orDefault(vp.GetString("datalog_dir"), cfg.DatalogDir), "directory for hotfire CSV logs")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Debug = *debug
	cfg.HardwareConfigPath = *hwPath
	cfg.HotfireSequencePath = *seqPath
	cfg.CommandAddr = *cmdAddr
	cfg.DashboardAddr = *dashAddr
	cfg.DatalogDir = *logDir

	if calib := vp.GetStringMap("calibration"); len(calib) > 0 {
		cfg.Calibration = make(map[string]float64, len(calib))
		for k, v := range calib {
			if f, ok := v.(float64); ok {
				cfg.Calibration[k] = f
			}
		}
	}

	return cfg, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
