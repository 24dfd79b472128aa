// Package config loads and merges the daemon's configuration: compiled-in
// defaults, then an optional TOML file, then command-line overrides, in
// that order of increasing precedence.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// NodeRole distinguishes a sensing node's role in the mesh.
type NodeRole string

const (
	RoleSensor  NodeRole = "sensor"
	RoleAnchor  NodeRole = "anchor"
	RoleGateway NodeRole = "gateway"
)

// UnmarshalText lets NodeRole be read directly out of TOML/CLI strings.
func (r *NodeRole) UnmarshalText(text []byte) error {
	switch NodeRole(text) {
	case RoleSensor, RoleAnchor, RoleGateway:
		*r = NodeRole(text)
		return nil
	default:
		return fmt.Errorf("config: unknown node role %q", text)
	}
}

// AcousticMode controls whether and how a node participates in active
// ultrasonic ranging.
type AcousticMode string

const (
	AcousticOff      AcousticMode = "off"
	AcousticPassive  AcousticMode = "passive"
	AcousticInterval AcousticMode = "interval"
)

// UnmarshalText lets AcousticMode be read directly out of TOML/CLI strings.
func (m *AcousticMode) UnmarshalText(text []byte) error {
	switch AcousticMode(text) {
	case AcousticOff, AcousticPassive, AcousticInterval:
		*m = AcousticMode(text)
		return nil
	default:
		return fmt.Errorf("config: unknown acoustic mode %q", text)
	}
}

// Position is a node's known or estimated physical location, used as an
// anchor during calibration when set.
type Position struct {
	X, Y float64
	Set  bool
}

// Config is the full set of tunables the orchestrator, mesh, and
// calibration pipeline read. Default supplies a value for every field
// except NodeID, which has no default and must be set before Validate
// passes.
type Config struct {
	NodeID   string   `toml:"node_id"`
	Role     NodeRole `toml:"role"`
	Position Position `toml:"-"`

	MeshPort      int    `toml:"mesh_port"`
	ServiceType   string `toml:"service_type"`
	AdvertiseName string `toml:"advertise_name"`

	SenseIntervalSeconds float64 `toml:"sense_interval_seconds"`

	KalmanProcessNoise      float64 `toml:"kalman_process_noise"`
	KalmanMeasurementNoise  float64 `toml:"kalman_measurement_noise"`
	KalmanAdaptiveThreshold float64 `toml:"kalman_adaptive_threshold"`
	KalmanScalingFactor     float64 `toml:"kalman_scaling_factor"`

	MotionWindow int     `toml:"motion_window"`
	MotionStdDev float64 `toml:"motion_stddev"`

	AcousticMode          AcousticMode `toml:"acoustic_mode"`
	AcousticIntervalRaw   string       `toml:"acoustic_interval"`
	AcousticSampleRate    int          `toml:"acoustic_sample_rate"`
	AcousticChirpDuration float64      `toml:"acoustic_chirp_duration"`

	FloorplanPath       string  `toml:"floorplan_path"`
	CalibrationGapSecs  float64 `toml:"calibration_gap_seconds"`
	RSSIDriftThreshold  float64 `toml:"rssi_drift_threshold_db"`
	RSSIDriftMinDevices int     `toml:"rssi_drift_min_devices"`

	TomographyCellsX int `toml:"tomography_cells_x"`
	TomographyCellsY int `toml:"tomography_cells_y"`

	GossipMaxHops int `toml:"gossip_max_hops"`

	LogLevel string `toml:"log_level"`
}

// Default returns the built-in configuration before any file or CLI
// overrides are applied.
func Default() Config {
	return Config{
		Role:                    RoleSensor,
		MeshPort:                7331,
		ServiceType:             "_senseye._tcp",
		SenseIntervalSeconds:    2.0,
		KalmanProcessNoise:      1.0,
		KalmanMeasurementNoise:  4.0,
		KalmanAdaptiveThreshold: 3.0,
		KalmanScalingFactor:     100.0,
		MotionWindow:            8,
		MotionStdDev:            2.5,
		AcousticMode:            AcousticOff,
		AcousticIntervalRaw:     "10m",
		AcousticSampleRate:      48000,
		AcousticChirpDuration:   0.02,
		FloorplanPath:           "floorplan.json",
		CalibrationGapSecs:      30.0,
		RSSIDriftThreshold:      8.0,
		RSSIDriftMinDevices:     3,
		TomographyCellsX:        20,
		TomographyCellsY:        20,
		GossipMaxHops:           3,
		LogLevel:                "info",
	}
}

// LoadFile reads a TOML config file over top of Default, returning the
// merged result. A missing optional field in the file simply leaves the
// default in place.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// AcousticInterval parses AcousticIntervalRaw ("10m", "1h", "30s") into a
// time.Duration, defaulting to 10 minutes if the string is empty or
// unparseable.
func (c Config) AcousticInterval() time.Duration {
	d, err := ParseInterval(c.AcousticIntervalRaw)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// ParseInterval parses a short duration string of the form "<number><unit>"
// where unit is one of s, m, h (e.g. "30s", "10m", "1h"). It's a narrower,
// more forgiving grammar than time.ParseDuration for config files humans
// edit by hand.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty interval")
	}

	unit := s[len(s)-1:]
	numPart := s[:len(s)-1]

	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid interval %q: %w", s, err)
	}

	switch unit {
	case "s":
		return time.Duration(n * float64(time.Second)), nil
	case "m":
		return time.Duration(n * float64(time.Minute)), nil
	case "h":
		return time.Duration(n * float64(time.Hour)), nil
	default:
		return 0, fmt.Errorf("config: unknown interval unit in %q", s)
	}
}

// Validate reports the first configuration error found, if any.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("config: node_id is required")
	}
	if c.MeshPort <= 0 || c.MeshPort > 65535 {
		return fmt.Errorf("config: mesh_port %d out of range", c.MeshPort)
	}
	if c.SenseIntervalSeconds <= 0 {
		return fmt.Errorf("config: sense_interval_seconds must be positive")
	}
	return nil
}
