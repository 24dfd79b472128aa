package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// BindFlags registers every overridable Config field on fs. Flags default
// to the zero value so ApplyFlags can tell "not passed" apart from
// "explicitly set to the default" by checking fs.Changed.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a TOML config file.")
	fs.String("node-id", "", "This node's unique identifier.")
	fs.String("role", "", "Node role: sensor, anchor, or gateway.")
	fs.String("position", "", "Known anchor position as \"x,y\" in meters.")
	fs.Int("mesh-port", 0, "TCP port for the gossip mesh.")
	fs.String("floorplan", "", "Path to the floor plan JSON file.")
	fs.String("acoustic-mode", "", "Acoustic ranging mode: off, passive, or interval.")
	fs.String("acoustic-interval", "", "Acoustic ranging interval, e.g. \"10m\".")
	fs.String("log-level", "", "Log level: debug, info, warn, error.")
	fs.Bool("help", false, "Display help text.")
}

// ApplyFlags overlays any flags the caller actually passed on fs onto cfg,
// at higher precedence than the loaded file.
func ApplyFlags(cfg Config, fs *pflag.FlagSet) (Config, error) {
	if v, err := fs.GetString("node-id"); err == nil && fs.Changed("node-id") {
		cfg.NodeID = v
	}
	if v, err := fs.GetString("role"); err == nil && fs.Changed("role") {
		var role NodeRole
		if err := role.UnmarshalText([]byte(v)); err != nil {
			return cfg, err
		}
		cfg.Role = role
	}
	if v, err := fs.GetString("position"); err == nil && fs.Changed("position") {
		pos, err := ParsePosition(v)
		if err != nil {
			return cfg, err
		}
		cfg.Position = pos
	}
	if v, err := fs.GetInt("mesh-port"); err == nil && fs.Changed("mesh-port") {
		cfg.MeshPort = v
	}
	if v, err := fs.GetString("floorplan"); err == nil && fs.Changed("floorplan") {
		cfg.FloorplanPath = v
	}
	if v, err := fs.GetString("acoustic-mode"); err == nil && fs.Changed("acoustic-mode") {
		var mode AcousticMode
		if err := mode.UnmarshalText([]byte(v)); err != nil {
			return cfg, err
		}
		cfg.AcousticMode = mode
	}
	if v, err := fs.GetString("acoustic-interval"); err == nil && fs.Changed("acoustic-interval") {
		if _, err := ParseInterval(v); err != nil {
			return cfg, err
		}
		cfg.AcousticIntervalRaw = v
	}
	if v, err := fs.GetString("log-level"); err == nil && fs.Changed("log-level") {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// ParsePosition parses a "x,y" string into a Position.
func ParsePosition(s string) (Position, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return Position{}, fmt.Errorf("config: invalid position %q, want \"x,y\"", s)
	}

	var x, y float64
	if _, err := fmt.Sscanf(parts[0], "%f", &x); err != nil {
		return Position{}, fmt.Errorf("config: invalid position x in %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%f", &y); err != nil {
		return Position{}, fmt.Errorf("config: invalid position y in %q: %w", s, err)
	}
	return Position{X: x, Y: y, Set: true}, nil
}

// Build loads defaults, an optional file (taken from the "config" flag if
// set), then applies any CLI overrides, in that precedence order.
func Build(fs *pflag.FlagSet) (Config, error) {
	path, _ := fs.GetString("config")

	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}

	cfg, err = ApplyFlags(cfg, fs)
	if err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}
