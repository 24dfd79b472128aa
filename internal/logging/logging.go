// Package logging sets up the per-subsystem loggers the rest of the daemon
// uses, all sharing one destination and level but tagged with a "component"
// field so log lines can be filtered per subsystem.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Options configures the root logger.
type Options struct {
	Level  log.Level
	Output io.Writer
	JSON   bool
}

// New builds the root logger. Callers derive per-component loggers from it
// with For rather than constructing their own.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
		Level:           opts.Level,
	})
	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// For returns a child logger tagged with component, e.g. "mesh",
// "calibration", "orchestrator".
func For(root *log.Logger, component string) *log.Logger {
	return root.With("component", component)
}

// ParseLevel maps a config/CLI string to a charmbracelet/log level,
// defaulting to Info for anything unrecognized.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
