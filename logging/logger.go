// Package logging wraps github.com/phuslu/log, the teacher's logging
// library, configuring it from the engine's debug_level option.
package logging

import (
	"strings"

	"github.com/phuslu/log"
)

// New builds a logger at the given level name (off|error|warn|info|debug|trace).
// An unrecognized or empty level falls back to "off", matching the
// config table's default (spec §6: debug_level default "off").
func New(level string) log.Logger {
	return log.Logger{
		Level:  parseLevel(level),
		Caller: 0,
		Writer: &log.ConsoleWriter{
			ColorOutput:    false,
			EndWithMessage: true,
		},
	}
}

// CreateDebugLogger returns a logger at debug level, used by tests and
// provisioning tooling that want verbose output without plumbing config.
func CreateDebugLogger() log.Logger {
	return New("debug")
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "off", "":
		return log.ErrorLevel
	default:
		return log.ErrorLevel
	}
}
