// Package logging configures the process-wide zerolog logger used by every
// controller component.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger according to the quiet/debug
// flags recognized by WaveConfig. quiet takes precedence over debug.
func Init(quiet, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	switch {
	case quiet:
		level = zerolog.Disabled
	case debug:
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Named returns a child logger tagged with a "component" field, the pattern
// every controller subsystem uses to identify its log lines.
func Named(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
