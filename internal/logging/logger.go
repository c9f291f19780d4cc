package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls how Init configures the global logger.
type Options struct {
	// JSON disables the console writer and emits one JSON object per line.
	JSON bool
	// File, when non-empty, receives a copy of every log line in JSON form.
	File io.Writer
}

// Init initializes the global logger with configuration from environment variables.
// POETRY_LOG_LEVEL controls the log level: trace, debug, info, warn, error (default: info)
func Init(opts Options) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("POETRY_LOG_LEVEL")))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	if opts.JSON {
		out = os.Stderr
	}
	if opts.File != nil {
		out = zerolog.MultiLevelWriter(out, opts.File)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a child of the global logger tagged with a component
// name. Long-lived goroutines hold one of these instead of using log directly.
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
