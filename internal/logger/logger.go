package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates the service logger. Output is plain JSON unless LOG_PRETTY is
// set, in which case a console writer is used.
func New() zerolog.Logger {
	if os.Getenv("LOG_PRETTY") != "" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// NewWithWriter creates a logger with a custom writer, used by tests.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Named returns a child logger tagged with a component name, the moral
// equivalent of a log channel.
func Named(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
