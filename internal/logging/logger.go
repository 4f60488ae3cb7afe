package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger provides leveled logging with redaction support
type Logger struct {
	zl    zerolog.Logger
	debug bool
}

// New creates a logger writing human-readable lines to stderr
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, debug, noColor)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: "15:04:05",
	}
	return &Logger{
		zl:    zerolog.New(out).Level(level).With().Timestamp().Logger(),
		debug: debug,
	}
}

// Discard returns a logger that drops every message
func Discard() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying the given string field on every line
func (l *Logger) With(key, value string) *Logger {
	return &Logger{
		zl:    l.zl.With().Str(key, value).Logger(),
		debug: l.debug,
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}
