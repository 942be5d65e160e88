// Package logging provides structured logging for the downloader CLI.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with the console formatting carfw uses everywhere.
// Logs go to stderr by default so they never clobber stdout, which the
// non-interactive progress line-printer and the list-* subcommands' JSON
// output use.
type Logger struct {
	zlog   zerolog.Logger
	output io.Writer
}

// New creates a logger writing to the given output.
func New(output io.Writer) *Logger {
	w := zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	return &Logger{
		zlog:   zerolog.New(w).With().Timestamp().Logger(),
		output: output,
	}
}

// NewDefault creates the standard CLI logger (stderr, info level).
func NewDefault() *Logger {
	return New(os.Stderr)
}

func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Fatal() *zerolog.Event { return l.zlog.Fatal() }

// With creates a child logger builder with additional context fields.
func (l *Logger) With() zerolog.Context { return l.zlog.With() }

// SetOutput redirects the logger, used when progress bars need the terminal.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.zlog = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer { return l.output }

// SetGlobalLevel adjusts the zerolog global level (e.g. for -v/--verbose).
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}
