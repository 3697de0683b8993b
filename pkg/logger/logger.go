// Package logger provides the minimal leveled logging interface used across
// arbor, backed by zerolog.
package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Logger is the logging interface accepted by every long-lived arbor
// component. Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type zerologLogger struct {
	l zerolog.Logger
}

// New returns a Logger writing structured JSON lines to w.
func New(w io.Writer) Logger {
	return &zerologLogger{
		l: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// NewWithLevel returns a Logger writing to w that drops entries below level.
func NewWithLevel(w io.Writer, level zerolog.Level) Logger {
	return &zerologLogger{
		l: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

func (z *zerologLogger) Debug(msg string, args ...any) { emit(z.l.Debug(), msg, args) }
func (z *zerologLogger) Info(msg string, args ...any)  { emit(z.l.Info(), msg, args) }
func (z *zerologLogger) Warn(msg string, args ...any)  { emit(z.l.Warn(), msg, args) }
func (z *zerologLogger) Error(msg string, args ...any) { emit(z.l.Error(), msg, args) }

func emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	if len(args)%2 != 0 {
		ev = ev.Interface("arg", args[len(args)-1])
	}
	ev.Msg(msg)
}

type nopLogger struct{}

// Nop returns a Logger that discards everything. Useful in tests.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
