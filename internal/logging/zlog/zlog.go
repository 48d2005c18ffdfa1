// Package zlog bridges internal/logging.Logger to
// github.com/rs/zerolog, via github.com/joeycumines/logiface and its
// github.com/joeycumines/logiface-zerolog adapter. Nothing in the core
// runtime packages imports this package directly; a process wires it
// in at startup with logging.SetLogger(New(...)), mirroring the teacher's pattern of
// keeping logging backends optional and swappable.
package zlog

import (
	"os"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	izerolog "github.com/joeycumines/logiface-zerolog"
	"github.com/rs/zerolog"

	"github.com/flowmesh/reactor/internal/logging"
)

// Logger adapts a logiface.Logger[*izerolog.Event] to the
// logging.Logger interface.
type Logger struct {
	level atomic.Int32
	core  *logiface.Logger[*izerolog.Event]
}

// New builds a Logger writing through z, filtering entries below
// level before they ever reach logiface's Builder allocation.
func New(z zerolog.Logger, level logging.Level) *Logger {
	l := &Logger{
		core: logiface.New[*izerolog.Event](
			izerolog.WithZerolog(z),
			logiface.WithLevel[*izerolog.Event](toLogifaceLevel(level)),
		),
	}
	l.level.Store(int32(level))
	return l
}

// NewConsole builds a Logger writing human-readable output to stderr,
// for local development; production processes should call New with a
// JSON-configured zerolog.Logger instead.
func NewConsole(level logging.Level) *Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return New(zerolog.New(w).With().Timestamp().Logger(), level)
}

func (l *Logger) Enabled(level logging.Level) bool {
	return int32(level) >= l.level.Load()
}

func (l *Logger) Log(e logging.Entry) {
	if !l.Enabled(e.Level) {
		return
	}
	b := l.core.Build(toLogifaceLevel(e.Level))
	if b == nil {
		return
	}
	if e.Component != "" {
		b = b.Str("component", e.Component)
	}
	if e.Err != nil {
		b = b.Err(e.Err)
	}
	for k, v := range e.Fields {
		b = b.Interface(k, v)
	}
	b.Log(e.Message)
}

func toLogifaceLevel(level logging.Level) logiface.Level {
	switch level {
	case logging.LevelDebug:
		return logiface.LevelDebug
	case logging.LevelInfo:
		return logiface.LevelInformational
	case logging.LevelWarn:
		return logiface.LevelWarning
	case logging.LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
