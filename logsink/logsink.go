// Package logsink implements the engine's structured log sink: four
// levels, a single callback, serialised so any worker goroutine may log
// without interleaving output. Routing the callback's messages anywhere
// beyond the default writer (a file, a UI, a remote collector) is left
// entirely to the caller.
package logsink

import (
	"fmt"
	"io"
	"sync"
)

// Level is the severity of a logged message, from most to least verbose.
type Level int

const (
	Verbose  Level = 10
	Progress Level = 20
	Info     Level = 30
	Error    Level = 40
)

func (l Level) String() string {
	switch l {
	case Verbose:
		return "VERBOSE"
	case Progress:
		return "PROGRESS"
	case Info:
		return "INFO"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Callback is invoked for every logged message. Implementations must be
// safe to call from any goroutine; Sink itself already serialises calls
// to a single underlying Callback, so a Callback need not re-lock.
type Callback func(level Level, message string)

// Sink is the logging capability passed into every task's Run. It
// satisfies imgtask.Logger.
type Sink interface {
	Log(level Level, format string, args ...any)
	Verbosef(format string, args ...any)
	Progressf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// callbackSink serialises access to a user Callback.
type callbackSink struct {
	mu sync.Mutex
	cb Callback
}

// New wraps cb so concurrent callers never interleave a single message.
func New(cb Callback) Sink {
	return &callbackSink{cb: cb}
}

func (s *callbackSink) Log(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb(level, msg)
}

func (s *callbackSink) Verbosef(format string, args ...any)  { s.Log(Verbose, format, args...) }
func (s *callbackSink) Progressf(format string, args ...any) { s.Log(Progress, format, args...) }
func (s *callbackSink) Infof(format string, args ...any)     { s.Log(Info, format, args...) }
func (s *callbackSink) Errorf(format string, args ...any)    { s.Log(Error, format, args...) }

// StdSink writes level-prefixed lines to w, e.g. os.Stderr. It is the
// default sink used by cmd/focusstack when no other transport is wired.
func StdSink(w io.Writer, minLevel Level) Sink {
	return New(func(level Level, message string) {
		if level < minLevel {
			return
		}
		fmt.Fprintf(w, "[%s] %s\n", level, message)
	})
}
