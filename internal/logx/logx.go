// Package logx defines the diagnostic channel used across pinba.
//
// Soft failures (invalid tags, clamped durations, failed sends) never unwind
// the stack. They are returned as values and, where useful, reported as a
// warning through a [Logger].
package logx

import "github.com/apex/log"

// DebugLogger emits debug messages.
type DebugLogger interface {
	Debug(msg string)
	Debugf(format string, v ...interface{})
}

// InfoLogger emits debug and informational messages.
type InfoLogger interface {
	DebugLogger
	Info(msg string)
	Infof(format string, v ...interface{})
}

// Logger is the interface every pinba component logs through. It is out of
// the box compatible with `log.Log` in `apex/log`.
type Logger interface {
	InfoLogger
	Warn(msg string)
	Warnf(format string, v ...interface{})
}

// Default returns the process-wide apex/log logger.
func Default() Logger {
	return log.Log
}

// OrDefault returns l, or Default when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}

// Discard is a logger that drops every message.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debug(msg string) {}
func (discard) Debugf(format string, v ...interface{}) {}
func (discard) Info(msg string) {}
func (discard) Infof(format string, v ...interface{}) {}
func (discard) Warn(msg string) {}
func (discard) Warnf(format string, v ...interface{}) {}
