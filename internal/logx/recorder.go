package logx

import (
	"fmt"
	"sync"
)

// Recorder is a Logger that keeps warnings in memory. Tests use it to assert
// that a soft failure was reported.
type Recorder struct {
	mu       sync.Mutex
	warnings []string
}

func (r *Recorder) Debug(msg string) {}
func (r *Recorder) Debugf(format string, v ...interface{}) {}
func (r *Recorder) Info(msg string) {}
func (r *Recorder) Infof(format string, v ...interface{}) {}

func (r *Recorder) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

func (r *Recorder) Warnf(format string, v ...interface{}) {
	r.Warn(fmt.Sprintf(format, v...))
}

// Warnings returns a copy of the recorded warnings.
func (r *Recorder) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Reset drops the recorded warnings.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = nil
}
