package session

import (
	"strings"

	"github.com/torosent/pinba/internal/timer"
)

// Flag is a bitmask controlling flushes and timer listings.
type Flag uint

const (
	// FlushOnlyStoppedTimers sends stopped timers only and leaves running
	// ones untouched. Without it every running timer is stopped first.
	FlushOnlyStoppedTimers Flag = 1 << iota
	// FlushResetData resets the session after the flush.
	FlushResetData
	// OnlyRunningTimers restricts Timers to running timers.
	OnlyRunningTimers
	// AutoFlush makes Close flush the session.
	AutoFlush
)

// OnlyStoppedTimers restricts Timers to stopped timers.
const OnlyStoppedTimers = FlushOnlyStoppedTimers

// Has reports whether every bit of other is set in f.
func (f Flag) Has(other Flag) bool { return f&other == other }

func (f Flag) filter() timer.Filter {
	switch {
	case f.Has(OnlyStoppedTimers):
		return timer.OnlyStopped
	case f.Has(OnlyRunningTimers):
		return timer.OnlyRunning
	default:
		return timer.All
	}
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range []struct {
		flag Flag
		name string
	}{
		{FlushOnlyStoppedTimers, "only_stopped_timers"},
		{FlushResetData, "reset_data"},
		{OnlyRunningTimers, "only_running_timers"},
		{AutoFlush, "auto_flush"},
	} {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
