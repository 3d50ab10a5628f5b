package timer

import (
	"fmt"
	"time"

	"github.com/torosent/pinba/internal/tags"
)

// ID identifies a timer within one Store. IDs are never reused until the
// store is reset.
type ID int

// State is the lifecycle state of a timer.
type State uint8

const (
	Running State = iota
	Stopped
	Deleted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Data is opaque application payload attached to a timer. It is never
// transmitted.
type Data map[string]any

func (d Data) clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Filter selects timers by state in List and Resolve.
type Filter uint8

const (
	All Filter = iota
	OnlyStopped
	OnlyRunning
)

func (f Filter) match(s State) bool {
	switch f {
	case OnlyStopped:
		return s == Stopped
	case OnlyRunning:
		return s == Running
	default:
		return s != Deleted
	}
}

// View is a point-in-time copy of a timer. Value is the accumulated
// duration of a stopped timer, or the elapsed time so far of a running one.
type View struct {
	ID       ID
	Tags     tags.Tags
	Value    time.Duration
	State    State
	HitCount int
	Data     Data
}

// Started reports whether the timer was still running when viewed.
func (v View) Started() bool { return v.State == Running }

type entry struct {
	tags     tags.Tags
	start    time.Time
	value    time.Duration
	state    State
	hitCount int
	data     Data
}

func (e *entry) view(id ID, now time.Time) View {
	v := View{
		ID:       id,
		Tags:     e.tags.Clone(),
		Value:    e.value,
		State:    e.state,
		HitCount: e.hitCount,
		Data:     e.data.clone(),
	}
	if e.state == Running {
		v.Value = elapsed(e.start, now)
	}
	return v
}

func (e *entry) stop(now time.Time) {
	e.value = elapsed(e.start, now)
	e.state = Stopped
}

func elapsed(start, now time.Time) time.Duration {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
