// Package snapshot produces immutable point-in-time reads of a request's
// measurement state.
package snapshot

import (
	"time"

	"github.com/torosent/pinba/internal/clock"
	"github.com/torosent/pinba/internal/environment"
	"github.com/torosent/pinba/internal/logx"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/timer"
)

// Unknown is reported for names neither overridden nor known to the
// environment.
const Unknown = "unknown"

// Metadata carries the caller's request level overrides. Empty strings and
// nil pointers mean "not set". RequestTime, when set, replaces the elapsed
// time derived from RequestStart.
type Metadata struct {
	Hostname        string
	ServerName      string
	ScriptName      string
	Schema          string
	RequestStart    time.Time
	RequestTime     *time.Duration
	RequestCount    *uint32
	DocumentSize    *uint32
	MemoryPeak      *uint32
	MemoryFootprint *uint32
	Status          *uint32
	Rusage          *Rusage
	Tags            tags.Tags
}

// Rusage is an explicit CPU time override.
type Rusage struct {
	User   time.Duration
	System time.Duration
}

// Options tune Build.
type Options struct {
	// StopRunningTimers stops every running timer at the snapshot instant.
	StopRunningTimers bool
	// Filter selects which timers the snapshot includes.
	Filter timer.Filter
}

// Snapshot is an immutable read of a request at Now.
type Snapshot struct {
	Now             time.Time
	Hostname        string
	ServerName      string
	ScriptName      string
	Schema          string
	RequestCount    uint32
	DocumentSize    uint32
	MemoryPeak      uint32
	MemoryFootprint *uint32
	Status          *uint32
	ElapsedTime     time.Duration
	CPUUserTime     time.Duration
	CPUSystemTime   time.Duration
	Timers          []timer.View
	Tags            tags.Tags
}

// Builder assembles snapshots from a store and metadata.
type Builder struct {
	Clock  clock.Clock
	Env    environment.Environment
	Logger logx.Logger
}

// Build reads store and meta at a single instant. Every running timer is
// resolved against that instant, and stopped at it when
// opts.StopRunningTimers is set.
func (b Builder) Build(store *timer.Store, meta Metadata, opts Options) Snapshot {
	c := b.Clock
	if c == nil {
		c = clock.System{}
	}
	env := b.Env
	if env == nil {
		env = environment.System{}
	}
	log := logx.OrDefault(b.Logger)

	now := c.Now()

	var views []timer.View
	if opts.StopRunningTimers {
		views = store.StopAndResolve(now, opts.Filter)
	} else {
		views = store.Resolve(now, opts.Filter)
	}

	start := meta.RequestStart
	if start.IsZero() {
		start = now
	}
	if start.Before(epoch) {
		log.Warnf("request_time: negative request start %s, changing it to 0", start)
		start = epoch
	}

	s := Snapshot{
		Now:             now,
		Hostname:        pick(meta.Hostname, env.Hostname()),
		ServerName:      pick(meta.ServerName, env.ServerName()),
		ScriptName:      pick(meta.ScriptName, env.ScriptName()),
		Schema:          meta.Schema,
		RequestCount:    valueOr(meta.RequestCount, 1),
		DocumentSize:    valueOr(meta.DocumentSize, 0),
		MemoryFootprint: meta.MemoryFootprint,
		Status:          meta.Status,
		ElapsedTime:     now.Sub(start),
		Timers:          views,
		Tags:            meta.Tags.Clone(),
	}
	if meta.RequestTime != nil {
		s.ElapsedTime = *meta.RequestTime
	}
	if s.ElapsedTime < 0 {
		s.ElapsedTime = 0
	}

	if meta.MemoryPeak != nil {
		s.MemoryPeak = *meta.MemoryPeak
	} else {
		s.MemoryPeak = clampUint32(env.MemoryPeak())
	}
	if s.MemoryFootprint == nil {
		if fp := env.MemoryFootprint(); fp > 0 {
			v := clampUint32(fp)
			s.MemoryFootprint = &v
		}
	}

	if meta.Rusage != nil {
		s.CPUUserTime, s.CPUSystemTime = meta.Rusage.User, meta.Rusage.System
	} else {
		s.CPUUserTime, s.CPUSystemTime = env.Rusage()
	}
	return s
}

var epoch = time.Unix(0, 0)

func pick(override, fromEnv string) string {
	if override != "" {
		return override
	}
	if fromEnv != "" {
		return fromEnv
	}
	return Unknown
}

func valueOr(p *uint32, fallback uint32) uint32 {
	if p == nil {
		return fallback
	}
	return *p
}

func clampUint32(v uint64) uint32 {
	if v > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(v)
}
