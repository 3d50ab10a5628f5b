package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/torosent/pinba/internal/clock"
	"github.com/torosent/pinba/internal/environment"
	"github.com/torosent/pinba/internal/logx"
	"github.com/torosent/pinba/internal/packet"
	"github.com/torosent/pinba/internal/snapshot"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/timer"
	"github.com/torosent/pinba/internal/transport"
)

// ErrNoSender is returned by Flush when the session has nowhere to send.
var ErrNoSender = errors.New("no sender configured")

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithEnvironment sets the host introspection collaborator.
func WithEnvironment(env environment.Environment) Option {
	return func(s *Session) { s.env = env }
}

// WithLogger sets the diagnostic channel. Defaults to apex/log.
func WithLogger(l logx.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithSender sets where Flush delivers packets.
func WithSender(sender transport.Sender) Option {
	return func(s *Session) { s.sender = sender }
}

// WithRequestStart sets the request start. Defaults to the clock reading
// at New.
func WithRequestStart(t time.Time) Option {
	return func(s *Session) { s.meta.RequestStart = t }
}

// WithFlags sets flags OR-ed into every Flush; AutoFlush enables the flush
// in Close.
func WithFlags(f Flag) Option {
	return func(s *Session) { s.flags = f }
}

// WithUDPOptions tunes the UDP senders NewClient creates.
func WithUDPOptions(opts ...transport.UDPOption) Option {
	return func(s *Session) { s.udpOpts = append(s.udpOpts, opts...) }
}

// Session is the measurement context of one request.
type Session struct {
	mu      sync.Mutex
	clock   clock.Clock
	env     environment.Environment
	log     logx.Logger
	sender  transport.Sender
	udpOpts []transport.UDPOption
	flags   Flag
	store   *timer.Store
	meta    snapshot.Metadata
}

// New creates a Session whose request starts now.
func New(opts ...Option) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.env == nil {
		s.env = environment.System{}
	}
	s.log = logx.OrDefault(s.log)
	if s.meta.RequestStart.IsZero() {
		s.meta.RequestStart = s.clock.Now()
	}
	s.store = timer.NewStore(s.clock, s.log)
	return s
}

// StartTimer starts a timer tagged t.
func (s *Session) StartTimer(t tags.Tags, data timer.Data) (timer.ID, error) {
	return s.store.Start(t, data)
}

// AddTimer records an already measured span of d.
func (s *Session) AddTimer(t tags.Tags, d time.Duration, data timer.Data) (timer.ID, error) {
	return s.store.Add(t, d, data)
}

// StopTimer stops a running timer.
func (s *Session) StopTimer(id timer.ID) bool { return s.store.Stop(id) }

// DeleteTimer removes a timer from future listings and packets.
func (s *Session) DeleteTimer(id timer.ID) bool { return s.store.Delete(id) }

// MergeTimerTags merges t into the timer's tags.
func (s *Session) MergeTimerTags(id timer.ID, t tags.Tags) error { return s.store.MergeTags(id, t) }

// ReplaceTimerTags replaces the timer's tags.
func (s *Session) ReplaceTimerTags(id timer.ID, t tags.Tags) error {
	return s.store.ReplaceTags(id, t)
}

// MergeTimerData merges data into the timer's user data.
func (s *Session) MergeTimerData(id timer.ID, data timer.Data) bool {
	return s.store.MergeData(id, data)
}

// ReplaceTimerData replaces the timer's user data; nil clears it.
func (s *Session) ReplaceTimerData(id timer.ID, data timer.Data) bool {
	return s.store.ReplaceData(id, data)
}

// TimerInfo returns a view of one timer.
func (s *Session) TimerInfo(id timer.ID) (timer.View, bool) { return s.store.Get(id) }

// StopTimers stops every running timer at one instant.
func (s *Session) StopTimers() { s.store.StopAll(s.clock.Now()) }

// Timers lists live timers. OnlyStoppedTimers and OnlyRunningTimers narrow
// the listing; other bits are ignored.
func (s *Session) Timers(flags Flag) []timer.View { return s.store.List(flags.filter()) }

// SetHostname overrides the hostname read from the environment.
func (s *Session) SetHostname(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Hostname = name
}

// SetServerName sets the virtual host the request was served for.
func (s *Session) SetServerName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.ServerName = name
}

// SetScriptName overrides the script name read from the environment.
func (s *Session) SetScriptName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.ScriptName = name
}

// SetSchema sets the request schema, such as "http" or "https".
func (s *Session) SetSchema(schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Schema = schema
}

// SetRequestTime moves the request start. A start before the Unix epoch is
// clamped when the next snapshot is built.
func (s *Session) SetRequestTime(start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.RequestStart = start
	s.meta.RequestTime = nil
}

func (s *Session) setRequestDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d < 0 {
		s.log.Warnf("request_time: negative time value passed (%s), changing it to 0", d)
		d = 0
	}
	s.meta.RequestTime = &d
}

// SetRequestCount sets how many requests the packet stands for.
func (s *Session) SetRequestCount(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.RequestCount = &n
}

// SetDocumentSize sets the response size in bytes.
func (s *Session) SetDocumentSize(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.DocumentSize = &n
}

// SetMemoryPeak overrides the peak memory usage read from the environment.
func (s *Session) SetMemoryPeak(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.MemoryPeak = &n
}

// SetMemoryFootprint overrides the memory footprint read from the environment.
func (s *Session) SetMemoryFootprint(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.MemoryFootprint = &n
}

// SetStatus sets the response status reported with the request.
func (s *Session) SetStatus(status uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Status = &status
}

// SetRusage overrides the CPU times read from the environment.
func (s *Session) SetRusage(user, system time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Rusage = &snapshot.Rusage{User: user, System: system}
}

// SetTag sets a request level tag.
func (s *Session) SetTag(key string, value tags.Value) error {
	if err := tags.ValidateKey(key); err != nil {
		s.log.Warnf("tag_set(): %v", err)
		return fmt.Errorf("tag_set: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Tags.Set(key, value)
	return nil
}

// Tag returns a request level tag.
func (s *Session) Tag(key string) (tags.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Tags.Get(key)
}

// DeleteTag removes a request level tag.
func (s *Session) DeleteTag(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Tags.Delete(key)
}

// Tags returns a copy of the request level tags.
func (s *Session) Tags() tags.Tags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Tags.Clone()
}

func (s *Session) builder() snapshot.Builder {
	return snapshot.Builder{Clock: s.clock, Env: s.env, Logger: s.log}
}

// Info returns a snapshot of the request. Running timers are reported with
// their elapsed time so far and keep running.
func (s *Session) Info() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder().Build(s.store, s.meta, snapshot.Options{})
}

// Packet assembles the packet Flush would send. Unless flags carry
// FlushOnlyStoppedTimers, running timers are stopped first. A non-empty
// scriptName replaces the script name for this packet only.
func (s *Session) Packet(scriptName string, flags Flag) *packet.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packet(scriptName, flags)
}

func (s *Session) packet(scriptName string, flags Flag) *packet.Packet {
	onlyStopped := flags.Has(FlushOnlyStoppedTimers)
	snap := s.builder().Build(s.store, s.meta, snapshot.Options{
		StopRunningTimers: !onlyStopped,
	})
	if scriptName != "" {
		snap.ScriptName = scriptName
	}
	return packet.Assemble(snap, packet.Options{OnlyStoppedTimers: onlyStopped})
}

// Flush encodes the request and sends it. Session flags given with
// WithFlags are added to flags. With FlushResetData the session is reset
// after the attempt, whether or not it succeeded.
func (s *Session) Flush(ctx context.Context, scriptName string, flags Flag) error {
	flags |= s.flags

	s.mu.Lock()
	p := s.packet(scriptName, flags)
	sender := s.sender
	s.mu.Unlock()

	if flags.Has(FlushResetData) {
		defer s.Reset()
	}

	if sender == nil {
		return ErrNoSender
	}
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	if err := sender.Send(ctx, data); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	s.log.Debugf("flushed %d timers in %d bytes", len(p.TimerValue), len(data))
	return nil
}

// Reset drops every timer and request tag, clears the per-request counters
// and restarts the request at the current clock reading. Name and schema
// overrides are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reset()
	s.meta.Tags = tags.Tags{}
	s.meta.RequestStart = s.clock.Now()
	s.meta.RequestTime = nil
	s.meta.RequestCount = nil
	s.meta.DocumentSize = nil
	s.meta.MemoryPeak = nil
	s.meta.Rusage = nil
}

// Close flushes the session when it was created with AutoFlush. It is meant
// to be deferred by the code owning the request.
func (s *Session) Close(ctx context.Context) error {
	if !s.flags.Has(AutoFlush) {
		return nil
	}
	return s.Flush(ctx, "", 0)
}
