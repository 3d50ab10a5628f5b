// Package timer holds the timers of one measurement window.
//
// A [Store] owns the timer state machine:
//
//	Running --Stop--> Stopped
//	Running|Stopped --Delete--> Deleted (terminal)
//
// Deleted timers are excluded from List and Resolve but still answer Get
// until the store is reset.
package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/torosent/pinba/internal/clock"
	"github.com/torosent/pinba/internal/logx"
	"github.com/torosent/pinba/internal/tags"
)

var (
	// ErrNotFound is returned for unknown or deleted timer ids.
	ErrNotFound = errors.New("timer not found")

	// ErrInvalidHitCount is returned for non-positive hit counts.
	ErrInvalidHitCount = errors.New("hit count must be positive")
)

// Store is a mutex guarded table of timers.
type Store struct {
	mu     sync.Mutex
	clock  clock.Clock
	log    logx.Logger
	timers []*entry
}

// NewStore creates a Store reading time from c and reporting soft failures
// to log. Nil arguments select the system clock and the default logger.
func NewStore(c clock.Clock, log logx.Logger) *Store {
	if c == nil {
		c = clock.System{}
	}
	return &Store{clock: c, log: logx.OrDefault(log)}
}

// Start creates a running timer.
func (s *Store) Start(t tags.Tags, data Data) (ID, error) {
	if err := s.validate("timer_start", t); err != nil {
		return -1, err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(&entry{
		tags:     t.Clone(),
		start:    now,
		state:    Running,
		hitCount: 1,
		data:     data.clone(),
	}), nil
}

// Add creates a stopped timer holding d. A negative d is clamped to zero.
func (s *Store) Add(t tags.Tags, d time.Duration, data Data) (ID, error) {
	return s.AddHits(t, d, 1, data)
}

// AddHits is Add with an explicit hit count.
func (s *Store) AddHits(t tags.Tags, d time.Duration, hits int, data Data) (ID, error) {
	if err := s.validate("timer_add", t); err != nil {
		return -1, err
	}
	if err := s.validateHits("timer_add", hits); err != nil {
		return -1, err
	}
	d = s.clampDuration("timer_add", d)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(&entry{
		tags:     t.Clone(),
		value:    d,
		state:    Stopped,
		hitCount: hits,
		data:     data.clone(),
	}), nil
}

// Accumulate adds d and hits to the live stopped timer whose tags have the
// same identity as t, or creates one.
func (s *Store) Accumulate(t tags.Tags, d time.Duration, hits int) (ID, error) {
	return s.upsert("add_timer", t, d, hits, func(e *entry) {
		e.value += d
		e.hitCount += hits
	})
}

// Set overwrites the value and hit count of the live stopped timer whose
// tags have the same identity as t, or creates one.
func (s *Store) Set(t tags.Tags, d time.Duration, hits int) (ID, error) {
	return s.upsert("set_timer", t, d, hits, func(e *entry) {
		e.value = d
		e.hitCount = hits
	})
}

func (s *Store) upsert(op string, t tags.Tags, d time.Duration, hits int, update func(*entry)) (ID, error) {
	if err := s.validate(op, t); err != nil {
		return -1, err
	}
	if err := s.validateHits(op, hits); err != nil {
		return -1, err
	}
	d = s.clampDuration(op, d)
	key := t.Identity()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.timers {
		if e.state == Stopped && e.tags.Identity() == key {
			update(e)
			return ID(i), nil
		}
	}
	return s.insert(&entry{
		tags:     t.Clone(),
		value:    d,
		state:    Stopped,
		hitCount: hits,
	}), nil
}

// Stop stops a running timer. It returns false for stopped, deleted and
// unknown timers, leaving their value untouched.
func (s *Store) Stop(id ID) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(id)
	if e == nil || e.state != Running {
		return false
	}
	e.stop(now)
	return true
}

// StopAll stops every running timer using the shared timestamp now.
func (s *Store) StopAll(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAll(now)
}

func (s *Store) stopAll(now time.Time) {
	for _, e := range s.timers {
		if e.state == Running {
			e.stop(now)
		}
	}
}

// Delete marks a timer deleted. A running timer keeps the time elapsed so
// far as its value.
func (s *Store) Delete(id ID) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(id)
	if e == nil || e.state == Deleted {
		return false
	}
	if e.state == Running {
		e.value = elapsed(e.start, now)
	}
	e.state = Deleted
	return true
}

// MergeTags merges t into the timer tags; keys of t override.
func (s *Store) MergeTags(id ID, t tags.Tags) error {
	return s.updateTags("timer_tags_merge", id, func(old tags.Tags) tags.Tags {
		return old.Merge(t)
	})
}

// ReplaceTags replaces the timer tags with t.
func (s *Store) ReplaceTags(id ID, t tags.Tags) error {
	return s.updateTags("timer_tags_replace", id, func(tags.Tags) tags.Tags {
		return t.Clone()
	})
}

func (s *Store) updateTags(op string, id ID, next func(tags.Tags) tags.Tags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(id)
	if e == nil || e.state == Deleted {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	updated := next(e.tags)
	if err := updated.ValidateTimer(); err != nil {
		s.log.Warnf("%s(): %v", op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	e.tags = updated
	return nil
}

// MergeData merges data into the timer user data; keys of data override.
func (s *Store) MergeData(id ID, data Data) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(id)
	if e == nil || e.state == Deleted {
		return false
	}
	if e.data == nil && len(data) > 0 {
		e.data = make(Data, len(data))
	}
	for k, v := range data {
		e.data[k] = v
	}
	return true
}

// ReplaceData replaces the timer user data. A nil data clears it.
func (s *Store) ReplaceData(id ID, data Data) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(id)
	if e == nil || e.state == Deleted {
		return false
	}
	e.data = data.clone()
	return true
}

// Get returns a view of the timer, resolving a running timer against the
// clock. Deleted timers are still reported with State Deleted.
func (s *Store) Get(id ID) (View, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(id)
	if e == nil {
		return View{}, false
	}
	return e.view(id, now), true
}

// List returns views of the live timers matching filter, resolved against
// a single clock reading.
func (s *Store) List(filter Filter) []View {
	return s.Resolve(s.clock.Now(), filter)
}

// Resolve returns views of the live timers matching filter, resolving
// running timers against now. The store is not mutated.
func (s *Store) Resolve(now time.Time, filter Filter) []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(now, filter)
}

// StopAndResolve stops every running timer at now and returns the views
// matching filter in one critical section.
func (s *Store) StopAndResolve(now time.Time, filter Filter) []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAll(now)
	return s.resolve(now, filter)
}

func (s *Store) resolve(now time.Time, filter Filter) []View {
	out := make([]View, 0, len(s.timers))
	for i, e := range s.timers {
		if filter.match(e.state) {
			out = append(out, e.view(ID(i), now))
		}
	}
	return out
}

// Len returns the number of live timers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.timers {
		if e.state != Deleted {
			n++
		}
	}
	return n
}

// Reset drops every timer, deleted ones included.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = nil
}

func (s *Store) insert(e *entry) ID {
	s.timers = append(s.timers, e)
	return ID(len(s.timers) - 1)
}

func (s *Store) lookup(id ID) *entry {
	if id < 0 || int(id) >= len(s.timers) {
		return nil
	}
	return s.timers[id]
}

func (s *Store) validate(op string, t tags.Tags) error {
	if err := t.ValidateTimer(); err != nil {
		s.log.Warnf("%s(): %v", op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) validateHits(op string, hits int) error {
	if hits <= 0 {
		s.log.Warnf("%s(): hit_count must be greater than 0 (%d was passed)", op, hits)
		return fmt.Errorf("%s: %w: %d", op, ErrInvalidHitCount, hits)
	}
	return nil
}

func (s *Store) clampDuration(op string, d time.Duration) time.Duration {
	if d < 0 {
		s.log.Warnf("%s(): negative time value passed (%s), changing it to 0", op, d)
		return 0
	}
	return d
}
