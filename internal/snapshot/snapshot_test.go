package snapshot

import (
	"testing"
	"time"

	"github.com/torosent/pinba/internal/clock"
	"github.com/torosent/pinba/internal/environment"
	"github.com/torosent/pinba/internal/logx"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/timer"
)

var start = time.Unix(1_700_000_000, 0)

func newFixture() (*timer.Store, *clock.Manual, *logx.Recorder, Builder) {
	clk := clock.NewManual(start)
	rec := &logx.Recorder{}
	env := environment.Static{
		Host:       "web1",
		Script:     "/index.php",
		Peak:       2 << 20,
		Footprint:  1 << 20,
		UserTime:   300 * time.Millisecond,
		SystemTime: 100 * time.Millisecond,
	}
	return timer.NewStore(clk, rec), clk, rec, Builder{Clock: clk, Env: env, Logger: rec}
}

func TestBuildDefaults(t *testing.T) {
	store, clk, _, b := newFixture()
	clk.Advance(250 * time.Millisecond)

	s := b.Build(store, Metadata{RequestStart: start}, Options{})

	if s.Hostname != "web1" || s.ScriptName != "/index.php" {
		t.Errorf("unexpected names %q %q", s.Hostname, s.ScriptName)
	}
	if s.ServerName != Unknown {
		t.Errorf("server name = %q, want %q", s.ServerName, Unknown)
	}
	if s.Schema != "" {
		t.Errorf("schema should default to empty, got %q", s.Schema)
	}
	if s.RequestCount != 1 || s.DocumentSize != 0 {
		t.Errorf("unexpected counters %d %d", s.RequestCount, s.DocumentSize)
	}
	if s.MemoryPeak != 2<<20 {
		t.Errorf("memory peak = %d", s.MemoryPeak)
	}
	if s.MemoryFootprint == nil || *s.MemoryFootprint != 1<<20 {
		t.Errorf("memory footprint = %v", s.MemoryFootprint)
	}
	if s.ElapsedTime != 250*time.Millisecond {
		t.Errorf("elapsed = %s", s.ElapsedTime)
	}
	if s.CPUUserTime != 300*time.Millisecond || s.CPUSystemTime != 100*time.Millisecond {
		t.Errorf("unexpected rusage %s %s", s.CPUUserTime, s.CPUSystemTime)
	}
}

func TestBuildOverrides(t *testing.T) {
	store, _, _, b := newFixture()
	peak, count, status := uint32(99), uint32(3), uint32(404)

	s := b.Build(store, Metadata{
		Hostname:     "override",
		ServerName:   "example.org",
		ScriptName:   "/api.php",
		Schema:       "https",
		RequestStart: start,
		RequestCount: &count,
		MemoryPeak:   &peak,
		Status:       &status,
		Rusage:       &Rusage{User: time.Second, System: 2 * time.Second},
	}, Options{})

	if s.Hostname != "override" || s.ServerName != "example.org" || s.ScriptName != "/api.php" || s.Schema != "https" {
		t.Errorf("overrides ignored: %+v", s)
	}
	if s.MemoryPeak != 99 || s.RequestCount != 3 || *s.Status != 404 {
		t.Errorf("numeric overrides ignored: %+v", s)
	}
	if s.CPUUserTime != time.Second || s.CPUSystemTime != 2*time.Second {
		t.Errorf("rusage override ignored: %s %s", s.CPUUserTime, s.CPUSystemTime)
	}
}

func TestBuildUnknownFallback(t *testing.T) {
	store, _, _, b := newFixture()
	b.Env = environment.Static{}
	s := b.Build(store, Metadata{}, Options{})
	if s.Hostname != Unknown || s.ServerName != Unknown || s.ScriptName != Unknown {
		t.Fatalf("expected unknown names, got %+v", s)
	}
	if s.MemoryFootprint != nil {
		t.Fatalf("expected no footprint, got %d", *s.MemoryFootprint)
	}
}

func TestBuildSharedNow(t *testing.T) {
	store, clk, _, b := newFixture()
	store.Start(tags.Of("t", "a"), nil)
	clk.Advance(time.Second)
	store.Start(tags.Of("t", "b"), nil)
	clk.Advance(time.Second)

	s := b.Build(store, Metadata{RequestStart: start}, Options{})
	if len(s.Timers) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(s.Timers))
	}
	if s.Timers[0].Value != 2*time.Second || s.Timers[1].Value != time.Second {
		t.Fatalf("timers not resolved against one instant: %s %s", s.Timers[0].Value, s.Timers[1].Value)
	}
	if !s.Timers[0].Started() {
		t.Fatal("Build without StopRunningTimers must not stop timers")
	}
	if running := store.List(timer.OnlyRunning); len(running) != 2 {
		t.Fatalf("store mutated: %d running", len(running))
	}
}

func TestBuildStopsRunningTimers(t *testing.T) {
	store, clk, _, b := newFixture()
	id, _ := store.Start(tags.Of("t", "a"), nil)
	clk.Advance(time.Second)

	s := b.Build(store, Metadata{RequestStart: start}, Options{StopRunningTimers: true})
	if s.Timers[0].Started() {
		t.Fatal("snapshot view should be stopped")
	}
	clk.Advance(time.Hour)
	v, _ := store.Get(id)
	if v.Started() || v.Value != time.Second {
		t.Fatalf("store timer not stopped at snapshot instant: %+v", v)
	}
}

func TestBuildOnlyStoppedFilter(t *testing.T) {
	store, _, _, b := newFixture()
	store.Start(tags.Of("t", "running"), nil)
	store.Add(tags.Of("t", "stopped"), time.Second, nil)

	s := b.Build(store, Metadata{RequestStart: start}, Options{Filter: timer.OnlyStopped})
	if len(s.Timers) != 1 || s.Timers[0].Started() {
		t.Fatalf("unexpected timers %+v", s.Timers)
	}
	if store.Len() != 2 {
		t.Fatal("filtered timers must stay in the store")
	}
}

func TestBuildNegativeRequestStartClamped(t *testing.T) {
	store, _, rec, b := newFixture()
	s := b.Build(store, Metadata{RequestStart: time.Unix(-5, 0)}, Options{})
	if s.ElapsedTime != start.Sub(time.Unix(0, 0)) {
		t.Fatalf("expected elapsed since epoch, got %s", s.ElapsedTime)
	}
	if len(rec.Warnings()) != 1 {
		t.Fatalf("expected a warning, got %v", rec.Warnings())
	}
}

func TestBuildCopiesTags(t *testing.T) {
	store, _, _, b := newFixture()
	meta := Metadata{Tags: tags.Of("app", "shop")}
	s := b.Build(store, meta, Options{})
	s.Tags.Set("app", tags.String("mutated"))
	if v, _ := meta.Tags.Get("app"); v.String() != "shop" {
		t.Fatal("snapshot shares tag storage with metadata")
	}
}

func TestBuildExplicitRequestTime(t *testing.T) {
	store, clk, _, b := newFixture()
	clk.Advance(time.Minute)
	d := 42 * time.Millisecond

	s := b.Build(store, Metadata{RequestStart: start, RequestTime: &d}, Options{})
	if s.ElapsedTime != d {
		t.Fatalf("elapsed = %s, want %s", s.ElapsedTime, d)
	}
}
