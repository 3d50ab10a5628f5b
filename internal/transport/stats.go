package transport

import (
	"sync"
	"time"
)

// Stats counts packets handed to a sender.
type Stats struct {
	mu          sync.Mutex
	packetsSent int64
	bytesSent   int64
	errors      int64
	lastSend    time.Time
}

func (s *Stats) recordSent(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsSent++
	s.bytesSent += int64(n)
	s.lastSend = time.Now()
}

func (s *Stats) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

// StatsSnapshot is a consistent copy of Stats.
type StatsSnapshot struct {
	PacketsSent int64
	BytesSent   int64
	Errors      int64
	LastSend    time.Time
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		PacketsSent: s.packetsSent,
		BytesSent:   s.bytesSent,
		Errors:      s.errors,
		LastSend:    s.lastSend,
	}
}

// Reset zeroes the counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsSent, s.bytesSent, s.errors = 0, 0, 0
	s.lastSend = time.Time{}
}
