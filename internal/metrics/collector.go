package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/pinba/internal/transport"
	"github.com/torosent/pinba/internal/wire"
)

// Collector records per-packet metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	bytes        int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Bytes          int64         `json:"bytes"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P95Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"packets_per_sec"`

	// JSON-friendly microsecond fields; packet encoding rarely reaches a millisecond.
	MinLatencyUs  float64        `json:"min_latency_us"`
	MaxLatencyUs  float64        `json:"max_latency_us"`
	MeanLatencyUs float64        `json:"mean_latency_us"`
	P50LatencyUs  float64        `json:"p50_latency_us"`
	P90LatencyUs  float64        `json:"p90_latency_us"`
	P95LatencyUs  float64        `json:"p95_latency_us"`
	P99LatencyUs  float64        `json:"p99_latency_us"`
	DurationMs    float64        `json:"duration_ms"`
	Errors        map[string]int `json:"errors,omitempty"`
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	// Track latencies from 1ns up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, int64(60*time.Second), 3)
	return &Collector{
		hist:         h,
		errorsByType: make(map[string]int64),
	}
}

// RecordRequest records one packet: how long it took, how many bytes it
// produced and whether it failed.
func (c *Collector) RecordRequest(latency time.Duration, size int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency < 0 {
		latency = 0
	}
	v := int64(latency)
	if v < c.hist.LowestTrackableValue() {
		v = c.hist.LowestTrackableValue()
	}
	if v > c.hist.HighestTrackableValue() {
		v = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(v)
	c.sumLatency += latency

	if c.successes+c.failures == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if err == nil {
		c.successes++
		c.bytes += int64(size)
		return
	}
	c.failures++
	c.errorsByType[errorLabel(err)]++
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		Bytes:      c.bytes,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50))
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90))
		stats.P95Latency = time.Duration(c.hist.ValueAtQuantile(95))
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99))
	}

	stats.MinLatencyUs = micros(stats.MinLatency)
	stats.MaxLatencyUs = micros(stats.MaxLatency)
	stats.MeanLatencyUs = micros(stats.MeanLatency)
	stats.P50LatencyUs = micros(stats.P50Latency)
	stats.P90LatencyUs = micros(stats.P90Latency)
	stats.P95LatencyUs = micros(stats.P95Latency)
	stats.P99LatencyUs = micros(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

// Reset discards everything recorded so far.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
	c.successes, c.failures, c.bytes = 0, 0, 0
	c.minLatency, c.maxLatency, c.sumLatency = 0, 0, 0
	c.errorsByType = make(map[string]int64)
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}

var sentinelLabels = []struct {
	err   error
	label string
}{
	{context.DeadlineExceeded, "Context deadline exceeded"},
	{context.Canceled, "Context canceled"},
	{os.ErrDeadlineExceeded, "I/O timeout"},
	{net.ErrClosed, "Use of closed connection"},
	{wire.ErrContract, "Encoding error"},
	{transport.ErrShortWrite, "Short write"},
}

// maxLabelRunes bounds labels taken from error messages.
const maxLabelRunes = 40

// errorLabel names err by a known sentinel, or by the innermost error of its
// fmt.Errorf wrappers. Plain errors.New values are named by their message.
func errorLabel(err error) string {
	for _, s := range sentinelLabels {
		if errors.Is(err, s.err) {
			return s.label
		}
	}
	typeName := fmt.Sprintf("%T", err)
	for typeName == "*fmt.wrapError" {
		err = errors.Unwrap(err)
		typeName = fmt.Sprintf("%T", err)
	}
	if typeName == "*errors.errorString" {
		msg := err.Error()
		if r := []rune(msg); len(r) > maxLabelRunes {
			msg = string(r[:maxLabelRunes])
		}
		return msg
	}
	return FriendlyErrorName(typeName)
}
