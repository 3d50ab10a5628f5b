// Package threshold evaluates pass/fail assertions against bench results,
// for example "packet_duration:p99 < 250" (microseconds).
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/pinba/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // packet_duration, packet_failed or packets
	Aggregate string  // p50, p90, p95, p99, avg, min, max, rate, count
	Operator  string  // <, <=, >, >=, ==
	Value     float64 // the threshold value to compare against
	Raw       string  // original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

type extractor func(metrics.Stats) float64

// metricTable maps metric and aggregate names to the Stats value they read.
var metricTable = map[string]map[string]extractor{
	"packet_duration": {
		"p50": func(s metrics.Stats) float64 { return s.P50LatencyUs },
		"p90": func(s metrics.Stats) float64 { return s.P90LatencyUs },
		"p95": func(s metrics.Stats) float64 { return s.P95LatencyUs },
		"p99": func(s metrics.Stats) float64 { return s.P99LatencyUs },
		"avg": func(s metrics.Stats) float64 { return s.MeanLatencyUs },
		"min": func(s metrics.Stats) float64 { return s.MinLatencyUs },
		"max": func(s metrics.Stats) float64 { return s.MaxLatencyUs },
	},
	"packet_failed": {
		"count": func(s metrics.Stats) float64 { return float64(s.Failures) },
		"rate": func(s metrics.Stats) float64 {
			if s.Total == 0 {
				return 0
			}
			return float64(s.Failures) / float64(s.Total)
		},
	},
	"packets": {
		"count": func(s metrics.Stats) float64 { return float64(s.Total) },
		"rate":  func(s metrics.Stats) float64 { return s.RequestsPerSec },
	},
}

var pattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*(<=|>=|==|<|>)\s*([0-9.]+)$`)

// Parse parses a threshold string. Supported forms:
//
//	packet_duration:p95 < 200   latency percentile in microseconds
//	packet_duration:avg < 50    average latency in microseconds
//	packet_failed:rate < 0.01   failure ratio
//	packet_failed:count == 0    failure count
//	packets:rate > 10000        packets per second
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'packet_duration:p99 < 250')", s)
	}

	value, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[4], err)
	}

	aggregates, ok := metricTable[matches[1]]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: packet_duration, packet_failed, packets)", matches[1])
	}
	if _, ok := aggregates[matches[2]]; !ok {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s", matches[2], matches[1])
	}

	return Threshold{
		Metric:    matches[1],
		Aggregate: matches[2],
		Operator:  matches[3],
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings, reporting every
// malformed one.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var problems []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

// Evaluate checks every threshold against stats.
func Evaluate(thresholds []Threshold, stats metrics.Stats) []Result {
	if len(thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// Failed returns the number of results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	extract, ok := metricTable[t.Metric][t.Aggregate]
	if !ok {
		return Result{Threshold: t, Message: fmt.Sprintf("error: unsupported %s:%s", t.Metric, t.Aggregate)}
	}
	actual := extract(stats)
	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
