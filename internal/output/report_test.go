package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pinba/internal/metrics"
	"github.com/torosent/pinba/internal/threshold"
)

func TestPrintReportBasic(t *testing.T) {
	stats := metrics.Stats{
		Total:          100,
		Successes:      95,
		Failures:       5,
		Bytes:          9500,
		RequestsPerSec: 50.0,
		P95Latency:     3 * time.Microsecond,
		Duration:       2 * time.Second,
	}

	var buf bytes.Buffer
	PrintReport(&buf, stats)

	output := buf.String()
	for _, want := range []string{"Total Packets:     100", "Successful:        95", "Bytes:             9500", "Packets/sec:       50.00", "P95:             3µs"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Errors:") {
		t.Error("did not expect an errors section without failures")
	}
}

func TestPrintReportErrorsSorted(t *testing.T) {
	stats := metrics.Stats{
		Total:    6,
		Failures: 6,
		Errors: map[string]int{
			"Network error": 2,
			"short write":   4,
		},
	}

	var buf bytes.Buffer
	PrintReport(&buf, stats)

	output := buf.String()
	short := strings.Index(output, "  short write: 4")
	network := strings.Index(output, "  Network error: 2")
	if short < 0 || network < 0 {
		t.Fatalf("missing error rows:\n%s", output)
	}
	if short > network {
		t.Error("expected errors sorted by descending count")
	}
}

func TestPrintJSONReport(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordRequest(10*time.Microsecond, 80, nil)

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, c.Stats(time.Second)); err != nil {
		t.Fatalf("PrintJSONReport: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["total"].(float64) != 1 || decoded["bytes"].(float64) != 80 {
		t.Fatalf("unexpected report %v", decoded)
	}
}

func TestPrintThresholdResults(t *testing.T) {
	ths, err := threshold.ParseMultiple([]string{"packets:count > 1", "packet_failed:count == 0"})
	if err != nil {
		t.Fatalf("ParseMultiple: %v", err)
	}
	results := threshold.Evaluate(ths, metrics.Stats{Total: 1})

	var buf bytes.Buffer
	PrintThresholdResults(&buf, results)
	out := buf.String()
	if !strings.Contains(out, "✗ packets:count > 1") || !strings.Contains(out, "✓ packet_failed:count == 0") {
		t.Fatalf("unexpected threshold output:\n%s", out)
	}
	if !strings.Contains(out, "1/2 passed") {
		t.Fatalf("missing summary:\n%s", out)
	}

	buf.Reset()
	PrintThresholdResults(&buf, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output without results, got %q", buf.String())
	}
}
