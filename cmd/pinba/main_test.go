package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/torosent/pinba/internal/packet"
	"github.com/torosent/pinba/internal/tags"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc
}

func receive(t *testing.T, pc net.PacketConn) []byte {
	t.Helper()
	buf := make([]byte, 65535)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("no datagram received: %v", err)
	}
	return buf[:n]
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		raw     string
		key     string
		value   string
		wantErr bool
	}{
		{raw: "app=shop", key: "app", value: "shop"},
		{raw: " env = prod ", key: "env", value: "prod"},
		{raw: "empty=", key: "empty", value: ""},
		{raw: "url=a=b", key: "url", value: "a=b"},
		{raw: "noequals", wantErr: true},
		{raw: "=value", wantErr: true},
		{raw: "10=x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			key, value, err := parseTag(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTag(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if key != tt.key || value.String() != tt.value {
				t.Fatalf("parseTag(%q) = %q=%q", tt.raw, key, value.String())
			}
		})
	}
}

func TestParseTimer(t *testing.T) {
	ti, err := parseTimer("group=db,op=select:1.5:3")
	if err != nil {
		t.Fatalf("parseTimer: %v", err)
	}
	if !ti.Tags.Equal(tags.Of("group", "db", "op", "select")) {
		t.Errorf("unexpected tags %s", ti.Tags)
	}
	if ti.Value != 1500*time.Millisecond || ti.Hits != 3 {
		t.Errorf("unexpected value %s hits %d", ti.Value, ti.Hits)
	}

	ti, err = parseTimer("group=db:0.25")
	if err != nil {
		t.Fatalf("parseTimer: %v", err)
	}
	if ti.Hits != 1 {
		t.Errorf("expected default hit count 1, got %d", ti.Hits)
	}

	for _, bad := range []string{"group=db", "group=db:x", "group=db:1:x", "group:1", "a=b:1:2:3"} {
		if _, err := parseTimer(bad); err == nil {
			t.Errorf("parseTimer(%q) expected error", bad)
		}
	}
}

func TestParseJSONRequest(t *testing.T) {
	doc := `{
		"tags": {"zone": "eu", "app": "shop", "beta": true, "build": 42, "ratio": 0.5},
		"timers": [
			{"tags": {"group": "db"}, "value": 1.5, "hits": 2},
			{"tags": {"group": "cache"}, "value": 0.25}
		],
		"request_time": 0.2,
		"status": 404,
		"document_size": 512
	}`
	req, err := parseJSONRequest([]byte(doc))
	if err != nil {
		t.Fatalf("parseJSONRequest: %v", err)
	}

	var keys []string
	for _, p := range req.Tags.Pairs() {
		keys = append(keys, p.Key)
	}
	if diff := cmp.Diff([]string{"zone", "app", "beta", "build", "ratio"}, keys); diff != "" {
		t.Errorf("tag order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"zone": "eu", "app": "shop", "beta": "1", "build": "42", "ratio": "0.5"}, req.Tags.Map()); diff != "" {
		t.Errorf("tag values (-want +got):\n%s", diff)
	}
	if v, _ := req.Tags.Get("build"); v.Kind() != tags.KindInt {
		t.Errorf("build should be an integer tag, got %s", v.Kind())
	}

	if len(req.Timers) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(req.Timers))
	}
	if req.Timers[0].Value != 1500*time.Millisecond || req.Timers[0].Hits != 2 {
		t.Errorf("unexpected first timer %+v", req.Timers[0])
	}
	if req.Timers[1].Hits != 1 {
		t.Errorf("expected default hits, got %d", req.Timers[1].Hits)
	}
	if req.RequestTime == nil || *req.RequestTime != 200*time.Millisecond {
		t.Errorf("unexpected request time %v", req.RequestTime)
	}
	if req.Status == nil || *req.Status != 404 || req.DocumentSize == nil || *req.DocumentSize != 512 {
		t.Errorf("unexpected metadata %+v", req)
	}
	if req.MemoryPeak != nil {
		t.Errorf("memory peak should be unset")
	}
}

func TestParseJSONRequestErrors(t *testing.T) {
	for _, doc := range []string{
		`{"tags": `,
		`{"tags": ["a"]}`,
		`{"tags": {"a": {"b": 1}}}`,
		`{"timers": [{"tags": {"a": [1]}, "value": 1}]}`,
	} {
		if _, err := parseJSONRequest([]byte(doc)); err == nil {
			t.Errorf("expected error for %s", doc)
		}
	}
}

func TestSchemaCommand(t *testing.T) {
	out, _, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, want := range []string{"package Pinba;", "message Request", "hostname = 1;", "timer_ru_stime = 23;"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in schema output:\n%s", want, out)
		}
	}
}

func TestDumpCommandJSON(t *testing.T) {
	out, _, err := execute(t, "dump", "--format", "json",
		"--hostname", "web1", "--script-name", "/index.php",
		"--tag", "app=shop",
		"--timer", "env=prod:2", "--timer", "env=prod:3",
	)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}

	var p packet.Packet
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if p.Hostname != "web1" || p.ScriptName != "/index.php" {
		t.Errorf("unexpected names %q %q", p.Hostname, p.ScriptName)
	}
	if diff := cmp.Diff([]uint32{2}, p.TimerHitCount); diff != "" {
		t.Errorf("hit counts (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{5}, p.TimerValue); diff != "" {
		t.Errorf("timer values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"env", "prod", "app", "shop"}, p.Dictionary); diff != "" {
		t.Errorf("dictionary (-want +got):\n%s", diff)
	}
}

func TestDumpCommandRejectsFormat(t *testing.T) {
	if _, _, err := execute(t, "dump", "--format", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestSendCommand(t *testing.T) {
	pc := listen(t)
	_, _, err := execute(t, "send", "-s", pc.LocalAddr().String(),
		"--script-name", "/checkout", "--timer", "group=db:0.5")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	got := receive(t, pc)
	for _, want := range []string{"/checkout", "group", "db"} {
		if !bytes.Contains(got, []byte(want)) {
			t.Errorf("datagram lacks %q", want)
		}
	}
}

func TestSendCommandInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "send", "--timeout=-1s", "--concurrency", "0")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "timeout") || !strings.Contains(err.Error(), "concurrency") {
		t.Fatalf("expected every issue listed, got %v", err)
	}
}

func TestRunCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	pc := listen(t)
	out, _, err := execute(t, "run", "-s", pc.LocalAddr().String(), "--", "sh", "-c", "echo $TRACEPARENT; exit 3")

	var exitErr *exitCodeError
	if !errors.As(err, &exitErr) || exitErr.code != 3 {
		t.Fatalf("expected exit status 3, got %v", err)
	}
	if !strings.HasPrefix(out, "00-") {
		t.Errorf("expected trace context in child environment, got %q", out)
	}

	got := receive(t, pc)
	for _, want := range []string{"exec", "sh", "exec sh", "process.exit.code"} {
		if !bytes.Contains(got, []byte(want)) {
			t.Errorf("datagram lacks %q", want)
		}
	}
}

func TestRunCommandExportsParentSpan(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	var (
		mu   sync.Mutex
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = append(body, b...)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pc := listen(t)
	out, _, err := execute(t, "run", "-s", pc.LocalAddr().String(),
		"--otlp-endpoint", srv.URL, "--otlp-protocol", "http",
		"--", "sh", "-c", "echo $TRACEPARENT")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	receive(t, pc)

	parts := strings.Split(strings.TrimSpace(out), "-")
	if len(parts) != 4 {
		t.Fatalf("unexpected TRACEPARENT %q", out)
	}
	spanID, err := hex.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("span id %q: %v", parts[2], err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !bytes.Contains(body, spanID) {
		t.Error("the span handed to the child was not exported over OTLP")
	}
	if !bytes.Contains(body, []byte("exec sh")) {
		t.Error("OTLP payload lacks the command span name")
	}
}

func TestBenchCommandJSON(t *testing.T) {
	out, _, err := execute(t, "bench", "-t", "20", "-c", "2", "--json-output")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	var stats map[string]interface{}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if stats["total"].(float64) != 20 || stats["failures"].(float64) != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
	if stats["bytes"].(float64) <= 0 {
		t.Fatalf("expected encoded bytes, got %v", stats["bytes"])
	}
}

func TestBenchCommandThresholds(t *testing.T) {
	out, _, err := execute(t, "bench", "-t", "5", "--threshold", "packets:count == 5", "--threshold", "packet_failed:count > 0")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 thresholds failed") {
		t.Fatalf("expected one failing threshold, got %v", err)
	}
	if !strings.Contains(out, "✓ packets:count == 5") {
		t.Fatalf("missing threshold report:\n%s", out)
	}

	if _, _, err := execute(t, "bench", "-t", "1", "--threshold", "nonsense"); err == nil {
		t.Fatal("expected parse error")
	}
}
