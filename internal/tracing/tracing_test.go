package tracing_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/pinba/internal/logx"
	"github.com/torosent/pinba/internal/session"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/timer"
	"github.com/torosent/pinba/internal/tracing"
)

// storeRecorder adapts *timer.Store to tracing.TimerRecorder.
type storeRecorder struct{ *timer.Store }

func (r storeRecorder) AddTimer(t tags.Tags, d time.Duration, data timer.Data) (timer.ID, error) {
	return r.Add(t, d, data)
}

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func TestProviderRecordsSpansAsTimers(t *testing.T) {
	store := timer.NewStore(nil, logx.Discard)
	p := tracing.NewProvider(storeRecorder{store})
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	start := time.Unix(1_700_000_000, 0)
	_, span := p.Tracer().Start(context.Background(), "db.query",
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("db.system", "mysql"),
			attribute.Int("rows", 3),
			attribute.Bool("cached", false),
			attribute.StringSlice("ignored", []string{"a"}),
		),
	)
	span.End(trace.WithTimestamp(start.Add(250 * time.Millisecond)))

	views := store.List(timer.All)
	if len(views) != 1 {
		t.Fatalf("got %d timers, want 1", len(views))
	}
	v := views[0]
	if v.Value != 250*time.Millisecond || v.State != timer.Stopped || v.HitCount != 1 {
		t.Errorf("unexpected timer %+v", v)
	}
	want := map[string]string{"span": "db.query", "db.system": "mysql", "rows": "3", "cached": ""}
	got := v.Tags.Map()
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("tag %s = %q, want %q", k, got[k], w)
		}
	}
	if id, _ := v.Data["trace_id"].(string); len(id) != 32 {
		t.Errorf("trace_id = %v", v.Data["trace_id"])
	}
}

func TestExporterAttributeAllowList(t *testing.T) {
	store := timer.NewStore(nil, logx.Discard)
	p := tracing.NewProvider(storeRecorder{store}, tracing.WithAttributes("op"))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer().Start(context.Background(), "cache",
		trace.WithAttributes(attribute.String("op", "get"), attribute.String("key", "user:1")))
	tracing.EndSpan(span, errors.New("miss"))

	got := store.List(timer.All)[0].Tags.Map()
	if got["op"] != "get" || got["status"] != "error" {
		t.Errorf("tags = %v", got)
	}
	if _, ok := got["key"]; ok {
		t.Errorf("attribute outside the allow list was copied: %v", got)
	}
}

func TestExporterFeedsSession(t *testing.T) {
	s := session.New(session.WithLogger(logx.Discard))
	p := tracing.NewProvider(s)

	_, span := p.Tracer().Start(context.Background(), "render")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	timers := s.Timers(session.OnlyStoppedTimers)
	if len(timers) != 1 {
		t.Fatalf("got %d timers, want 1", len(timers))
	}
	if v, _ := timers[0].Tags.Get(tracing.SpanTag); v.String() != "render" {
		t.Errorf("span tag = %q", v.String())
	}
}

func TestExporterIgnoresSpansAfterShutdown(t *testing.T) {
	store := timer.NewStore(nil, logx.Discard)
	e := tracing.NewExporter(storeRecorder{store})
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	stub := tracetest.SpanStub{Name: "late", StartTime: time.Now(), EndTime: time.Now()}
	if err := e.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}); err != nil {
		t.Fatalf("ExportSpans() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("spans exported after shutdown were recorded")
	}
}

func TestExporterSkipsNumericAttributeKeys(t *testing.T) {
	store := timer.NewStore(nil, logx.Discard)
	e := tracing.NewExporter(storeRecorder{store})

	stub := tracetest.SpanStub{
		Name:       "job",
		StartTime:  time.Unix(10, 0),
		EndTime:    time.Unix(12, 0),
		Attributes: []attribute.KeyValue{attribute.String("42", "x"), attribute.Float64("ratio", 0.5)},
	}
	if err := e.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}); err != nil {
		t.Fatalf("ExportSpans() error = %v", err)
	}
	v := store.List(timer.All)[0]
	if v.Value != 2*time.Second {
		t.Errorf("value = %s, want 2s", v.Value)
	}
	got := v.Tags.Map()
	if _, ok := got["42"]; ok || got["ratio"] != "0.5" {
		t.Errorf("tags = %v", got)
	}
}

type otlpCollector struct {
	mu       sync.Mutex
	paths    []string
	payloads [][]byte
}

func (c *otlpCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.payloads = append(c.payloads, body)
	c.mu.Unlock()
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
}

func TestInitExportsToOTLPHTTP(t *testing.T) {
	collector := &otlpCollector{}
	srv := httptest.NewServer(collector)
	defer srv.Close()

	store := timer.NewStore(nil, logx.Discard)
	p, err := tracing.Init(context.Background(), storeRecorder{store}, tracing.OTLPConfig{
		Endpoint:    srv.URL,
		Protocol:    "http",
		ServiceName: "pinba-test",
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := p.Tracer().Start(context.Background(), "exec make")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("got %d timers, want 1", store.Len())
	}
	collector.mu.Lock()
	defer collector.mu.Unlock()
	if len(collector.paths) == 0 {
		t.Fatal("no spans reached the OTLP endpoint")
	}
	if collector.paths[0] != "/v1/traces" {
		t.Errorf("path = %q, want /v1/traces", collector.paths[0])
	}
	body := bytes.Join(collector.payloads, nil)
	for _, want := range []string{"exec make", "pinba-test"} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("payload does not carry %q", want)
		}
	}
}

func TestInitWithoutEndpointRecordsTimersOnly(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	store := timer.NewStore(nil, logx.Discard)
	p, err := tracing.Init(context.Background(), storeRecorder{store}, tracing.OTLPConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "job")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("got %d timers, want 1", store.Len())
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	store := timer.NewStore(nil, logx.Discard)
	_, err := tracing.Init(context.Background(), storeRecorder{store}, tracing.OTLPConfig{
		Endpoint: "127.0.0.1:4317",
		Protocol: "thrift",
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported OTLP protocol") {
		t.Fatalf("Init() error = %v, want unsupported protocol", err)
	}
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
	p.Install()
	// Tracer() on nil should return no-op, not panic
	tracer := p.Tracer()
	_, span := tracer.Start(context.Background(), "test")
	span.End()
}

func TestStartCommandSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracing.StartCommandSpan(context.Background(), tracer, "make", []string{"build"})
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "exec make" {
		t.Errorf("span name = %q, want exec make", spans[0].Name)
	}
	found := false
	for _, attr := range spans[0].Attributes {
		if string(attr.Key) == "process.executable.name" && attr.Value.AsString() == "make" {
			found = true
		}
	}
	if !found {
		t.Errorf("process.executable.name attribute not found or incorrect")
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracer.Start(context.Background(), "test-error")
	tracing.EndSpan(span, context.DeadlineExceeded)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status code = %d, want %d (Error)", spans[0].Status.Code, codes.Error)
	}
}

func TestEndSpanOk(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracer.Start(context.Background(), "test-ok")
	tracing.EndSpan(span, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("span status code = %d, want %d (Ok)", spans[0].Status.Code, codes.Ok)
	}
}

func TestInjectEnv(t *testing.T) {
	_, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "test-inject")
	defer span.End()

	env := tracing.InjectEnv(ctx, []string{"PATH=/bin"})
	var traceparent string
	for _, kv := range env {
		if strings.HasPrefix(kv, "TRACEPARENT=") {
			traceparent = strings.TrimPrefix(kv, "TRACEPARENT=")
		}
	}
	// traceparent format: version-traceid-spanid-flags
	if len(traceparent) < 55 {
		t.Errorf("TRACEPARENT not injected or too short: %q", traceparent)
	}
	if env[0] != "PATH=/bin" {
		t.Errorf("existing environment modified: %v", env)
	}
}

func TestInjectEnvNoSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
	))
	env := tracing.InjectEnv(context.Background(), nil)
	if len(env) != 0 {
		t.Errorf("expected no variables without a span, got %v", env)
	}
}
