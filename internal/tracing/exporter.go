package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/torosent/pinba/internal/logx"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/timer"
)

// SpanTag is the timer tag holding the span name.
const SpanTag = "span"

// TimerRecorder receives one stopped timer per exported span.
// *session.Session satisfies it.
type TimerRecorder interface {
	AddTimer(t tags.Tags, d time.Duration, data timer.Data) (timer.ID, error)
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithAttributes limits the span attributes copied into timer tags to keys.
// By default every scalar attribute is copied.
func WithAttributes(keys ...attribute.Key) ExporterOption {
	return func(e *Exporter) {
		e.allow = make(map[attribute.Key]bool, len(keys))
		for _, k := range keys {
			e.allow[k] = true
		}
	}
}

// WithExporterLogger sets where dropped spans are reported.
func WithExporterLogger(l logx.Logger) ExporterOption {
	return func(e *Exporter) { e.log = l }
}

// Exporter is an sdktrace.SpanExporter that turns finished spans into
// Pinba timers: the span name and its scalar attributes become tags, the
// span duration becomes the timer value.
type Exporter struct {
	rec   TimerRecorder
	allow map[attribute.Key]bool
	log   logx.Logger

	mu      sync.Mutex
	stopped bool
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// NewExporter creates an Exporter feeding rec.
func NewExporter(rec TimerRecorder, opts ...ExporterOption) *Exporter {
	e := &Exporter{rec: rec}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logx.OrDefault(e.log)
	return e
}

// ExportSpans records one timer per span. Spans whose attributes do not
// form valid tags are skipped with a warning.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil
	}

	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := e.tags(span)
		data := timer.Data{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		}
		if _, err := e.rec.AddTimer(t, span.EndTime().Sub(span.StartTime()), data); err != nil {
			e.log.Warnf("span %q dropped: %v", span.Name(), err)
		}
	}
	return nil
}

func (e *Exporter) tags(span sdktrace.ReadOnlySpan) tags.Tags {
	var t tags.Tags
	t.Set(SpanTag, tags.String(span.Name()))
	for _, kv := range span.Attributes() {
		if e.allow != nil && !e.allow[kv.Key] {
			continue
		}
		key := string(kv.Key)
		if key == SpanTag || tags.ValidateKey(key) != nil {
			continue
		}
		switch kv.Value.Type() {
		case attribute.STRING:
			t.Set(key, tags.String(kv.Value.AsString()))
		case attribute.INT64:
			t.Set(key, tags.Int(kv.Value.AsInt64()))
		case attribute.FLOAT64:
			t.Set(key, tags.Float(kv.Value.AsFloat64()))
		case attribute.BOOL:
			t.Set(key, tags.Bool(kv.Value.AsBool()))
		}
	}
	if span.Status().Code == codes.Error {
		t.Set("status", tags.String("error"))
	}
	return t
}

// Shutdown stops the exporter; later spans are ignored.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return ctx.Err()
}
