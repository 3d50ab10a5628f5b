package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan starts a span around one measured command.
func StartCommandSpan(ctx context.Context, tracer trace.Tracer, name string, args []string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "exec "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.String("process.executable.name", name))
	if len(args) > 0 {
		span.SetAttributes(attribute.Int("process.args.count", len(args)))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectEnv appends the W3C trace context of ctx to env as TRACEPARENT and
// TRACESTATE style variables, for a child process to pick up.
func InjectEnv(ctx context.Context, env []string) []string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for _, k := range carrier.Keys() {
		env = append(env, strings.ToUpper(k)+"="+carrier.Get(k))
	}
	return env
}
