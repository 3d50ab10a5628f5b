// Package tracing bridges OpenTelemetry spans into Pinba timers and carries
// W3C trace context into measured child processes.
package tracing

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	instrumentationName = "github.com/torosent/pinba"
	defaultServiceName  = "pinba"
)

// OTLPConfig selects a trace backend receiving spans next to the Pinba
// exporter. An empty Endpoint falls back to OTEL_EXPORTER_OTLP_ENDPOINT.
type OTLPConfig struct {
	Endpoint    string
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
}

func (c OTLPConfig) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

func (c OTLPConfig) serviceName() string {
	switch {
	case c.ServiceName != "":
		return c.ServiceName
	case os.Getenv("OTEL_SERVICE_NAME") != "":
		return os.Getenv("OTEL_SERVICE_NAME")
	default:
		return defaultServiceName
	}
}

// Provider wraps the OTel TracerProvider and provides convenience methods.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider creates a TracerProvider exporting every span synchronously
// to rec as a timer.
func NewProvider(rec TimerRecorder, opts ...ExporterOption) *Provider {
	return newProvider(rec, nil, nil, opts...)
}

// Init is NewProvider plus an OTLP exporter when cfg or the environment
// names an endpoint. Without one only rec receives spans.
func Init(ctx context.Context, rec TimerRecorder, cfg OTLPConfig, opts ...ExporterOption) (*Provider, error) {
	endpoint := cfg.endpoint()
	if endpoint == "" {
		return NewProvider(rec, opts...), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.serviceName())),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}
	return newProvider(rec, exporter, res, opts...), nil
}

func newProvider(rec TimerRecorder, otlp sdktrace.SpanExporter, res *resource.Resource, opts ...ExporterOption) *Provider {
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSyncer(NewExporter(rec, opts...)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if otlp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(otlp))
	}
	if res != nil {
		tpOpts = append(tpOpts, sdktrace.WithResource(res))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &Provider{tp: tp, tracer: tp.Tracer(instrumentationName)}
}

// Install makes p the global tracer provider and enables W3C trace context
// propagation.
func (p *Provider) Install() {
	if p == nil || p.tp == nil {
		return
	}
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Tracer returns the configured tracer. Returns a no-op tracer if tracing is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// newExporter builds the OTLP exporter. Endpoints carrying a scheme, such
// as http://collector:4318, are taken as URLs and default to the /v1/traces
// path over HTTP; bare host:port values are endpoints.
func newExporter(ctx context.Context, cfg OTLPConfig, endpoint string) (sdktrace.SpanExporter, error) {
	protocol := strings.ToLower(cfg.Protocol)
	if protocol == "" {
		protocol = "grpc"
	}
	isURL := strings.Contains(endpoint, "://")

	switch protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{}
		if isURL {
			opts = append(opts, otlptracegrpc.WithEndpointURL(endpoint))
		} else {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)

	case "http":
		opts := []otlptracehttp.Option{}
		if isURL {
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, fmt.Errorf("otlp endpoint: %w", err)
			}
			if u.Path == "" || u.Path == "/" {
				u.Path = "/v1/traces"
			}
			opts = append(opts, otlptracehttp.WithEndpointURL(u.String()))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}
