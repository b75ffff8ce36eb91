// Package observability provides OpenTelemetry tracing and metrics for docindex.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation scope for docindex spans.
	TracerName = "github.com/efebarandurmaz/docindex"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "docindex")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64

	// MetricInterval is how often metrics are pushed (default: 30s)
	MetricInterval time.Duration
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "docindex",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
		MetricInterval: 30 * time.Second,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

func newResource(cfg *TracingConfig) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under docindex.span.kind.
const (
	SpanKindBuild  = "build"
	SpanKindFile   = "file"
	SpanKindEmbed  = "embed"
	SpanKindSearch = "search"
)

// StartBuildSpan starts the root span of an indexing pass.
func StartBuildSpan(ctx context.Context, folder string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "index.build",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("docindex.span.kind", SpanKindBuild),
			attribute.String("index.folder", folder),
		),
	)
}

// StartFileSpan starts a span for one document of a build.
func StartFileSpan(ctx context.Context, relPath string, chars int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "index.file",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("docindex.span.kind", SpanKindFile),
			attribute.String("file.path", relPath),
			attribute.Int("file.chars", chars),
		),
	)
}

// StartEmbedSpan starts a client span around one embedding request.
func StartEmbedSpan(ctx context.Context, provider, deployment string, chars int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "embedding.create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("docindex.span.kind", SpanKindEmbed),
			attribute.String("embedding.provider", provider),
			attribute.String("embedding.deployment", deployment),
			attribute.Int("embedding.input_chars", chars),
		),
	)
}

// StartSearchSpan starts a span for one query.
func StartSearchSpan(ctx context.Context, k int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "search.query",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("docindex.span.kind", SpanKindSearch),
			attribute.Int("search.k", k),
		),
	)
}

// RecordFileResult records per-document chunk statistics on a span.
func RecordFileResult(span trace.Span, spans, embedded, bisected, dropped int) {
	span.SetAttributes(
		attribute.Int("file.chunks", spans),
		attribute.Int("file.embedded", embedded),
		attribute.Int("file.bisected", bisected),
		attribute.Int("file.dropped", dropped),
	)
	if dropped > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d sub-chunks dropped", dropped))
	}
}

// RecordSearchResult records how many hits collapsed into how many documents.
func RecordSearchResult(span trace.Span, hits, results int) {
	span.SetAttributes(
		attribute.Int("search.hits", hits),
		attribute.Int("search.results", results),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
