package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MeterProvider wraps the OpenTelemetry meter provider.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
}

// InitMetrics installs a global meter provider that pushes to the OTLP
// gRPC endpoint used for traces. Without an endpoint the global meter is
// left as a no-op.
func InitMetrics(ctx context.Context, cfg *TracingConfig) (*MeterProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &MeterProvider{}, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	var opts []sdkmetric.PeriodicReaderOption
	if cfg.MetricInterval > 0 {
		opts = append(opts, sdkmetric.WithInterval(cfg.MetricInterval))
	}
	return installMeterProvider(sdkmetric.NewPeriodicReader(exporter, opts...), res), nil
}

func installMeterProvider(reader sdkmetric.Reader, res *resource.Resource) *MeterProvider {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	return &MeterProvider{provider: provider}
}

// Shutdown pushes pending metrics and stops the meter provider.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.provider != nil {
		return mp.provider.Shutdown(ctx)
	}
	return nil
}

// Instruments holds the counters emitted by indexing and search.
// Until InitMetrics installs a provider they are no-ops.
type Instruments struct {
	FilesIndexed   metric.Int64Counter
	ChunksEmbedded metric.Int64Counter
	ChunksBisected metric.Int64Counter
	ChunksDropped  metric.Int64Counter
	Queries        metric.Int64Counter
	SearchLatency  metric.Float64Histogram
}

// NewInstruments creates instruments on the given meter. A nil meter uses
// the global provider.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(TracerName)
	}
	var (
		in  Instruments
		err error
	)
	if in.FilesIndexed, err = meter.Int64Counter("docindex.files.indexed",
		metric.WithDescription("Documents processed by index builds")); err != nil {
		return nil, err
	}
	if in.ChunksEmbedded, err = meter.Int64Counter("docindex.chunks.embedded",
		metric.WithDescription("Chunks and sub-chunks successfully embedded and stored")); err != nil {
		return nil, err
	}
	if in.ChunksBisected, err = meter.Int64Counter("docindex.chunks.bisected",
		metric.WithDescription("Chunks rejected by the embedding service and split in two")); err != nil {
		return nil, err
	}
	if in.ChunksDropped, err = meter.Int64Counter("docindex.chunks.dropped",
		metric.WithDescription("Sub-chunks dropped after a second rejection")); err != nil {
		return nil, err
	}
	if in.Queries, err = meter.Int64Counter("docindex.search.queries",
		metric.WithDescription("Queries answered")); err != nil {
		return nil, err
	}
	if in.SearchLatency, err = meter.Float64Histogram("docindex.search.duration",
		metric.WithDescription("Query latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &in, nil
}

// MustInstruments is NewInstruments on the global meter. The global meter
// never fails to create instruments.
func MustInstruments() *Instruments {
	in, err := NewInstruments(nil)
	if err != nil {
		panic(err)
	}
	return in
}

// RecordFile adds one document's chunk statistics.
func (in *Instruments) RecordFile(ctx context.Context, embedded, bisected, dropped int) {
	in.FilesIndexed.Add(ctx, 1)
	in.ChunksEmbedded.Add(ctx, int64(embedded))
	in.ChunksBisected.Add(ctx, int64(bisected))
	in.ChunksDropped.Add(ctx, int64(dropped))
}

// RecordQuery records a finished query.
func (in *Instruments) RecordQuery(ctx context.Context, seconds float64, failed bool) {
	attrs := metric.WithAttributes(attribute.Bool("failed", failed))
	in.Queries.Add(ctx, 1, attrs)
	in.SearchLatency.Record(ctx, seconds, attrs)
}
