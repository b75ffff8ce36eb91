package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestInstruments_RecordFile(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	in, err := NewInstruments(mp.Meter(TracerName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	in.RecordFile(ctx, 3, 0, 0)
	in.RecordFile(ctx, 2, 1, 1)

	sums := collect(t, reader)
	want := map[string]int64{
		"docindex.files.indexed":   2,
		"docindex.chunks.embedded": 5,
		"docindex.chunks.bisected": 1,
		"docindex.chunks.dropped":  1,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s: expected %d, got %d", name, v, sums[name])
		}
	}
}

func TestInstruments_RecordQuery(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	in, err := NewInstruments(mp.Meter(TracerName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in.RecordQuery(context.Background(), 0.25, false)
	in.RecordQuery(context.Background(), 0.5, true)

	if got := collect(t, reader)["docindex.search.queries"]; got != 2 {
		t.Fatalf("expected 2 queries, got %d", got)
	}
}

func TestMustInstruments_GlobalNoop(t *testing.T) {
	in := MustInstruments()
	// Must be usable without a configured provider.
	in.RecordFile(context.Background(), 1, 0, 0)
	in.RecordQuery(context.Background(), 0.1, false)
}

func TestInitMetrics_NoEndpoint(t *testing.T) {
	mp, err := InitMetrics(context.Background(), &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mp.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestInstallMeterProvider_GlobalInstrumentsExport(t *testing.T) {
	prev := otel.GetMeterProvider()
	reader := sdkmetric.NewManualReader()
	mp := installMeterProvider(reader, resource.Default())
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = mp.Shutdown(context.Background())
	})

	in := MustInstruments()
	in.RecordFile(context.Background(), 4, 1, 0)
	in.RecordQuery(context.Background(), 0.2, false)

	sums := collect(t, reader)
	if sums["docindex.chunks.embedded"] != 4 {
		t.Errorf("expected 4 embedded chunks, got %d", sums["docindex.chunks.embedded"])
	}
	if sums["docindex.search.queries"] != 1 {
		t.Errorf("expected 1 query, got %d", sums["docindex.search.queries"])
	}
}
