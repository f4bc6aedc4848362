package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_RecordLookupAndTip(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetricsWithProvider(mp, "test")
	if err != nil {
		t.Fatalf("NewMetricsWithProvider failed: %v", err)
	}

	ctx := context.Background()
	m.RecordLookup(ctx, "ok", 20*time.Millisecond)
	m.RecordLookup(ctx, "ok", 30*time.Millisecond)
	m.RecordLookup(ctx, "error", time.Millisecond)
	m.RecordTip(ctx, 1500000)
	m.RecordTip(ctx, 1500001)

	metrics := collect(t, reader)

	counter, ok := metrics["vbk_anchor_lookups_total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("lookups counter missing or wrong type: %T", metrics["vbk_anchor_lookups_total"].Data)
	}
	byStatus := make(map[string]int64)
	for _, dp := range counter.DataPoints {
		status, _ := dp.Attributes.Value("status")
		byStatus[status.AsString()] = dp.Value
	}
	if byStatus["ok"] != 2 || byStatus["error"] != 1 {
		t.Errorf("unexpected lookup counts %v", byStatus)
	}

	hist, ok := metrics["vbk_anchor_lookup_duration_seconds"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("latency histogram missing or wrong type")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("expected 3 latency samples, got %d", total)
	}

	gauge, ok := metrics["vbk_tip_height"].Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 {
		t.Fatalf("tip gauge missing")
	}
	if gauge.DataPoints[0].Value != 1500001 {
		t.Errorf("expected tip 1500001, got %d", gauge.DataPoints[0].Value)
	}
}

func TestInitMetrics_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := InitMetrics(context.Background(), MetricConfig{})
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestInitTracer_StdoutFallback(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracer(ctx, TracerConfig{StdoutWriter: &buf})
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}

	_, span := otel.Tracer("test").Start(ctx, "nodecore.getinfo")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), "nodecore.getinfo") {
		t.Errorf("expected span in stdout export, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), DefaultServiceName) {
		t.Error("expected default service name in exported resource")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := newSampler(tt.rate).Description(); got != tt.want {
			t.Errorf("newSampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}
