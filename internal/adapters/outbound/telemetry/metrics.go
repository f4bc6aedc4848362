package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	lookupLatency metric.Float64Histogram
	lookups       metric.Int64Counter
	tipHeight     metric.Int64Gauge
}

// NewMetrics creates a recorder on the global meter provider.
// meterName should typically be the package name or service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider(), meterName)
}

// NewMetricsWithProvider creates a recorder on the given meter provider.
func NewMetricsWithProvider(mp metric.MeterProvider, meterName string) (*Metrics, error) {
	meter := mp.Meter(meterName)

	latency, err := meter.Float64Histogram(
		"vbk_anchor_lookup_duration_seconds",
		metric.WithDescription("Time taken to resolve the last Bitcoin block at a VeriBlock block"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vbk_anchor_lookup_duration_seconds histogram: %w", err)
	}

	lookups, err := meter.Int64Counter(
		"vbk_anchor_lookups_total",
		metric.WithDescription("Total number of anchor lookups"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vbk_anchor_lookups_total counter: %w", err)
	}

	tip, err := meter.Int64Gauge(
		"vbk_tip_height",
		metric.WithDescription("Height of the last VeriBlock tip processed by the watcher"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vbk_tip_height gauge: %w", err)
	}

	return &Metrics{
		lookupLatency: latency,
		lookups:       lookups,
		tipHeight:     tip,
	}, nil
}

// RecordLookup records the duration and outcome of an anchor lookup.
func (m *Metrics) RecordLookup(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.lookupLatency.Record(ctx, duration.Seconds(), attrs)
	m.lookups.Add(ctx, 1, attrs)
}

// RecordTip records the current VeriBlock tip height.
func (m *Metrics) RecordTip(ctx context.Context, height int64) {
	m.tipHeight.Record(ctx, height)
}
