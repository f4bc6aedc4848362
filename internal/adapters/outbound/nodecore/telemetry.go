// telemetry.go provides OpenTelemetry instrumentation for the NodeCore client.
//
// Metrics:
//   - nodecore.client.request.duration: Histogram of request latencies
//   - nodecore.client.requests.total: Counter of requests by method/status
//   - nodecore.client.retries.total: Counter of retry attempts
package nodecore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/archon-research/vbk-watch/internal/adapters/outbound/nodecore"

// Telemetry provides OpenTelemetry metrics and tracing for the NodeCore client.
type Telemetry struct {
	tracer trace.Tracer

	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	retriesTotal    metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance on the global providers.
func NewTelemetry() (*Telemetry, error) {
	return NewTelemetryWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewTelemetryWithProviders creates a Telemetry instance with custom providers.
func NewTelemetryWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	t.requestDuration, err = meter.Float64Histogram(
		"nodecore.client.request.duration",
		metric.WithDescription("Duration of NodeCore RPC requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	t.requestsTotal, err = meter.Int64Counter(
		"nodecore.client.requests.total",
		metric.WithDescription("Total number of NodeCore RPC requests"),
	)
	if err != nil {
		return nil, err
	}

	t.retriesTotal, err = meter.Int64Counter(
		"nodecore.client.retries.total",
		metric.WithDescription("Total number of NodeCore RPC retry attempts"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// StartSpan starts a client span for an RPC method call.
func (t *Telemetry) StartSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "nodecore."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
		),
	)
}

// EndSpan records the outcome on the span and ends it.
func (t *Telemetry) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordRequest records metrics for one RPC call, retries included.
func (t *Telemetry) RecordRequest(ctx context.Context, method string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("status", status),
	)
	t.requestDuration.Record(ctx, duration.Seconds(), attrs)
	t.requestsTotal.Add(ctx, 1, attrs)
}

// RecordRetry records a retry attempt.
func (t *Telemetry) RecordRetry(ctx context.Context, method string, attempt int) {
	t.retriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.Int("attempt", attempt),
	))
}
