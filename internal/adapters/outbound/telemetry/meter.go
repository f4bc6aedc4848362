// Package telemetry wires OpenTelemetry metrics and tracing for vbk-watch.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// MetricConfig holds configuration for the metrics.
type MetricConfig struct {
	// ServiceName is the name of the service.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment is the deployment environment.
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint. Empty keeps the global no-op provider.
	OTLPEndpoint string

	// ExportInterval is how often metrics are pushed. Default: 15s.
	ExportInterval time.Duration
}

// InitMetrics initializes the OpenTelemetry meter provider.
func InitMetrics(ctx context.Context, config MetricConfig) (shutdown func(context.Context) error, err error) {
	if config.OTLPEndpoint == "" {
		return func(_ context.Context) error { return nil }, nil
	}
	if config.ExportInterval == 0 {
		config.ExportInterval = 15 * time.Second
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(config.ExportInterval))),
	)

	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}

func newResource(name, version, environment string) (*resource.Resource, error) {
	if name == "" {
		name = DefaultServiceName
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
			semconv.DeploymentEnvironmentName(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
