// tracer.go provides OpenTelemetry tracing initialization.
//
// Spans are exported over OTLP gRPC when an endpoint is configured and
// pretty-printed to stdout otherwise.
//
// Usage:
//
//	shutdown, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
//	    ServiceName:  "vbk-watch",
//	    OTLPEndpoint: "localhost:4317",
//	})
//	defer shutdown(ctx)
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "vbk-watch"

// TracerConfig holds configuration for the tracer.
type TracerConfig struct {
	// ServiceName is the name of the service.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment is the deployment environment (e.g., "development", "production").
	Environment string

	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g., "localhost:4317").
	// If empty, traces are written to StdoutWriter.
	OTLPEndpoint string

	// StdoutWriter receives spans when no endpoint is set. Default: os.Stdout.
	StdoutWriter io.Writer

	// SampleRate is the sampling rate (0.0 to 1.0). Default is 1.0 (sample everything).
	SampleRate float64
}

// TracerConfigDefaults returns default configuration.
func TracerConfigDefaults() TracerConfig {
	return TracerConfig{
		ServiceName:    DefaultServiceName,
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// InitTracer initializes the global tracer provider.
// Returns a shutdown function that flushes pending spans.
func InitTracer(ctx context.Context, config TracerConfig) (shutdown func(context.Context) error, err error) {
	if config.ServiceName == "" {
		config.ServiceName = TracerConfigDefaults().ServiceName
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}
	if config.StdoutWriter == nil {
		config.StdoutWriter = os.Stdout
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, err
	}

	exporter, err := newSpanExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter,
			trace.WithBatchTimeout(5*time.Second),
		),
		trace.WithResource(res),
		trace.WithSampler(newSampler(config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func newSpanExporter(ctx context.Context, config TracerConfig) (trace.SpanExporter, error) {
	if config.OTLPEndpoint == "" {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(config.StdoutWriter),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	}

	conn, err := grpc.NewClient(
		config.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func newSampler(rate float64) trace.Sampler {
	switch {
	case rate >= 1.0:
		return trace.AlwaysSample()
	case rate <= 0:
		return trace.NeverSample()
	default:
		return trace.TraceIDRatioBased(rate)
	}
}
