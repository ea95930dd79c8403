// Package tracing sets up the OpenTelemetry provider the session handler
// instruments connections with. Disabled, it hands out a no-op tracer;
// enabled, each worker session becomes a server span exported to a JSONL
// file, stdout, or an OTLP collector.
package tracing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures span export.
type Config struct {
	// Enabled turns tracing on. Off means a no-op tracer and no exporter.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the backend: "file", "stdout", or "otlp".
	Exporter string `mapstructure:"exporter"`

	// FilePath is where the "file" exporter writes its JSONL stream.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the gRPC collector address for "otlp".
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate is the fraction of traces kept, 1.0 meaning all.
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName identifies this process in exported spans.
	ServiceName string `mapstructure:"service_name"`
}

// DefaultConfig returns the defaults: disabled, file exporter, keep
// everything.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Exporter:     "file",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		ServiceName:  "amicus",
	}
}

// Provider owns the tracer provider lifecycle. Callers get tracers from
// it and shut it down on exit so buffered spans reach the exporter.
type Provider struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	instanceID string
	enabled    bool
}

// NewProvider builds the provider for cfg. With tracing disabled the
// returned provider is a zero-overhead no-op. Every provider gets a
// fresh instance id so spans from separate runs stay distinguishable.
func NewProvider(cfg Config) (*Provider, error) {
	instanceID := uuid.NewString()

	if !cfg.Enabled {
		return &Provider{
			tracer:     noop.NewTracerProvider().Tracer("noop"),
			instanceID: instanceID,
		}, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "amicus"
	}
	// Schemaless avoids schema version clashes with resource.Default.
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.instance.id", instanceID),
	)

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return &Provider{
		provider:   provider,
		tracer:     provider.Tracer(serviceName),
		instanceID: instanceID,
		enabled:    true,
	}, nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file exporter needs file_path")
		}
		return NewFileExporter(cfg.FilePath)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported exporter %q", cfg.Exporter)
	}
}

// Tracer returns the tracer to create spans with. Safe to use whether or
// not tracing is enabled.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// InstanceID identifies this run in exported spans and the startup log.
func (p *Provider) InstanceID() string {
	return p.instanceID
}

// Enabled reports whether spans are actually recorded.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Shutdown flushes buffered spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
