package observe

import (
	"context"
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig controls observability provider initialisation.
type ProviderConfig struct {
	// ServiceName identifies this service in metrics and traces.
	// Defaults to "voxlabel".
	ServiceName string

	// ServiceVersion is attached to the OTel resource. Optional.
	ServiceVersion string

	// Registry is the Prometheus registry to export metrics into. When nil
	// a new dedicated registry is created.
	Registry *prom.Registry
}

// Provider bundles the initialised observability backends and their
// shutdown handle.
type Provider struct {
	Metrics  *Metrics
	Registry *prom.Registry

	meterProvider *metric.MeterProvider
	traceProvider *sdktrace.TracerProvider
}

// InitProvider wires up the OpenTelemetry metric pipeline with a Prometheus
// exporter bridge and a no-export trace provider, registers both globally,
// and returns the provider handle. Call [Provider.Shutdown] on exit.
func InitProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxlabel"
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prom.NewRegistry()
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	metrics, err := NewMetrics(mp)
	if err != nil {
		shutdownErr := mp.Shutdown(context.Background())
		return nil, errors.Join(fmt.Errorf("creating metrics: %w", err), shutdownErr)
	}

	return &Provider{
		Metrics:       metrics,
		Registry:      reg,
		meterProvider: mp,
		traceProvider: tp,
	}, nil
}

// Shutdown flushes and closes the metric and trace pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.traceProvider != nil {
		errs = append(errs, p.traceProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
