// Package observe provides application-wide observability primitives for
// voxlabel: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. Tests should use [NewMetrics]
// with a private [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxlabel metrics.
const meterName = "github.com/voxlabel/voxlabel"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SaveDuration tracks the validate-then-commit latency of registry saves.
	SaveDuration metric.Float64Histogram

	// TranscribeDuration tracks transcription boundary call latency.
	TranscribeDuration metric.Float64Histogram

	// SummarizeDuration tracks summarization boundary call latency.
	SummarizeDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Commits counts registry commit attempts. Use with attribute:
	//   attribute.String("status", "ok"|"rejected")
	Commits metric.Int64Counter

	// ValidationFailures counts field-scoped validation errors. Use with
	// attribute: attribute.String("field", "name"|"role")
	ValidationFailures metric.Int64Counter

	// OverrideActions counts segment override activity. Use with attribute:
	//   attribute.String("action", "override"|"revert")
	OverrideActions metric.Int64Counter

	// Purges counts wholesale session data purges. Use with attribute:
	//   attribute.String("reason", "expired"|"cleared")
	Purges metric.Int64Counter

	// SessionExtensions counts user-requested budget extensions.
	SessionExtensions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions (0 or 1 per process).
	ActiveSessions metric.Int64UpDownCounter

	// SubscribedClients tracks connected websocket update consumers.
	SubscribedClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The low
// end covers in-memory commits, the high end boundary provider calls.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SaveDuration, err = m.Float64Histogram("voxlabel.registry.save.duration",
		metric.WithDescription("Latency of atomic validate-then-commit registry saves."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("voxlabel.transcribe.duration",
		metric.WithDescription("Latency of transcription boundary calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummarizeDuration, err = m.Float64Histogram("voxlabel.summarize.duration",
		metric.WithDescription("Latency of summarization boundary calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlabel.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Commits, err = m.Int64Counter("voxlabel.registry.commits",
		metric.WithDescription("Registry commit attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.ValidationFailures, err = m.Int64Counter("voxlabel.validation.failures",
		metric.WithDescription("Field-scoped validation errors by field."),
	); err != nil {
		return nil, err
	}
	if met.OverrideActions, err = m.Int64Counter("voxlabel.override.actions",
		metric.WithDescription("Segment override activity by action."),
	); err != nil {
		return nil, err
	}
	if met.Purges, err = m.Int64Counter("voxlabel.session.purges",
		metric.WithDescription("Wholesale session data purges by reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionExtensions, err = m.Int64Counter("voxlabel.session.extensions",
		metric.WithDescription("User-requested session budget extensions."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxlabel.sessions.active",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}
	if met.SubscribedClients, err = m.Int64UpDownCounter("voxlabel.ws.clients",
		metric.WithDescription("Connected websocket update consumers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}
