package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// PassMetricsMeterName is the name used for the reconciliation pass meter
	PassMetricsMeterName = "github.com/stacklok/manifest-sync/reconcile"
)

// PassMetrics holds the OpenTelemetry instruments for reconciliation passes
type PassMetrics struct {
	passDuration       metric.Float64Histogram
	descriptorsTotal   metric.Int64Counter
	locationsPublished metric.Int64Counter
	trackedRepos       metric.Int64Gauge
}

// NewPassMetrics creates a new PassMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewPassMetrics(provider metric.MeterProvider) (*PassMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PassMetricsMeterName)

	passDuration, err := meter.Float64Histogram(
		"manifest_sync_pass_duration_seconds",
		metric.WithDescription("Duration of reconciliation passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	descriptorsTotal, err := meter.Int64Counter(
		"manifest_sync_descriptors_total",
		metric.WithDescription("Manifest descriptors processed, by classification"),
		metric.WithUnit("{descriptor}"),
	)
	if err != nil {
		return nil, err
	}

	locationsPublished, err := meter.Int64Counter(
		"manifest_sync_locations_published_total",
		metric.WithDescription("Locations handed to the publication sink"),
		metric.WithUnit("{location}"),
	)
	if err != nil {
		return nil, err
	}

	trackedRepos, err := meter.Int64Gauge(
		"manifest_sync_tracked_repositories",
		metric.WithDescription("Repositories recorded in the version store"),
		metric.WithUnit("{repository}"),
	)
	if err != nil {
		return nil, err
	}

	return &PassMetrics{
		passDuration:       passDuration,
		descriptorsTotal:   descriptorsTotal,
		locationsPublished: locationsPublished,
		trackedRepos:       trackedRepos,
	}, nil
}

// RecordPassDuration records the duration of a pass. reason is empty on success.
func (m *PassMetrics) RecordPassDuration(ctx context.Context, duration time.Duration, success bool, reason string) {
	if m == nil || m.passDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}

	m.passDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDescriptors adds count descriptors of the given classification
func (m *PassMetrics) RecordDescriptors(ctx context.Context, classification string, count int) {
	if m == nil || m.descriptorsTotal == nil || count <= 0 {
		return
	}

	m.descriptorsTotal.Add(ctx, int64(count),
		metric.WithAttributes(attribute.String("classification", classification)))
}

// RecordLocationsPublished adds count locations accepted by the named sink
func (m *PassMetrics) RecordLocationsPublished(ctx context.Context, sink string, count int) {
	if m == nil || m.locationsPublished == nil || count <= 0 {
		return
	}

	m.locationsPublished.Add(ctx, int64(count), metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordTrackedRepositories records the number of repositories in the version store
func (m *PassMetrics) RecordTrackedRepositories(ctx context.Context, count int64) {
	if m == nil || m.trackedRepos == nil {
		return
	}

	m.trackedRepos.Record(ctx, count)
}
