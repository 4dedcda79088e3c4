// Package otel provides OpenTelemetry instrumentation utilities for manifest-sync.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by the pass and store spans
const (
	AttrManifestSource  = attribute.Key("manifest.source")
	AttrRepoKey         = attribute.Key("repo.key")
	AttrManifestVersion = attribute.Key("manifest.version")
	AttrDescriptorCount = attribute.Key("manifest.descriptors")
	AttrAddedCount      = attribute.Key("delta.added")
	AttrFailedCount     = attribute.Key("reconcile.failed")
	AttrSinkName        = attribute.Key("sink.name")
	AttrPassReason      = attribute.Key("pass.reason")
	AttrResultCount     = attribute.Key("result.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// The status description stays generic so connection strings and queries only
// appear in the recorded error event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
