package store

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/manifest-sync/internal/otel"
)

// TracerName is the name used for the version store tracer
const TracerName = "github.com/stacklok/manifest-sync/store"

// tracingStore wraps a Store with a span per operation
type tracingStore struct {
	inner  Store
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

var _ Store = (*tracingStore)(nil)

// NewTracingStore wraps inner so every call is recorded as a span.
// attrs are added to all spans, e.g. the db.system attribute.
func NewTracingStore(inner Store, tracer trace.Tracer, attrs ...attribute.KeyValue) Store {
	if tracer == nil {
		return inner
	}
	return &tracingStore{inner: inner, tracer: tracer, attrs: attrs}
}

func (s *tracingStore) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append(append([]attribute.KeyValue{}, s.attrs...), attrs...)
	return otel.StartSpan(ctx, s.tracer, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(all...))
}

func (s *tracingStore) Get(ctx context.Context, repoKey string) (*Record, error) {
	ctx, span := s.startSpan(ctx, "store.Get", otel.AttrRepoKey.String(repoKey))
	defer span.End()

	rec, err := s.inner.Get(ctx, repoKey)
	otel.RecordError(span, err)
	return rec, err
}

func (s *tracingStore) UpsertSeen(ctx context.Context, repoKey, version string) error {
	ctx, span := s.startSpan(ctx, "store.UpsertSeen",
		otel.AttrRepoKey.String(repoKey),
		otel.AttrManifestVersion.String(version))
	defer span.End()

	err := s.inner.UpsertSeen(ctx, repoKey, version)
	otel.RecordError(span, err)
	return err
}

func (s *tracingStore) MarkRegistered(ctx context.Context, repoKey string) error {
	ctx, span := s.startSpan(ctx, "store.MarkRegistered", otel.AttrRepoKey.String(repoKey))
	defer span.End()

	err := s.inner.MarkRegistered(ctx, repoKey)
	otel.RecordError(span, err)
	return err
}

func (s *tracingStore) List(ctx context.Context) ([]Record, error) {
	ctx, span := s.startSpan(ctx, "store.List")
	defer span.End()

	records, err := s.inner.List(ctx)
	otel.RecordError(span, err)
	span.SetAttributes(otel.AttrResultCount.Int(len(records)))
	return records, err
}

func (s *tracingStore) Initialize(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "store.Initialize")
	defer span.End()

	err := s.inner.Initialize(ctx)
	otel.RecordError(span, err)
	return err
}

func (s *tracingStore) Close() error {
	return s.inner.Close()
}

// dbSystemPostgres marks spans of the PostgreSQL store
var dbSystemPostgres = semconv.DBSystemPostgreSQL
