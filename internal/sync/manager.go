package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/manifest-sync/internal/manifest"
	"github.com/stacklok/manifest-sync/internal/otel"
	"github.com/stacklok/manifest-sync/internal/reconcile"
	"github.com/stacklok/manifest-sync/internal/sink"
)

// Pass failure reasons
const (
	// ReasonFetchFailed means the manifest could not be retrieved or decoded
	ReasonFetchFailed = "fetch-failed"

	// ReasonManifestInvalid means the manifest lacks the required structure
	ReasonManifestInvalid = "manifest-invalid"

	// ReasonPublishFailed means the sink rejected the delta after the store was updated
	ReasonPublishFailed = "publish-failed"

	// ReasonPassCancelled means the pass context ended before the pass finished
	ReasonPassCancelled = "pass-cancelled"
)

// Result contains the outcome of a reconciliation pass
type Result struct {
	// SourceURL is where the manifest was read from
	SourceURL string `json:"sourceURL"`

	// Hash is the SHA256 hash of the manifest
	Hash string `json:"hash"`

	// Descriptors is the number of manifest entries
	Descriptors int `json:"descriptors"`

	// Reconcile holds the reconciler output. It is nil when the pass failed before reconciling.
	Reconcile *reconcile.Result `json:"reconcile,omitempty"`

	// Delta is what was handed to the sink
	Delta sink.Delta `json:"delta"`

	// Sink names the sink the delta was handed to
	Sink string `json:"sink"`

	// Published reports whether the sink accepted the delta
	Published bool `json:"published"`
}

// Error represents a pass level failure with a machine readable reason
type Error struct {
	Err     error
	Message string
	Reason  string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Manager runs reconciliation passes
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/manifest-sync/internal/sync Manager
type Manager interface {
	// PerformPass fetches the manifest, reconciles it against the version store and
	// publishes the resulting delta. The result is returned even on failure when
	// part of the pass completed.
	PerformPass(ctx context.Context) (*Result, *Error)
}

// defaultManager is the default implementation of Manager
type defaultManager struct {
	fetcher    manifest.Fetcher
	reconciler *reconcile.Reconciler
	sink       sink.Sink
	tracer     trace.Tracer
}

// TracerName is the name used for the pass tracer
const TracerName = "github.com/stacklok/manifest-sync/sync"

// ManagerOption configures the default manager
type ManagerOption func(*defaultManager)

// WithTracer records every pass as a span
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *defaultManager) {
		m.tracer = tracer
	}
}

// NewDefaultManager creates a new Manager
func NewDefaultManager(fetcher manifest.Fetcher, reconciler *reconcile.Reconciler, s sink.Sink, opts ...ManagerOption) Manager {
	m := &defaultManager{
		fetcher:    fetcher,
		reconciler: reconciler,
		sink:       s,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerformPass executes one complete reconciliation pass
func (m *defaultManager) PerformPass(ctx context.Context) (*Result, *Error) {
	sourceURL := m.fetcher.SourceURL()
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PerformPass",
		trace.WithAttributes(otel.AttrManifestSource.String(sourceURL)))
	defer span.End()

	result, passErr := m.performPass(ctx, sourceURL)
	if result != nil {
		span.SetAttributes(
			otel.AttrSinkName.String(result.Sink),
			otel.AttrDescriptorCount.Int(result.Descriptors),
			otel.AttrAddedCount.Int(len(result.Delta.Added)))
		if result.Reconcile != nil {
			span.SetAttributes(otel.AttrFailedCount.Int(len(result.Reconcile.Failed)))
		}
	}
	if passErr != nil {
		span.SetAttributes(otel.AttrPassReason.String(passErr.Reason))
		otel.RecordError(span, passErr)
	}
	return result, passErr
}

func (m *defaultManager) performPass(ctx context.Context, sourceURL string) (*Result, *Error) {
	fetched, err := m.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fetchError(ctx, sourceURL, err)
	}

	result := &Result{
		SourceURL:   fetched.SourceURL,
		Hash:        fetched.Hash,
		Descriptors: len(fetched.Descriptors),
		Delta:       sink.NewDelta(nil),
		Sink:        m.sink.Name(),
	}
	slog.InfoContext(ctx, "Fetched manifest",
		"source", fetched.SourceURL,
		"descriptors", result.Descriptors,
		"hash", shortHash(fetched.Hash))

	reconciled, err := m.reconciler.Reconcile(ctx, fetched.Descriptors)
	result.Reconcile = reconciled
	if err != nil {
		return result, &Error{
			Err:     err,
			Message: fmt.Sprintf("Reconciliation interrupted: %v", err),
			Reason:  ReasonPassCancelled,
		}
	}

	if len(reconciled.Failed) > 0 {
		slog.WarnContext(ctx, "Some repositories could not be reconciled",
			"failed", len(reconciled.Failed))
	}

	if len(reconciled.Added) == 0 {
		slog.InfoContext(ctx, "No repository changes to publish", "unchanged", len(reconciled.Unchanged))
		return result, nil
	}

	result.Delta = sink.NewDelta(reconciled.Added)
	if err := m.sink.Publish(ctx, result.Delta); err != nil {
		// Store rows are already committed: the affected repositories stay
		// marked as registered until their version changes again.
		return result, &Error{
			Err:     err,
			Message: fmt.Sprintf("Failed to publish %d locations: %v", len(result.Delta.Added), err),
			Reason:  ReasonPublishFailed,
		}
	}
	result.Published = true

	return result, nil
}

func fetchError(ctx context.Context, sourceURL string, err error) *Error {
	var shapeErr *manifest.ShapeError
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return &Error{
			Err:     err,
			Message: fmt.Sprintf("Manifest fetch interrupted: %v", err),
			Reason:  ReasonPassCancelled,
		}
	case errors.As(err, &shapeErr):
		return &Error{
			Err:     err,
			Message: fmt.Sprintf("Manifest %s is invalid: %s", sourceURL, shapeErr.Reason),
			Reason:  ReasonManifestInvalid,
		}
	default:
		return &Error{
			Err:     err,
			Message: fmt.Sprintf("Failed to fetch manifest: %v", err),
			Reason:  ReasonFetchFailed,
		}
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
