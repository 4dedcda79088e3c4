// Package store persists the last seen manifest version of every tracked repository.
//
// A Store holds one Record per repository key. UpsertSeen is an atomic
// insert-or-update; MarkRegistered stamps the registration time on a record
// that UpsertSeen created earlier in the same pass. Stores never retry.
package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ErrRecordNotFound is returned by MarkRegistered when the key has no record.
var ErrRecordNotFound = errors.New("version record not found")

// Record is the persisted version state of one repository.
type Record struct {
	RepoKey          string     `json:"repoKey"`
	ManifestVersion  string     `json:"manifestVersion"`
	LastSeenAt       time.Time  `json:"lastSeenAt"`
	LastRegisteredAt *time.Time `json:"lastRegisteredAt,omitempty"`
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/manifest-sync/internal/store Store

// Store is the durable version table.
type Store interface {
	// Get returns the record for repoKey, or nil when none exists
	Get(ctx context.Context, repoKey string) (*Record, error)

	// UpsertSeen records version as the last seen version of repoKey
	UpsertSeen(ctx context.Context, repoKey, version string) error

	// MarkRegistered sets the registration time of an existing record
	MarkRegistered(ctx context.Context, repoKey string) error

	// List returns all records ordered by repository key
	List(ctx context.Context) ([]Record, error)

	// Initialize prepares the backing storage. It is safe to call on every start.
	Initialize(ctx context.Context) error

	// Close releases the resources held by the store
	Close() error
}

// Clock returns the current time. Stores use it for timestamps.
type Clock func() time.Time

// Option configures a store
type Option func(*options)

type options struct {
	now    Clock
	tracer trace.Tracer
}

// WithClock overrides the time source used for timestamps
func WithClock(now Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithTracer records a span for every store operation. Only New applies it.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

func newOptions(opts []Option) *options {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
