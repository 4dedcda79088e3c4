// Package sink publishes location deltas to the downstream catalog.
package sink

import (
	"context"
	"fmt"

	"github.com/stacklok/manifest-sync/internal/reconcile"
)

// Delta is an additive update of catalog locations. Removed is always empty:
// a repository leaving the manifest is never treated as a deletion.
type Delta struct {
	Added   []reconcile.Location `json:"added"`
	Removed []reconcile.Location `json:"removed"`
}

// NewDelta creates a delta adding the given locations
func NewDelta(added []reconcile.Location) Delta {
	if added == nil {
		added = []reconcile.Location{}
	}
	return Delta{Added: added, Removed: []reconcile.Location{}}
}

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/stacklok/manifest-sync/internal/sink Sink

// Sink accepts location deltas. Implementations must tolerate duplicate adds.
type Sink interface {
	// Publish hands the delta to the downstream catalog
	Publish(ctx context.Context, delta Delta) error

	// Name identifies the sink in logs
	Name() string
}

// PublishError is returned when a sink fails to publish a delta.
type PublishError struct {
	Sink string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish delta to %s sink: %v", e.Sink, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
