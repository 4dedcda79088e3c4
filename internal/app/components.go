package app

import (
	"github.com/stacklok/manifest-sync/internal/manifest"
	"github.com/stacklok/manifest-sync/internal/sink"
	"github.com/stacklok/manifest-sync/internal/store"
	pkgsync "github.com/stacklok/manifest-sync/internal/sync"
	"github.com/stacklok/manifest-sync/internal/sync/coordinator"
)

// PassComponents groups what a reconciliation pass needs
type PassComponents struct {
	// Fetcher reads the manifest
	Fetcher manifest.Fetcher

	// Store holds the recorded manifest versions
	Store store.Store

	// Sink receives location deltas
	Sink sink.Sink

	// Manager runs passes over the components above
	Manager pkgsync.Manager
}

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	*PassComponents

	// SyncCoordinator schedules passes
	SyncCoordinator coordinator.Coordinator
}
