// Package coordinator schedules reconciliation passes.
//
// The coordinator sits on top of sync.Manager and handles:
//
//   - Periodic passes using a jittered time.Ticker
//   - An initial pass on startup
//   - Manual passes requested through Trigger
//   - Pass status tracking and persistence
//   - Graceful shutdown
//
// # Core Interface
//
//	type Coordinator interface {
//	    Start(ctx context.Context) error
//	    Stop() error
//	    Trigger(ctx context.Context) (*sync.Result, error)
//	    Status() status.PassStatus
//	}
//
// # Usage Example
//
//	manager := sync.NewDefaultManager(fetcher, reconciler, sink)
//	tracker := status.NewTracker(status.NewFileStatusPersistence(path))
//
//	coord := coordinator.New(manager, tracker, cfg.Sync.Interval.Std(), cfg.Sync.Timeout.Std(),
//	    coordinator.WithPassMetrics(passMetrics))
//
//	go coord.Start(ctx)
//
//	// ... run server ...
//
//	coord.Stop()
//
// # Overlap
//
// At most one pass runs at a time. Scheduled and manual passes both take a
// non-blocking lock: a scheduled tick that finds a pass running is skipped,
// and Trigger returns ErrPassInProgress.
//
// # Timeouts
//
// Every pass runs under context.WithTimeout with the configured pass timeout.
// A manual pass is detached from the caller's cancellation so a dropped HTTP
// request does not abort it.
//
// # Error Handling
//
// Failed passes are logged, recorded in the status with their reason and
// counted in metrics. The coordinator keeps running and the next attempt
// happens on the next tick. Status persistence errors are logged only.
package coordinator
