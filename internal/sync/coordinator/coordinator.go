package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/manifest-sync/internal/reconcile"
	"github.com/stacklok/manifest-sync/internal/status"
	pkgsync "github.com/stacklok/manifest-sync/internal/sync"
	"github.com/stacklok/manifest-sync/internal/telemetry"
)

// intervalJitterFraction is the maximum relative offset applied to the pass interval
const intervalJitterFraction = 10

// ErrPassInProgress is returned by Trigger when another pass is running
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

// Coordinator schedules reconciliation passes and guarantees that at most one runs at a time
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/stacklok/manifest-sync/internal/sync/coordinator Coordinator
type Coordinator interface {
	// Start runs one pass immediately and then one per interval.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop stops the scheduling loop and waits for it to exit
	Stop() error

	// Trigger runs a manual pass and returns its result. It fails with
	// ErrPassInProgress when a pass is already running.
	Trigger(ctx context.Context) (*pkgsync.Result, error)

	// Status returns the status of the latest pass
	Status() status.PassStatus
}

// TrackedRepositoryCounter reports the number of repositories in the version store
type TrackedRepositoryCounter func(ctx context.Context) (int, error)

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager pkgsync.Manager
	tracker *status.Tracker

	interval time.Duration
	timeout  time.Duration

	// passMu is held for the duration of a pass
	passMu sync.Mutex

	// lifecycleMu guards cancelFunc and stopped
	lifecycleMu sync.Mutex
	cancelFunc  context.CancelFunc
	stopped     bool
	done        chan struct{}

	passMetrics    *telemetry.PassMetrics
	countTracked   TrackedRepositoryCounter
	now            func() time.Time
	intervalJitter func(time.Duration) time.Duration
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithPassMetrics sets the pass metrics for the coordinator
func WithPassMetrics(metrics *telemetry.PassMetrics) Option {
	return func(c *defaultCoordinator) {
		c.passMetrics = metrics
	}
}

// WithTrackedRepositoryCounter sets the function used to report the tracked repositories gauge
func WithTrackedRepositoryCounter(fn TrackedRepositoryCounter) Option {
	return func(c *defaultCoordinator) {
		c.countTracked = fn
	}
}

// WithClock overrides the time source used for status timestamps
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// withIntervalJitter overrides the interval jitter, used by tests
func withIntervalJitter(fn func(time.Duration) time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.intervalJitter = fn
	}
}

// New creates a new coordinator running passes every interval, each bounded by timeout
func New(
	manager pkgsync.Manager,
	tracker *status.Tracker,
	interval, timeout time.Duration,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		manager:        manager,
		tracker:        tracker,
		interval:       interval,
		timeout:        timeout,
		done:           make(chan struct{}),
		now:            time.Now,
		intervalJitter: jitteredInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// jitteredInterval returns base offset by a random value of up to ±10%.
func jitteredInterval(base time.Duration) time.Duration {
	maxJitter := base / intervalJitterFraction
	if maxJitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	return base + time.Duration(rand.Int64N(int64(2*maxJitter))) - maxJitter
}

// Start begins the scheduling loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting reconciliation coordinator",
		"interval", c.interval,
		"timeout", c.timeout)

	c.lifecycleMu.Lock()
	if c.stopped {
		c.lifecycleMu.Unlock()
		slog.Info("Reconciliation coordinator stopped before start")
		return nil
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.lifecycleMu.Unlock()

	defer func() {
		cancel()
		close(c.done)
		slog.Info("Reconciliation coordinator shut down")
	}()

	if err := c.tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load pass status: %w", err)
	}

	ticker := time.NewTicker(c.intervalJitter(c.interval))
	defer ticker.Stop()

	c.runScheduledPass(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.runScheduledPass(coordCtx)
			ticker.Reset(c.intervalJitter(c.interval))
		case <-coordCtx.Done():
			slog.Info("Reconciliation coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator and waits for a running pass to end.
// A Start that has not begun yet returns without running any pass.
func (c *defaultCoordinator) Stop() error {
	c.lifecycleMu.Lock()
	c.stopped = true
	cancel := c.cancelFunc
	c.lifecycleMu.Unlock()

	if cancel != nil {
		slog.Info("Stopping reconciliation coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// Trigger runs a manual pass. The pass outlives a cancelled caller context
// and is bounded only by the pass timeout.
func (c *defaultCoordinator) Trigger(ctx context.Context) (*pkgsync.Result, error) {
	if !c.passMu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer c.passMu.Unlock()

	result, syncErr := c.runPass(context.WithoutCancel(ctx), status.TriggerManual)
	if syncErr != nil {
		return result, syncErr
	}
	return result, nil
}

// Status returns the latest pass status
func (c *defaultCoordinator) Status() status.PassStatus {
	return c.tracker.Get()
}

func (c *defaultCoordinator) runScheduledPass(ctx context.Context) {
	if !c.passMu.TryLock() {
		slog.Info("Skipping scheduled pass, another pass is in progress")
		return
	}
	defer c.passMu.Unlock()

	_, _ = c.runPass(ctx, status.TriggerScheduled)
}

// runPass executes one pass and records its status and metrics. passMu must be held.
func (c *defaultCoordinator) runPass(ctx context.Context, trigger status.Trigger) (*pkgsync.Result, *pkgsync.Error) {
	passID := uuid.NewString()
	startTime := c.now()

	c.tracker.Update(ctx, func(s *status.PassStatus) {
		s.ID = passID
		s.Phase = status.PassPhaseRunning
		s.Trigger = trigger
		s.Message = "Pass in progress"
		s.Reason = ""
		s.StartedAt = &startTime
		s.EndedAt = nil
	})

	// Set a default failure here in case the pass panics
	finalize := func(s *status.PassStatus) {
		endTime := c.now()
		s.Phase = status.PassPhaseFailed
		s.Message = "Unexpected failure during reconciliation pass"
		s.EndedAt = &endTime
		s.AttemptCount++
	}
	defer func() {
		c.tracker.Update(context.WithoutCancel(ctx), finalize)
	}()

	slog.Info("Starting reconciliation pass", "pass_id", passID, "trigger", trigger)

	passCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, syncErr := c.manager.PerformPass(passCtx)
	duration := c.now().Sub(startTime)

	finalize = func(s *status.PassStatus) {
		endTime := c.now()
		s.EndedAt = &endTime
		applyResult(s, result)
		if syncErr != nil {
			s.Phase = status.PassPhaseFailed
			s.Message = syncErr.Message
			s.Reason = syncErr.Reason
			s.AttemptCount++
			return
		}
		s.Phase = status.PassPhaseComplete
		s.Message = "Pass completed successfully"
		s.LastSuccessTime = &endTime
		s.AttemptCount = 0
	}

	if syncErr != nil {
		slog.Error("Reconciliation pass failed",
			"pass_id", passID,
			"reason", syncErr.Reason,
			"error", syncErr.Message)
	} else {
		slog.Info("Reconciliation pass completed",
			"pass_id", passID,
			"duration", duration,
			"added", len(result.Delta.Added))
	}

	c.recordMetrics(ctx, duration, result, syncErr)
	return result, syncErr
}

func applyResult(s *status.PassStatus, result *pkgsync.Result) {
	s.ManifestHash = ""
	s.Descriptors, s.Added, s.Unchanged, s.Failed = 0, 0, 0, 0
	if result == nil {
		return
	}
	s.ManifestHash = result.Hash
	s.Descriptors = result.Descriptors
	s.Added = len(result.Delta.Added)
	if result.Reconcile != nil {
		s.Unchanged = len(result.Reconcile.Unchanged)
		s.Failed = len(result.Reconcile.Failed)
	}
}

func (c *defaultCoordinator) recordMetrics(
	ctx context.Context, duration time.Duration, result *pkgsync.Result, syncErr *pkgsync.Error,
) {
	if c.passMetrics == nil {
		return
	}

	reason := ""
	if syncErr != nil {
		reason = syncErr.Reason
	}
	c.passMetrics.RecordPassDuration(ctx, duration, syncErr == nil, reason)

	if result != nil && result.Reconcile != nil {
		c.passMetrics.RecordDescriptors(ctx, string(reconcile.ClassificationNew), result.Reconcile.New)
		c.passMetrics.RecordDescriptors(ctx, string(reconcile.ClassificationChanged), result.Reconcile.Changed)
		c.passMetrics.RecordDescriptors(ctx, string(reconcile.ClassificationUnchanged), len(result.Reconcile.Unchanged))
		c.passMetrics.RecordDescriptors(ctx, "failed", len(result.Reconcile.Failed))
	}
	if result != nil && result.Published {
		c.passMetrics.RecordLocationsPublished(ctx, result.Sink, len(result.Delta.Added))
	}

	if c.countTracked != nil {
		count, err := c.countTracked(ctx)
		if err != nil {
			slog.Warn("Failed to count tracked repositories", "error", err)
			return
		}
		c.passMetrics.RecordTrackedRepositories(ctx, int64(count))
	}
}
