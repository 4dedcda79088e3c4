package status

import (
	"context"
	"log/slog"
	"sync"
)

// Tracker holds the status of the latest pass for concurrent readers.
// Updates are written through to the optional persistence.
type Tracker struct {
	mu          sync.RWMutex
	current     PassStatus
	persistence StatusPersistence
}

// NewTracker creates a tracker. persistence may be nil.
func NewTracker(persistence StatusPersistence) *Tracker {
	return &Tracker{
		current:     PassStatus{Phase: PassPhaseIdle},
		persistence: persistence,
	}
}

// Load restores the persisted status. A pass that was running when the
// process stopped is reported as failed.
func (t *Tracker) Load(ctx context.Context) error {
	if t.persistence == nil {
		return nil
	}

	loaded, err := t.persistence.LoadStatus(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = *loaded
	if t.current.Phase == PassPhaseRunning {
		t.current.Phase = PassPhaseFailed
		t.current.Message = "Pass interrupted by process restart"
	}
	return nil
}

// Get returns a copy of the current status
func (t *Tracker) Get() PassStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Update applies fn to the current status and persists the result.
// Persistence failures are logged, not returned.
func (t *Tracker) Update(ctx context.Context, fn func(s *PassStatus)) {
	t.mu.Lock()
	fn(&t.current)
	snapshot := t.current
	t.mu.Unlock()

	if t.persistence == nil {
		return
	}
	if err := t.persistence.SaveStatus(ctx, &snapshot); err != nil {
		slog.WarnContext(ctx, "Failed to persist pass status", "error", err)
	}
}
