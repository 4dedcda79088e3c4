package sink

import (
	"context"
	"log/slog"
)

// LogSink writes every added location to a logger.
type LogSink struct {
	logger *slog.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Publish logs the delta
func (s *LogSink) Publish(ctx context.Context, delta Delta) error {
	for _, loc := range delta.Added {
		s.logger.InfoContext(ctx, "Location added",
			"name", loc.Name,
			"target", loc.Target,
			"annotations", loc.Annotations)
	}
	s.logger.InfoContext(ctx, "Delta published", "added", len(delta.Added), "removed", len(delta.Removed))
	return nil
}

// Name returns "log"
func (*LogSink) Name() string {
	return "log"
}
