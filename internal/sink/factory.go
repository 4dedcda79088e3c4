package sink

import (
	"fmt"

	"github.com/stacklok/manifest-sync/internal/config"
)

// New creates the sink selected by cfg
func New(cfg *config.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case config.SinkTypeLog, "":
		return NewLogSink(nil), nil
	case config.SinkTypeHTTP:
		if cfg.HTTP == nil || cfg.HTTP.Endpoint == "" {
			return nil, fmt.Errorf("http sink endpoint is required")
		}
		opts := []HTTPOption{
			WithTimeout(cfg.HTTP.Timeout.Std()),
		}
		if cfg.HTTP.MaxRetries != nil {
			opts = append(opts, WithMaxRetries(*cfg.HTTP.MaxRetries))
		}
		if cfg.HTTP.TokenFile != "" {
			token, err := config.ReadSecretFile(cfg.HTTP.TokenFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load sink token: %w", err)
			}
			opts = append(opts, WithBearerToken(token))
		}
		return NewHTTPSink(cfg.HTTP.Endpoint, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}
