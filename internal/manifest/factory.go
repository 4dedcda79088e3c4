package manifest

import (
	"fmt"

	"github.com/stacklok/manifest-sync/internal/config"
	"github.com/stacklok/manifest-sync/internal/credentials"
	"github.com/stacklok/manifest-sync/internal/git"
	"github.com/stacklok/manifest-sync/internal/httpclient"
)

// NewFetcher creates the Fetcher matching the configured manifest type
func NewFetcher(cfg *config.ManifestConfig, resolver credentials.Resolver) (Fetcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("manifest configuration is required")
	}
	if resolver == nil {
		resolver = credentials.NoopResolver{}
	}

	switch cfg.Type {
	case config.ManifestTypeHTTP, "":
		client := httpclient.NewDefaultClient(cfg.Timeout.Std(), httpclient.WithCredentialsResolver(resolver))
		return NewHTTPFetcher(cfg.URL, client), nil
	case config.ManifestTypeGit:
		if cfg.Git == nil {
			return nil, fmt.Errorf("git manifest configuration is required")
		}
		return NewGitFetcher(cfg.URL, cfg.Git.Branch, cfg.Git.Path, git.NewDefaultGitClient(), resolver), nil
	case config.ManifestTypeFile:
		return NewFileFetcher(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unsupported manifest type: %s", cfg.Type)
	}
}
