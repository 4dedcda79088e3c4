package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileFetcher reads the manifest from the local filesystem.
type FileFetcher struct {
	sourceURL string
	path      string
}

var _ Fetcher = (*FileFetcher)(nil)

// NewFileFetcher creates a fetcher for a local path or file:// URL.
func NewFileFetcher(location string) *FileFetcher {
	path := strings.TrimPrefix(location, "file://")
	return &FileFetcher{sourceURL: location, path: filepath.Clean(path)}
}

// Fetch reads and parses the manifest file.
func (f *FileFetcher) Fetch(ctx context.Context) (*FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: f.sourceURL, Err: err}
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &FetchError{URL: f.sourceURL, Err: fmt.Errorf("failed to read manifest file: %w", err)}
	}
	return Parse(data, f.sourceURL)
}

// SourceURL returns the configured location.
func (f *FileFetcher) SourceURL() string {
	return f.sourceURL
}
