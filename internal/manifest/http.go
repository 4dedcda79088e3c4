package manifest

import (
	"context"
	"log/slog"

	"github.com/stacklok/manifest-sync/internal/httpclient"
)

// HTTPFetcher downloads the manifest from an HTTP(S) URL.
type HTTPFetcher struct {
	url    string
	client httpclient.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher for url using client.
func NewHTTPFetcher(url string, client httpclient.Client) *HTTPFetcher {
	return &HTTPFetcher{url: url, client: client}
}

// Fetch downloads and parses the manifest.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*FetchResult, error) {
	data, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, &FetchError{URL: f.url, Err: err}
	}

	slog.DebugContext(ctx, "Downloaded manifest", "url", f.url, "bytes", len(data))
	return Parse(data, f.url)
}

// SourceURL returns the manifest URL.
func (f *HTTPFetcher) SourceURL() string {
	return f.url
}
