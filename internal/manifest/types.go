package manifest

import (
	"context"
	"fmt"
)

// Descriptor is one repository entry declared by the manifest.
type Descriptor struct {
	// ID is informational only and never used for lookups
	ID        string `json:"id"`
	Workspace string `json:"workspace"`
	RepoSlug  string `json:"repoSlug"`
	Version   string `json:"version"`
}

// RepoKey returns the stable identity of the repository, "workspace/repoSlug".
func (d Descriptor) RepoKey() string {
	return RepoKey(d.Workspace, d.RepoSlug)
}

// RepoKey builds a repository key from its parts.
func RepoKey(workspace, repoSlug string) string {
	return fmt.Sprintf("%s/%s", workspace, repoSlug)
}

// Manifest is the parsed manifest document.
type Manifest struct {
	Spec Spec `json:"spec"`
}

// Spec holds the repository list of a manifest.
type Spec struct {
	Repositories []Descriptor `json:"repositories"`
}

// FetchResult contains the result of a manifest fetch operation
type FetchResult struct {
	// Descriptors are the manifest entries in document order
	Descriptors []Descriptor

	// SourceURL identifies where the manifest was read from
	SourceURL string

	// Hash is the SHA256 hash of the raw manifest bytes
	Hash string
}

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks github.com/stacklok/manifest-sync/internal/manifest Fetcher

// Fetcher retrieves and parses the remote manifest.
// Implementations return *FetchError or *ShapeError on failure.
type Fetcher interface {
	// Fetch retrieves the manifest and returns its descriptors
	Fetch(ctx context.Context) (*FetchResult, error)

	// SourceURL returns the manifest location used in emitted location metadata
	SourceURL() string
}
