package manifest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/manifest-sync/internal/credentials"
	"github.com/stacklok/manifest-sync/internal/git"
)

// GitFetcher reads the manifest from a file inside a Git repository.
type GitFetcher struct {
	repository string
	branch     string
	path       string
	gitClient  git.Client
	resolver   credentials.Resolver
}

var _ Fetcher = (*GitFetcher)(nil)

// NewGitFetcher creates a fetcher reading path at branch of repository.
func NewGitFetcher(repository, branch, path string, gitClient git.Client, resolver credentials.Resolver) *GitFetcher {
	if resolver == nil {
		resolver = credentials.NoopResolver{}
	}
	return &GitFetcher{
		repository: repository,
		branch:     branch,
		path:       path,
		gitClient:  gitClient,
		resolver:   resolver,
	}
}

// Fetch clones the repository in memory and parses the manifest file.
func (f *GitFetcher) Fetch(ctx context.Context) (*FetchResult, error) {
	creds, err := f.resolver.ResolveCredentials(ctx, f.repository)
	if err != nil {
		return nil, &FetchError{URL: f.repository, Err: fmt.Errorf("failed to resolve credentials: %w", err)}
	}

	cloneCfg := &git.CloneConfig{URL: f.repository, Branch: f.branch}
	if creds != nil {
		cloneCfg.Auth = &git.Auth{Username: creds.Username, Password: creds.Secret}
		if creds.Type == credentials.TypeBearer {
			cloneCfg.Auth = &git.Auth{Token: creds.Secret}
		}
	}

	repoInfo, err := f.gitClient.Clone(ctx, cloneCfg)
	if err != nil {
		return nil, &FetchError{URL: f.repository, Err: err}
	}
	defer func() {
		if err := f.gitClient.Cleanup(ctx, repoInfo); err != nil {
			slog.Warn("Failed to clean up repository clone", "repository", f.repository, "error", err)
		}
	}()

	data, err := f.gitClient.GetFileContent(repoInfo, f.path)
	if err != nil {
		return nil, &FetchError{URL: f.repository, Err: err}
	}

	slog.DebugContext(ctx, "Read manifest from repository",
		"repository", f.repository,
		"branch", repoInfo.Branch,
		"path", f.path)
	return Parse(data, f.repository)
}

// SourceURL returns the repository URL.
func (f *GitFetcher) SourceURL() string {
	return f.repository
}
