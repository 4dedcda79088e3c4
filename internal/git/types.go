package git

import (
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
)

// Auth holds HTTP credentials for a clone.
// Token takes precedence over Username/Password.
type Auth struct {
	Username string
	Password string
	Token    string
}

// CloneConfig contains configuration for cloning a repository
type CloneConfig struct {
	// URL is the repository URL to clone
	URL string

	// Branch is the branch to clone (optional, defaults to the remote HEAD)
	Branch string

	// Auth is optional authentication for HTTP remotes
	Auth *Auth
}

// RepositoryInfo contains information about a cloned repository
type RepositoryInfo struct {
	// Repository is the go-git repository instance
	Repository *git.Repository

	// Branch is the checked out branch name
	Branch string

	// RemoteURL is the remote repository URL
	RemoteURL string

	// storerFilesystem holds the in-memory object database; it is cleared in Cleanup.
	storerFilesystem billy.Filesystem

	// objectCache holds decompressed objects; it is cleared in Cleanup.
	objectCache cache.Object
}
