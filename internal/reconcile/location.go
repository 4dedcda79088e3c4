package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/stacklok/manifest-sync/internal/manifest"
)

// DefaultTargetTemplate builds Bitbucket "src" URLs
const DefaultTargetTemplate = "https://bitbucket.org/{workspace}/{repoSlug}/src/{branch}/{path}"

const (
	// LocationType is the type of every emitted location
	LocationType = "url"

	// LocationPresence marks locations as optional for the downstream catalog
	LocationPresence = "optional"

	// AnnotationSourceURL carries the manifest the location came from
	AnnotationSourceURL = "manifest-sync/source-url"

	// AnnotationRepoKey carries the repository key
	AnnotationRepoKey = "manifest-sync/repo-key"

	// AnnotationVersion carries the manifest version at emission time
	AnnotationVersion = "manifest-sync/manifest-version"
)

// nameDigestBytes is how many bytes of the repoKey digest end a location name
const nameDigestBytes = 4

// Location points the downstream catalog at a repository's catalog file.
type Location struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Target      string            `json:"target"`
	Presence    string            `json:"presence"`
	Annotations map[string]string `json:"annotations"`
}

// LocationConfig holds the settings used to build locations.
type LocationConfig struct {
	DefaultBranch  string
	CatalogPath    string
	SourceURL      string
	TargetTemplate string
}

// BuildLocation derives the location of d. It performs no I/O.
func BuildLocation(d manifest.Descriptor, cfg LocationConfig) Location {
	tmpl := cfg.TargetTemplate
	if tmpl == "" {
		tmpl = DefaultTargetTemplate
	}

	target := strings.NewReplacer(
		"{workspace}", url.PathEscape(d.Workspace),
		"{repoSlug}", url.PathEscape(d.RepoSlug),
		"{branch}", escapePath(cfg.DefaultBranch),
		"{path}", escapePath(strings.TrimPrefix(cfg.CatalogPath, "/")),
	).Replace(tmpl)

	return Location{
		Name:     locationName(d),
		Type:     LocationType,
		Target:   target,
		Presence: LocationPresence,
		Annotations: map[string]string{
			AnnotationSourceURL: cfg.SourceURL,
			AnnotationRepoKey:   d.RepoKey(),
			AnnotationVersion:   d.Version,
		},
	}
}

// locationName is a readable lowercased prefix plus a short digest of the
// case-sensitive repoKey, so distinct repositories never share a name.
func locationName(d manifest.Descriptor) string {
	sum := sha256.Sum256([]byte(d.RepoKey()))
	return strings.ToLower("manifest-"+d.Workspace+"-"+d.RepoSlug) + "-" + hex.EncodeToString(sum[:nameDigestBytes])
}

// escapePath escapes each segment of p and keeps the separators
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
