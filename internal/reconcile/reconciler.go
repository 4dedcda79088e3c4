// Package reconcile diffs manifest descriptors against the version store and
// produces the locations that must be handed to the publication sink.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/stacklok/manifest-sync/internal/manifest"
	"github.com/stacklok/manifest-sync/internal/store"
	"github.com/stacklok/manifest-sync/internal/versions"
)

// Classification is the outcome of comparing a descriptor with its stored record
type Classification string

const (
	// ClassificationNew means the repository had no stored record
	ClassificationNew Classification = "new"

	// ClassificationChanged means the stored version differs from the manifest
	ClassificationChanged Classification = "changed"

	// ClassificationUnchanged means the stored version equals the manifest version
	ClassificationUnchanged Classification = "unchanged"
)

// Result is the outcome of one reconciliation over a descriptor list.
type Result struct {
	// Added holds the locations of new and changed repositories, in manifest order
	Added []Location `json:"added"`

	// Unchanged holds the repository keys that needed no publication
	Unchanged []string `json:"unchanged"`

	// Failed holds per-repository store failures
	Failed []*StoreError `json:"-"`

	New     int `json:"new"`
	Changed int `json:"changed"`
}

// Reconciler classifies descriptors and records new versions in the store.
type Reconciler struct {
	store  store.Store
	config LocationConfig
}

// New creates a Reconciler writing to s and building locations with cfg
func New(s store.Store, cfg LocationConfig) *Reconciler {
	return &Reconciler{store: s, config: cfg}
}

// Classify compares version with the stored record
func Classify(rec *store.Record, version string) Classification {
	switch {
	case rec == nil:
		return ClassificationNew
	case rec.ManifestVersion == version:
		return ClassificationUnchanged
	default:
		return ClassificationChanged
	}
}

// Reconcile processes descriptors sequentially in order. When a repoKey appears
// more than once, only its last entry is reconciled. Store failures are
// collected in Result.Failed and do not stop the pass. The returned error is
// non-nil only when ctx ends mid-pass; work committed before that stays committed.
func (r *Reconciler) Reconcile(ctx context.Context, descriptors []manifest.Descriptor) (*Result, error) {
	result := &Result{
		Added:     []Location{},
		Unchanged: []string{},
	}

	for _, d := range collapseDuplicates(ctx, descriptors) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		repoKey := d.RepoKey()
		class, err := r.reconcileOne(ctx, d)
		if err != nil {
			slog.WarnContext(ctx, "Failed to reconcile repository",
				"repo", repoKey,
				"op", err.Op,
				"error", err.Err)
			result.Failed = append(result.Failed, err)
			continue
		}

		switch class {
		case ClassificationUnchanged:
			result.Unchanged = append(result.Unchanged, repoKey)
			slog.DebugContext(ctx, "Repository unchanged", "repo", repoKey, "version", d.Version)
			continue
		case ClassificationNew:
			result.New++
		case ClassificationChanged:
			result.Changed++
		}

		result.Added = append(result.Added, BuildLocation(d, r.config))
		slog.InfoContext(ctx, "Repository version recorded",
			"repo", repoKey,
			"version", d.Version,
			"classification", string(class))
	}

	return result, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, d manifest.Descriptor) (Classification, *StoreError) {
	repoKey := d.RepoKey()

	rec, err := r.store.Get(ctx, repoKey)
	if err != nil {
		return "", &StoreError{RepoKey: repoKey, Op: OpGet, Err: err}
	}

	class := Classify(rec, d.Version)
	switch class {
	case ClassificationUnchanged:
		return class, nil
	case ClassificationChanged:
		slog.DebugContext(ctx, "Repository version changed",
			"repo", repoKey,
			"previous", rec.ManifestVersion,
			"version", d.Version,
			"direction", string(versions.CompareDirection(rec.ManifestVersion, d.Version)))
	}

	if err := r.store.UpsertSeen(ctx, repoKey, d.Version); err != nil {
		return "", &StoreError{RepoKey: repoKey, Op: OpUpsert, Err: err}
	}
	if err := r.store.MarkRegistered(ctx, repoKey); err != nil {
		return "", &StoreError{RepoKey: repoKey, Op: OpRegister, Err: err}
	}
	return class, nil
}

// collapseDuplicates keeps the last descriptor for each repoKey, at the
// position of that last entry.
func collapseDuplicates(ctx context.Context, descriptors []manifest.Descriptor) []manifest.Descriptor {
	last := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		last[d.RepoKey()] = i
	}
	if len(last) == len(descriptors) {
		return descriptors
	}

	kept := make([]manifest.Descriptor, 0, len(last))
	for i, d := range descriptors {
		if last[d.RepoKey()] != i {
			slog.WarnContext(ctx, "Ignoring duplicate manifest entry",
				"repo", d.RepoKey(),
				"version", d.Version,
				"kept_version", descriptors[last[d.RepoKey()]].Version)
			continue
		}
		kept = append(kept, d)
	}
	return kept
}
