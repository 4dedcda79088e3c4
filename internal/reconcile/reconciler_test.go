package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/manifest-sync/internal/manifest"
	"github.com/stacklok/manifest-sync/internal/store"
	storemocks "github.com/stacklok/manifest-sync/internal/store/mocks"
)

const sourceURL = "https://example.com/manifest.yaml"

var testLocationConfig = LocationConfig{
	DefaultBranch: "main",
	CatalogPath:   "catalog-info.yaml",
	SourceURL:     sourceURL,
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s := store.NewFileStore(filepath.Join(t.TempDir(), "versions.json"))
	require.NoError(t, s.Initialize(t.Context()))
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func desc(workspace, slug, version string) manifest.Descriptor {
	return manifest.Descriptor{ID: slug, Workspace: workspace, RepoSlug: slug, Version: version}
}

func addedKeys(result *Result) []string {
	keys := make([]string, 0, len(result.Added))
	for _, loc := range result.Added {
		keys = append(keys, loc.Annotations[AnnotationRepoKey])
	}
	return keys
}

func TestReconcile_Idempotent(t *testing.T) {
	t.Parallel()

	r := New(newTestStore(t), testLocationConfig)
	descriptors := []manifest.Descriptor{
		desc("acme", "a", "1.0.0"),
		desc("acme", "b", "2.0.0"),
		desc("acme", "c", "3.0.0"),
	}

	first, err := r.Reconcile(t.Context(), descriptors)
	require.NoError(t, err)
	assert.Len(t, first.Added, 3)
	assert.Equal(t, 3, first.New)

	second, err := r.Reconcile(t.Context(), descriptors)
	require.NoError(t, err)
	assert.Empty(t, second.Added)
	assert.Equal(t, []string{"acme/a", "acme/b", "acme/c"}, second.Unchanged)
	assert.Zero(t, second.New)
	assert.Zero(t, second.Changed)
}

func TestReconcile_DuplicateRepoKeyLastEntryWins(t *testing.T) {
	t.Parallel()

	r := New(newTestStore(t), testLocationConfig)
	descriptors := []manifest.Descriptor{
		desc("w", "a", "1.0.0"),
		desc("w", "b", "1.0.0"),
		desc("w", "a", "2.0.0"),
	}

	first, err := r.Reconcile(t.Context(), descriptors)
	require.NoError(t, err)
	assert.Equal(t, []string{"w/b", "w/a"}, addedKeys(first))
	assert.Equal(t, "2.0.0", first.Added[1].Annotations[AnnotationVersion])
	assert.Equal(t, 2, first.New)
	assert.Zero(t, first.Changed)

	for range 2 {
		again, err := r.Reconcile(t.Context(), descriptors)
		require.NoError(t, err)
		assert.Empty(t, again.Added)
		assert.Equal(t, []string{"w/b", "w/a"}, again.Unchanged)
	}
}

func TestReconcile_NewRepositoryEmitsOneLocation(t *testing.T) {
	t.Parallel()

	for _, version := range []string{"1.0.0", "", "latest", "ü-β"} {
		t.Run("version "+version, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t)
			r := New(s, testLocationConfig)

			result, err := r.Reconcile(t.Context(), []manifest.Descriptor{desc("acme", "new", version)})
			require.NoError(t, err)
			require.Len(t, result.Added, 1)
			assert.Equal(t, 1, result.New)
			assert.Equal(t, version, result.Added[0].Annotations[AnnotationVersion])

			rec, err := s.Get(t.Context(), "acme/new")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, version, rec.ManifestVersion)
			assert.NotNil(t, rec.LastRegisteredAt)
		})
	}
}

func TestReconcile_ChangeDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version string
		want    Classification
	}{
		{name: "patch bump", version: "1.0.1", want: ClassificationChanged},
		{name: "same version", version: "1.0.0", want: ClassificationUnchanged},
		{name: "trailing whitespace", version: "1.0.0 ", want: ClassificationChanged},
		{name: "downgrade", version: "0.9.0", want: ClassificationChanged},
		{name: "equivalent reformat", version: "v1.0.0", want: ClassificationChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t)
			require.NoError(t, s.UpsertSeen(t.Context(), "acme/svc", "1.0.0"))
			r := New(s, testLocationConfig)

			result, err := r.Reconcile(t.Context(), []manifest.Descriptor{desc("acme", "svc", tt.version)})
			require.NoError(t, err)

			switch tt.want {
			case ClassificationChanged:
				assert.Equal(t, 1, result.Changed)
				require.Len(t, result.Added, 1)
			case ClassificationUnchanged:
				assert.Empty(t, result.Added)
				assert.Equal(t, []string{"acme/svc"}, result.Unchanged)
			}

			rec, err := s.Get(t.Context(), "acme/svc")
			require.NoError(t, err)
			assert.Equal(t, tt.version, rec.ManifestVersion)
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ClassificationNew, Classify(nil, "1"))
	assert.Equal(t, ClassificationUnchanged, Classify(&store.Record{ManifestVersion: "1"}, "1"))
	assert.Equal(t, ClassificationChanged, Classify(&store.Record{ManifestVersion: "1"}, "2"))
	assert.Equal(t, ClassificationChanged, Classify(&store.Record{ManifestVersion: "1"}, "1 "))
}

func TestReconcile_DeltaIsMinimal(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := New(s, testLocationConfig)
	ctx := t.Context()

	initial := []manifest.Descriptor{
		desc("acme", "a", "1"),
		desc("acme", "b", "1"),
		desc("acme", "c", "1"),
		desc("acme", "d", "1"),
		desc("acme", "e", "1"),
	}
	_, err := r.Reconcile(ctx, initial)
	require.NoError(t, err)

	before := map[string]store.Record{}
	records, err := s.List(ctx)
	require.NoError(t, err)
	for _, rec := range records {
		before[rec.RepoKey] = rec
	}

	next := []manifest.Descriptor{
		desc("acme", "a", "1"),
		desc("acme", "b", "2"),
		desc("acme", "c", "1"),
		desc("acme", "d", "2"),
		desc("acme", "e", "1"),
	}
	result, err := r.Reconcile(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/b", "acme/d"}, addedKeys(result))
	assert.Equal(t, 2, result.Changed)
	assert.Len(t, result.Unchanged, 3)

	records, err = s.List(ctx)
	require.NoError(t, err)
	for _, rec := range records {
		prev := before[rec.RepoKey]
		switch rec.RepoKey {
		case "acme/b", "acme/d":
			assert.Equal(t, "2", rec.ManifestVersion)
			assert.False(t, rec.LastSeenAt.Before(prev.LastSeenAt))
			require.NotNil(t, rec.LastRegisteredAt)
			assert.False(t, rec.LastRegisteredAt.Before(*prev.LastRegisteredAt))
		default:
			assert.Equal(t, prev, rec, "unchanged repositories must not be touched")
		}
	}
}

func TestReconcile_PartialFailureIsolation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockStore := storemocks.NewMockStore(ctrl)
	upsertErr := errors.New("disk full")

	gomock.InOrder(
		mockStore.EXPECT().Get(gomock.Any(), "acme/a").Return(nil, nil),
		mockStore.EXPECT().UpsertSeen(gomock.Any(), "acme/a", "1").Return(nil),
		mockStore.EXPECT().MarkRegistered(gomock.Any(), "acme/a").Return(nil),

		mockStore.EXPECT().Get(gomock.Any(), "acme/b").Return(nil, nil),
		mockStore.EXPECT().UpsertSeen(gomock.Any(), "acme/b", "1").Return(upsertErr),

		mockStore.EXPECT().Get(gomock.Any(), "acme/c").Return(&store.Record{RepoKey: "acme/c", ManifestVersion: "0"}, nil),
		mockStore.EXPECT().UpsertSeen(gomock.Any(), "acme/c", "1").Return(nil),
		mockStore.EXPECT().MarkRegistered(gomock.Any(), "acme/c").Return(nil),

		mockStore.EXPECT().Get(gomock.Any(), "acme/d").Return(&store.Record{RepoKey: "acme/d", ManifestVersion: "1"}, nil),
	)

	r := New(mockStore, testLocationConfig)
	result, err := r.Reconcile(t.Context(), []manifest.Descriptor{
		desc("acme", "a", "1"),
		desc("acme", "b", "1"),
		desc("acme", "c", "1"),
		desc("acme", "d", "1"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme/a", "acme/c"}, addedKeys(result))
	assert.Equal(t, []string{"acme/d"}, result.Unchanged)
	assert.Equal(t, 1, result.New)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "acme/b", result.Failed[0].RepoKey)
	assert.Equal(t, OpUpsert, result.Failed[0].Op)
	assert.ErrorIs(t, result.Failed[0], upsertErr)
}

func TestReconcile_StoreErrorOperations(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name   string
		setup  func(m *storemocks.MockStore)
		wantOp string
	}{
		{
			name: "get fails",
			setup: func(m *storemocks.MockStore) {
				m.EXPECT().Get(gomock.Any(), "acme/x").Return(nil, boom)
			},
			wantOp: OpGet,
		},
		{
			name: "register fails",
			setup: func(m *storemocks.MockStore) {
				m.EXPECT().Get(gomock.Any(), "acme/x").Return(nil, nil)
				m.EXPECT().UpsertSeen(gomock.Any(), "acme/x", "1").Return(nil)
				m.EXPECT().MarkRegistered(gomock.Any(), "acme/x").Return(boom)
			},
			wantOp: OpRegister,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			m := storemocks.NewMockStore(ctrl)
			tt.setup(m)

			result, err := New(m, testLocationConfig).Reconcile(t.Context(), []manifest.Descriptor{desc("acme", "x", "1")})
			require.NoError(t, err)
			assert.Empty(t, result.Added)
			require.Len(t, result.Failed, 1)
			assert.Equal(t, tt.wantOp, result.Failed[0].Op)
			assert.Contains(t, result.Failed[0].Error(), "store "+tt.wantOp+" failed for acme/x")
		})
	}
}

func TestReconcile_NoDeletions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := New(s, testLocationConfig)
	ctx := t.Context()

	_, err := r.Reconcile(ctx, []manifest.Descriptor{desc("acme", "a", "1"), desc("acme", "gone", "1")})
	require.NoError(t, err)
	before, err := s.Get(ctx, "acme/gone")
	require.NoError(t, err)

	result, err := r.Reconcile(ctx, []manifest.Descriptor{desc("acme", "a", "1")})
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Equal(t, []string{"acme/a"}, result.Unchanged)

	after, err := s.Get(ctx, "acme/gone")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReconcile_ThreePassScenario(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := New(s, testLocationConfig)
	ctx := t.Context()

	first, err := r.Reconcile(ctx, []manifest.Descriptor{desc("acme", "A", "1.0.0"), desc("acme", "B", "2.0.0")})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/A", "acme/B"}, addedKeys(first))
	for _, key := range []string{"acme/A", "acme/B"} {
		rec, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, rec.LastRegisteredAt)
	}

	second, err := r.Reconcile(ctx, []manifest.Descriptor{desc("acme", "A", "1.0.0"), desc("acme", "B", "2.0.0")})
	require.NoError(t, err)
	assert.Empty(t, second.Added)

	third, err := r.Reconcile(ctx, []manifest.Descriptor{desc("acme", "A", "1.0.0"), desc("acme", "B", "2.1.0")})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/B"}, addedKeys(third))

	a, err := s.Get(ctx, "acme/A")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", a.ManifestVersion)
	b, err := s.Get(ctx, "acme/B")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", b.ManifestVersion)
}

func TestReconcile_CancelledContextKeepsCommittedWork(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := storemocks.NewMockStore(ctrl)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	m.EXPECT().Get(gomock.Any(), "acme/a").Return(nil, nil)
	m.EXPECT().UpsertSeen(gomock.Any(), "acme/a", "1").Return(nil)
	m.EXPECT().MarkRegistered(gomock.Any(), "acme/a").DoAndReturn(func(context.Context, string) error {
		cancel()
		return nil
	})

	result, err := New(m, testLocationConfig).Reconcile(ctx, []manifest.Descriptor{
		desc("acme", "a", "1"),
		desc("acme", "b", "1"),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, []string{"acme/a"}, addedKeys(result))
}
