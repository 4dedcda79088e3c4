package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing timestamps
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// runStoreContract exercises the behaviour every Store backend must share.
// newStore must return an initialized, empty store using the given clock.
func runStoreContract(t *testing.T, newStore func(t *testing.T, clock Clock) Store) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t, newFakeClock().Now)

		rec, err := s.Get(t.Context(), "acme/missing")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("upsert inserts then updates in place", func(t *testing.T) {
		s := newStore(t, newFakeClock().Now)
		ctx := t.Context()

		require.NoError(t, s.UpsertSeen(ctx, "acme/a", "1.0.0"))
		first, err := s.Get(ctx, "acme/a")
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "acme/a", first.RepoKey)
		assert.Equal(t, "1.0.0", first.ManifestVersion)
		assert.Nil(t, first.LastRegisteredAt)

		require.NoError(t, s.MarkRegistered(ctx, "acme/a"))
		require.NoError(t, s.UpsertSeen(ctx, "acme/a", "1.0.1"))

		second, err := s.Get(ctx, "acme/a")
		require.NoError(t, err)
		assert.Equal(t, "1.0.1", second.ManifestVersion)
		assert.True(t, second.LastSeenAt.After(first.LastSeenAt))
		require.NotNil(t, second.LastRegisteredAt, "upsert must keep the registration time")

		records, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("mark registered sets timestamp after last seen", func(t *testing.T) {
		s := newStore(t, newFakeClock().Now)
		ctx := t.Context()

		require.NoError(t, s.UpsertSeen(ctx, "acme/b", "2.0.0"))
		require.NoError(t, s.MarkRegistered(ctx, "acme/b"))

		rec, err := s.Get(ctx, "acme/b")
		require.NoError(t, err)
		require.NotNil(t, rec.LastRegisteredAt)
		assert.False(t, rec.LastRegisteredAt.Before(rec.LastSeenAt))
	})

	t.Run("mark registered requires a record", func(t *testing.T) {
		s := newStore(t, newFakeClock().Now)

		err := s.MarkRegistered(t.Context(), "acme/ghost")
		require.ErrorIs(t, err, ErrRecordNotFound)

		rec, err := s.Get(t.Context(), "acme/ghost")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("initialize is idempotent", func(t *testing.T) {
		s := newStore(t, newFakeClock().Now)
		ctx := t.Context()

		require.NoError(t, s.UpsertSeen(ctx, "acme/c", "3"))
		require.NoError(t, s.Initialize(ctx))
		require.NoError(t, s.Initialize(ctx))

		rec, err := s.Get(ctx, "acme/c")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "3", rec.ManifestVersion)
	})

	t.Run("list is ordered by key", func(t *testing.T) {
		s := newStore(t, newFakeClock().Now)
		ctx := t.Context()

		for _, key := range []string{"zeta/x", "alpha/y", "mid/z"} {
			require.NoError(t, s.UpsertSeen(ctx, key, "1"))
		}

		records, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "alpha/y", records[0].RepoKey)
		assert.Equal(t, "mid/z", records[1].RepoKey)
		assert.Equal(t, "zeta/x", records[2].RepoKey)
	})

	t.Run("concurrent upserts keep one record per key", func(t *testing.T) {
		s := newStore(t, newFakeClock().Now)
		ctx := t.Context()

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.UpsertSeen(ctx, "acme/hot", fmt.Sprintf("v%d", i)))
			}(i)
		}
		wg.Wait()

		records, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Regexp(t, `^v\d+$`, records[0].ManifestVersion)
	})
}
