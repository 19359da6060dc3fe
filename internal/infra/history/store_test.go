package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaverbot/quaver/internal/domain/track"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		require.NoError(t, store.Record(ctx, "g1", track.Track{
			Title:       title,
			URL:         "https://example.com/" + title,
			RequestedBy: "alice",
		}))
		// Distinct timestamps keep the ordering deterministic.
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := store.Recent(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Title)
	assert.Equal(t, "first", entries[2].Title)
	assert.Equal(t, "alice", entries[0].RequestedBy)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].PlayedAt.IsZero())
}

func TestStore_RecentHonorsLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, "g1", track.Track{Title: "t", URL: "u"}))
	}

	entries, err := store.Recent(ctx, "g1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_RecentIsolatesGuilds(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "g1", track.Track{Title: "a", URL: "u"}))
	require.NoError(t, store.Record(ctx, "g2", track.Track{Title: "b", URL: "u"}))

	entries, err := store.Recent(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Title)

	entries, err = store.Recent(ctx, "g3", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_CountByGuild(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "g1", track.Track{Title: "a", URL: "u"}))
	require.NoError(t, store.Record(ctx, "g1", track.Track{Title: "b", URL: "u"}))
	require.NoError(t, store.Record(ctx, "g2", track.Track{Title: "c", URL: "u"}))

	counts, err := store.CountByGuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"g1": 2, "g2": 1}, counts)
}
