package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormIdempotencyStore(t *testing.T) {
	store := NewGormIdempotencyStore(setupTestDB(t))
	ctx := t.Context()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	marked, err := store.MarkProcessed(ctx, "entry-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = store.MarkProcessed(ctx, "entry-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, marked, "second mark reports the key as already applied")

	ok, err := store.IsProcessed(ctx, "entry-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsProcessed(ctx, "entry-2")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	ok, err = store.IsProcessed(ctx, "entry-1")
	require.NoError(t, err)
	assert.False(t, ok, "expired keys no longer count")

	marked, err = store.MarkProcessed(ctx, "entry-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, marked, "an expired key can be marked again")

	_, err = store.MarkProcessed(ctx, "entry-3", time.Minute)
	require.NoError(t, err)
	now = now.Add(10 * time.Minute)
	purged, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.NoError(t, store.Close())
}
