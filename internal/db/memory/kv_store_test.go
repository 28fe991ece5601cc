package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Sideline/internal/core/storage"
)

func TestKVStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	store, err := NewKVStore(10)
	require.NoError(t, err)

	_, err = store.Get(ctx, "selected_team_filter")
	assert.True(t, storage.IsNotFound(err))

	require.NoError(t, store.Set(ctx, "selected_team_filter", `["teamA"]`))
	value, err := store.Get(ctx, "selected_team_filter")
	require.NoError(t, err)
	assert.Equal(t, `["teamA"]`, value)

	require.NoError(t, store.Set(ctx, "selected_team_filter", `[]`))
	value, err = store.Get(ctx, "selected_team_filter")
	require.NoError(t, err)
	assert.Equal(t, `[]`, value)

	require.NoError(t, store.Remove(ctx, "selected_team_filter"))
	_, err = store.Get(ctx, "selected_team_filter")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Removing again is a no-op
	assert.NoError(t, store.Remove(ctx, "selected_team_filter"))
}

func TestKVStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store, err := NewKVStore(2)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Set(ctx, "b", "2"))

	// Touch "a" so "b" becomes the eviction candidate
	_, err = store.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "c", "3"))

	assert.Equal(t, 2, store.Len())
	_, err = store.Get(ctx, "b")
	assert.True(t, storage.IsNotFound(err))
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestNewKVStore_DefaultCapacity(t *testing.T) {
	store, err := NewKVStore(0)
	require.NoError(t, err)
	assert.NotNil(t, store)
}
