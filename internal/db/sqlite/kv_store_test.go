package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Sideline/internal/core/storage"
)

func openTestStore(t *testing.T) (*KVStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "sideline.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestKVStore_RoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "blocked_users_last_fetch")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, "blocked_users_last_fetch", "1700000000000"))
	value, err := store.Get(ctx, "blocked_users_last_fetch")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", value)

	require.NoError(t, store.Set(ctx, "blocked_users_last_fetch", "1700000060000"))
	value, err = store.Get(ctx, "blocked_users_last_fetch")
	require.NoError(t, err)
	assert.Equal(t, "1700000060000", value)

	require.NoError(t, store.Remove(ctx, "blocked_users_last_fetch"))
	_, err = store.Get(ctx, "blocked_users_last_fetch")
	assert.True(t, storage.IsNotFound(err))
}

func TestKVStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sideline.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "selected_team_filter", `["teamA"]`))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "selected_team_filter")
	require.NoError(t, err)
	assert.Equal(t, `["teamA"]`, value)
}
