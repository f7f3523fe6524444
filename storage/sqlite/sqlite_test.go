package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/storage/memory"
	"github.com/jrsteele09/go-role-sessions/storage/sqlite"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "nested", "sessions.db"), WALMode: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(sqlite.Config{})
	require.Error(t, err)
}

func TestBackend(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := db.Backend("browser-1")

	_, ok, err := b.Get(ctx, "token_user")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Set(ctx, "token_user", "A"))
	require.NoError(t, b.Set(ctx, "token_user", "B"))
	v, ok, err := b.Get(ctx, "token_user")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B", v)

	t.Run("scopes are isolated", func(t *testing.T) {
		_, ok, err := db.Backend("browser-2").Get(ctx, "token_user")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, b.Delete(ctx, "token_user"))
		require.NoError(t, b.Delete(ctx, "token_user"))
		_, ok, err := b.Get(ctx, "token_user")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	db, err := sqlite.Open(sqlite.Config{Path: path})
	require.NoError(t, err)
	store := storage.NewStore(db.Backend("cli"), memory.New())
	require.NoError(t, store.SetSession(ctx, namespace.Agency, storage.Record{Access: "A", Refresh: "R", Role: "agency"}, true))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(sqlite.Config{Path: path})
	require.NoError(t, err)
	defer db.Close()

	store = storage.NewStore(db.Backend("cli"), memory.New())
	refresh, ok := store.Get(ctx, namespace.Agency, storage.FieldRefresh)
	require.True(t, ok)
	require.Equal(t, "R", refresh)
}
