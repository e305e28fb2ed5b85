package prefs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err, "NewDB should succeed")
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "prefs.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "directory should exist after NewDB")
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}
}

func TestNewDB_RunsMigrations(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	var tableName string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='prefs'`).Scan(&tableName)
	require.NoError(t, err, "prefs table should exist after migrations")
	require.Equal(t, "prefs", tableName)
}

func TestNewDB_IdempotentOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, NewStore(db).Set("key", "value"))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err, "reopening an up-to-date database should succeed")
	defer db.Close()

	value, err := NewStore(db).Get("key")
	require.NoError(t, err)
	require.Equal(t, "value", value)
}

func TestStore_SetGetDelete(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(KeyEnabledProjects, "chromium"))
	value, err := store.Get(KeyEnabledProjects)
	require.NoError(t, err)
	require.Equal(t, "chromium", value)

	// Overwrite
	require.NoError(t, store.Set(KeyEnabledProjects, "firefox"))
	value, err = store.Get(KeyEnabledProjects)
	require.NoError(t, err)
	require.Equal(t, "firefox", value)

	require.NoError(t, store.Delete(KeyEnabledProjects))
	_, err = store.Get(KeyEnabledProjects)
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(KeyEnabledProjects))
}

func TestStore_StringLists(t *testing.T) {
	store := newTestStore(t)

	values, err := store.GetStrings(KeyWatchedItems)
	require.NoError(t, err)
	require.Nil(t, values, "absent key should read as nil, not error")

	require.NoError(t, store.SetStrings(KeyWatchedItems, []string{"a", "b", "c"}))
	values, err = store.GetStrings(KeyWatchedItems)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, values)

	require.NoError(t, store.SetStrings(KeyWatchedItems, nil))
	values, err = store.GetStrings(KeyWatchedItems)
	require.NoError(t, err)
	require.Nil(t, values, "empty stored list should read as nil")
}
