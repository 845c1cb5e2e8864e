package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eventrian/go-session-service/client/storage"
)

func setupFileStore(t *testing.T) (*storage.FileStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session", "credentials.json")
	store, err := storage.NewFileStore(path)
	require.NoError(t, err)
	return store, path
}

func TestFileStoreGetMissingKey(t *testing.T) {
	store, _ := setupFileStore(t)

	value, err := store.Get("absent")
	require.NoError(t, err)
	require.Empty(t, value)
}

func TestFileStoreSetGetDelete(t *testing.T) {
	store, _ := setupFileStore(t)

	require.NoError(t, store.Set("key-1", "value-1"))
	require.NoError(t, store.Set("key-2", "value-2"))

	value, err := store.Get("key-1")
	require.NoError(t, err)
	require.Equal(t, "value-1", value)

	require.NoError(t, store.Delete("key-1"))
	value, err = store.Get("key-1")
	require.NoError(t, err)
	require.Empty(t, value)

	// The other key is untouched.
	value, err = store.Get("key-2")
	require.NoError(t, err)
	require.Equal(t, "value-2", value)

	// Deleting an absent key is a no-op.
	require.NoError(t, store.Delete("key-1"))
}

func TestFileStoreSharedBetweenInstances(t *testing.T) {
	store, path := setupFileStore(t)
	require.NoError(t, store.Set("key-1", "value-1"))

	// A second instance over the same file sees the write, like another tab
	// sharing the durable tier.
	other, err := storage.NewFileStore(path)
	require.NoError(t, err)
	value, err := other.Get("key-1")
	require.NoError(t, err)
	require.Equal(t, "value-1", value)
}

func TestFileStoreRecoversFromCorruptFile(t *testing.T) {
	store, path := setupFileStore(t)
	require.NoError(t, store.Set("key-1", "value-1"))

	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o600))

	value, err := store.Get("key-1")
	require.NoError(t, err)
	require.Empty(t, value)

	// Writes work again after recovery.
	require.NoError(t, store.Set("key-2", "value-2"))
	value, err = store.Get("key-2")
	require.NoError(t, err)
	require.Equal(t, "value-2", value)
}
