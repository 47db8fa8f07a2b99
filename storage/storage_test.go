package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store KeyValueStore) {
	t.Helper()

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set("settings", []byte(`{"defaultSlippage":1.5}`)))
	value, ok, err := store.Get("settings")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"defaultSlippage":1.5}`, string(value))

	require.NoError(t, store.Remove("settings"))
	_, ok, err = store.Get("settings")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	raw := []byte("abc")
	require.NoError(t, store.Set("k", raw))
	raw[0] = 'z'

	value, _, err := store.Get("k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(value))
}

func TestLevelDBStore(t *testing.T) {
	store, err := OpenLevelDB(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestLevelDBStoreClosed(t *testing.T) {
	store, err := OpenLevelDB(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.Get("k")
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpenLevelDBRequiresPath(t *testing.T) {
	_, err := OpenLevelDB("  ")
	require.Error(t, err)
}
