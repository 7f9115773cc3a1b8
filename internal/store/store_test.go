package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "prefs.json"))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "prefs.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("luach-show-seconds", "true"))
			v, ok, err := s.Get("luach-show-seconds")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "true", v)

			require.NoError(t, s.Set("luach-show-seconds", "false"))
			v, _, _ = s.Get("luach-show-seconds")
			assert.Equal(t, "false", v)

			b := NewBatch()
			b.Put("a", "1")
			b.Put("b", "2")
			b.Remove("luach-show-seconds")
			require.NoError(t, s.SetBatch(b))

			v, _, _ = s.Get("a")
			assert.Equal(t, "1", v)
			_, ok, _ = s.Get("luach-show-seconds")
			assert.False(t, ok)

			require.NoError(t, s.Delete("a"))
			_, ok, _ = s.Get("a")
			assert.False(t, ok)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("luach-custom-title", "Shul Board"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get("luach-custom-title")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Shul Board", v)
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, ok, err := s.Get("anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemStoreFailedBatchLeavesState(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Set("k", "old"))
	s.FailWrites = true

	b := NewBatch()
	b.Put("k", "new")
	assert.Error(t, s.SetBatch(b))

	v, _, _ := s.Get("k")
	assert.Equal(t, "old", v)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", "x")
	assert.Error(t, err)

	s, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemStore{}, s)
}
