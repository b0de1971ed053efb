package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.xml")

	require.NoError(t, WriteFileAtomic(path, []byte("<c/>"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<c/>", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteFileAtomic_FailsWhenParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := WriteFileAtomic(filepath.Join(blocker, "c.xml"), []byte("<c/>"), 0o644)
	assert.Error(t, err)
}

func TestWriteFileAtomic_SyncFailureKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.xml")
	require.NoError(t, os.WriteFile(path, []byte("<old/>"), 0o644))

	boom := errors.New("fsync: input/output error")
	orig := syncFile
	syncFile = func(*os.File) error { return boom }
	t.Cleanup(func() { syncFile = orig })

	err := WriteFileAtomic(path, []byte("<new/>"), 0o644)

	assert.ErrorIs(t, err, boom)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<old/>", string(data), "failed write is not committed")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file removed")
}
