package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeWriteFileCreatesParents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "nested", "report.json")
	require.NoError(t, SafeWriteFile(path, []byte("one")))
	require.NoError(t, SafeWriteFile(path, []byte("two")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFindRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "workspace.json"), []byte("{}"), 0o644))
	deep := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	file := filepath.Join(deep, "data.csv")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := FindRoot(deep, "workspace.json")
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = FindRoot(file, "workspace.json")
	require.NoError(t, err)
	assert.Equal(t, root, got)

	_, err = FindRoot(deep, "no-such-marker.json")
	assert.ErrorIs(t, err, ErrRootNotFound)
}
