package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	data := []byte("data-version: 2\n'1':\n    name: shop\n")
	path, err := Write(dir, data, 2, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "save-20260102T030405.000000000.yml.zst", filepath.Base(path))

	meta, got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 2, meta.DataVersion)
	assert.Equal(t, len(data), meta.Size)
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad"+suffix)
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))
	_, _, err := Read(path)
	require.Error(t, err)
}

func TestListAndPrune(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		p, err := Write(dir, []byte{byte(i)}, 2, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		paths = append(paths, p)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	list, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{paths[3], paths[2], paths[1], paths[0]}, list)

	removed, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	list, err = List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{paths[3], paths[2]}, list)

	missing, err := List(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
