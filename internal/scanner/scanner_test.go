package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.h5ad", "dataset a")
	writeFile(t, dir, "b.h5ad", "dataset b")
	writeFile(t, dir, "notes.txt", "ignore me")
	writeFile(t, dir, "nested/c.h5ad", "dataset c")

	s, err := New(dir, ".h5ad", nil, 4, nil)
	require.NoError(t, err)

	files, skipped, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, skipped)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.RelPath)
	}
	assert.Equal(t, []string{"a.h5ad", "b.h5ad", "nested/c.h5ad"}, paths)

	for _, f := range files {
		assert.Len(t, f.Fingerprint, 64)
		assert.NotZero(t, f.Size)
		assert.True(t, filepath.IsAbs(f.AbsPath))
	}
}

func TestScanExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.h5ad", "keep")
	writeFile(t, dir, "tmp/drop.h5ad", "drop")

	s, err := New(dir, ".h5ad", []string{"tmp/**"}, 4, nil)
	require.NoError(t, err)

	files, _, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.h5ad", files[0].RelPath)
}

func TestScanDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c.h5ad", "c")
	writeFile(t, dir, "a.h5ad", "a")
	writeFile(t, dir, "b.h5ad", "b")

	s, err := New(dir, ".h5ad", nil, 8, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		files, _, err := s.Scan(context.Background())
		require.NoError(t, err)
		require.Len(t, files, 3)
		assert.Equal(t, "a.h5ad", files[0].RelPath)
		assert.Equal(t, "b.h5ad", files[1].RelPath)
		assert.Equal(t, "c.h5ad", files[2].RelPath)
	}
}

func TestScanUnreadableFileIsSkippedNotFatal(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are ignored when running as root")
	}

	dir := t.TempDir()
	writeFile(t, dir, "good.h5ad", "ok")
	locked := writeFile(t, dir, "locked.h5ad", "secret")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	s, err := New(dir, ".h5ad", nil, 2, nil)
	require.NoError(t, err)

	files, skipped, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "good.h5ad", files[0].RelPath)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Path, "locked.h5ad")
}

func TestNewRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "plain.h5ad", "x")

	_, err := New(file, ".h5ad", nil, 1, nil)
	assert.Error(t, err)

	_, err = New(filepath.Join(dir, "missing"), ".h5ad", nil, 1, nil)
	assert.Error(t, err)
}
