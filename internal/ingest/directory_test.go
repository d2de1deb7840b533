package ingest

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "visit1.pdf"))
	touch(t, filepath.Join(root, "scan.PNG"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, ".hidden.pdf"))
	touch(t, filepath.Join(root, ".cache", "cached.pdf"))
	touch(t, filepath.Join(root, "nested", "visit2.jpeg"))

	paths, stats, err := ScanDirectory(root, slog.Default())
	require.NoError(t, err)

	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		rel = append(rel, r)
	}
	assert.ElementsMatch(t, []string{
		"visit1.pdf",
		"scan.PNG",
		filepath.Join("nested", "visit2.jpeg"),
	}, rel)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(0), stats.Failed)
}

func TestScanDirectoryEmptyRoot(t *testing.T) {
	_, _, err := ScanDirectory("  ", slog.Default())
	assert.Error(t, err)
}

func TestAllowedExt(t *testing.T) {
	assert.True(t, AllowedExt(".pdf"))
	assert.True(t, AllowedExt(".JPEG"))
	assert.True(t, AllowedExt("png"))
	assert.False(t, AllowedExt(".docx"))
	assert.False(t, AllowedExt(""))
}
