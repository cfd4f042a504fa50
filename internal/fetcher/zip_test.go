package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestExtractZIP(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"gadm41_NGA_1.shp": "state shapes",
		"gadm41_NGA_1.dbf": "state attrs",
		"doc/readme.txt":   "GADM 4.1",
	})

	dest := t.TempDir()
	paths, err := ExtractZIP(archive, dest)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	data, err := os.ReadFile(filepath.Join(dest, "gadm41_NGA_1.shp"))
	require.NoError(t, err)
	assert.Equal(t, "state shapes", string(data))

	// Nested entry gets its parent directory created.
	_, err = os.Stat(filepath.Join(dest, "doc", "readme.txt"))
	assert.NoError(t, err)
}

func TestExtractZIP_RejectsEscapingEntry(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"../outside.txt": "nope",
	})

	_, err := ExtractZIP(archive, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}

func TestExtractZIP_MissingArchive(t *testing.T) {
	_, err := ExtractZIP(filepath.Join(t.TempDir(), "nope.zip"), t.TempDir())
	assert.Error(t, err)
}
