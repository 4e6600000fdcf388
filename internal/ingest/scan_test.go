package ingest_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/shikya/call-record-ingestor/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel ...string) []string {
	paths := make([]string, 0, len(rel))
	for _, r := range rel {
		path := filepath.Join(root, r)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
		paths = append(paths, path)
	}

	return paths
}

func TestDiscover_FindsRecordingsRecursively(t *testing.T) {
	root := t.TempDir()
	expected := touch(t, root,
		"Alice-20230714153045.aac",
		"b/Bob-20230714153045.AAC",
		"b/c/Carol-20230714153045.Aac",
	)
	touch(t, root, "notes.txt", "b/Bob-20230714153045.aac.part", "b/c/cover.mp3")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "folder.aac"), 0o755))

	found, err := ingest.Discover(root, ingest.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, expected, found, "paths should be returned in walk order")
}

func TestDiscover_EmptyRoot(t *testing.T) {
	found, err := ingest.Discover(t.TempDir(), ingest.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := ingest.Discover(filepath.Join(t.TempDir(), "missing"), ingest.ScanOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiscover_ExcludesDirectories(t *testing.T) {
	root := t.TempDir()
	expected := touch(t, root, "Alice-20230714153045.aac")
	touch(t, root, "archive/2023/07 July/Bob-20230714153045.aac")

	found, err := ingest.Discover(root, ingest.ScanOptions{Exclude: []string{filepath.Join(root, "archive")}})
	require.NoError(t, err)
	assert.Equal(t, expected, found)
}

func TestDiscover_SkipsKnownPaths(t *testing.T) {
	root := t.TempDir()
	paths := touch(t, root, "Alice-20230714153045.aac", "Bob-20230714153045.aac")

	found, err := ingest.Discover(root, ingest.ScanOptions{Known: map[string]bool{paths[0]: true}})
	require.NoError(t, err)
	assert.Equal(t, paths[1:], found)
}

func TestDiscover_HoldsRecentlyModifiedFiles(t *testing.T) {
	root := t.TempDir()
	paths := touch(t, root, "Alice-20230714153045.aac", "Bob-20230714153045.aac")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(paths[0], old, old))

	found, err := ingest.Discover(root, ingest.ScanOptions{MinModTimeAge: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, paths[:1], found)
}

func TestDiscover_FollowsSymlinksToFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	root := t.TempDir()
	target := touch(t, t.TempDir(), "Alice-20230714153045.aac")[0]
	link := filepath.Join(root, "Alice-20230714153045.aac")
	require.NoError(t, os.Symlink(target, link))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "Bob-20230714153045.aac")))

	found, err := ingest.Discover(root, ingest.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{link}, found, "dangling links are skipped")
}
