package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/store"
)

func openTestStore(t *testing.T) (store.Store, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(root, store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunSequentialIndexesNewFiles(t *testing.T) {
	st, root := openTestStore(t)
	writeFile(t, root, "a.go", "package a\n\nfunc Hello() {}\n")
	writeFile(t, root, "b.go", "package a\n\nfunc World() {}\n")

	result, err := Run(context.Background(), st, root, "*.go", DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesSkipped)
	assert.Greater(t, result.TotalTokens, 0)
}

func TestRunSequentialSkipsUnchangedFileOnSecondPass(t *testing.T) {
	st, root := openTestStore(t)
	writeFile(t, root, "a.go", "package a\n\nfunc Hello() {}\n")

	cfg := DefaultConfig()
	_, err := Run(context.Background(), st, root, "*.go", cfg)
	require.NoError(t, err)

	result, err := Run(context.Background(), st, root, "*.go", cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesIndexed)
	assert.Equal(t, 1, result.FilesSkipped)
}

func TestRunSequentialReindexesChangedContentEvenWithStaleTTL(t *testing.T) {
	st, root := openTestStore(t)
	writeFile(t, root, "a.go", "package a\n\nfunc Hello() {}\n")

	cfg := DefaultConfig()
	cfg.TTL = 0 // force every pass past the mtime check into the hash check
	_, err := Run(context.Background(), st, root, "*.go", cfg)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	writeFile(t, root, "a.go", "package a\n\nfunc Hello() { println(\"changed\") }\n")

	result, err := Run(context.Background(), st, root, "*.go", cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
}

func TestRunParallelIndexesLargeCandidateSet(t *testing.T) {
	st, root := openTestStore(t)
	cfg := DefaultConfig()
	cfg.SequentialThreshold = 2 // force the parallel path with few files

	for i := 0; i < 10; i++ {
		writeFile(t, root, filepathJoinIndex(i), "package a\n\nfunc F() {}\n")
	}

	result, err := Run(context.Background(), st, root, "**/*.go", cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesSkipped)
}

func filepathJoinIndex(i int) string {
	return "pkg/file" + string(rune('a'+i)) + ".go"
}

func TestDiscoverWalkRespectsGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package a\n")
	writeFile(t, root, "docs/readme.md", "# hi\n")

	matches, err := discoverWalk(root, "**/*.go")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "src/a.go", matches[0])
}

func TestFastSkipRespectsTTL(t *testing.T) {
	meta := store.FileRecord{ModTime: 100, IndexedAt: time.Now().Unix()}
	cfg := Config{TTL: time.Hour}
	assert.True(t, fastSkip(meta, 100, time.Now(), cfg))
	assert.False(t, fastSkip(meta, 200, time.Now(), cfg))

	stale := store.FileRecord{ModTime: 100, IndexedAt: time.Now().Add(-2 * time.Hour).Unix()}
	assert.False(t, fastSkip(stale, 100, time.Now(), cfg))
}
