package client

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/pipeline"
	"github.com/canopy-project/canopy/internal/store"
)

func runGit(t *testing.T, root string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", root}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func initCommittedRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	runGit(t, root, "init")
	runGit(t, root, "config", "user.email", "test@example.com")
	runGit(t, root, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(root, "committed.go"), []byte("package x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte(".canopy/\n"), 0o644))
	runGit(t, root, "add", ".")
	runGit(t, root, "commit", "-m", "initial")
	return root
}

func TestGitPorcelainDirtyDetectsModifiedFile(t *testing.T) {
	root := initCommittedRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "committed.go"), []byte("package x\n\nfunc f() {}\n"), 0o644))

	dirty, err := gitPorcelainDirty(context.Background(), root)
	require.NoError(t, err)
	deleted, ok := dirty["committed.go"]
	assert.True(t, ok)
	assert.False(t, deleted)
}

func TestGitPorcelainDirtyTreatsUntrackedAsAdded(t *testing.T) {
	root := initCommittedRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package x\n"), 0o644))

	dirty, err := gitPorcelainDirty(context.Background(), root)
	require.NoError(t, err)
	deleted, ok := dirty["new.go"]
	assert.True(t, ok)
	assert.False(t, deleted)
}

func TestGitPorcelainDirtyDetectsDeletedFile(t *testing.T) {
	root := initCommittedRepo(t)
	require.NoError(t, os.Remove(filepath.Join(root, "committed.go")))

	dirty, err := gitPorcelainDirty(context.Background(), root)
	require.NoError(t, err)
	deleted, ok := dirty["committed.go"]
	assert.True(t, ok)
	assert.True(t, deleted)
}

func TestGitPorcelainDirtyEmptyForCleanTree(t *testing.T) {
	root := initCommittedRepo(t)
	dirty, err := gitPorcelainDirty(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestFingerprintEntriesChangesWithMtime(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("one"), 0o644))

	entries := map[string]bool{"a.go": false}
	fp1, err := fingerprintEntries(root, entries)
	require.NoError(t, err)

	// Force a distinct mtime.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.go"), future, future))

	fp2, err := fingerprintEntries(root, entries)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestFingerprintEntriesDeletedPathUsesSentinel(t *testing.T) {
	root := t.TempDir()
	entries := map[string]bool{"gone.go": true}
	fp, err := fingerprintEntries(root, entries)
	require.NoError(t, err)
	assert.NotEmpty(t, fp)
}

func TestDirtyTrackerRefreshReindexesModifiedFileAndSkipsOnRepeat(t *testing.T) {
	root := initCommittedRepo(t)
	st, err := store.Open(root, store.Config{})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "committed.go"), []byte("package x\n\nfunc f() {}\n"), 0o644))

	tr := newDirtyTracker(root)
	cfg := pipeline.DefaultConfig()

	dirty, err := tr.refresh(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Contains(t, dirty, "committed.go")

	meta, ok, err := st.GetFileMeta(context.Background(), "committed.go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotZero(t, meta.TotalTokens)

	// A second refresh with nothing changed should be a no-op: it must not
	// error, and the cached fingerprint should already match.
	dirty2, err := tr.refresh(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Contains(t, dirty2, "committed.go")
}

func TestDirtyTrackerRefreshReturnsNilForCleanTree(t *testing.T) {
	root := initCommittedRepo(t)
	st, err := store.Open(root, store.Config{})
	require.NoError(t, err)
	defer st.Close()

	tr := newDirtyTracker(root)
	dirty, err := tr.refresh(context.Background(), st, pipeline.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, dirty)
}
