package shard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/query"
)

func initGitRoot(t *testing.T, root, sha string) {
	t.Helper()
	gitDir := filepath.Join(root, ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "refs", "heads", "main"), []byte(sha+"\n"), 0o644))
}

func writeSourceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(ManagerConfig{})
	require.NoError(t, err)
	return mgr
}

func TestRegisterRejectsNonGitRoot(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.Register(t.TempDir(), "")
	assert.Error(t, err)
}

func TestRegisterIsIdempotentByPath(t *testing.T) {
	mgr := newTestManager(t)
	root := t.TempDir()
	initGitRoot(t, root, "abc123")

	first, err := mgr.Register(root, "myrepo")
	require.NoError(t, err)
	second, err := mgr.Register(root, "myrepo")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusPending, first.Status)
}

func TestReindexCoalescesConcurrentCalls(t *testing.T) {
	mgr := newTestManager(t)
	root := t.TempDir()
	initGitRoot(t, root, "abc123")
	writeSourceFile(t, root, "greet.go", "package greet\n\nfunc Hello() string { return \"hi\" }\n")

	sh, err := mgr.Register(root, "myrepo")
	require.NoError(t, err)

	mgr.mu.Lock()
	mgr.shards[sh.ID].Status = StatusIndexing
	mgr.mu.Unlock()

	outcome, err := mgr.Reindex(sh.ID, "**/*.go")
	require.NoError(t, err)
	assert.Equal(t, "already_indexing", outcome.Status)
}

func TestReindexThenQueryFindsSymbol(t *testing.T) {
	mgr := newTestManager(t)
	root := t.TempDir()
	initGitRoot(t, root, "abc123")
	writeSourceFile(t, root, "greet.go", "package greet\n\nfunc Hello() string { return \"hi\" }\n")

	sh, err := mgr.Register(root, "myrepo")
	require.NoError(t, err)

	outcome, err := mgr.Reindex(sh.ID, "**/*.go")
	require.NoError(t, err)
	assert.Equal(t, "indexing", outcome.Status)

	require.Eventually(t, func() bool {
		got, err := mgr.Get(sh.ID)
		return err == nil && got.Status == StatusReady
	}, 5*time.Second, 10*time.Millisecond)

	result, generation, err := mgr.ServeQuery(context.Background(), sh.ID, query.Params{Symbol: "Hello"})
	require.NoError(t, err)
	require.Len(t, result.Handles, 1)
	assert.Equal(t, generation, result.Handles[0].Generation)
	assert.EqualValues(t, 1, generation)
}

func TestServeQueryOnPendingShardFails(t *testing.T) {
	mgr := newTestManager(t)
	root := t.TempDir()
	initGitRoot(t, root, "abc123")

	sh, err := mgr.Register(root, "myrepo")
	require.NoError(t, err)

	_, _, err = mgr.ServeQuery(context.Background(), sh.ID, query.Params{Symbol: "Hello"})
	assert.Error(t, err)
}

func TestServeExpandRejectsStaleGeneration(t *testing.T) {
	mgr := newTestManager(t)
	root := t.TempDir()
	initGitRoot(t, root, "abc123")
	writeSourceFile(t, root, "greet.go", "package greet\n\nfunc Hello() string { return \"hi\" }\n")

	sh, err := mgr.Register(root, "myrepo")
	require.NoError(t, err)
	_, err = mgr.Reindex(sh.ID, "**/*.go")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := mgr.Get(sh.ID)
		return err == nil && got.Status == StatusReady
	}, 5*time.Second, 10*time.Millisecond)

	result, generation, err := mgr.ServeQuery(context.Background(), sh.ID, query.Params{Symbol: "Hello"})
	require.NoError(t, err)
	require.Len(t, result.Handles, 1)

	staleGen := generation + 1
	_, failed, err := mgr.ServeExpand(context.Background(), sh.ID, []ExpandRequest{
		{ID: result.Handles[0].ID, Generation: &staleGen},
	})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
