package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/shard"
	"github.com/canopy-project/canopy/internal/store"
)

func newTestServiceClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	root := t.TempDir()
	cl, err := NewService(root, ts.URL, store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl
}

func TestResolveRepoIDMemoizesAfterFirstCall(t *testing.T) {
	calls := 0
	cl := newTestServiceClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(reposAddResponse{RepoID: "repo-1", Name: "x"})
	}))

	id1, err := cl.resolveRepoID(context.Background())
	require.NoError(t, err)
	id2, err := cl.resolveRepoID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "repo-1", id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, calls)
}

func TestReresolveRepoIDForcesFreshRegistration(t *testing.T) {
	calls := 0
	cl := newTestServiceClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(reposAddResponse{RepoID: "repo-1", Name: "x"})
	}))

	_, err := cl.resolveRepoID(context.Background())
	require.NoError(t, err)
	_, err = cl.reresolveRepoID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestEnsureReadyReturnsOnceStatusReady(t *testing.T) {
	poll := 0
	cl := newTestServiceClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/add":
			json.NewEncoder(w).Encode(reposAddResponse{RepoID: "repo-1"})
		case "/status":
			poll++
			status := shard.StatusPending
			if poll >= 2 {
				status = shard.StatusReady
			}
			json.NewEncoder(w).Encode(statusResponse{Repos: []*shard.RepoShard{{ID: "repo-1", Status: status}}})
		}
	}))

	err := cl.EnsureReady(context.Background(), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, poll, 2)
}

func TestEnsureReadyReturnsErrorOnErrorStatus(t *testing.T) {
	cl := newTestServiceClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/add":
			json.NewEncoder(w).Encode(reposAddResponse{RepoID: "repo-1"})
		case "/status":
			json.NewEncoder(w).Encode(statusResponse{Repos: []*shard.RepoShard{
				{ID: "repo-1", Status: shard.StatusError, LastError: "parse failed"},
			}})
		}
	}))

	err := cl.EnsureReady(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse failed")
}

func TestEnsureReadyStandaloneIsNoop(t *testing.T) {
	root := t.TempDir()
	cl, err := NewStandalone(root, store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	require.NoError(t, cl.EnsureReady(context.Background(), 0))
}
