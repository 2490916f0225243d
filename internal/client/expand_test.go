package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/store"
)

// fakeStore implements store.Store with an in-memory content map, enough to
// exercise Client.Expand without a real SQLite-backed Store.
type fakeStore struct {
	contents map[document.HandleID]string
}

func (f *fakeStore) ReindexFile(context.Context, store.FileRecord, *document.ParsedFile) error { return nil }
func (f *fakeStore) ReindexBatch(context.Context, []store.FileRecord, []*document.ParsedFile) error {
	return nil
}
func (f *fakeStore) GetFileMeta(context.Context, string) (store.FileRecord, bool, error) {
	return store.FileRecord{}, false, nil
}
func (f *fakeStore) AllFileMeta(context.Context) (map[string]store.FileRecord, error) { return nil, nil }
func (f *fakeStore) Invalidate(context.Context, string) error                         { return nil }
func (f *fakeStore) Expand(_ context.Context, id document.HandleID) (string, error) {
	content, ok := f.contents[id]
	if !ok {
		return "", assert.AnError
	}
	return content, nil
}
func (f *fakeStore) GetFile(context.Context, string) ([]document.Handle, error) { return nil, nil }
func (f *fakeStore) FTSSearch(context.Context, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) NodesByType(context.Context, document.NodeType, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) SearchSections(context.Context, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) SearchCode(context.Context, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) SearchDefinitions(context.Context, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) SearchChildren(context.Context, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) SearchChildrenNamed(context.Context, string, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) SearchReferenceSources(context.Context, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) SearchReferences(context.Context, string, int) ([]document.RefHandle, error) {
	return nil, nil
}
func (f *fakeStore) SearchInFiles(context.Context, string, string, int) ([]document.Handle, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

func TestExpandLocalReturnsContentsForKnownHandles(t *testing.T) {
	c := &Client{local: &fakeStore{contents: map[document.HandleID]string{"h1": "func f() {}"}}}
	contents, failed, err := c.expandLocal(context.Background(), []ExpandRequest{{ID: "h1"}})
	require.NoError(t, err)
	assert.Equal(t, "func f() {}", contents["h1"])
	assert.Empty(t, failed)
}

func TestExpandLocalFailsCallOnlyWhenAllHandlesFail(t *testing.T) {
	c := &Client{local: &fakeStore{contents: map[document.HandleID]string{"h1": "ok"}}}
	contents, failed, err := c.expandLocal(context.Background(), []ExpandRequest{{ID: "h1"}, {ID: "missing"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", contents["h1"])
	assert.Equal(t, []document.HandleID{"missing"}, failed)
}

func TestExpandLocalReturnsErrorWhenEverythingFails(t *testing.T) {
	c := &Client{local: &fakeStore{contents: map[document.HandleID]string{}}}
	_, _, err := c.expandLocal(context.Background(), []ExpandRequest{{ID: "missing"}})
	assert.Error(t, err)
}

func TestExpandServiceRoutesByProvenance(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/add":
			json.NewEncoder(w).Encode(reposAddResponse{RepoID: "repo-1"})
		case "/expand":
			var req expandWireRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			resp := expandWireResponse{}
			for _, h := range req.Handles {
				resp.Contents = append(resp.Contents, expandWireContent{HandleID: h.ID, Content: "service:" + h.ID})
			}
			json.NewEncoder(w).Encode(resp)
		}
	}))
	defer ts.Close()

	root := t.TempDir()
	cl, err := NewService(root, ts.URL, store.Config{})
	require.NoError(t, err)
	defer cl.Close()
	cl.local = &fakeStore{contents: map[document.HandleID]string{"local1": "local content"}}

	repoID, err := cl.resolveRepoID(context.Background())
	require.NoError(t, err)
	cl.provenance.Record(repoID, "local1", Provenance{Source: SourceLocal})
	cl.provenance.Record(repoID, "svc1", Provenance{Source: SourceService, Generation: 7})

	contents, failed, err := cl.Expand(context.Background(), []ExpandRequest{{ID: "local1"}, {ID: "svc1"}})
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, "local content", contents["local1"])
	assert.Equal(t, "service:svc1", contents["svc1"])
}
