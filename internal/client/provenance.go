package client

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/canopy-project/canopy/internal/document"
)

// DefaultProvenanceCacheSize is the default capacity of a ProvenanceTracker.
const DefaultProvenanceCacheSize = 10_000

// Source identifies which backend produced a handle.
type Source string

const (
	SourceLocal   Source = "local"
	SourceService Source = "service"
)

// Provenance is what the client runtime remembers about one handle: which
// backend produced it and, for service handles, the generation it was
// produced at.
type Provenance struct {
	Source     Source
	Generation uint64
}

type provenanceKey struct {
	repoPath string
	handleID document.HandleID
}

// ProvenanceTracker is a bounded LRU of (repo key, handle_id) -> Provenance,
// used to route a later expand request to the backend that produced the
// handle without re-querying. The client runtime passes its service repo ID
// as the repo key, not the canonical repo path.
type ProvenanceTracker struct {
	cache *lru.Cache[provenanceKey, Provenance]
}

// NewProvenanceTracker builds a tracker with the given capacity (defaults to
// DefaultProvenanceCacheSize if size <= 0).
func NewProvenanceTracker(size int) *ProvenanceTracker {
	if size <= 0 {
		size = DefaultProvenanceCacheSize
	}
	cache, _ := lru.New[provenanceKey, Provenance](size)
	return &ProvenanceTracker{cache: cache}
}

// Record tags a handle with its provenance.
func (t *ProvenanceTracker) Record(repoPath string, handleID document.HandleID, prov Provenance) {
	t.cache.Add(provenanceKey{repoPath, handleID}, prov)
}

// Lookup returns the recorded provenance for a handle, if any.
func (t *ProvenanceTracker) Lookup(repoPath string, handleID document.HandleID) (Provenance, bool) {
	return t.cache.Get(provenanceKey{repoPath, handleID})
}

// InvalidateRepo drops every entry for repoPath. The client runtime calls it
// when it re-resolves its repo ID after repo_not_found; a generation change
// alone does not invalidate entries.
func (t *ProvenanceTracker) InvalidateRepo(repoPath string) {
	for _, key := range t.cache.Keys() {
		if key.repoPath == repoPath {
			t.cache.Remove(key)
		}
	}
}
