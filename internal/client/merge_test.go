package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/query"
)

func handleFor(path string, tokens int) document.Handle {
	return document.NewHandle(path, document.NodeFunction, document.Span{Start: 0, End: 10}, 1, 1, tokens, "preview")
}

func TestTagAllMarksEverySourceUniformly(t *testing.T) {
	result := &query.Result{
		Handles:     []document.Handle{handleFor("a.go", 5), handleFor("b.go", 7)},
		TotalTokens: 12,
	}
	tagged := tagAll(result, SourceLocal, 0)

	assert.Len(t, tagged.Handles, 2)
	for _, h := range tagged.Handles {
		assert.Equal(t, SourceLocal, h.Source)
	}
	assert.Equal(t, 12, tagged.TotalTokens)
}

func TestMergeDirtyOverlayDiscardsServiceHandlesForDirtyPath(t *testing.T) {
	service := &query.Result{
		Handles: []document.Handle{
			handleFor("dirty.go", 10),
			handleFor("clean.go", 20),
		},
		TotalTokens: 30,
	}
	local := &query.Result{
		Handles: []document.Handle{handleFor("dirty.go", 99)},
	}
	dirty := map[string]bool{"dirty.go": false}

	merged := mergeDirtyOverlay(service, 5, local, dirty)

	var sawDirty, sawClean bool
	for _, h := range merged.Handles {
		if h.FilePath == "dirty.go" {
			sawDirty = true
			assert.Equal(t, SourceLocal, h.Source)
			assert.Equal(t, 99, h.TokenCount)
		}
		if h.FilePath == "clean.go" {
			sawClean = true
			assert.Equal(t, SourceService, h.Source)
			assert.Equal(t, uint64(5), h.Generation)
		}
	}
	assert.True(t, sawDirty)
	assert.True(t, sawClean)
	assert.Equal(t, 20+99, merged.TotalTokens)
}

func TestMergeDirtyOverlayIgnoresLocalHandlesForCleanPath(t *testing.T) {
	h := handleFor("clean.go", 15)
	service := &query.Result{Handles: []document.Handle{h}}
	local := &query.Result{Handles: []document.Handle{h}} // same ID, would only surface if clean.go were dirty
	dirty := map[string]bool{}

	merged := mergeDirtyOverlay(service, 1, local, dirty)

	assert.Len(t, merged.Handles, 1)
	assert.Equal(t, SourceService, merged.Handles[0].Source)
}

func TestMergeDirtyOverlayHandlesNilLocalResult(t *testing.T) {
	service := &query.Result{Handles: []document.Handle{handleFor("clean.go", 3)}}
	merged := mergeDirtyOverlay(service, 1, nil, map[string]bool{"other.go": false})
	assert.Len(t, merged.Handles, 1)
	assert.Equal(t, SourceService, merged.Handles[0].Source)
}
