package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/document"
)

func newEntry(name, path string) symbolEntry {
	return symbolEntry{
		handle:    document.NewHandle(path, document.NodeFunction, document.Span{Start: 0, End: 10}, 1, 1, 2, name),
		filePath:  path,
		nameLower: name,
	}
}

func TestSymbolCacheLookupDistinguishesMissFromEmpty(t *testing.T) {
	c := newSymbolCache()

	_, ok := c.Lookup("missing")
	assert.False(t, ok, "a name never inserted must report no entry, not an empty hit")

	c.insertLocked("greet", newEntry("greet", "a.go"))
	c.removeFileLocked("a.go")

	entries, ok := c.Lookup("greet")
	assert.True(t, ok, "a name whose only entry was removed keeps its forward-map slot")
	assert.Empty(t, entries)
}

func TestSymbolCacheReplaceFileIsScopedToThatFile(t *testing.T) {
	c := newSymbolCache()
	c.insertLocked("greet", newEntry("greet", "a.go"))
	c.insertLocked("greet", newEntry("greet", "b.go"))

	c.ReplaceFile("a.go", nil)

	entries, ok := c.Lookup("greet")
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.go", entries[0].filePath)
}

func TestSymbolCacheRemoveFileIsReverseIndexed(t *testing.T) {
	c := newSymbolCache()
	c.insertLocked("alpha", newEntry("alpha", "a.go"))
	c.insertLocked("beta", newEntry("beta", "a.go"))
	c.insertLocked("gamma", newEntry("gamma", "b.go"))

	c.RemoveFile("a.go")

	_, ok := c.Lookup("alpha")
	assert.True(t, ok)
	entries, _ := c.Lookup("alpha")
	assert.Empty(t, entries)

	entries, ok = c.Lookup("gamma")
	require.True(t, ok)
	require.Len(t, entries, 1)

	_, hasA := c.reverse["a.go"]
	assert.False(t, hasA)
}
