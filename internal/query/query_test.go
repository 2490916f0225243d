package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/parse"
	"github.com/canopy-project/canopy/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

const sampleGo = `package greet

import "fmt"

type Store struct {
	name string
}

func (s *Store) Greet() {
	fmt.Println(Hello())
}

func Hello() string {
	return "hi"
}
`

func indexSample(t *testing.T, st store.Store, path, source string) {
	t.Helper()
	parsed := parse.Parse(path, []byte(source), parse.DefaultConfig())
	record := store.FileRecord{
		Path:        path,
		ContentHash: parsed.ContentHash,
		ModTime:     1,
		IndexedAt:   1,
		TotalTokens: parsed.TotalTokens,
	}
	require.NoError(t, st.ReindexFile(context.Background(), record, parsed))
}

func TestValidateRejectsKindWithoutSymbol(t *testing.T) {
	err := Params{Kind: KindDefinition}.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsEmptyPatternsSlice(t *testing.T) {
	err := Params{Patterns: []string{}}.Validate()
	assert.Error(t, err)
}

func TestExecuteSymbolLowersToCode(t *testing.T) {
	st := newTestStore(t)
	indexSample(t, st, "greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Symbol: "Hello"})
	require.NoError(t, err)
	require.Len(t, result.Handles, 1)
	assert.Equal(t, document.NodeFunction, result.Handles[0].NodeType)
}

func TestExecuteDefinitionKindWithParentLowersToChildrenNamed(t *testing.T) {
	st := newTestStore(t)
	indexSample(t, st, "greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Kind: KindDefinition, Parent: "Store", Symbol: "Greet"})
	require.NoError(t, err)
	require.Len(t, result.Handles, 1)
	assert.Equal(t, document.NodeMethod, result.Handles[0].NodeType)
}

func TestExecuteReferenceKindReturnsRefHandles(t *testing.T) {
	st := newTestStore(t)
	indexSample(t, st, "greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Kind: KindReference, Symbol: "Hello"})
	require.NoError(t, err)
	require.Nil(t, result.Handles)
	require.Len(t, result.RefHandles, 1)
	assert.Equal(t, "Hello", result.RefHandles[0].Name)
}

func TestExecuteUnionMergesPatterns(t *testing.T) {
	st := newTestStore(t)
	indexSample(t, st, "greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Patterns: []string{"Hello", "Greet"}, MatchMode: MatchAny})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(result.Handles), 1)
}

func TestExecuteIntersectRequiresAllPatterns(t *testing.T) {
	st := newTestStore(t)
	indexSample(t, st, "greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Patterns: []string{"Hello", "nonexistentxyz"}, MatchMode: MatchAll})
	require.NoError(t, err)
	assert.Empty(t, result.Handles)
}

func TestExecuteGlobWrapsWithInFile(t *testing.T) {
	st := newTestStore(t)
	indexSample(t, st, "pkg/greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Symbol: "Hello", Glob: "pkg/**"})
	require.NoError(t, err)
	require.Len(t, result.Handles, 1)

	result, err = Execute(context.Background(), st, Params{Symbol: "Hello", Glob: "other/**"})
	require.NoError(t, err)
	assert.Empty(t, result.Handles)
}

func TestExecuteAutoExpandUnderBudgetAttachesContent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.go"), []byte(sampleGo), 0o644))
	st, err := store.Open(root, store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	indexSample(t, st, "greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Symbol: "Hello", ExpandBudget: 10000})
	require.NoError(t, err)
	require.Len(t, result.Handles, 1)
	require.NotNil(t, result.Handles[0].Content)
	assert.Contains(t, *result.Handles[0].Content, "return")
}

func TestExecuteAutoExpandOverBudgetLeavesNote(t *testing.T) {
	st := newTestStore(t)
	indexSample(t, st, "greet.go", sampleGo)

	result, err := Execute(context.Background(), st, Params{Symbol: "Hello", ExpandBudget: 1})
	require.NoError(t, err)
	require.Len(t, result.Handles, 1)
	assert.Nil(t, result.Handles[0].Content)
	assert.NotEmpty(t, result.Note)
}
