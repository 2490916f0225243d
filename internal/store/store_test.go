package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/document"
)

func openTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	repoRoot := t.TempDir()
	s, err := Open(repoRoot, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, repoRoot
}

func writeSourceFile(t *testing.T, repoRoot, rel, content string) string {
	t.Helper()
	full := filepath.Join(repoRoot, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

// sampleParsedFile builds a small parsed document with one function node
// containing one call reference, mirroring what the parser would emit for a
// tiny source file.
func sampleParsedFile(path, source, funcName string, funcSpan document.Span, ref document.Reference) *document.ParsedFile {
	hash := sha256.Sum256([]byte(source))
	node := document.Node{
		NodeType:   document.NodeFunction,
		Span:       funcSpan,
		LineStart:  1,
		LineEnd:    1,
		Metadata:   document.FunctionMeta{Name: funcName, Signature: "()"},
		Name:       funcName,
		NameLower:  strings.ToLower(funcName),
		TokenCount: funcSpan.Len() / 4,
		Preview:    document.GeneratePreview(source, funcSpan, 80),
	}
	return &document.ParsedFile{
		Path:        path,
		Source:      source,
		ContentHash: hash,
		Nodes:       []document.Node{node},
		Refs:        []document.Reference{ref},
		TotalTokens: node.TokenCount,
	}
}

func TestReindexFileAndSearchCode(t *testing.T) {
	s, repoRoot := openTestStore(t)
	ctx := context.Background()

	source := "func Greet() {\n\tHello()\n}\n"
	funcSpan := document.Span{Start: 0, End: len(source) - 1}
	ref := document.Reference{
		Name: "Hello", NameLower: "hello", RefType: document.RefCall,
		Span: document.Span{Start: 16, End: 23}, LineStart: 2, LineEnd: 2, Preview: "Hello()",
	}
	parsed := sampleParsedFile("greet.go", source, "Greet", funcSpan, ref)

	full := writeSourceFile(t, repoRoot, "greet.go", source)
	info, err := os.Stat(full)
	require.NoError(t, err)

	file := FileRecord{
		Path: "greet.go", ContentHash: parsed.ContentHash,
		ModTime: info.ModTime().Unix(), IndexedAt: nowUnix(), TotalTokens: parsed.TotalTokens,
	}
	require.NoError(t, s.ReindexFile(ctx, file, parsed))

	handles, err := s.SearchCode(ctx, "greet", 10)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "greet.go", handles[0].FilePath)
	assert.Equal(t, document.NodeFunction, handles[0].NodeType)

	// Case-insensitive exact match, via the symbol cache fast path.
	handles, err = s.SearchDefinitions(ctx, "GREET", 10)
	require.NoError(t, err)
	require.Len(t, handles, 1)

	meta, ok, err := s.GetFileMeta(ctx, "greet.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, parsed.ContentHash, meta.ContentHash)
}

func TestSearchReferenceSources(t *testing.T) {
	s, repoRoot := openTestStore(t)
	ctx := context.Background()

	source := "func Greet() {\n\tHello()\n}\n"
	funcSpan := document.Span{Start: 0, End: len(source) - 1}
	ref := document.Reference{
		Name: "Hello", NameLower: "hello", RefType: document.RefCall,
		Span: document.Span{Start: 16, End: 23}, LineStart: 2, LineEnd: 2, Preview: "Hello()",
	}
	parsed := sampleParsedFile("greet.go", source, "Greet", funcSpan, ref)
	writeSourceFile(t, repoRoot, "greet.go", source)

	file := FileRecord{Path: "greet.go", ContentHash: parsed.ContentHash, ModTime: 1, IndexedAt: 1, TotalTokens: parsed.TotalTokens}
	require.NoError(t, s.ReindexFile(ctx, file, parsed))

	sources, err := s.SearchReferenceSources(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, document.NodeFunction, sources[0].NodeType)

	refs, err := s.SearchReferences(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Hello", refs[0].Name)
	assert.NotEmpty(t, refs[0].SourceHandleID)
}

func TestExpandDetectsStaleIndex(t *testing.T) {
	s, repoRoot := openTestStore(t)
	ctx := context.Background()

	source := "func Greet() {}\n"
	funcSpan := document.Span{Start: 0, End: len(source) - 1}
	ref := document.Reference{Name: "x", NameLower: "x", Span: document.Span{}, Preview: ""}
	parsed := sampleParsedFile("greet.go", source, "Greet", funcSpan, ref)
	writeSourceFile(t, repoRoot, "greet.go", source)

	file := FileRecord{Path: "greet.go", ContentHash: parsed.ContentHash, ModTime: 1, IndexedAt: 1, TotalTokens: parsed.TotalTokens}
	require.NoError(t, s.ReindexFile(ctx, file, parsed))

	handles, err := s.SearchCode(ctx, "greet", 10)
	require.NoError(t, err)
	require.Len(t, handles, 1)

	content, err := s.Expand(ctx, handles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, source[:len(source)-1], content)

	// Mutate the file on disk without reindexing: expand must now fail.
	writeSourceFile(t, repoRoot, "greet.go", "func Greet() {\n\t// changed\n}\n")
	_, err = s.Expand(ctx, handles[0].ID)
	require.Error(t, err)
	assert.Equal(t, canopyerr.CodeStaleIndex, canopyerr.GetCode(err))
}

func TestInvalidateRemovesFileAndSweepsFTS(t *testing.T) {
	s, repoRoot := openTestStore(t)
	ctx := context.Background()

	source := "func Greet() {}\n"
	funcSpan := document.Span{Start: 0, End: len(source) - 1}
	ref := document.Reference{Name: "x", NameLower: "x", Span: document.Span{}, Preview: ""}
	parsed := sampleParsedFile("greet.go", source, "Greet", funcSpan, ref)
	writeSourceFile(t, repoRoot, "greet.go", source)

	file := FileRecord{Path: "greet.go", ContentHash: parsed.ContentHash, ModTime: 1, IndexedAt: 1, TotalTokens: parsed.TotalTokens}
	require.NoError(t, s.ReindexFile(ctx, file, parsed))

	require.NoError(t, s.Invalidate(ctx, "*"))

	_, ok, err := s.GetFileMeta(ctx, "greet.go")
	require.NoError(t, err)
	assert.False(t, ok)

	handles, err := s.SearchCode(ctx, "greet", 10)
	require.NoError(t, err)
	assert.Empty(t, handles)

	var ftsCount int
	require.NoError(t, s.db.QueryRow(`SELECT count(*) FROM fts_content`).Scan(&ftsCount))
	assert.Equal(t, 0, ftsCount)
}

func TestSchemaVersionMismatchFailsClosed(t *testing.T) {
	repoRoot := t.TempDir()
	s, err := Open(repoRoot, Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	dbPath := filepath.Join(repoRoot, ".canopy", "index.db")
	db, err := sql.Open(driverName, dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE schema_version SET version = version + 1`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(repoRoot, Config{})
	require.Error(t, err)
	assert.Equal(t, canopyerr.CodeSchemaVersionMismatch, canopyerr.GetCode(err))
}

func TestReindexBatchLengthMismatch(t *testing.T) {
	s, _ := openTestStore(t)
	err := s.ReindexBatch(context.Background(), []FileRecord{{Path: "a"}}, nil)
	require.Error(t, err)
}
