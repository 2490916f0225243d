// Package store provides the durable, transactional, per-repo index:
// files, nodes, references, two full-text search tables, and an in-memory
// symbol cache kept coherent with the on-disk state.
package store

import (
	"context"

	"github.com/canopy-project/canopy/internal/document"
)

// CurrentSchemaVersion is the schema version this binary knows how to read
// and write. A stored version that differs fails open() with
// schema_version_mismatch rather than silently migrating.
const CurrentSchemaVersion = 1

// FileRecord is the persisted row for one indexed file.
type FileRecord struct {
	Path        string
	ContentHash [32]byte
	ModTime     int64 // unix seconds
	IndexedAt   int64 // unix seconds
	TotalTokens int
}

// DefaultSearchLimit is applied when a caller requests zero or a negative limit.
const DefaultSearchLimit = 20

// Store is the durable per-repo index.
type Store interface {
	// ReindexFile replaces one file's nodes/refs/FTS rows in a single
	// transaction and, after commit, applies the file's changes to the
	// symbol cache itself.
	ReindexFile(ctx context.Context, file FileRecord, parsed *document.ParsedFile) error

	// ReindexBatch replaces multiple files' rows in a single transaction.
	// Symbol-cache mutation happens only after the transaction commits.
	ReindexBatch(ctx context.Context, files []FileRecord, parsed []*document.ParsedFile) error

	// GetFileMeta returns the stored (mtime, hash, indexed_at, tokens) for
	// a path, used by the pipeline's skip decisions. The second return
	// value is false if the file has never been indexed.
	GetFileMeta(ctx context.Context, path string) (FileRecord, bool, error)

	// AllFileMeta batch-loads every file's metadata in one scan, for the
	// pipeline's parallel path.
	AllFileMeta(ctx context.Context) (map[string]FileRecord, error)

	// Invalidate removes file rows (and cascades to nodes/refs/FTS) for
	// paths matching glob, or every file if glob is "" or "*".
	Invalidate(ctx context.Context, glob string) error

	// Expand resolves a handle ID to its current content, failing with
	// stale_index if the file's content hash no longer matches.
	Expand(ctx context.Context, id document.HandleID) (string, error)

	// GetFile treats the single file matching pathGlob as one whole-file
	// chunk node (for the get_file primitive).
	GetFile(ctx context.Context, pathGlob string) ([]document.Handle, error)

	// Each search primitive returns up to limit handles; callers needing
	// truncation detection request limit*2 and compare counts themselves
	// (see internal/query).
	FTSSearch(ctx context.Context, text string, limit int) ([]document.Handle, error)
	NodesByType(ctx context.Context, nodeType document.NodeType, limit int) ([]document.Handle, error)
	SearchSections(ctx context.Context, headingSubstring string, limit int) ([]document.Handle, error)
	SearchCode(ctx context.Context, symbol string, limit int) ([]document.Handle, error)
	SearchDefinitions(ctx context.Context, symbol string, limit int) ([]document.Handle, error)
	SearchChildren(ctx context.Context, parent string, limit int) ([]document.Handle, error)
	SearchChildrenNamed(ctx context.Context, parent, symbol string, limit int) ([]document.Handle, error)
	SearchReferenceSources(ctx context.Context, symbol string, limit int) ([]document.Handle, error)
	SearchReferences(ctx context.Context, symbol string, limit int) ([]document.RefHandle, error)
	SearchInFiles(ctx context.Context, glob, text string, limit int) ([]document.Handle, error)

	Close() error
}
