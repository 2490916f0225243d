package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/document"
)

// Expand resolves a handle ID to its current content. It looks up the node's
// (path, span, type) and the content hash recorded for that file at index
// time, re-hashes the file on disk, and fails with stale_index if they
// differ: expansion is strongly consistent with the indexed state, not with
// whatever is currently on disk.
func (s *SQLiteStore) Expand(ctx context.Context, id document.HandleID) (string, error) {
	s.mu.Lock()
	var (
		filePath           string
		spanStart, spanEnd int
		indexedHash        []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT nodes.file_path, nodes.span_start, nodes.span_end, files.content_hash
		FROM nodes JOIN files ON files.path = nodes.file_path
		WHERE nodes.handle_id = ?`, string(id),
	).Scan(&filePath, &spanStart, &spanEnd, &indexedHash)
	s.mu.Unlock()

	if err == sql.ErrNoRows {
		return "", canopyerr.HandleNotFound(string(id))
	}
	if err != nil {
		return "", fmt.Errorf("expand: lookup handle: %w", err)
	}

	// file_path is stored relative to the repo root, two levels above the
	// index file at <root>/.canopy/index.db.
	fullPath := filePath
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(filepath.Dir(filepath.Dir(s.path)), filePath)
	}
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("expand: read %s: %w", filePath, err)
	}

	currentHash := sha256.Sum256(raw)
	if len(indexedHash) != len(currentHash) || string(indexedHash) != string(currentHash[:]) {
		return "", canopyerr.StaleIndex(filePath)
	}

	return document.SafeSlice(string(raw), spanStart, spanEnd), nil
}
