package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/canopy-project/canopy/internal/document"
)

// ReindexFile replaces file's rows in a single transaction. Symbol-cache
// mutation happens only after the transaction commits, so readers never
// observe a half-updated cache.
func (s *SQLiteStore) ReindexFile(ctx context.Context, file FileRecord, parsed *document.ParsedFile) error {
	return s.ReindexBatch(ctx, []FileRecord{file}, []*document.ParsedFile{parsed})
}

// ReindexBatch replaces multiple files' rows in one transaction, in
// parser-emit order within each file, so parent→child handle references
// reconstruct deterministically.
func (s *SQLiteStore) ReindexBatch(ctx context.Context, files []FileRecord, parsed []*document.ParsedFile) error {
	if len(files) != len(parsed) {
		return fmt.Errorf("store: files/parsed length mismatch (%d vs %d)", len(files), len(parsed))
	}
	if len(files) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	type fileEntries struct {
		path    string
		entries []symbolEntry
	}
	var deltas []fileEntries

	for i, f := range files {
		entries, err := writeOneFile(ctx, tx, f, parsed[i])
		if err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
		deltas = append(deltas, fileEntries{path: f.Path, entries: entries})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	for _, d := range deltas {
		s.cache.ReplaceFile(d.path, d.entries)
	}
	return nil
}

func writeOneFile(ctx context.Context, tx *sql.Tx, file FileRecord, parsed *document.ParsedFile) ([]symbolEntry, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, file.Path); err != nil {
		return nil, fmt.Errorf("delete existing file row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO files (path, content_hash, mtime, indexed_at, total_tokens)
		VALUES (?, ?, ?, ?, ?)`,
		file.Path, file.ContentHash[:], file.ModTime, file.IndexedAt, file.TotalTokens,
	); err != nil {
		return nil, fmt.Errorf("insert file row: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (
			handle_id, file_path, node_type, span_start, span_end,
			line_start, line_end, metadata_json, name, name_lower,
			parent_name, parent_name_lower, parent_handle_id, parent_node_type,
			parent_span_start, parent_span_end, token_count, preview
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	ftsContentStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_content (handle_id, content) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare fts_content insert: %w", err)
	}
	defer ftsContentStmt.Close()

	ftsSymbolStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_symbols (handle_id, name) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare fts_symbols insert: %w", err)
	}
	defer ftsSymbolStmt.Close()

	var symbolEntries []symbolEntry

	for _, node := range parsed.Nodes {
		handleID := document.NewHandleID(file.Path, node.NodeType, node.Span)
		metaJSON, err := document.MetadataToJSON(node.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal node metadata: %w", err)
		}

		var parentHandleID string
		var parentNodeType *document.NodeType
		var parentSpanStart, parentSpanEnd *int
		if node.ParentSpan != nil && node.ParentNodeType != nil {
			id := document.NewHandleID(file.Path, *node.ParentNodeType, *node.ParentSpan)
			parentHandleID = string(id)
			parentNodeType = node.ParentNodeType
			parentSpanStart = &node.ParentSpan.Start
			parentSpanEnd = &node.ParentSpan.End
		}

		if _, err := nodeStmt.ExecContext(ctx,
			string(handleID), file.Path, node.NodeType, node.Span.Start, node.Span.End,
			node.LineStart, node.LineEnd, metaJSON, nullableString(node.Name), nullableString(node.NameLower),
			nullableString(node.ParentName), nullableString(node.ParentNameLower), nullableString(parentHandleID),
			nullableNodeType(parentNodeType), nullableInt(parentSpanStart), nullableInt(parentSpanEnd),
			node.TokenCount, node.Preview,
		); err != nil {
			return nil, fmt.Errorf("insert node: %w", err)
		}

		content := document.SafeSlice(parsed.Source, node.Span.Start, node.Span.End)
		if _, err := ftsContentStmt.ExecContext(ctx, string(handleID), content); err != nil {
			return nil, fmt.Errorf("insert fts_content: %w", err)
		}

		if node.NameLower != "" {
			// fts_symbols indexes the name plus its camelCase/snake_case
			// subtokens, so a query for "user" fuzzy-matches a symbol named
			// getUserById without the caller spelling it exactly.
			symbolText := node.Name
			if subtokens := TokenizeCode(node.Name); len(subtokens) > 0 {
				symbolText = node.Name + " " + strings.Join(subtokens, " ")
			}
			if _, err := ftsSymbolStmt.ExecContext(ctx, string(handleID), symbolText); err != nil {
				return nil, fmt.Errorf("insert fts_symbols: %w", err)
			}
		}

		if node.NodeType.IsCodeSymbol() && node.NameLower != "" {
			h := document.Handle{
				ID:         handleID,
				FilePath:   file.Path,
				NodeType:   node.NodeType,
				Span:       node.Span,
				LineStart:  node.LineStart,
				LineEnd:    node.LineEnd,
				TokenCount: node.TokenCount,
				Preview:    node.Preview,
			}
			symbolEntries = append(symbolEntries, symbolEntry{handle: h, filePath: file.Path, nameLower: node.NameLower})
		}
	}

	refStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO refs (
			file_path, name, name_lower, qualifier, ref_type,
			span_start, span_end, line_start, line_end, preview, source_handle_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare ref insert: %w", err)
	}
	defer refStmt.Close()

	for _, ref := range parsed.Refs {
		sourceHandle := findSourceHandle(file.Path, parsed.Nodes, ref.Span)
		if _, err := refStmt.ExecContext(ctx,
			file.Path, ref.Name, ref.NameLower, nullableString(ref.Qualifier), ref.RefType,
			ref.Span.Start, ref.Span.End, ref.LineStart, ref.LineEnd, ref.Preview, nullableString(sourceHandle),
		); err != nil {
			return nil, fmt.Errorf("insert ref: %w", err)
		}
	}

	return symbolEntries, nil
}

// findSourceHandle returns the handle ID of the smallest node in nodes that
// encloses span, ties broken by minimum span length, or "" if unbound.
func findSourceHandle(filePath string, nodes []document.Node, span document.Span) string {
	var best *document.Node
	for i := range nodes {
		n := &nodes[i]
		if n.Span.Start <= span.Start && span.End <= n.Span.End {
			if best == nil || n.Span.Len() < best.Span.Len() {
				best = n
			}
		}
	}
	if best == nil {
		return ""
	}
	return string(document.NewHandleID(filePath, best.NodeType, best.Span))
}

// GetFileMeta returns the stored metadata for path, or false if never
// indexed.
func (s *SQLiteStore) GetFileMeta(ctx context.Context, path string) (FileRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		hash                 []byte
		mtime, indexedAt     int64
		totalTokens          int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, mtime, indexed_at, total_tokens FROM files WHERE path = ?`, path,
	).Scan(&hash, &mtime, &indexedAt, &totalTokens)
	if err == sql.ErrNoRows {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, fmt.Errorf("query file meta: %w", err)
	}

	rec := FileRecord{Path: path, ModTime: mtime, IndexedAt: indexedAt, TotalTokens: totalTokens}
	copy(rec.ContentHash[:], hash)
	return rec, true, nil
}

// AllFileMeta batch-loads every file's metadata in one scan, used by the
// pipeline's parallel path to amortize lookups over a large candidate set.
func (s *SQLiteStore) AllFileMeta(ctx context.Context) (map[string]FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path, content_hash, mtime, indexed_at, total_tokens FROM files`)
	if err != nil {
		return nil, fmt.Errorf("query all file meta: %w", err)
	}
	defer rows.Close()

	result := make(map[string]FileRecord)
	for rows.Next() {
		var rec FileRecord
		var hash []byte
		if err := rows.Scan(&rec.Path, &hash, &rec.ModTime, &rec.IndexedAt, &rec.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan file meta: %w", err)
		}
		copy(rec.ContentHash[:], hash)
		result[rec.Path] = rec
	}
	return result, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableNodeType(p *document.NodeType) any {
	if p == nil {
		return nil
	}
	return *p
}
