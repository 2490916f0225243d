package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/canopy-project/canopy/internal/document"
)

const nodeColumns = `handle_id, file_path, node_type, span_start, span_end, line_start, line_end, token_count, preview`

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}

func scanHandles(rows *sql.Rows) ([]document.Handle, error) {
	defer rows.Close()
	var out []document.Handle
	for rows.Next() {
		var (
			handleID, filePath string
			nodeType           document.NodeType
			spanStart, spanEnd int
			lineStart, lineEnd int
			tokenCount         int
			preview            string
		)
		if err := rows.Scan(&handleID, &filePath, &nodeType, &spanStart, &spanEnd, &lineStart, &lineEnd, &tokenCount, &preview); err != nil {
			return nil, fmt.Errorf("scan handle row: %w", err)
		}
		out = append(out, document.Handle{
			ID:         document.HandleID(handleID),
			FilePath:   filePath,
			NodeType:   nodeType,
			Span:       document.Span{Start: spanStart, End: spanEnd},
			LineStart:  lineStart,
			LineEnd:    lineEnd,
			TokenCount: tokenCount,
			Preview:    preview,
		})
	}
	return out, rows.Err()
}

// quoteFTSOperators wraps text in double quotes when it contains FTS5
// operator characters, so it is treated as a literal phrase rather than a
// query expression.
func quoteFTSOperators(text string) string {
	if strings.ContainsAny(text, `"()-*<>`) {
		escaped := strings.ReplaceAll(text, `"`, `""`)
		return `"` + escaped + `"`
	}
	return text
}

// FTSSearch searches node content full-text.
func (s *SQLiteStore) FTSSearch(ctx context.Context, text string, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes JOIN fts_content ON fts_content.handle_id = nodes.handle_id
		WHERE fts_content.content MATCH ?
		ORDER BY rank
		LIMIT ?`, quoteFTSOperators(text), effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	return scanHandles(rows)
}

// NodesByType returns up to limit nodes of the given type.
func (s *SQLiteStore) NodesByType(ctx context.Context, nodeType document.NodeType, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes WHERE node_type = ? LIMIT ?`,
		nodeType, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("nodes by type: %w", err)
	}
	return scanHandles(rows)
}

// SearchSections matches sections by case-insensitive heading substring.
func (s *SQLiteStore) SearchSections(ctx context.Context, headingSubstring string, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := "%" + headingSubstring + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE node_type = ? AND name LIKE ? COLLATE NOCASE
		LIMIT ?`, document.NodeSection, pattern, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search sections: %w", err)
	}
	return scanHandles(rows)
}

var codeSymbolTypes = []document.NodeType{document.NodeFunction, document.NodeClass, document.NodeStruct, document.NodeMethod}

// SearchCode matches code symbols by exact case-insensitive name. It
// consults the symbol cache first; on a hit with at least one entry it
// returns without touching the DB. On an empty cache entry or no entry it
// falls back to the DB, then to symbol-FTS fuzzy search.
func (s *SQLiteStore) SearchCode(ctx context.Context, symbol string, limit int) ([]document.Handle, error) {
	nameLower := strings.ToLower(symbol)

	if entries, ok := s.cache.Lookup(nameLower); ok && len(entries) > 0 {
		return entriesToHandles(entries, effectiveLimit(limit)), nil
	}

	handles, err := s.searchCodeExact(ctx, nameLower, limit)
	if err != nil {
		return nil, err
	}
	if len(handles) > 0 {
		return handles, nil
	}
	return s.searchSymbolFTS(ctx, symbol, limit)
}

// SearchDefinitions is like SearchCode but never falls back to fuzzy
// matching: a definition query wants the exact symbol or nothing.
func (s *SQLiteStore) SearchDefinitions(ctx context.Context, symbol string, limit int) ([]document.Handle, error) {
	nameLower := strings.ToLower(symbol)

	if entries, ok := s.cache.Lookup(nameLower); ok && len(entries) > 0 {
		return entriesToHandles(entries, effectiveLimit(limit)), nil
	}
	return s.searchCodeExact(ctx, nameLower, limit)
}

func (s *SQLiteStore) searchCodeExact(ctx context.Context, nameLower string, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE name_lower = ? COLLATE NOCASE AND node_type IN (?, ?, ?, ?)
		LIMIT ?`, nameLower, codeSymbolTypes[0], codeSymbolTypes[1], codeSymbolTypes[2], codeSymbolTypes[3], effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search code exact: %w", err)
	}
	return scanHandles(rows)
}

func (s *SQLiteStore) searchSymbolFTS(ctx context.Context, symbol string, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes JOIN fts_symbols ON fts_symbols.handle_id = nodes.handle_id
		WHERE fts_symbols.name MATCH ?
		ORDER BY rank
		LIMIT ?`, quoteFTSOperators(symbol), effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search symbol fts: %w", err)
	}
	return scanHandles(rows)
}

// SearchChildren matches nodes whose parent has the given name.
func (s *SQLiteStore) SearchChildren(ctx context.Context, parent string, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_name_lower = ? COLLATE NOCASE
		LIMIT ?`, strings.ToLower(parent), effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search children: %w", err)
	}
	return scanHandles(rows)
}

// SearchChildrenNamed matches a specific named child under a parent.
func (s *SQLiteStore) SearchChildrenNamed(ctx context.Context, parent, symbol string, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_name_lower = ? COLLATE NOCASE AND name_lower = ? COLLATE NOCASE
		LIMIT ?`, strings.ToLower(parent), strings.ToLower(symbol), effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search children named: %w", err)
	}
	return scanHandles(rows)
}

// SearchReferenceSources returns the source nodes of references to symbol.
func (s *SQLiteStore) SearchReferenceSources(ctx context.Context, symbol string, limit int) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+prefixColumns("nodes", nodeColumns)+`
		FROM nodes JOIN refs ON refs.source_handle_id = nodes.handle_id
		WHERE refs.name_lower = ? COLLATE NOCASE
		LIMIT ?`, strings.ToLower(symbol), effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search reference sources: %w", err)
	}
	return scanHandles(rows)
}

// SearchReferences returns the reference sites themselves, not their
// source nodes.
func (s *SQLiteStore) SearchReferences(ctx context.Context, symbol string, limit int) ([]document.RefHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, span_start, span_end, line_start, line_end, name, qualifier, ref_type, source_handle_id, preview
		FROM refs WHERE name_lower = ? COLLATE NOCASE
		LIMIT ?`, strings.ToLower(symbol), effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	defer rows.Close()

	var out []document.RefHandle
	for rows.Next() {
		var (
			filePath, name                      string
			spanStart, spanEnd, lineStart, lineEnd int
			qualifier, sourceHandleID            sql.NullString
			refType                              document.RefType
			preview                               string
		)
		if err := rows.Scan(&filePath, &spanStart, &spanEnd, &lineStart, &lineEnd, &name, &qualifier, &refType, &sourceHandleID, &preview); err != nil {
			return nil, fmt.Errorf("scan ref row: %w", err)
		}
		out = append(out, document.RefHandle{
			FilePath:       filePath,
			Span:           document.Span{Start: spanStart, End: spanEnd},
			LineStart:      lineStart,
			LineEnd:        lineEnd,
			Name:           name,
			Qualifier:      qualifier.String,
			RefType:        refType,
			SourceHandleID: document.HandleID(sourceHandleID.String),
			Preview:        preview,
		})
	}
	return out, rows.Err()
}

// SearchInFiles runs a full-text search then filters results to files
// matching glob, taking up to limit after filtering.
func (s *SQLiteStore) SearchInFiles(ctx context.Context, glob, text string, limit int) ([]document.Handle, error) {
	candidates, err := s.FTSSearch(ctx, text, effectiveLimit(limit)*4)
	if err != nil {
		return nil, err
	}

	var out []document.Handle
	for _, h := range candidates {
		matched, err := matchGlob(glob, h.FilePath)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, h)
			if len(out) >= effectiveLimit(limit) {
				break
			}
		}
	}
	return out, nil
}

// GetFile treats the single file matching pathGlob as one whole-file chunk
// node handle, without requiring it to have been indexed as a chunk node.
func (s *SQLiteStore) GetFile(ctx context.Context, pathGlob string) ([]document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path, content_hash, mtime, indexed_at, total_tokens FROM files`)
	if err != nil {
		return nil, fmt.Errorf("get file: list files: %w", err)
	}
	defer rows.Close()

	var out []document.Handle
	for rows.Next() {
		var path string
		var hash []byte
		var mtime, indexedAt int64
		var totalTokens int
		if err := rows.Scan(&path, &hash, &mtime, &indexedAt, &totalTokens); err != nil {
			return nil, fmt.Errorf("get file: scan: %w", err)
		}
		matched, err := matchGlob(pathGlob, path)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		span := document.Span{Start: 0, End: 0}
		out = append(out, document.Handle{
			ID:         document.NewHandleID(path, document.NodeChunk, span),
			FilePath:   path,
			NodeType:   document.NodeChunk,
			Span:       span,
			TokenCount: totalTokens,
		})
	}
	return out, rows.Err()
}

func entriesToHandles(entries []symbolEntry, limit int) []document.Handle {
	if limit > len(entries) {
		limit = len(entries)
	}
	out := make([]document.Handle, limit)
	for i := 0; i < limit; i++ {
		out[i] = entries[i].handle
	}
	return out
}

// prefixColumns prefixes a comma-separated column list with table.
func prefixColumns(table, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = table + "." + p
	}
	return strings.Join(parts, ", ")
}
