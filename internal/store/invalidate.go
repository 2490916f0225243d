package store

import (
	"context"
	"fmt"
)

// Invalidate removes file rows (and cascades to nodes/refs) for paths
// matching glob, or every file if glob is "" or "*". Orphaned FTS rows are
// swept afterward since the virtual tables aren't foreign-key linked, and
// the symbol cache is updated per removed file via its reverse index.
func (s *SQLiteStore) Invalidate(ctx context.Context, glob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.matchingPaths(ctx, glob)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("invalidate: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delStmt, err := tx.PrepareContext(ctx, `DELETE FROM files WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("invalidate: prepare delete: %w", err)
	}
	defer delStmt.Close()

	for _, p := range paths {
		if _, err := delStmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("invalidate: delete %s: %w", p, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE handle_id NOT IN (SELECT handle_id FROM nodes)`); err != nil {
		return fmt.Errorf("invalidate: sweep fts_content: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_symbols WHERE handle_id NOT IN (SELECT handle_id FROM nodes)`); err != nil {
		return fmt.Errorf("invalidate: sweep fts_symbols: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("invalidate: commit: %w", err)
	}

	for _, p := range paths {
		s.cache.RemoveFile(p)
	}
	return nil
}

// matchingPaths returns every indexed path matching glob. Caller must hold
// s.mu.
func (s *SQLiteStore) matchingPaths(ctx context.Context, glob string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files`)
	if err != nil {
		return nil, fmt.Errorf("invalidate: list paths: %w", err)
	}
	defer rows.Close()

	var matched []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("invalidate: scan path: %w", err)
		}
		ok, err := matchGlob(glob, p)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, p)
		}
	}
	return matched, rows.Err()
}
