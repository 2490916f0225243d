package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/canopy-project/canopy/internal/document"
)

// symbolEntry is one code-symbol occurrence held in the forward map.
type symbolEntry struct {
	handle    document.Handle
	filePath  string
	nameLower string
}

// symbolCache mirrors the code-symbol subset of the nodes table (function,
// class, struct, method) in memory: a forward map from lowercased name to
// its entries, and a reverse map from file path to the set of names it
// contributes. Invariant: for every (name, entry) in forward, entry's file
// path appears in reverse with name in its set, and vice versa. The pair is
// loaded at open and mutated only after the owning transaction commits.
type symbolCache struct {
	mu      sync.RWMutex
	forward map[string][]symbolEntry
	reverse map[string]map[string]struct{}
}

func newSymbolCache() *symbolCache {
	return &symbolCache{
		forward: make(map[string][]symbolEntry),
		reverse: make(map[string]map[string]struct{}),
	}
}

// loadSymbolCache rebuilds the cache from the nodes table at store open.
func loadSymbolCache(db *sql.DB) (*symbolCache, error) {
	cache := newSymbolCache()

	rows, err := db.Query(`
		SELECT handle_id, file_path, node_type, span_start, span_end,
		       line_start, line_end, token_count, preview, name, name_lower
		FROM nodes
		WHERE node_type IN (?, ?, ?, ?)`,
		document.NodeFunction, document.NodeClass, document.NodeStruct, document.NodeMethod)
	if err != nil {
		return nil, fmt.Errorf("query symbol rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			handleID, filePath, name, nameLower, preview string
			nodeType                                     document.NodeType
			spanStart, spanEnd, lineStart, lineEnd        int
			tokenCount                                    int
		)
		if err := rows.Scan(&handleID, &filePath, &nodeType, &spanStart, &spanEnd,
			&lineStart, &lineEnd, &tokenCount, &preview, &name, &nameLower); err != nil {
			return nil, fmt.Errorf("scan symbol row: %w", err)
		}
		h := document.Handle{
			ID:         document.HandleID(handleID),
			FilePath:   filePath,
			NodeType:   nodeType,
			Span:       document.Span{Start: spanStart, End: spanEnd},
			LineStart:  lineStart,
			LineEnd:    lineEnd,
			TokenCount: tokenCount,
			Preview:    preview,
		}
		cache.insertLocked(nameLower, symbolEntry{handle: h, filePath: filePath, nameLower: nameLower})
	}
	return cache, rows.Err()
}

// insertLocked adds an entry without acquiring the mutex; callers already
// hold it (or, during load, no concurrent access is possible yet).
func (c *symbolCache) insertLocked(nameLower string, entry symbolEntry) {
	c.forward[nameLower] = append(c.forward[nameLower], entry)
	names, ok := c.reverse[entry.filePath]
	if !ok {
		names = make(map[string]struct{})
		c.reverse[entry.filePath] = names
	}
	names[nameLower] = struct{}{}
}

// Lookup returns cached entries for a lowercased name. The second return
// value distinguishes "no entry at all" from "entry present but empty" so
// callers can implement the cache-hit/miss fallback rule precisely.
func (c *symbolCache) Lookup(nameLower string) ([]symbolEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.forward[nameLower]
	return entries, ok
}

// RemoveFile removes every entry contributed by filePath, using the
// reverse index so this is O(symbols-in-file), not O(cache).
func (c *symbolCache) RemoveFile(filePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFileLocked(filePath)
}

func (c *symbolCache) removeFileLocked(filePath string) {
	names, ok := c.reverse[filePath]
	if !ok {
		return
	}
	for name := range names {
		kept := c.forward[name][:0]
		for _, e := range c.forward[name] {
			if e.filePath != filePath {
				kept = append(kept, e)
			}
		}
		c.forward[name] = kept
	}
	delete(c.reverse, filePath)
}

// ReplaceFile atomically removes filePath's existing entries and installs
// new ones. Must be called only after the writing transaction commits.
func (c *symbolCache) ReplaceFile(filePath string, entries []symbolEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFileLocked(filePath)
	for _, e := range entries {
		c.insertLocked(e.nameLower, e)
	}
}
