package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/canopy-project/canopy/internal/pipeline"
	"github.com/canopy-project/canopy/internal/store"
)

// fingerprintFile is where the dirty-set fingerprint is cached, per the
// on-disk layout spec.md §6 documents alongside config.yaml and index.db.
const fingerprintFile = "dirty_fingerprint"

// dirtyTracker detects a repo's working-tree change set via git porcelain,
// fingerprints it, and keeps the local Store's dirty-file rows in sync with
// disk so the client can serve a local overlay over a (possibly stale)
// service result.
type dirtyTracker struct {
	root string

	mu              sync.Mutex
	lastFingerprint string
	loaded          bool
}

func newDirtyTracker(root string) *dirtyTracker {
	return &dirtyTracker{root: root}
}

func (t *dirtyTracker) fingerprintPath() string {
	return filepath.Join(t.root, ".canopy", fingerprintFile)
}

// refresh scans the working tree for uncommitted changes, and if the
// resulting fingerprint differs from the cached one, invalidates and
// reindexes the dirty files in st. It always returns the current dirty
// path set (relative to root), even when the fingerprint was unchanged.
func (t *dirtyTracker) refresh(ctx context.Context, st store.Store, cfg pipeline.Config) (map[string]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := gitPorcelainDirty(ctx, t.root)
	if err != nil {
		// Not a git repo, or git unavailable: there is no dirty overlay to
		// compute. Treat as "nothing dirty" rather than failing the query.
		return nil, nil
	}
	if len(entries) == 0 {
		return nil, nil
	}

	dirty := make(map[string]bool, len(entries))
	for path, deleted := range entries {
		dirty[path] = deleted
	}

	fp, err := fingerprintEntries(t.root, entries)
	if err != nil {
		return nil, fmt.Errorf("client: fingerprint dirty set: %w", err)
	}

	if !t.loaded {
		if cached, err := os.ReadFile(t.fingerprintPath()); err == nil {
			t.lastFingerprint = strings.TrimSpace(string(cached))
		}
		t.loaded = true
	}

	if fp == t.lastFingerprint {
		return dirty, nil
	}

	for path, deleted := range entries {
		if err := st.Invalidate(ctx, path); err != nil {
			return nil, fmt.Errorf("client: invalidate %s: %w", path, err)
		}
		if deleted {
			continue
		}
		if _, err := pipeline.Run(ctx, st, t.root, path, cfg); err != nil {
			return nil, fmt.Errorf("client: reindex dirty file %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(t.fingerprintPath()), 0o755); err == nil {
		_ = os.WriteFile(t.fingerprintPath(), []byte(fp), 0o644)
	}
	t.lastFingerprint = fp

	return dirty, nil
}

// gitPorcelainDirty runs `git status --porcelain=v1 -z` and returns every
// changed path (relative to root) mapped to whether it was deleted.
// Renamed/copied entries contribute both their old (deleted) and new
// (added) path. Untracked files count as added. Any other entry, unmerged
// ones included, counts as deleted when either status column is 'D' and as
// modified otherwise.
func gitPorcelainDirty(ctx context.Context, root string) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", root, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	fields := strings.Split(strings.TrimRight(string(out), "\x00"), "\x00")
	if len(fields) == 1 && fields[0] == "" {
		return map[string]bool{}, nil
	}

	dirty := make(map[string]bool)
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		x, y := entry[0], entry[1]
		path := entry[3:]

		isRename := x == 'R' || x == 'C' || y == 'R' || y == 'C'
		if isRename {
			// The next field is the original path this entry was renamed
			// or copied from.
			i++
			var origPath string
			if i < len(fields) {
				origPath = fields[i]
			}
			if origPath != "" {
				dirty[origPath] = true // the old path: treat as deleted
			}
			dirty[path] = false // the new path: treat as added
			continue
		}

		deleted := x == 'D' || y == 'D'
		dirty[path] = deleted
	}
	return dirty, nil
}

// fingerprintEntries hashes the sorted (path, mtime) pairs of every
// non-deleted dirty path, with deleted paths contributing a fixed sentinel
// in place of an mtime, per spec.md §4.7's "SHA-256 over sorted (path,
// mtime) pairs".
func fingerprintEntries(root string, entries map[string]bool) (string, error) {
	paths := make([]string, 0, len(entries))
	for path := range entries {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, path := range paths {
		deleted := entries[path]
		if deleted {
			fmt.Fprintf(&buf, "%s\tdeleted\n", path)
			continue
		}
		info, err := os.Stat(filepath.Join(root, path))
		if err != nil {
			// Raced with a delete between the status scan and the stat;
			// fold it in as deleted for this fingerprint.
			fmt.Fprintf(&buf, "%s\tdeleted\n", path)
			continue
		}
		fmt.Fprintf(&buf, "%s\t%d\n", path, info.ModTime().UnixNano())
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
