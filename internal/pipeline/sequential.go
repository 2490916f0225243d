package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/canopy-project/canopy/internal/parse"
	"github.com/canopy-project/canopy/internal/store"
)

// runSequential indexes candidates one at a time, each in its own
// transaction. Used for small candidate sets where the batching machinery
// of the parallel path would only add overhead.
func runSequential(ctx context.Context, st store.Store, root string, candidates []string, cfg Config) (Result, error) {
	var result Result
	now := time.Now()

	for _, rel := range candidates {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		absPath := filepath.Join(root, rel)
		info, err := os.Stat(absPath)
		if err != nil {
			continue // unreadable: silently skipped, best-effort
		}
		mtime := info.ModTime().Unix()

		meta, found, err := st.GetFileMeta(ctx, rel)
		if err != nil {
			found = false
		}

		if found && fastSkip(meta, mtime, now, cfg) {
			result.FilesSkipped++
			result.TotalTokens += meta.TotalTokens
			continue
		}

		content, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}

		if found {
			hash := hashContent(content)
			if hash == meta.ContentHash {
				result.FilesSkipped++
				result.TotalTokens += meta.TotalTokens
				continue
			}
		}

		parsed := parse.Parse(rel, content, cfg.ParseConfig)
		record := toFileRecord(rel, content, mtime, parsed, now)
		if err := st.ReindexFile(ctx, record, parsed); err != nil {
			continue // best-effort: a write failure for one file doesn't abort the run
		}

		result.FilesIndexed++
		result.TotalTokens += parsed.TotalTokens
	}

	return result, nil
}
