// Package pipeline walks a repo's files, decides which need reindexing, and
// drives internal/parse and internal/store to bring the index up to date. It
// has two paths: a simple sequential one for small candidate sets, and a
// parallel producer/writer pipeline for large ones.
package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/parse"
	"github.com/canopy-project/canopy/internal/store"
)

// Config governs the pipeline's skip decisions and concurrency shape.
type Config struct {
	// SequentialThreshold is the candidate-set size at or below which the
	// sequential path is used instead of the parallel one.
	SequentialThreshold int
	// TTL bounds how long a stored mtime match is trusted without a hash
	// check.
	TTL time.Duration
	// BatchSize is the number of parsed files the writer accumulates
	// before flushing a transaction, on the parallel path.
	BatchSize int
	// Workers is the number of concurrent producer goroutines on the
	// parallel path. 0 means GOMAXPROCS.
	Workers int
	// ParseConfig is passed through to parse.Parse for every file.
	ParseConfig parse.Config
}

// DefaultConfig matches spec.md §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		SequentialThreshold: 64,
		TTL:                 5 * time.Minute,
		BatchSize:           500,
		Workers:             0,
		ParseConfig:         parse.DefaultConfig(),
	}
}

// Result summarizes one Run.
type Result struct {
	FilesIndexed  int
	FilesSkipped  int
	TotalTokens   int
	IndexSizeBytes int64
}

// Run resolves glob under root, decides which candidates need reindexing,
// and writes them to st. Unreadable files and parse failures are silently
// skipped — this is a best-effort operation, not an all-or-nothing one.
func Run(ctx context.Context, st store.Store, root, glob string, cfg Config) (Result, error) {
	candidates, err := Discover(ctx, root, glob)
	if err != nil {
		return Result{}, fmt.Errorf("discover: %w", err)
	}

	var result Result
	if len(candidates) <= cfg.SequentialThreshold {
		result, err = runSequential(ctx, st, root, candidates, cfg)
	} else {
		result, err = runParallel(ctx, st, root, candidates, cfg)
	}
	if err != nil {
		return result, err
	}

	result.IndexSizeBytes = indexSizeBytes(root)
	return result, nil
}

func indexSizeBytes(root string) int64 {
	info, err := os.Stat(filepath.Join(root, ".canopy", "index.db"))
	if err != nil {
		return 0
	}
	return info.Size()
}

// fastSkip reports whether a file can be skipped on mtime alone: the stored
// mtime matches the current one and the record isn't older than cfg.TTL.
func fastSkip(meta store.FileRecord, currentMTime int64, now time.Time, cfg Config) bool {
	if meta.ModTime != currentMTime {
		return false
	}
	age := now.Sub(time.Unix(meta.IndexedAt, 0))
	return age < cfg.TTL
}

func hashContent(content []byte) [32]byte {
	return sha256.Sum256(content)
}

func toFileRecord(path string, content []byte, mtime int64, parsed *document.ParsedFile, now time.Time) store.FileRecord {
	return store.FileRecord{
		Path:        path,
		ContentHash: parsed.ContentHash,
		ModTime:     mtime,
		IndexedAt:   now.Unix(),
		TotalTokens: parsed.TotalTokens,
	}
}
