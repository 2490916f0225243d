package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/parse"
	"github.com/canopy-project/canopy/internal/store"
)

// parsedUnit is one producer's output: the file record to persist alongside
// its parsed structural model.
type parsedUnit struct {
	record store.FileRecord
	parsed *document.ParsedFile
}

// runParallel indexes a large candidate set with a work-stealing producer
// pool feeding a single writer goroutine, which owns the Store and batches
// writes into transactions of cfg.BatchSize.
func runParallel(ctx context.Context, st store.Store, root string, candidates []string, cfg Config) (Result, error) {
	now := time.Now()

	allMeta, err := st.AllFileMeta(ctx)
	if err != nil {
		allMeta = map[string]store.FileRecord{}
	}

	var skipped, indexed int64
	var skippedTokens int64

	remaining := make([]string, 0, len(candidates))
	for _, rel := range candidates {
		absPath := filepath.Join(root, rel)
		info, statErr := os.Stat(absPath)
		if statErr != nil {
			continue
		}
		mtime := info.ModTime().Unix()

		if meta, found := allMeta[rel]; found && fastSkip(meta, mtime, now, cfg) {
			atomic.AddInt64(&skipped, 1)
			atomic.AddInt64(&skippedTokens, int64(meta.TotalTokens))
			continue
		}
		remaining = append(remaining, rel)
	}

	parse.WarmEncoder()

	var cancelled int32
	units := make(chan parsedUnit, cfg.BatchSize)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	group, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)

	go func() {
		group.Go(func() error {
			for _, rel := range remaining {
				rel := rel
				if atomic.LoadInt32(&cancelled) != 0 {
					return nil
				}
				select {
				case <-gctx.Done():
					return nil
				case sem <- struct{}{}:
				}

				group.Go(func() error {
					defer func() { <-sem }()
					produceOne(gctx, root, rel, allMeta, cfg, &skipped, &skippedTokens, &cancelled, units)
					return nil
				})
			}
			return nil
		})
		_ = group.Wait()
		close(units)
	}()

	var indexedTokens int64
	writerErr := runWriter(ctx, st, units, cfg, &indexed, &indexedTokens, &cancelled)

	return Result{
		FilesIndexed: int(atomic.LoadInt64(&indexed)),
		FilesSkipped: int(atomic.LoadInt64(&skipped)),
		TotalTokens:  int(atomic.LoadInt64(&skippedTokens) + atomic.LoadInt64(&indexedTokens)),
	}, writerErr
}

// produceOne reads, hashes, and parses one candidate, sending the result to
// units. It checks the cancellation flag before expensive work and before
// sending, per the pipeline's cooperative-cancellation contract.
func produceOne(ctx context.Context, root, rel string, allMeta map[string]store.FileRecord, cfg Config, skipped, skippedTokens *int64, cancelled *int32, units chan<- parsedUnit) {
	if atomic.LoadInt32(cancelled) != 0 {
		return
	}

	absPath := filepath.Join(root, rel)
	info, err := os.Stat(absPath)
	if err != nil {
		return
	}
	mtime := info.ModTime().Unix()

	content, err := os.ReadFile(absPath)
	if err != nil {
		return
	}
	hash := hashContent(content)

	if meta, found := allMeta[rel]; found && hash == meta.ContentHash {
		atomic.AddInt64(skipped, 1)
		atomic.AddInt64(skippedTokens, int64(meta.TotalTokens))
		return
	}

	if atomic.LoadInt32(cancelled) != 0 {
		return
	}

	parsed := parse.Parse(rel, content, cfg.ParseConfig)
	record := store.FileRecord{
		Path:        rel,
		ContentHash: parsed.ContentHash,
		ModTime:     mtime,
		IndexedAt:   time.Now().Unix(),
		TotalTokens: parsed.TotalTokens,
	}

	select {
	case <-ctx.Done():
	case units <- parsedUnit{record: record, parsed: parsed}:
	}
}

// runWriter owns the Store for the parallel path: it accumulates parsed
// units into batches of cfg.BatchSize and flushes each in one transaction.
// On a write error it sets the cancellation flag so producers stop wasting
// work, then drains the channel without writing further.
func runWriter(ctx context.Context, st store.Store, units <-chan parsedUnit, cfg Config, indexed, indexedTokens *int64, cancelled *int32) error {
	var batchRecords []store.FileRecord
	var batchParsed []*document.ParsedFile
	var firstErr error

	flush := func() {
		if len(batchRecords) == 0 {
			return
		}
		if firstErr == nil {
			if err := st.ReindexBatch(ctx, batchRecords, batchParsed); err != nil {
				firstErr = err
				atomic.StoreInt32(cancelled, 1)
			} else {
				atomic.AddInt64(indexed, int64(len(batchRecords)))
				for _, r := range batchRecords {
					atomic.AddInt64(indexedTokens, int64(r.TotalTokens))
				}
			}
		}
		batchRecords = batchRecords[:0]
		batchParsed = batchParsed[:0]
	}

	for unit := range units {
		if atomic.LoadInt32(cancelled) != 0 && firstErr != nil {
			continue // drain without writing once cancelled
		}
		batchRecords = append(batchRecords, unit.record)
		batchParsed = append(batchParsed, unit.parsed)
		if len(batchRecords) >= cfg.BatchSize {
			flush()
		}
	}
	flush()

	return firstErr
}
