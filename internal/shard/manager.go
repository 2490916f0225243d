package shard

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/feedback"
	"github.com/canopy-project/canopy/internal/parse"
	"github.com/canopy-project/canopy/internal/pipeline"
	"github.com/canopy-project/canopy/internal/query"
	"github.com/canopy-project/canopy/internal/store"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	StoreConfig        store.Config
	PipelineConfig     pipeline.Config
	OpenIndexCacheSize int
	QueryCacheSize     int
	Logger             *slog.Logger
}

// ReindexOutcome is the result of requesting a reindex, mirroring the
// {generation, status, commit_sha?} response shape of POST /reindex.
type ReindexOutcome struct {
	Generation uint64 `json:"generation"`
	Status     string `json:"status"` // "indexing" or "already_indexing"
	CommitSHA  string `json:"commit_sha,omitempty"`
}

// ExpandRequest is one handle in a serve-expand call, with an optional
// generation the caller expects it to still be valid at.
type ExpandRequest struct {
	ID         document.HandleID
	Generation *uint64
}

// Manager owns every registered repo's shard, its opened Store connections,
// and its per-repo query-result cache. All shard-table mutation goes through
// mu; each cached Store serializes its own query/expand calls internally
// (see internal/store), so Manager only needs to protect shard bookkeeping
// and cache membership, not the Store's own concurrency.
type Manager struct {
	mu sync.RWMutex

	shards    map[string]*RepoShard // by repo ID
	pathIndex map[string]string     // canonical path -> repo ID

	openCache *lru.Cache[string, *openEntry]

	queryCachesMu sync.Mutex
	queryCaches   map[string]*perRepoQueryCache

	feedbackMu     sync.Mutex
	feedbackStores map[string]*feedback.Store

	storeConfig    store.Config
	pipelineConfig pipeline.Config
	queryCacheSize int

	logger *slog.Logger
}

// NewManager constructs a Manager with empty shard state.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	openSize := cfg.OpenIndexCacheSize
	if openSize <= 0 {
		openSize = DefaultOpenIndexCacheSize
	}
	queryCacheSize := cfg.QueryCacheSize
	if queryCacheSize <= 0 {
		queryCacheSize = DefaultQueryCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pipelineCfg := cfg.PipelineConfig
	if (pipelineCfg == pipeline.Config{}) {
		pipelineCfg = pipeline.DefaultConfig()
	}

	openCache, err := lru.NewWithEvict[string, *openEntry](openSize, func(_ string, entry *openEntry) {
		if entry != nil && entry.store != nil {
			_ = entry.store.Close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create opened-index cache: %w", err)
	}

	return &Manager{
		shards:         make(map[string]*RepoShard),
		pathIndex:      make(map[string]string),
		openCache:      openCache,
		queryCaches:    make(map[string]*perRepoQueryCache),
		feedbackStores: make(map[string]*feedback.Store),
		storeConfig:    cfg.StoreConfig,
		pipelineConfig: pipelineCfg,
		queryCacheSize: queryCacheSize,
		logger:         logger,
	}, nil
}

// Register creates a shard for path, or returns the existing one if path was
// already registered (idempotent by path). Rejects non-git roots.
func (m *Manager) Register(path, name string) (*RepoShard, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, canopyerr.InvalidRepo(path, err.Error())
	}

	m.mu.RLock()
	if id, ok := m.pathIndex[canonical]; ok {
		existing := m.shards[id].clone()
		m.mu.RUnlock()
		return existing, nil
	}
	m.mu.RUnlock()

	if !isGitRoot(canonical) {
		return nil, canopyerr.InvalidRepo(canonical, "not a git repository root")
	}

	st, err := store.Open(canonical, m.storeConfig)
	if err != nil {
		return nil, fmt.Errorf("init store for %s: %w", canonical, err)
	}

	if name == "" {
		name = filepath.Base(canonical)
	}

	now := time.Now()
	sh := &RepoShard{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      canonical,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sha, err := headSHA(canonical); err == nil {
		sh.HeadSHA = sha
	}

	m.mu.Lock()
	// Double-check: another goroutine may have registered the same path
	// while we were opening the store above.
	if id, ok := m.pathIndex[canonical]; ok {
		existing := m.shards[id].clone()
		m.mu.Unlock()
		_ = st.Close()
		return existing, nil
	}
	m.shards[sh.ID] = sh
	m.pathIndex[canonical] = sh.ID
	m.openCache.Add(sh.ID, &openEntry{store: st, generation: sh.Generation})
	m.mu.Unlock()

	return sh.clone(), nil
}

// List returns a snapshot of every registered shard.
func (m *Manager) List() []*RepoShard {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*RepoShard, 0, len(m.shards))
	for _, sh := range m.shards {
		out = append(out, sh.clone())
	}
	return out
}

// Get returns one shard by repo ID.
func (m *Manager) Get(repoID string) (*RepoShard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sh, ok := m.shards[repoID]
	if !ok {
		return nil, canopyerr.RepoNotFound(repoID)
	}
	return sh.clone(), nil
}

// Reindex starts (or coalesces into) a reindex of repoID over glob. The
// actual indexing runs off the calling goroutine; the returned outcome
// reflects only whether a new run was started.
func (m *Manager) Reindex(repoID, glob string) (ReindexOutcome, error) {
	m.mu.Lock()
	sh, ok := m.shards[repoID]
	if !ok {
		m.mu.Unlock()
		return ReindexOutcome{}, canopyerr.RepoNotFound(repoID)
	}
	if sh.Status == StatusIndexing {
		gen := sh.Generation
		m.mu.Unlock()
		return ReindexOutcome{Generation: gen, Status: "already_indexing"}, nil
	}
	sh.Status = StatusIndexing
	gen := sh.Generation
	path := sh.Path
	m.mu.Unlock()

	go m.runReindex(repoID, path, glob)

	return ReindexOutcome{Generation: gen, Status: "indexing"}, nil
}

// runReindex executes one reindex pass off the serving thread, then advances
// the shard's generation and invalidates the opened-index and query caches
// under one locked section, so those three effects are observed together by
// subsequent readers.
func (m *Manager) runReindex(repoID, root, glob string) {
	ctx := context.Background()

	st, err := store.Open(root, m.storeConfig)
	if err != nil {
		m.markError(repoID, err)
		return
	}

	effectiveGlob := glob
	if effectiveGlob == "" {
		effectiveGlob = "**/*"
	}

	_, err = pipeline.Run(ctx, st, root, effectiveGlob, m.pipelineConfig)
	if err != nil {
		m.markError(repoID, err)
		_ = st.Close()
		return
	}

	m.mu.Lock()
	sh, ok := m.shards[repoID]
	if !ok {
		m.mu.Unlock()
		_ = st.Close()
		return
	}
	sh.Generation++
	sh.Status = StatusReady
	sh.LastError = ""
	sh.UpdatedAt = time.Now()
	if sha, shaErr := headSHA(root); shaErr == nil {
		sh.HeadSHA = sha
	}
	generation := sh.Generation
	m.openCache.Remove(repoID)
	m.openCache.Add(repoID, &openEntry{store: st, generation: generation})
	m.queryCacheFor(repoID).purge()
	m.mu.Unlock()
}

func (m *Manager) markError(repoID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shards[repoID]
	if !ok {
		return
	}
	sh.Status = StatusError
	sh.LastError = err.Error()
	sh.UpdatedAt = time.Now()
	m.logger.Error("reindex failed", "repo_id", repoID, "error", err)
}

// queryCacheFor returns (creating if needed) the per-repo query cache.
func (m *Manager) queryCacheFor(repoID string) *perRepoQueryCache {
	m.queryCachesMu.Lock()
	defer m.queryCachesMu.Unlock()
	c, ok := m.queryCaches[repoID]
	if !ok {
		c = newPerRepoQueryCache(m.queryCacheSize)
		m.queryCaches[repoID] = c
	}
	return c
}

// resolveStore returns a Store for repoID at its shard's current generation,
// opening and caching one if the cache is empty or stale.
func (m *Manager) resolveStore(repoID string) (store.Store, uint64, error) {
	m.mu.RLock()
	sh, ok := m.shards[repoID]
	if !ok {
		m.mu.RUnlock()
		return nil, 0, canopyerr.RepoNotFound(repoID)
	}
	sh = sh.clone()
	m.mu.RUnlock()

	switch sh.Status {
	case StatusError:
		return nil, sh.Generation, canopyerr.New(canopyerr.CodeIndexError, sh.LastError).
			WithHint("reindex the repo to clear the error state")
	case StatusPending:
		return nil, sh.Generation, canopyerr.New(canopyerr.CodeIndexError, "repo has not been indexed yet").
			WithHint("call POST /reindex before querying")
	}

	m.mu.RLock()
	if entry, ok := m.openCache.Get(repoID); ok && entry.generation == sh.Generation {
		m.mu.RUnlock()
		return entry.store, sh.Generation, nil
	}
	m.mu.RUnlock()

	st, err := store.Open(sh.Path, m.storeConfig)
	if err != nil {
		return nil, sh.Generation, fmt.Errorf("open store for %s: %w", repoID, err)
	}

	m.mu.Lock()
	if entry, ok := m.openCache.Get(repoID); ok && entry.generation == sh.Generation {
		// Another goroutine already opened and inserted a fresh entry for
		// this generation; keep that one and drop ours.
		m.mu.Unlock()
		_ = st.Close()
		return entry.store, sh.Generation, nil
	}
	m.openCache.Add(repoID, &openEntry{store: st, generation: sh.Generation})
	m.mu.Unlock()

	return st, sh.Generation, nil
}

// ServeQuery resolves repoID's Store and executes params, serving from the
// per-repo query cache when possible. Auto-expanded results (ExpandBudget >
// 0) are never cached, since they carry full node bodies. Results are
// ranked by historical expand-acceptance (see internal/feedback) when a
// feedback store is available, and the query is recorded as feedback
// regardless of whether it was served from cache.
func (m *Manager) ServeQuery(ctx context.Context, repoID string, params query.Params) (*query.Result, uint64, error) {
	st, generation, err := m.resolveStore(repoID)
	if err != nil {
		return nil, generation, err
	}

	cacheable := params.ExpandBudget <= 0
	cache := m.queryCacheFor(repoID)
	key := queryCacheKey(params)

	if cacheable {
		if cached, ok := cache.get(generation, key); ok {
			m.recordQueryFeedback(repoID, params, cached)
			return cached, generation, nil
		}
	}

	result, err := query.Execute(ctx, st, params)
	if err != nil {
		return nil, generation, err
	}
	stampGeneration(result, generation)

	if fb := m.feedbackStoreFor(repoID); fb != nil && result.Handles != nil {
		query.Rank(result.Handles, feedback.NewScorer(fb, params.Glob, feedback.DefaultHalfLifeDays))
	}

	if cacheable {
		cache.put(generation, key, result)
	}
	m.recordQueryFeedback(repoID, params, result)
	return result, generation, nil
}

// recordQueryFeedback logs a query/handles pair for future ranking. Best
// effort: a missing feedback store is not an error.
func (m *Manager) recordQueryFeedback(repoID string, params query.Params, result *query.Result) {
	fb := m.feedbackStoreFor(repoID)
	if fb == nil {
		return
	}
	handles := make([]feedback.QueryHandle, len(result.Handles))
	for i, h := range result.Handles {
		handles[i] = feedback.QueryHandle{
			HandleID:       h.ID,
			FilePath:       h.FilePath,
			NodeType:       h.NodeType,
			TokenCount:     h.TokenCount,
			FirstMatchGlob: params.Glob,
		}
	}
	fb.RecordQuery(feedback.QueryEvent{
		QueryText:       params.Pattern,
		FilesIndexed:    0,
		HandlesReturned: len(result.Handles),
		TotalTokens:     result.TotalTokens,
	}, handles)
}

// FeedbackStore returns the lazily-opened feedback store for repoID, or nil
// if the repo is unknown or its store can't be opened. Exposed for the
// service layer's /metrics evidence block.
func (m *Manager) FeedbackStore(repoID string) *feedback.Store {
	return m.feedbackStoreFor(repoID)
}

// feedbackStoreFor returns (opening and caching if needed) the feedback
// store for repoID. Returns nil if the repo is unknown or the store can't
// be opened — feedback is a ranking enhancement, never a hard dependency.
func (m *Manager) feedbackStoreFor(repoID string) *feedback.Store {
	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()

	if fb, ok := m.feedbackStores[repoID]; ok {
		return fb
	}

	m.mu.RLock()
	sh, ok := m.shards[repoID]
	var path string
	if ok {
		path = sh.Path
	}
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	fb, err := feedback.Open(path, m.logger)
	if err != nil {
		m.logger.Warn("failed to open feedback store", "repo_id", repoID, "error", err)
		return nil
	}
	m.feedbackStores[repoID] = fb
	return fb
}

func stampGeneration(result *query.Result, generation uint64) {
	for i := range result.Handles {
		result.Handles[i].Generation = generation
	}
}

// ServeExpand resolves handles for repoID, enforcing per-handle generation
// checks. Handles that fail (not found, stale index, generation mismatch)
// are reported in failed rather than aborting the whole call; the call
// itself only errors if the repo can't be resolved at all.
func (m *Manager) ServeExpand(ctx context.Context, repoID string, requests []ExpandRequest) (map[document.HandleID]string, []document.HandleID, error) {
	st, generation, err := m.resolveStore(repoID)
	if err != nil {
		return nil, nil, err
	}

	contents := make(map[document.HandleID]string, len(requests))
	var failed []document.HandleID
	fb := m.feedbackStoreFor(repoID)

	for _, req := range requests {
		if req.Generation != nil && *req.Generation != generation {
			failed = append(failed, req.ID)
			continue
		}
		content, err := st.Expand(ctx, req.ID)
		if err != nil {
			failed = append(failed, req.ID)
			continue
		}
		contents[req.ID] = content
		if fb != nil {
			fb.RecordExpand(feedback.ExpandEvent{
				HandleID:     req.ID,
				TokenCount:   parse.EstimateTokens(content),
				AutoExpanded: false,
			})
		}
	}

	return contents, failed, nil
}

// Close releases every open Store and feedback Store. The Manager is unusable
// afterward.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.openCache.Purge()
	m.mu.Unlock()

	m.feedbackMu.Lock()
	for id, fb := range m.feedbackStores {
		if err := fb.Close(); err != nil {
			m.logger.Warn("failed to close feedback store", "repo_id", id, "error", err)
		}
	}
	m.feedbackStores = make(map[string]*feedback.Store)
	m.feedbackMu.Unlock()

	return nil
}
