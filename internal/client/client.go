// Package client implements the hybrid Client Runtime: the same query/expand
// surface served either by a directly-opened local Store (standalone mode)
// or by a running canopyd over HTTP (service mode), with a dirty-overlay
// merge so uncommitted local edits are never shadowed by a stale service
// index. This mirrors the teacher's own split between a direct-library path
// and a daemon-backed path, adapted from Unix-socket JSON-RPC to the
// service API's HTTP/JSON contract.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/pipeline"
	"github.com/canopy-project/canopy/internal/query"
	"github.com/canopy-project/canopy/internal/store"
)

// EnsureReadyPollInterval is how often ensure_ready polls repo status.
const EnsureReadyPollInterval = 500 * time.Millisecond

// EnsureReadyTimeout is the default budget for ensure_ready to observe a
// repo reach the "ready" status.
const EnsureReadyTimeout = 30 * time.Second

// Client is the single entry point an agent-facing front end (CLI, MCP
// server) uses to query and expand a repo. It transparently runs in
// standalone mode (direct Store access, no daemon) or service mode (HTTP
// calls to a canopyd), chosen by whether a service URL is configured.
type Client struct {
	root string // canonicalized repo root this Client was constructed for

	// local Store, opened in both modes: served directly in standalone
	// mode, and used for the dirty overlay and local expands in service mode.
	local store.Store

	// service-mode state. Nil in standalone mode.
	http *httpTransport

	repoID     string // memoized once resolved, service mode only
	provenance *ProvenanceTracker
	dirty      *dirtyTracker
	pipeline   pipeline.Config

	logger *slog.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithProvenanceCacheSize overrides the default ProvenanceTracker capacity.
func WithProvenanceCacheSize(size int) Option {
	return func(c *Client) { c.provenance = NewProvenanceTracker(size) }
}

// NewStandalone builds a Client that opens repoRoot's Store directly, with
// no daemon involved. This is the default mode: spec.md §4.7 treats the
// service as an optional accelerator, not a requirement.
func NewStandalone(repoRoot string, cfg store.Config, opts ...Option) (*Client, error) {
	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, canopyerr.InvalidRepo(repoRoot, err.Error())
	}
	st, err := store.Open(root, cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		root:       root,
		local:      st,
		provenance: NewProvenanceTracker(DefaultProvenanceCacheSize),
		dirty:      newDirtyTracker(root),
		pipeline:   pipeline.DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewService builds a Client that talks to a running canopyd at serviceURL,
// still maintaining a local Store for dirty-overlay reads. repoRoot is
// resolved to a repo_id lazily, on first use, per spec.md §4.7 step 1.
func NewService(repoRoot, serviceURL string, cfg store.Config, opts ...Option) (*Client, error) {
	if serviceURL == "" {
		return nil, canopyerr.New(canopyerr.CodeNoServiceURL, "no service URL configured").
			WithHint("set CANOPY_SERVICE_URL or fall back to standalone mode")
	}
	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, canopyerr.InvalidRepo(repoRoot, err.Error())
	}
	st, err := store.Open(root, cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		root:       root,
		local:      st,
		http:       newHTTPTransport(serviceURL, http.DefaultClient),
		provenance: NewProvenanceTracker(DefaultProvenanceCacheSize),
		dirty:      newDirtyTracker(root),
		pipeline:   pipeline.DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromEnv builds a Client for repoRoot, picking service mode if
// CANOPY_SERVICE_URL is set (overriding repoRoot with CANOPY_ROOT if that's
// also set) and standalone mode otherwise. This is the constructor a CLI or
// MCP front end normally calls; spec.md §6 documents both variables.
func NewFromEnv(repoRoot string, cfg store.Config, opts ...Option) (*Client, error) {
	root := repoRoot
	if envRoot := os.Getenv("CANOPY_ROOT"); envRoot != "" {
		root = envRoot
	}
	if url := os.Getenv("CANOPY_SERVICE_URL"); url != "" {
		return NewService(root, url, cfg, opts...)
	}
	return NewStandalone(root, cfg, opts...)
}

// Mode reports whether the client is configured for standalone or service
// operation.
func (c *Client) Mode() string {
	if c.http == nil {
		return "standalone"
	}
	return "service"
}

// Close releases the client's local Store handle.
func (c *Client) Close() error {
	if c.local != nil {
		return c.local.Close()
	}
	return nil
}

// Query runs params against the repo, merging in any uncommitted local
// edits over a service-mode result. In standalone mode every handle is
// simply tagged SourceLocal.
func (c *Client) Query(ctx context.Context, params query.Params) (*QueryResult, error) {
	if c.http == nil {
		result, err := query.Execute(ctx, c.local, params)
		if err != nil {
			return nil, err
		}
		return tagAll(result, SourceLocal, 0), nil
	}
	return c.queryService(ctx, params)
}

// Expand resolves handles to content, routing each to the backend recorded
// in its provenance (or trying local then service, for handles this
// runtime has never seen). See spec.md §4.7's expand-routing contract.
func (c *Client) Expand(ctx context.Context, requests []ExpandRequest) (map[document.HandleID]string, []document.HandleID, error) {
	if c.http == nil {
		return c.expandLocal(ctx, requests)
	}
	return c.expandService(ctx, requests)
}

// ExpandRequest is one handle the caller wants resolved to content.
type ExpandRequest struct {
	ID         document.HandleID
	Generation uint64 // 0 if unknown; only meaningful for service-sourced handles
}
