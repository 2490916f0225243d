package client

import (
	"context"
	"net/http"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/query"
)

type queryWireRequest struct {
	Repo string `json:"repo"`
	query.Params
}

// queryService implements spec.md §4.7's service-mode query path: resolve
// repo_id, call the daemon (retrying once on repo_not_found), then overlay
// any uncommitted local edits before tagging and returning the result.
func (c *Client) queryService(ctx context.Context, params query.Params) (*QueryResult, error) {
	result, generation, err := c.queryOnce(ctx, params)
	if canopyerr.GetCode(err) == canopyerr.CodeRepoNotFound {
		if _, rerr := c.reresolveRepoID(ctx); rerr != nil {
			return nil, rerr
		}
		result, generation, err = c.queryOnce(ctx, params)
	}
	if err != nil {
		return nil, err
	}

	dirty, derr := c.dirty.refresh(ctx, c.local, c.pipeline)
	if derr != nil {
		c.logger.Warn("dirty overlay refresh failed, serving service result only", "error", derr)
		dirty = nil
	}

	var merged *QueryResult
	if len(dirty) == 0 {
		merged = tagAll(result, SourceService, generation)
	} else {
		localResult, lerr := query.Execute(ctx, c.local, params)
		if lerr != nil {
			c.logger.Warn("local overlay query failed, serving service result only", "error", lerr)
			merged = tagAll(result, SourceService, generation)
		} else {
			merged = mergeDirtyOverlay(result, generation, localResult, dirty)
		}
	}

	repoID, _ := c.resolveRepoID(ctx)
	for _, h := range merged.Handles {
		c.provenance.Record(repoID, h.ID, Provenance{Source: h.Source, Generation: h.Generation})
	}
	return merged, nil
}

func (c *Client) queryOnce(ctx context.Context, params query.Params) (*query.Result, uint64, error) {
	repoID, err := c.resolveRepoID(ctx)
	if err != nil {
		return nil, 0, err
	}
	var result query.Result
	if err := c.http.do(ctx, http.MethodPost, "/query", queryWireRequest{Repo: repoID, Params: params}, &result); err != nil {
		return nil, 0, err
	}
	generation := uint64(0)
	if len(result.Handles) > 0 {
		generation = result.Handles[0].Generation
	}
	return &result, generation, nil
}
