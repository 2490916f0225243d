package client

import (
	"context"
	"net/http"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/pipeline"
)

// IndexOutcome is the result of an Index call, mirroring POST /reindex's
// response shape in service mode.
type IndexOutcome struct {
	Generation uint64
	Status     string // "indexed" (standalone) or "indexing"/"already_indexing" (service)
	CommitSHA  string
}

type reindexWireRequest struct {
	Repo string `json:"repo"`
	Glob string `json:"glob,omitempty"`
}

type reindexWireResponse struct {
	Generation uint64 `json:"generation"`
	Status     string `json:"status"`
	CommitSHA  string `json:"commit_sha,omitempty"`
}

// Index runs the indexing pipeline over glob, directly in standalone mode
// or by asking the daemon to do it (with one repo_not_found retry) in
// service mode. Per spec.md §4.7's contract, this is one of the three
// intents ("query/expand/index") the runtime hides behind a uniform call.
func (c *Client) Index(ctx context.Context, glob string) (IndexOutcome, error) {
	if c.http == nil {
		if _, err := pipeline.Run(ctx, c.local, c.root, glob, c.pipeline); err != nil {
			return IndexOutcome{}, err
		}
		return IndexOutcome{Status: "indexed"}, nil
	}

	outcome, err := c.indexOnce(ctx, glob)
	if canopyerr.GetCode(err) == canopyerr.CodeRepoNotFound {
		if _, rerr := c.reresolveRepoID(ctx); rerr != nil {
			return IndexOutcome{}, rerr
		}
		outcome, err = c.indexOnce(ctx, glob)
	}
	return outcome, err
}

func (c *Client) indexOnce(ctx context.Context, glob string) (IndexOutcome, error) {
	repoID, err := c.resolveRepoID(ctx)
	if err != nil {
		return IndexOutcome{}, err
	}
	var resp reindexWireResponse
	if err := c.http.do(ctx, http.MethodPost, "/reindex", reindexWireRequest{Repo: repoID, Glob: glob}, &resp); err != nil {
		return IndexOutcome{}, err
	}
	return IndexOutcome{Generation: resp.Generation, Status: resp.Status, CommitSHA: resp.CommitSHA}, nil
}
