package client

import (
	"context"
	"net/http"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/document"
)

type expandWireHandle struct {
	ID         string  `json:"id"`
	Generation *uint64 `json:"generation,omitempty"`
}

type expandWireRequest struct {
	Repo    string             `json:"repo"`
	Handles []expandWireHandle `json:"handles"`
}

type expandWireContent struct {
	HandleID string `json:"handle_id"`
	Content  string `json:"content"`
}

type expandWireResponse struct {
	Contents []expandWireContent `json:"contents"`
	Failed   []string            `json:"failed,omitempty"`
}

// expandLocal resolves every handle against the local Store. Used directly
// in standalone mode, and as a fallback for service mode's
// provenance-unknown handles.
func (c *Client) expandLocal(ctx context.Context, requests []ExpandRequest) (map[document.HandleID]string, []document.HandleID, error) {
	contents := make(map[document.HandleID]string, len(requests))
	var failed []document.HandleID
	for _, req := range requests {
		content, err := c.local.Expand(ctx, req.ID)
		if err != nil {
			failed = append(failed, req.ID)
			continue
		}
		contents[req.ID] = content
	}
	return finishExpand(contents, failed, len(requests))
}

// expandService implements spec.md §4.7's expand-routing contract:
// partition by recorded provenance, batch the service-routed handles in
// one call (retrying per-handle on batch failure), resolve local-routed
// handles directly, and try local-then-service for anything this runtime
// has never seen a provenance record for.
func (c *Client) expandService(ctx context.Context, requests []ExpandRequest) (map[document.HandleID]string, []document.HandleID, error) {
	repoID, err := c.resolveRepoID(ctx)
	if err != nil {
		return nil, nil, err
	}

	var localIDs, unknownIDs []ExpandRequest
	var serviceReqs []ExpandRequest

	for _, req := range requests {
		prov, ok := c.provenance.Lookup(repoID, req.ID)
		switch {
		case !ok:
			unknownIDs = append(unknownIDs, req)
		case prov.Source == SourceLocal:
			localIDs = append(localIDs, req)
		default:
			r := req
			if prov.Generation != 0 {
				r.Generation = prov.Generation
			}
			serviceReqs = append(serviceReqs, r)
		}
	}

	contents := make(map[document.HandleID]string, len(requests))
	var failed []document.HandleID

	for _, req := range localIDs {
		content, err := c.local.Expand(ctx, req.ID)
		if err != nil {
			failed = append(failed, req.ID)
			continue
		}
		contents[req.ID] = content
	}

	if len(serviceReqs) > 0 {
		sc, sf, err := c.expandServiceBatch(ctx, repoID, serviceReqs)
		if err != nil {
			// Whole batch failed transport-level; retry per-handle so one
			// bad handle doesn't sink the rest.
			for _, req := range serviceReqs {
				c2, _, perr := c.expandServiceBatch(ctx, repoID, []ExpandRequest{req})
				if perr != nil || len(c2) == 0 {
					failed = append(failed, req.ID)
					continue
				}
				for id, content := range c2 {
					contents[id] = content
				}
			}
		} else {
			for id, content := range sc {
				contents[id] = content
			}
			failed = append(failed, sf...)
		}
	}

	for _, req := range unknownIDs {
		if content, err := c.local.Expand(ctx, req.ID); err == nil {
			contents[req.ID] = content
			c.provenance.Record(repoID, req.ID, Provenance{Source: SourceLocal})
			continue
		}
		sc, _, err := c.expandServiceBatch(ctx, repoID, []ExpandRequest{req})
		if err != nil || len(sc) == 0 {
			failed = append(failed, req.ID)
			continue
		}
		for id, content := range sc {
			contents[id] = content
			c.provenance.Record(repoID, id, Provenance{Source: SourceService})
		}
	}

	return finishExpand(contents, failed, len(requests))
}

func (c *Client) expandServiceBatch(ctx context.Context, repoID string, requests []ExpandRequest) (map[document.HandleID]string, []document.HandleID, error) {
	wireHandles := make([]expandWireHandle, 0, len(requests))
	for _, req := range requests {
		h := expandWireHandle{ID: string(req.ID)}
		if req.Generation != 0 {
			gen := req.Generation
			h.Generation = &gen
		}
		wireHandles = append(wireHandles, h)
	}

	var resp expandWireResponse
	if err := c.http.do(ctx, http.MethodPost, "/expand", expandWireRequest{Repo: repoID, Handles: wireHandles}, &resp); err != nil {
		return nil, nil, err
	}

	contents := make(map[document.HandleID]string, len(resp.Contents))
	for _, item := range resp.Contents {
		id, err := document.ParseHandleID(item.HandleID)
		if err != nil {
			continue
		}
		contents[id] = item.Content
	}
	failed := make([]document.HandleID, 0, len(resp.Failed))
	for _, idStr := range resp.Failed {
		id, err := document.ParseHandleID(idStr)
		if err != nil {
			continue
		}
		failed = append(failed, id)
	}
	return contents, failed, nil
}

// finishExpand applies the "fail the call only if all handles failed" rule.
func finishExpand(contents map[document.HandleID]string, failed []document.HandleID, total int) (map[document.HandleID]string, []document.HandleID, error) {
	if total > 0 && len(contents) == 0 {
		return contents, failed, canopyerr.New(canopyerr.CodeHandleNotFound, "all requested handles failed to expand")
	}
	return contents, failed, nil
}
