package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/canopy-project/canopy/internal/canopyerr"
	"github.com/canopy-project/canopy/internal/shard"
)

type reposAddRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

type reposAddResponse struct {
	RepoID string `json:"repo_id"`
	Name   string `json:"name"`
}

type statusResponse struct {
	Service string             `json:"service"`
	Repos   []*shard.RepoShard `json:"repos"`
}

// resolveRepoID returns the memoized repo_id for this client's root,
// registering it with the daemon on first use. Registration is idempotent
// by canonical path on the daemon side, so repeated calls are safe.
func (c *Client) resolveRepoID(ctx context.Context) (string, error) {
	if c.repoID != "" {
		return c.repoID, nil
	}
	var resp reposAddResponse
	if err := c.http.do(ctx, http.MethodPost, "/repos/add", reposAddRequest{Path: c.root}, &resp); err != nil {
		return "", err
	}
	c.repoID = resp.RepoID
	return c.repoID, nil
}

// reresolveRepoID forces a fresh registration, discarding any memoized
// repo_id. Used after a repo_not_found response, which spec.md §4.7 step 2
// treats as a signal the daemon's shard table no longer matches what this
// client remembers (e.g. the daemon restarted).
func (c *Client) reresolveRepoID(ctx context.Context) (string, error) {
	c.provenance.InvalidateRepo(c.repoID)
	c.repoID = ""
	return c.resolveRepoID(ctx)
}

// EnsureReady blocks until the repo reaches the "ready" status or timeout
// elapses, polling at EnsureReadyPollInterval. Standalone mode has nothing
// to wait for and returns immediately.
func (c *Client) EnsureReady(ctx context.Context, timeout time.Duration) error {
	if c.http == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = EnsureReadyTimeout
	}
	repoID, err := c.resolveRepoID(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(EnsureReadyPollInterval)
	defer ticker.Stop()

	for {
		sh, err := c.fetchStatus(ctx, repoID)
		if err != nil {
			return err
		}
		if sh != nil {
			switch sh.Status {
			case shard.StatusReady:
				return nil
			case shard.StatusError:
				return canopyerr.New(canopyerr.CodeIndexError, sh.LastError).
					WithDetail("repo", repoID)
			}
		}

		select {
		case <-ctx.Done():
			return canopyerr.New(canopyerr.CodeTimeout, fmt.Sprintf("repo %s not ready after %s", repoID, timeout))
		case <-ticker.C:
		}
	}
}

// fetchStatus returns the shard status for repoID, or nil if the daemon's
// status list doesn't (yet) contain it.
func (c *Client) fetchStatus(ctx context.Context, repoID string) (*shard.RepoShard, error) {
	var resp statusResponse
	if err := c.http.do(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return nil, err
	}
	for _, sh := range resp.Repos {
		if sh.ID == repoID {
			return sh, nil
		}
	}
	return nil, nil
}
