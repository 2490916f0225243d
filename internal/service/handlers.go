package service

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/query"
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

func (s *Server) handleReposAdd(w http.ResponseWriter, r *http.Request) {
	var req reposAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Path == "" {
		badRequest(w, "path is required")
		return
	}

	sh, err := s.mgr.Register(req.Path, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reposAddResponse{RepoID: sh.ID, Name: sh.Name})
}

func (s *Server) handleReposList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.List())
}

type statusResponse struct {
	Service string              `json:"service"`
	Repos   []*shard.RepoShard  `json:"repos"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Service: "canopy",
		Repos:   s.mgr.List(),
	})
}

type reindexRequest struct {
	Repo string `json:"repo"`
	Glob string `json:"glob,omitempty"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Repo == "" {
		badRequest(w, "repo is required")
		return
	}

	outcome, err := s.mgr.Reindex(req.Repo, req.Glob)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type queryRequest struct {
	Repo string `json:"repo"`
	query.Params
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Repo == "" {
		badRequest(w, "repo is required")
		return
	}
	if err := req.Params.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	result, _, err := s.mgr.ServeQuery(r.Context(), req.Repo, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type expandHandleRequest struct {
	ID         string  `json:"id"`
	Generation *uint64 `json:"generation,omitempty"`
}

type expandRequest struct {
	Repo    string                `json:"repo"`
	Handles []expandHandleRequest `json:"handles"`
}

type expandedContent struct {
	HandleID string `json:"handle_id"`
	Content  string `json:"content"`
}

type expandResponse struct {
	Contents []expandedContent `json:"contents"`
	Failed   []string          `json:"failed,omitempty"`
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Repo == "" {
		badRequest(w, "repo is required")
		return
	}

	requests := make([]shard.ExpandRequest, 0, len(req.Handles))
	for _, h := range req.Handles {
		id, err := document.ParseHandleID(h.ID)
		if err != nil {
			badRequest(w, "invalid handle id: "+h.ID)
			return
		}
		requests = append(requests, shard.ExpandRequest{ID: id, Generation: h.Generation})
	}

	contents, failed, err := s.mgr.ServeExpand(r.Context(), req.Repo, requests)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := expandResponse{Contents: make([]expandedContent, 0, len(contents))}
	for id, content := range contents {
		resp.Contents = append(resp.Contents, expandedContent{HandleID: string(id), Content: content})
	}
	for _, id := range failed {
		resp.Failed = append(resp.Failed, string(id))
	}
	writeJSON(w, http.StatusOK, resp)
}

type metricsResponse struct {
	Service      string                    `json:"service"`
	PID          int                       `json:"pid"`
	UptimeSecs   float64                   `json:"uptime_seconds"`
	RequestCounts map[string]map[string]int64 `json:"request_counts"`
	Evidence     map[string]Evidence       `json:"evidence,omitempty"`
}

// handleMetrics returns request counters and, per registered repo, a
// feedback-derived evidence block of the globs/node-types most worth
// expanding — matching the original implementation's evidence ranking.
// Raw Prometheus exposition is served separately at GET /metrics/prom.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	counts := s.metrics.RouteCounts()
	byRoute := make(map[string]map[string]int64, len(counts))
	for route, byStatus := range counts {
		m := make(map[string]int64, len(byStatus))
		for status, n := range byStatus {
			m[statusLabel(status)] += n
		}
		byRoute[route] = m
	}

	evidence := make(map[string]Evidence)
	for _, sh := range s.mgr.List() {
		fb := s.mgr.FeedbackStore(sh.ID)
		if fb == nil {
			continue
		}
		evidence[sh.ID] = evidenceFromFeedback(fb, 5)
	}

	writeJSON(w, http.StatusOK, metricsResponse{
		Service:       "canopy",
		PID:           os.Getpid(),
		UptimeSecs:    time.Since(s.started).Seconds(),
		RequestCounts: byRoute,
		Evidence:      evidence,
	})
}
