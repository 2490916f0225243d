package client

import (
	"strconv"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/query"
)

// TaggedHandle is a node handle annotated with where it came from, per
// spec.md §4.7's provenance requirement.
type TaggedHandle struct {
	document.Handle
	Source Source `json:"source"`
}

// TaggedRefHandle is a reference handle annotated with where it came from.
type TaggedRefHandle struct {
	document.RefHandle
	Source Source `json:"source"`
}

// QueryResult is what the client runtime returns from Query: the same
// shape as query.Result, but every handle carries its provenance and, for
// dirty files, local handles have displaced any service ones.
type QueryResult struct {
	Handles     []TaggedHandle    `json:"handles,omitempty"`
	RefHandles  []TaggedRefHandle `json:"ref_handles,omitempty"`
	Truncated   bool              `json:"truncated"`
	TotalTokens int               `json:"total_tokens"`
	Note        string            `json:"expand_note,omitempty"`
}

// tagAll wraps every handle in result with the same source and generation,
// for the (common) case where the whole result came from one backend.
func tagAll(result *query.Result, source Source, generation uint64) *QueryResult {
	out := &QueryResult{
		Truncated:   result.Truncated,
		TotalTokens: result.TotalTokens,
		Note:        result.Note,
	}
	for _, h := range result.Handles {
		h.Generation = generation
		out.Handles = append(out.Handles, TaggedHandle{Handle: h, Source: source})
	}
	for _, rh := range result.RefHandles {
		out.RefHandles = append(out.RefHandles, TaggedRefHandle{RefHandle: rh, Source: source})
	}
	return out
}

// mergeDirtyOverlay implements spec.md §4.7's merge policy: for every dirty
// path, all service handles are discarded (kept: local handles for that
// path); for clean paths, service handles are kept and local duplicates
// are ignored. Deduplication is by handle ID, first-write-wins. Aggregate
// counts are recomputed from the merged set.
func mergeDirtyOverlay(service *query.Result, serviceGeneration uint64, local *query.Result, dirty map[string]bool) *QueryResult {
	out := &QueryResult{Note: service.Note}

	seen := make(map[document.HandleID]bool)
	seenRefs := make(map[string]bool) // no stable ID on RefHandle; key by file+span

	addHandle := func(h document.Handle, source Source) {
		if seen[h.ID] {
			return
		}
		seen[h.ID] = true
		gen := uint64(0)
		if source == SourceService {
			gen = serviceGeneration
		}
		h.Generation = gen
		out.Handles = append(out.Handles, TaggedHandle{Handle: h, Source: source})
		out.TotalTokens += h.TokenCount
	}

	addRef := func(rh document.RefHandle, source Source) {
		key := rh.FilePath + ":" + strconv.Itoa(rh.Span.Start) + "-" + strconv.Itoa(rh.Span.End)
		if seenRefs[key] {
			return
		}
		seenRefs[key] = true
		out.RefHandles = append(out.RefHandles, TaggedRefHandle{RefHandle: rh, Source: source})
	}

	for _, h := range service.Handles {
		if dirty != nil {
			if _, isDirty := dirty[h.FilePath]; isDirty {
				continue // all service handles for a dirty path are discarded
			}
		}
		addHandle(h, SourceService)
	}
	for _, rh := range service.RefHandles {
		if dirty != nil {
			if _, isDirty := dirty[rh.FilePath]; isDirty {
				continue
			}
		}
		addRef(rh, SourceService)
	}

	if local != nil {
		for _, h := range local.Handles {
			if _, isDirty := dirty[h.FilePath]; !isDirty {
				continue // local store may hold more than just dirty files; keep only those
			}
			addHandle(h, SourceLocal)
		}
		for _, rh := range local.RefHandles {
			if _, isDirty := dirty[rh.FilePath]; !isDirty {
				continue
			}
			addRef(rh, SourceLocal)
		}
	}

	out.Truncated = service.Truncated || (local != nil && local.Truncated)
	return out
}
