package query

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/canopy-project/canopy/internal/document"
	"github.com/canopy-project/canopy/internal/store"
)

// intersectFetchLimit bounds how many candidates are pulled from each branch
// of an Intersect plan after the first; the first branch, which sets the
// result order, is fetched at the normal limit. The later branches need
// enough rows to compute an accurate hash-set overlap, not just the first
// effective_limit*2 rows.
const intersectFetchLimit = 5000

// Result is the outcome of one Execute call.
type Result struct {
	Handles     []document.Handle    `json:"handles,omitempty"`
	RefHandles  []document.RefHandle `json:"ref_handles,omitempty"`
	Truncated   bool                 `json:"truncated"`
	TotalTokens int                  `json:"total_tokens"`
	// Note carries a human-readable explanation when auto-expansion was
	// skipped or partially failed.
	Note string `json:"expand_note,omitempty"`
}

// Execute validates and lowers params, runs the resulting plan against st,
// truncates to the effective limit, and sums token counts. If
// ExpandBudget > 0 and the total fits within it, every handle's content is
// attached in place.
func Execute(ctx context.Context, st store.Store, p Params) (*Result, error) {
	pl, err := Lower(p)
	if err != nil {
		return nil, err
	}

	limit := p.effectiveLimit()
	fetchLimit := limit * 2

	handles, refHandles, err := evalPlan(ctx, st, pl, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	result := &Result{}

	if refHandles != nil {
		truncated := len(refHandles) > limit
		if truncated {
			refHandles = refHandles[:limit]
		}
		result.RefHandles = refHandles
		result.Truncated = truncated
		// References don't carry their own token count; nothing to sum.
	} else {
		truncated := len(handles) > limit
		if truncated {
			handles = handles[:limit]
		}
		result.Handles = handles
		result.Truncated = truncated
		for _, h := range handles {
			result.TotalTokens += h.TokenCount
		}
	}

	if p.ExpandBudget > 0 && result.Handles != nil {
		applyAutoExpand(ctx, st, result, p.ExpandBudget)
	}

	return result, nil
}

// evalPlan recursively evaluates a plan node. Exactly one of the two
// return slices is non-nil: node handles for every op except References,
// which returns reference handles.
func evalPlan(ctx context.Context, st store.Store, pl plan, limit int) ([]document.Handle, []document.RefHandle, error) {
	switch pl.op {
	case opFTSSearch:
		h, err := st.FTSSearch(ctx, pl.text, limit)
		return h, nil, err

	case opSection:
		h, err := st.SearchSections(ctx, pl.section, limit)
		return h, nil, err

	case opCode:
		h, err := st.SearchCode(ctx, pl.symbol, limit)
		return h, nil, err

	case opDefinition:
		h, err := st.SearchDefinitions(ctx, pl.symbol, limit)
		return h, nil, err

	case opChildren:
		h, err := st.SearchChildren(ctx, pl.parent, limit)
		return h, nil, err

	case opChildrenNamed:
		h, err := st.SearchChildrenNamed(ctx, pl.parent, pl.symbol, limit)
		return h, nil, err

	case opReferences:
		r, err := st.SearchReferences(ctx, pl.symbol, limit)
		return nil, r, err

	case opUnion:
		return evalUnion(ctx, st, pl, limit)

	case opIntersect:
		return evalIntersect(ctx, st, pl, limit)

	case opInFile:
		return evalInFile(ctx, st, pl, limit)

	default:
		return nil, nil, fmt.Errorf("unknown plan op %d", pl.op)
	}
}

// evalUnion merges each branch's handles, deduplicating by handle ID while
// preserving first-seen order.
func evalUnion(ctx context.Context, st store.Store, pl plan, limit int) ([]document.Handle, []document.RefHandle, error) {
	seen := make(map[document.HandleID]bool)
	var merged []document.Handle

	for _, child := range pl.children {
		h, _, err := evalPlan(ctx, st, child, limit)
		if err != nil {
			return nil, nil, err
		}
		for _, handle := range h {
			if seen[handle.ID] {
				continue
			}
			seen[handle.ID] = true
			merged = append(merged, handle)
		}
	}
	return merged, nil, nil
}

// evalIntersect computes the hash-set intersection of handle IDs across
// branches, ordered by the first branch's result order.
func evalIntersect(ctx context.Context, st store.Store, pl plan, limit int) ([]document.Handle, []document.RefHandle, error) {
	if len(pl.children) == 0 {
		return nil, nil, nil
	}

	first, _, err := evalPlan(ctx, st, pl.children[0], limit)
	if err != nil {
		return nil, nil, err
	}

	for _, child := range pl.children[1:] {
		others, _, err := evalPlan(ctx, st, child, intersectFetchLimit)
		if err != nil {
			return nil, nil, err
		}
		present := make(map[document.HandleID]bool, len(others))
		for _, h := range others {
			present[h.ID] = true
		}

		kept := first[:0:0]
		for _, h := range first {
			if present[h.ID] {
				kept = append(kept, h)
			}
		}
		first = kept
	}

	return first, nil, nil
}

// evalInFile filters a child plan's results to paths matching glob. When
// the child is a plain text search, it delegates to the Store's native
// SearchInFiles primitive; otherwise it evaluates the child directly and
// filters the resulting handles in memory.
func evalInFile(ctx context.Context, st store.Store, pl plan, limit int) ([]document.Handle, []document.RefHandle, error) {
	child := pl.children[0]

	if child.op == opFTSSearch {
		h, err := st.SearchInFiles(ctx, pl.glob, child.text, limit)
		return h, nil, err
	}

	h, r, err := evalPlan(ctx, st, child, limit*4)
	if err != nil {
		return nil, nil, err
	}

	h = filterHandlesByGlob(h, pl.glob)
	if len(h) > limit {
		h = h[:limit]
	}

	if r != nil {
		r = filterRefHandlesByGlob(r, pl.glob)
		if len(r) > limit {
			r = r[:limit]
		}
	}

	return h, r, nil
}

func filterHandlesByGlob(handles []document.Handle, glob string) []document.Handle {
	if glob == "" || glob == "*" {
		return handles
	}
	out := make([]document.Handle, 0, len(handles))
	for _, h := range handles {
		if ok, err := doublestar.Match(glob, h.FilePath); err == nil && ok {
			out = append(out, h)
		}
	}
	return out
}

func filterRefHandlesByGlob(refs []document.RefHandle, glob string) []document.RefHandle {
	if glob == "" || glob == "*" {
		return refs
	}
	out := make([]document.RefHandle, 0, len(refs))
	for _, r := range refs {
		if ok, err := doublestar.Match(glob, r.FilePath); err == nil && ok {
			out = append(out, r)
		}
	}
	return out
}
