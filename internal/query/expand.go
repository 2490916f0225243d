package query

import (
	"context"

	"github.com/canopy-project/canopy/internal/store"
)

// applyAutoExpand expands every handle in result and attaches its content
// in place, all-or-nothing: if the total token count exceeds budget, no
// handle is expanded and a note explains why. If expansion itself fails
// partway through, the handles are left unexpanded with a note rather than
// returned half-expanded.
func applyAutoExpand(ctx context.Context, st store.Store, result *Result, budget int) {
	if result.TotalTokens > budget {
		result.Note = "results exceed expand_budget; call expand explicitly for the handles you need"
		return
	}

	expanded := make([]string, len(result.Handles))
	for i, h := range result.Handles {
		content, err := st.Expand(ctx, h.ID)
		if err != nil {
			result.Note = "auto-expand failed; returning handles unexpanded: " + err.Error()
			return
		}
		expanded[i] = content
	}

	for i := range result.Handles {
		result.Handles[i] = result.Handles[i].WithContent(expanded[i])
	}
}
