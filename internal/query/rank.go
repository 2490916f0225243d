package query

import (
	"sort"

	"github.com/canopy-project/canopy/internal/document"
)

// HandleScorer assigns a ranking score to a handle. Higher sorts first.
// Scoring never changes which handles satisfy a request — it only reorders
// handles Execute already decided to return, before limit truncation would
// apply to a fresh call.
type HandleScorer interface {
	Score(h document.Handle) float64
}

// Rank stable-sorts handles by descending score. Handles with equal score
// keep their original (Store) relative order.
func Rank(handles []document.Handle, scorer HandleScorer) {
	if scorer == nil || len(handles) < 2 {
		return
	}
	sort.SliceStable(handles, func(i, j int) bool {
		return scorer.Score(handles[i]) > scorer.Score(handles[j])
	})
}
