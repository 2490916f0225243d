package feedback

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/canopy-project/canopy/internal/document"
)

// DefaultHalfLifeDays is the decay constant used when ranking queries don't
// specify one.
const DefaultHalfLifeDays = 7.0

// Scorer ranks handles by node-type expand-acceptance prior plus, when the
// query carried a glob, that glob's own decayed expand-acceptance rate —
// i.e. handles of a kind and under a path pattern that agents have
// historically found worth expanding rank first. It implements
// query.HandleScorer.
type Scorer struct {
	glob           string
	nodeTypePriors map[document.NodeType]float64
	globScore      float64
	hasGlobScore   bool
}

// NewScorer snapshots the store's current priors for one ranking pass.
// glob is the query's own glob parameter (empty if the query had none).
func NewScorer(store *Store, glob string, halfLifeDays float64) *Scorer {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}

	s := &Scorer{
		glob:           glob,
		nodeTypePriors: store.NodeTypePriors(),
	}
	if glob != "" {
		scores := store.GlobScores([]string{glob}, halfLifeDays)
		if score, ok := scores[glob]; ok {
			s.globScore = score
			s.hasGlobScore = true
		}
	}
	return s
}

// Score implements query.HandleScorer.
func (s *Scorer) Score(h document.Handle) float64 {
	score := s.nodeTypePriors[h.NodeType]
	if s.hasGlobScore {
		if ok, err := doublestar.Match(s.glob, h.FilePath); err == nil && ok {
			score += s.globScore
		}
	}
	return score
}
