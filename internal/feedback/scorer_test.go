package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canopy-project/canopy/internal/document"
)

func TestScorerPrefersExpandedNodeTypeAndGlob(t *testing.T) {
	s := openTestStore(t)

	eventID := s.RecordQuery(QueryEvent{QueryText: "q", HandlesReturned: 2}, []QueryHandle{
		{HandleID: "h1", FilePath: "src/a.go", NodeType: document.NodeFunction, TokenCount: 10, FirstMatchGlob: "src/**"},
		{HandleID: "h2", FilePath: "docs/a.md", NodeType: document.NodeSection, TokenCount: 10, FirstMatchGlob: "docs/**"},
	})
	s.RecordExpand(ExpandEvent{QueryEventID: &eventID, HandleID: "h1", NodeType: document.NodeFunction, TokenCount: 10})

	scorer := NewScorer(s, "src/**", DefaultHalfLifeDays)

	funcHandle := document.Handle{NodeType: document.NodeFunction, FilePath: "src/a.go"}
	sectionHandle := document.Handle{NodeType: document.NodeSection, FilePath: "docs/a.md"}

	assert.Greater(t, scorer.Score(funcHandle), scorer.Score(sectionHandle))
}

func TestScorerWithEmptyGlobIgnoresGlobScore(t *testing.T) {
	s := openTestStore(t)
	scorer := NewScorer(s, "", DefaultHalfLifeDays)
	h := document.Handle{NodeType: document.NodeFunction, FilePath: "src/a.go"}
	assert.Equal(t, 0.0, scorer.Score(h))
}

func TestScorerDefaultsHalfLifeWhenNonPositive(t *testing.T) {
	s := openTestStore(t)
	scorer := NewScorer(s, "src/**", 0)
	assert.NotNil(t, scorer)
}
