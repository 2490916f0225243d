package parse

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseComputesContentHashAndTotalTokens(t *testing.T) {
	content := []byte("# Title\n\nsome text\n")
	parsed := Parse("doc.md", content, DefaultConfig())

	assert.Equal(t, sha256.Sum256(content), parsed.ContentHash)
	assert.Equal(t, string(content), parsed.Source)

	sum := 0
	for _, n := range parsed.Nodes {
		sum += n.TokenCount
	}
	assert.Equal(t, sum, parsed.TotalTokens)
}

func TestEstimateTokensFallsBackWithoutEncoder(t *testing.T) {
	n := EstimateTokens("hello world")
	assert.Greater(t, n, 0)
}
