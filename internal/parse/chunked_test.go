package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/document"
)

func TestChunkFallbackWholeFileUnderThreshold(t *testing.T) {
	source := "line one\nline two\nline three\n"
	cfg := DefaultConfig()

	nodes := chunkFallback(source, cfg)
	require.Len(t, nodes, 1)
	assert.Equal(t, document.NodeChunk, nodes[0].NodeType)
	assert.Equal(t, 0, nodes[0].Span.Start)
	assert.Equal(t, len(source), nodes[0].Span.End)
}

func TestChunkFallbackSplitsOverLargeFiles(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("x := 1\n")
	}
	source := b.String()

	cfg := Config{ChunkThresholdBytes: 10, ChunkLines: 50, ChunkOverlapLines: 5, PreviewBytes: 100}
	nodes := chunkFallback(source, cfg)

	require.Greater(t, len(nodes), 1)
	for i, n := range nodes {
		assert.Equal(t, document.NodeChunk, n.NodeType)
		meta, ok := n.Metadata.(document.ChunkMeta)
		require.True(t, ok)
		assert.Equal(t, i, meta.Index)
	}
	// Spans must be monotonically increasing and cover the whole file.
	assert.Equal(t, 0, nodes[0].Span.Start)
	assert.Equal(t, len(source), nodes[len(nodes)-1].Span.End)
}

func TestChunkFallbackUnrecognizedExtensionRoutesThroughParse(t *testing.T) {
	source := "some plain text content that is not code or markdown\n"
	parsed := Parse("notes.txt", []byte(source), DefaultConfig())

	require.Len(t, parsed.Nodes, 1)
	assert.Equal(t, document.NodeChunk, parsed.Nodes[0].NodeType)
}
