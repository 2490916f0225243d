package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/document"
)

func TestParseMarkdownSectionsAndCodeBlocks(t *testing.T) {
	source := "# Title\n\nIntro paragraph.\n\n## Sub\n\nBody text.\n\n```go\nfunc f() {}\n```\n"

	parsed := Parse("README.md", []byte(source), DefaultConfig())
	require.NotEmpty(t, parsed.Nodes)

	var sections, codeBlocks, paragraphs int
	for _, n := range parsed.Nodes {
		switch n.NodeType {
		case document.NodeSection:
			sections++
		case document.NodeCodeBlock:
			codeBlocks++
		case document.NodeParagraph:
			paragraphs++
		}
	}

	assert.Equal(t, 2, sections)
	assert.Equal(t, 1, codeBlocks)
	assert.GreaterOrEqual(t, paragraphs, 1)
}

func TestParseMarkdownHeaderlessDocument(t *testing.T) {
	source := "just some text\n\nand more text\n"
	parsed := Parse("notes.md", []byte(source), DefaultConfig())

	for _, n := range parsed.Nodes {
		assert.Equal(t, document.NodeParagraph, n.NodeType)
	}
	assert.NotEmpty(t, parsed.Nodes)
}

func TestParseMarkdownEmptyFile(t *testing.T) {
	parsed := Parse("empty.md", []byte(""), DefaultConfig())
	assert.Empty(t, parsed.Nodes)
}

func TestParseMarkdownSectionSpanStopsAtNextHeadingOfSameLevel(t *testing.T) {
	source := "# One\n\nfirst\n\n# Two\n\nsecond\n"
	parsed := Parse("doc.md", []byte(source), DefaultConfig())

	var headings []string
	for _, n := range parsed.Nodes {
		if n.NodeType == document.NodeSection {
			headings = append(headings, n.Name)
		}
	}
	assert.Equal(t, []string{"One", "Two"}, headings)
}
