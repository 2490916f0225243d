package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTypeRoundTrip(t *testing.T) {
	for _, nt := range []NodeType{NodeSection, NodeCodeBlock, NodeParagraph, NodeFunction, NodeClass, NodeStruct, NodeMethod, NodeChunk} {
		parsed, err := ParseNodeType(nt.String())
		require.NoError(t, err)
		assert.Equal(t, nt, parsed)
	}
}

func TestNodeTypeIsCodeSymbol(t *testing.T) {
	assert.True(t, NodeFunction.IsCodeSymbol())
	assert.True(t, NodeClass.IsCodeSymbol())
	assert.True(t, NodeStruct.IsCodeSymbol())
	assert.True(t, NodeMethod.IsCodeSymbol())
	assert.False(t, NodeSection.IsCodeSymbol())
	assert.False(t, NodeCodeBlock.IsCodeSymbol())
	assert.False(t, NodeParagraph.IsCodeSymbol())
	assert.False(t, NodeChunk.IsCodeSymbol())
}

func TestRefTypeRoundTrip(t *testing.T) {
	for _, rt := range []RefType{RefCall, RefImport, RefTypeRef} {
		parsed, err := ParseRefType(rt.String())
		require.NoError(t, err)
		assert.Equal(t, rt, parsed)
	}
}

func TestMetadataJSONRoundTrip(t *testing.T) {
	cases := []NodeMetadata{
		SectionMeta{Heading: "Intro", Level: 1},
		CodeBlockMeta{Language: "go"},
		ParagraphMeta{},
		FunctionMeta{Name: "doThing", Signature: "(x int) error"},
		ClassMeta{Name: "Widget"},
		StructMeta{Name: "Widget"},
		MethodMeta{Name: "Run", ClassName: "Widget"},
		ChunkMeta{Index: 3},
	}

	for _, m := range cases {
		raw, err := MetadataToJSON(m)
		require.NoError(t, err)

		parsed, err := MetadataFromJSON(raw, m.Kind())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
}

func TestSearchableName(t *testing.T) {
	assert.Equal(t, "Intro", SectionMeta{Heading: "Intro"}.SearchableName())
	assert.Equal(t, "doThing", FunctionMeta{Name: "doThing"}.SearchableName())
	assert.Equal(t, "", CodeBlockMeta{Language: "go"}.SearchableName())
	assert.Equal(t, "", ParagraphMeta{}.SearchableName())
	assert.Equal(t, "", ChunkMeta{Index: 1}.SearchableName())
}
