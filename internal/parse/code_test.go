package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/document"
)

const goSample = `package greet

import "fmt"

type Store struct {
	name string
}

func (s *Store) Greet() {
	fmt.Println(Hello())
}

func Hello() string {
	return "hi"
}
`

func TestParseGoCapturesStructFunctionAndMethod(t *testing.T) {
	parsed := Parse("greet.go", []byte(goSample), DefaultConfig())
	require.NotEmpty(t, parsed.Nodes)

	byName := map[string]document.Node{}
	for _, n := range parsed.Nodes {
		if n.Name != "" {
			byName[n.Name] = n
		}
	}

	require.Contains(t, byName, "Store")
	assert.Equal(t, document.NodeStruct, byName["Store"].NodeType)

	require.Contains(t, byName, "Greet")
	assert.Equal(t, document.NodeMethod, byName["Greet"].NodeType)
	meta, ok := byName["Greet"].Metadata.(document.MethodMeta)
	require.True(t, ok)
	assert.Equal(t, "Store", meta.ClassName)

	require.Contains(t, byName, "Hello")
	assert.Equal(t, document.NodeFunction, byName["Hello"].NodeType)
}

func TestParseGoExtractsCallReference(t *testing.T) {
	parsed := Parse("greet.go", []byte(goSample), DefaultConfig())
	require.NotEmpty(t, parsed.Refs)

	var found bool
	for _, r := range parsed.Refs {
		if r.Name == "Hello" && r.RefType == document.RefCall {
			found = true
		}
	}
	assert.True(t, found, "expected a call reference to Hello")
}

const tsSample = `
class Greeter {
  greet(): string {
    return helper();
  }
}

function helper(): string {
  return "hi";
}
`

func TestParseTypeScriptCapturesClassAndMethod(t *testing.T) {
	parsed := Parse("greeter.ts", []byte(tsSample), DefaultConfig())
	require.NotEmpty(t, parsed.Nodes)

	var sawClass, sawMethod bool
	for _, n := range parsed.Nodes {
		switch {
		case n.NodeType == document.NodeClass && n.Name == "Greeter":
			sawClass = true
		case n.NodeType == document.NodeMethod && n.Name == "greet":
			sawMethod = true
			meta, ok := n.Metadata.(document.MethodMeta)
			require.True(t, ok)
			assert.Equal(t, "Greeter", meta.ClassName)
		}
	}
	assert.True(t, sawClass)
	assert.True(t, sawMethod)
}

func TestParseUnrecognizedCodeExtensionFallsBackToChunk(t *testing.T) {
	parsed := Parse("script.rb", []byte("def f\nend\n"), DefaultConfig())
	require.Len(t, parsed.Nodes, 1)
	assert.Equal(t, document.NodeChunk, parsed.Nodes[0].NodeType)
}
