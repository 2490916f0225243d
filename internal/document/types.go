// Package document defines the structural model produced by the parser and
// consumed by the store and query engine: spans, node types, references, and
// the stable handle identifiers used to address them without carrying full
// content.
package document

import "fmt"

// Span is a byte range in source text, always byte offsets, never char
// indices. End is exclusive.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// NodeType is the kind of structural region a node represents. The integer
// values are stored directly in the database and must not be renumbered.
type NodeType uint8

const (
	NodeSection   NodeType = 0
	NodeCodeBlock NodeType = 1
	NodeParagraph NodeType = 2
	NodeFunction  NodeType = 3
	NodeClass     NodeType = 4
	NodeStruct    NodeType = 5
	NodeMethod    NodeType = 6
	NodeChunk     NodeType = 7 // line-based chunking fallback
)

// String returns the lowercase snake_case name used in JSON and FTS symbol
// rows.
func (t NodeType) String() string {
	switch t {
	case NodeSection:
		return "section"
	case NodeCodeBlock:
		return "code_block"
	case NodeParagraph:
		return "paragraph"
	case NodeFunction:
		return "function"
	case NodeClass:
		return "class"
	case NodeStruct:
		return "struct"
	case NodeMethod:
		return "method"
	case NodeChunk:
		return "chunk"
	default:
		return "unknown"
	}
}

// ParseNodeType converts a node type name back into its enum value.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "section":
		return NodeSection, nil
	case "code_block":
		return NodeCodeBlock, nil
	case "paragraph":
		return NodeParagraph, nil
	case "function":
		return NodeFunction, nil
	case "class":
		return NodeClass, nil
	case "struct":
		return NodeStruct, nil
	case "method":
		return NodeMethod, nil
	case "chunk":
		return NodeChunk, nil
	default:
		return 0, fmt.Errorf("unknown node type: %s", s)
	}
}

// IsCodeSymbol reports whether this node type is a code symbol kind eligible
// for the symbol cache (function, class, struct, method).
func (t NodeType) IsCodeSymbol() bool {
	switch t {
	case NodeFunction, NodeClass, NodeStruct, NodeMethod:
		return true
	default:
		return false
	}
}

func (t NodeType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *NodeType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	nt, err := ParseNodeType(s)
	if err != nil {
		return err
	}
	*t = nt
	return nil
}

// RefType is the kind of name-level reference extracted from code.
type RefType uint8

const (
	RefCall RefType = iota
	RefImport
	RefTypeRef
)

func (t RefType) String() string {
	switch t {
	case RefCall:
		return "call"
	case RefImport:
		return "import"
	case RefTypeRef:
		return "type_ref"
	default:
		return "unknown"
	}
}

// ParseRefType converts a reference type name back into its enum value.
func ParseRefType(s string) (RefType, error) {
	switch s {
	case "call":
		return RefCall, nil
	case "import":
		return RefImport, nil
	case "type_ref":
		return RefTypeRef, nil
	default:
		return 0, fmt.Errorf("unknown ref type: %s", s)
	}
}

func (t RefType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *RefType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	rt, err := ParseRefType(s)
	if err != nil {
		return err
	}
	*t = rt
	return nil
}
