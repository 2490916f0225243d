package document

import (
	"encoding/json"
	"fmt"
)

// NodeMetadata carries the type-specific fields attached to a Node. Each
// NodeType has exactly one corresponding concrete metadata type.
type NodeMetadata interface {
	Kind() NodeType
	// SearchableName returns the text used for symbol lookup, or "" if this
	// metadata kind has no name (paragraph, code_block, chunk).
	SearchableName() string
}

// SectionMeta is attached to NodeSection.
type SectionMeta struct {
	Heading string `json:"heading"`
	Level   uint8  `json:"level"`
}

func (m SectionMeta) Kind() NodeType        { return NodeSection }
func (m SectionMeta) SearchableName() string { return m.Heading }

// CodeBlockMeta is attached to NodeCodeBlock.
type CodeBlockMeta struct {
	Language string `json:"language,omitempty"`
}

func (m CodeBlockMeta) Kind() NodeType        { return NodeCodeBlock }
func (m CodeBlockMeta) SearchableName() string { return "" }

// ParagraphMeta is attached to NodeParagraph. It carries no fields.
type ParagraphMeta struct{}

func (m ParagraphMeta) Kind() NodeType        { return NodeParagraph }
func (m ParagraphMeta) SearchableName() string { return "" }

// FunctionMeta is attached to NodeFunction.
type FunctionMeta struct {
	Name      string `json:"name"`
	Signature string `json:"signature,omitempty"`
}

func (m FunctionMeta) Kind() NodeType        { return NodeFunction }
func (m FunctionMeta) SearchableName() string { return m.Name }

// ClassMeta is attached to NodeClass.
type ClassMeta struct {
	Name string `json:"name"`
}

func (m ClassMeta) Kind() NodeType        { return NodeClass }
func (m ClassMeta) SearchableName() string { return m.Name }

// StructMeta is attached to NodeStruct.
type StructMeta struct {
	Name string `json:"name"`
}

func (m StructMeta) Kind() NodeType        { return NodeStruct }
func (m StructMeta) SearchableName() string { return m.Name }

// MethodMeta is attached to NodeMethod.
type MethodMeta struct {
	Name      string `json:"name"`
	ClassName string `json:"class_name,omitempty"`
}

func (m MethodMeta) Kind() NodeType        { return NodeMethod }
func (m MethodMeta) SearchableName() string { return m.Name }

// ChunkMeta is attached to NodeChunk, the line-based fallback.
type ChunkMeta struct {
	Index int `json:"index"`
}

func (m ChunkMeta) Kind() NodeType        { return NodeChunk }
func (m ChunkMeta) SearchableName() string { return "" }

// MetadataToJSON serializes metadata for storage, embedding the node type as
// a "type" discriminator so MetadataFromJSON can round-trip it without an
// external type hint.
func MetadataToJSON(m NodeMetadata) (string, error) {
	type envelope struct {
		Type string       `json:"type"`
		Meta NodeMetadata `json:"-"`
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal node metadata: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("marshal node metadata: %w", err)
	}
	typeJSON, _ := json.Marshal(m.Kind().String())
	fields["type"] = typeJSON
	out, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal node metadata: %w", err)
	}
	return string(out), nil
}

// MetadataFromJSON deserializes metadata previously produced by
// MetadataToJSON for the given node type.
func MetadataFromJSON(data string, nodeType NodeType) (NodeMetadata, error) {
	switch nodeType {
	case NodeSection:
		var m SectionMeta
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		return m, nil
	case NodeCodeBlock:
		var m CodeBlockMeta
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		return m, nil
	case NodeParagraph:
		return ParagraphMeta{}, nil
	case NodeFunction:
		var m FunctionMeta
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		return m, nil
	case NodeClass:
		var m ClassMeta
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		return m, nil
	case NodeStruct:
		var m StructMeta
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		return m, nil
	case NodeMethod:
		var m MethodMeta
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		return m, nil
	case NodeChunk:
		var m ChunkMeta
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown node type for metadata: %v", nodeType)
	}
}

// Node is a structural region extracted from a file by the parser.
type Node struct {
	NodeType NodeType
	Span     Span
	// LineStart and LineEnd are 1-indexed, inclusive.
	LineStart int
	LineEnd   int
	Metadata  NodeMetadata

	// Name and NameLower support exact symbol lookup; empty when Metadata
	// has no searchable name.
	Name      string
	NameLower string

	// Parent scope linkage, set when this node is nested inside another
	// (e.g. a method inside a class). ParentHandleID is computed once the
	// parent's handle ID is known.
	ParentName     string
	ParentNameLower string
	ParentHandleID  string
	ParentNodeType  *NodeType
	ParentSpan      *Span

	Preview    string
	TokenCount int
}
