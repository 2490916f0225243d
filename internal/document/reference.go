package document

// Reference is a name-level use site (call, import, type mention) extracted
// from code. Resolution is name-level only; there is no symbolic binding or
// type inference.
type Reference struct {
	Name      string
	NameLower string
	// Qualifier is the object or module path a reference is scoped to, e.g.
	// for "a.b()" the qualifier is "a" and the name is "b". Empty when the
	// reference is unqualified.
	Qualifier string
	RefType   RefType
	Span      Span
	LineStart int
	LineEnd   int
	// Preview is the containing source line, trimmed.
	Preview string
	// SourceHandleID is the handle ID of the smallest enclosing node, ties
	// broken by minimum span length. Empty when the reference is unbound.
	SourceHandleID string
}

// ParsedFile is the parser's full output for one file.
type ParsedFile struct {
	Path        string
	Source      string
	ContentHash [32]byte
	Nodes       []Node
	Refs        []Reference
	TotalTokens int
}
