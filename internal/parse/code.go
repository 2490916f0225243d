package parse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/canopy-project/canopy/internal/document"
)

// parseCode parses source with the given language's tree-sitter grammar,
// descending recursively until a node of interest (function, class, struct,
// method) is captured; it does not descend further into function or method
// bodies, but does descend into classes to find their methods. References
// (calls and imports) are extracted in an independent full-tree walk, since
// call sites inside a captured function body still count. Type mentions are
// not extracted as references.
func parseCode(source string, lang *languageConfig, cfg Config) ([]document.Node, []document.Reference, error) {
	p := sitter.NewParser()
	p.SetLanguage(lang.sitterLang)
	defer p.Close()

	src := []byte(source)
	tree, err := p.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", lang.name, err)
	}
	if tree == nil {
		return nil, nil, fmt.Errorf("parse %s: nil tree", lang.name)
	}
	root := tree.RootNode()

	var nodes []document.Node
	walkSymbols(root, src, source, lang, "", cfg, &nodes)

	var refs []document.Reference
	walkReferences(root, src, source, lang, &refs)

	return nodes, refs, nil
}

func contains(set []string, t string) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

func walkSymbols(n *sitter.Node, src []byte, source string, lang *languageConfig, enclosingClass string, cfg Config, out *[]document.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		t := child.Type()

		switch {
		case contains(lang.structTypes, t):
			name := extractName(child, src, lang)
			if name != "" {
				appendSymbolNode(out, child, src, source, document.NodeStruct, document.StructMeta{Name: name}, name, cfg)
			}
			// Go/TS type declarations don't nest further symbols of interest.

		case contains(lang.classTypes, t):
			name := extractName(child, src, lang)
			if name != "" {
				appendSymbolNode(out, child, src, source, document.NodeClass, document.ClassMeta{Name: name}, name, cfg)
			}
			walkSymbols(child, src, source, lang, name, cfg, out)

		case contains(lang.methodTypes, t):
			name := extractName(child, src, lang)
			if name != "" {
				class := enclosingClass
				if class == "" && lang.name == "go" {
					class = extractGoReceiverType(child, src)
				}
				n := buildSymbolNode(child, src, source, document.NodeMethod, document.MethodMeta{Name: name, ClassName: class}, name, cfg)
				n.ParentName = class
				n.ParentNameLower = toLowerASCII(class)
				*out = append(*out, n)
			}

		case contains(lang.functionTypes, t):
			name := extractName(child, src, lang)
			if name != "" && lang.name == "python" && enclosingClass != "" {
				// A Python def inside a class body is a method of that class.
				n := buildSymbolNode(child, src, source, document.NodeMethod, document.MethodMeta{Name: name, ClassName: enclosingClass}, name, cfg)
				n.ParentName = enclosingClass
				n.ParentNameLower = toLowerASCII(enclosingClass)
				*out = append(*out, n)
			} else if name != "" {
				sig := extractSignature(child, src)
				appendSymbolNode(out, child, src, source, document.NodeFunction, document.FunctionMeta{Name: name, Signature: sig}, name, cfg)
			}

		case t == "lexical_declaration" || t == "variable_declaration":
			if sym := extractArrowFunction(child, src); sym != nil {
				appendSymbolNode(out, sym.node, src, source, document.NodeFunction,
					document.FunctionMeta{Name: sym.name, Signature: extractSignature(sym.node, src)}, sym.name, cfg)
				continue
			}
			walkSymbols(child, src, source, lang, enclosingClass, cfg, out)

		default:
			walkSymbols(child, src, source, lang, enclosingClass, cfg, out)
		}
	}
}

func appendSymbolNode(out *[]document.Node, n *sitter.Node, src []byte, source string, nodeType document.NodeType, meta document.NodeMetadata, name string, cfg Config) {
	*out = append(*out, buildSymbolNode(n, src, source, nodeType, meta, name, cfg))
}

func buildSymbolNode(n *sitter.Node, src []byte, source string, nodeType document.NodeType, meta document.NodeMetadata, name string, cfg Config) document.Node {
	span := document.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
	return document.Node{
		NodeType:   nodeType,
		Span:       span,
		LineStart:  int(n.StartPoint().Row) + 1,
		LineEnd:    int(n.EndPoint().Row) + 1,
		Metadata:   meta,
		Name:       name,
		NameLower:  toLowerASCII(name),
		TokenCount: EstimateTokens(document.SafeSlice(source, span.Start, span.End)),
		Preview:    document.GeneratePreview(source, span, cfg.PreviewBytes),
	}
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// extractName finds the identifier child that names a declaration, per
// language grammar shape.
func extractName(n *sitter.Node, src []byte, lang *languageConfig) string {
	switch lang.name {
	case "go":
		switch n.Type() {
		case "method_declaration":
			if c := childOfType(n, "field_identifier"); c != nil {
				return c.Content(src)
			}
		case "type_declaration":
			if spec := childOfType(n, "type_spec"); spec != nil {
				if id := childOfType(spec, "type_identifier"); id != nil {
					return id.Content(src)
				}
			}
		default:
			if c := childOfType(n, "identifier"); c != nil {
				return c.Content(src)
			}
		}
	case "typescript", "tsx", "javascript", "jsx":
		if c := childOfType(n, "identifier"); c != nil {
			return c.Content(src)
		}
		if c := childOfType(n, "type_identifier"); c != nil {
			return c.Content(src)
		}
		if c := childOfType(n, "property_identifier"); c != nil {
			return c.Content(src)
		}
	case "python":
		if c := childOfType(n, "identifier"); c != nil {
			return c.Content(src)
		}
	}
	return ""
}

func childOfType(n *sitter.Node, t string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && c.Type() == t {
			return c
		}
	}
	return nil
}

// extractGoReceiverType extracts the receiver's named type from a Go method
// declaration, e.g. "func (r *Store) Close()" yields "Store".
func extractGoReceiverType(n *sitter.Node, src []byte) string {
	recv := childOfType(n, "parameter_list")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.ChildCount()); i++ {
		param := recv.Child(i)
		if param == nil || param.Type() != "parameter_declaration" {
			continue
		}
		if id := childOfType(param, "type_identifier"); id != nil {
			return id.Content(src)
		}
		if ptr := childOfType(param, "pointer_type"); ptr != nil {
			if id := childOfType(ptr, "type_identifier"); id != nil {
				return id.Content(src)
			}
		}
	}
	return ""
}

// extractSignature returns the declaration's first line up to its opening
// brace, so a caller can see a symbol's interface without expanding its
// body. A first line with no brace (a Python def, for one) is returned
// whole, trailing colon included.
func extractSignature(n *sitter.Node, src []byte) string {
	content := n.Content(src)
	nl := indexByte(content, '\n')
	if nl < 0 {
		nl = len(content)
	}
	firstLine := content[:nl]
	if brace := indexByte(firstLine, '{'); brace >= 0 {
		return trimSpace(firstLine[:brace])
	}
	return trimSpace(firstLine)
}

type arrowFunctionSymbol struct {
	node *sitter.Node
	name string
}

// extractArrowFunction detects "const f = () => {}" / "const f = function(){}"
// inside a lexical_declaration or variable_declaration node.
func extractArrowFunction(n *sitter.Node, src []byte) *arrowFunctionSymbol {
	for i := 0; i < int(n.ChildCount()); i++ {
		declarator := n.Child(i)
		if declarator == nil || declarator.Type() != "variable_declarator" {
			continue
		}
		var name string
		var hasFn bool
		for j := 0; j < int(declarator.ChildCount()); j++ {
			c := declarator.Child(j)
			if c == nil {
				continue
			}
			switch c.Type() {
			case "identifier":
				name = c.Content(src)
			case "arrow_function", "function", "function_expression":
				hasFn = true
			}
		}
		if name != "" && hasFn {
			return &arrowFunctionSymbol{node: n, name: name}
		}
	}
	return nil
}

var callExprByLang = map[string]string{
	"go": "call_expression", "javascript": "call_expression", "jsx": "call_expression",
	"typescript": "call_expression", "tsx": "call_expression", "python": "call",
}

var importStmtByLang = map[string][]string{
	"go": {"import_spec"}, "javascript": {"import_statement"}, "jsx": {"import_statement"},
	"typescript": {"import_statement"}, "tsx": {"import_statement"},
	"python": {"import_statement", "import_from_statement"},
}

// walkReferences visits every node in the tree looking for call sites and
// imports. Attribution to an enclosing node is resolved later, at write
// time, from the reference's span alone.
func walkReferences(n *sitter.Node, src []byte, source string, lang *languageConfig, out *[]document.Reference) {
	callType := callExprByLang[lang.name]

	if n.Type() == callType {
		if ref := callReference(n, src, source, lang); ref != nil {
			*out = append(*out, *ref)
		}
	}
	for _, it := range importStmtByLang[lang.name] {
		if n.Type() == it {
			if ref := importReference(n, src, source); ref != nil {
				*out = append(*out, *ref)
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil {
			walkReferences(c, src, source, lang, out)
		}
	}
}

func callReference(n *sitter.Node, src []byte, source string, lang *languageConfig) *document.Reference {
	fn := n.Child(0)
	if fn == nil {
		return nil
	}

	var name, qualifier string
	switch fn.Type() {
	case "identifier":
		name = fn.Content(src)
	case "selector_expression", "member_expression", "attribute":
		// a.b() -> name = b, qualifier = a
		if field := lastChildContent(fn, src); field != "" {
			name = field
		}
		if base := fn.Child(0); base != nil {
			qualifier = base.Content(src)
		}
	default:
		return nil
	}
	if name == "" {
		return nil
	}

	span := document.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
	return &document.Reference{
		Name:      name,
		NameLower: toLowerASCII(name),
		Qualifier: qualifier,
		RefType:   document.RefCall,
		Span:      span,
		LineStart: int(n.StartPoint().Row) + 1,
		LineEnd:   int(n.EndPoint().Row) + 1,
		Preview:   document.GeneratePreview(source, span, 160),
	}
}

func lastChildContent(n *sitter.Node, src []byte) string {
	count := int(n.ChildCount())
	if count == 0 {
		return ""
	}
	last := n.Child(count - 1)
	if last == nil {
		return ""
	}
	return last.Content(src)
}

func importReference(n *sitter.Node, src []byte, source string) *document.Reference {
	content := n.Content(src)
	name := trimSpace(content)
	if name == "" {
		return nil
	}
	span := document.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
	return &document.Reference{
		Name:      name,
		NameLower: toLowerASCII(name),
		RefType:   document.RefImport,
		Span:      span,
		LineStart: int(n.StartPoint().Row) + 1,
		LineEnd:   int(n.EndPoint().Row) + 1,
		Preview:   document.GeneratePreview(source, span, 160),
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
