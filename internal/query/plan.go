package query

// opKind identifies which Store primitive (or set operator) a plan node
// executes.
type opKind int

const (
	opFTSSearch opKind = iota
	opSection
	opCode
	opDefinition
	opChildren
	opChildrenNamed
	opReferences
	opUnion
	opIntersect
	opInFile
)

// plan is a node in the lowered query tree. Leaf nodes carry the argument
// needed by their Store primitive; Union/Intersect/InFile wrap child plans.
type plan struct {
	op opKind

	text    string
	symbol  string
	parent  string
	section string
	glob    string

	children []plan
}

// Lower converts validated Params into a plan tree per spec.md §4.4's
// lowering rules.
func Lower(p Params) (plan, error) {
	if err := p.Validate(); err != nil {
		return plan{}, err
	}

	var base plan

	switch p.effectiveKind() {
	case KindDefinition:
		if p.Parent != "" {
			base = plan{op: opChildrenNamed, parent: p.Parent, symbol: p.Symbol}
		} else {
			base = plan{op: opDefinition, symbol: p.Symbol}
		}

	case KindReference:
		base = plan{op: opReferences, symbol: p.Symbol}

	default: // KindAny
		base = lowerAny(p)
	}

	if p.Glob != "" {
		base = plan{op: opInFile, glob: p.Glob, children: []plan{base}}
	}
	return base, nil
}

func lowerAny(p Params) plan {
	switch {
	case p.Parent != "" && p.Symbol != "":
		return plan{op: opChildrenNamed, parent: p.Parent, symbol: p.Symbol}
	case p.Parent != "":
		return plan{op: opChildren, parent: p.Parent}
	case p.Symbol != "":
		return plan{op: opCode, symbol: p.Symbol}
	case p.Section != "":
		return plan{op: opSection, section: p.Section}
	case len(p.Patterns) > 1:
		return lowerMultiPattern(p)
	case len(p.Patterns) == 1:
		return plan{op: opFTSSearch, text: p.Patterns[0]}
	default:
		return plan{op: opFTSSearch, text: p.Pattern}
	}
}

func lowerMultiPattern(p Params) plan {
	children := make([]plan, len(p.Patterns))
	for i, pat := range p.Patterns {
		children[i] = plan{op: opFTSSearch, text: pat}
	}
	if p.effectiveMatchMode() == MatchAll {
		return plan{op: opIntersect, children: children}
	}
	return plan{op: opUnion, children: children}
}
