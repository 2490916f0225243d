// Package query turns a QueryParams record into a search plan, executes it
// against a Store, and optionally auto-expands the results under a token
// budget.
package query

import "fmt"

// MatchMode controls how multiple patterns combine.
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// Kind narrows a symbol search to definitions, references, or either.
type Kind string

const (
	KindAny        Kind = "any"
	KindDefinition Kind = "definition"
	KindReference  Kind = "reference"
)

// DefaultResultLimit is used when Params.Limit is zero.
const DefaultResultLimit = 20

// Params is the public query surface: a parameter record, not a query
// language. Exactly one of the symbol-shaped fields is expected to be set
// per call, though the lowering rules tolerate combinations (see Lower).
type Params struct {
	Pattern      string    `json:"pattern,omitempty"`
	Patterns     []string  `json:"patterns,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	Section      string    `json:"section,omitempty"`
	Parent       string    `json:"parent,omitempty"`
	Glob         string    `json:"glob,omitempty"`
	Kind         Kind      `json:"kind,omitempty"`
	MatchMode    MatchMode `json:"match,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	ExpandBudget int       `json:"expand_budget,omitempty"`
}

// Validate checks the parameter record for the constraints spec.md §4.4
// names: kind != any requires symbol; an empty patterns[] (as opposed to
// absent) is rejected.
func (p Params) Validate() error {
	if p.Kind != "" && p.Kind != KindAny && p.Symbol == "" {
		return fmt.Errorf("query: kind %q requires symbol", p.Kind)
	}
	if p.Patterns != nil && len(p.Patterns) == 0 {
		return fmt.Errorf("query: patterns must be non-empty when provided")
	}
	return nil
}

func (p Params) effectiveLimit() int {
	if p.Limit > 0 {
		return p.Limit
	}
	return DefaultResultLimit
}

func (p Params) effectiveKind() Kind {
	if p.Kind == "" {
		return KindAny
	}
	return p.Kind
}

func (p Params) effectiveMatchMode() MatchMode {
	if p.MatchMode == "" {
		return MatchAny
	}
	return p.MatchMode
}
