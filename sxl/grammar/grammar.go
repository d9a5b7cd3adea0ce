// Package grammar models DSL grammar definitions and the registry the
// validator and prompt builder resolve them from. Grammars are authored as
// YAML documents; Load and Parse turn them into immutable Grammar values.
package grammar

import (
	"regexp"
	"sort"
	"strings"
)

// ReservedEmbed is the embedding symbol name. It is reserved in every
// grammar and must never appear as a defined symbol.
const ReservedEmbed = "EMBED"

// Well-known DSL ids shipped with the runtime. The prompt builder pins
// their sections first when the grammars are registered.
const (
	// DSLUniversal is the id of the shared S-expression conventions DSL.
	DSLUniversal = "sxl-universal"
	// DSLPlan is the id of the action plan DSL.
	DSLPlan = "sxl-plan"
)

type (
	// Grammar is a fully loaded DSL grammar. All fields are populated by
	// the loader; a Grammar is read-only after that.
	Grammar struct {
		// MetaGrammarVersion is the version of the grammar file format.
		MetaGrammarVersion string
		// DSL identifies the language the grammar describes.
		DSL DSLInfo
		// Symbols holds the symbol definitions in authoring order.
		Symbols []*SymbolDef
		// Literals holds the literal classification rules.
		Literals Literals
		// Identifier holds the grammar-wide identifier rule.
		Identifier IdentifierRule
		// Reserved lists names that must not be used as symbols.
		Reserved []string
		// Embedding describes cross-DSL embedding support.
		Embedding Embedding
		// Constraints holds global structural constraints.
		Constraints []Constraint
		// LLMSpecs holds per-provider and per-model prompt guidance.
		LLMSpecs LLMSpecs

		symbols  map[string]*SymbolDef
		reserved map[string]struct{}
	}

	// DSLInfo names and versions a DSL.
	DSLInfo struct {
		// ID is the DSL identifier, e.g. "sxl-sql".
		ID string
		// Description is a one-line summary used in prompts.
		Description string
		// Version is the grammar version.
		Version string
	}

	// SymbolDef defines one symbol of the DSL.
	SymbolDef struct {
		// Name is the symbol name as written in expressions.
		Name string
		// Description explains the symbol to the LLM.
		Description string
		// Kind is a free-form category such as "clause" or "operator".
		Kind string
		// Params holds the positional parameter definitions.
		Params []*ParamDef
		// Constraints holds free-form usage notes.
		Constraints []string
		// Examples holds example expressions.
		Examples []string
	}

	// ParamDef defines one positional parameter of a symbol.
	ParamDef struct {
		// Name is the parameter name used in error messages.
		Name string
		// Description explains the parameter to the LLM.
		Description string
		// Type is the parameter type expression, e.g. "identifier" or
		// "literal(string|number)".
		Type string
		// AllowedSymbols restricts which symbols may appear in node
		// position, when non-empty.
		AllowedSymbols []string
		// Cardinality is the occurrence rule for the parameter.
		Cardinality Cardinality
		// Ordered reports whether the parameter participates in the
		// positional cursor. Defaults to true. Unordered matching is
		// future work; the validator currently treats every parameter
		// as ordered.
		Ordered bool
		// IdentifierPattern overrides the grammar identifier rule for
		// this parameter, when set.
		IdentifierPattern string

		kind    ParamKind
		kinds   []string
		pattern *regexp.Regexp
		allowed map[string]struct{}
	}

	// Cardinality is the occurrence rule of a parameter.
	Cardinality string

	// ParamKind classifies a parameter type expression.
	ParamKind int

	// Literals holds the literal classification rules of a grammar.
	Literals struct {
		// String validates string literal text.
		String LiteralRule
		// Number validates number literal text.
		Number LiteralRule
		// Boolean lists the textual boolean forms.
		Boolean ValueRule
		// Null lists the textual null forms.
		Null ValueRule
	}

	// LiteralRule is a regex-based literal rule. An empty rule matches
	// any text.
	LiteralRule struct {
		// Regex is the rule source pattern.
		Regex string

		re *regexp.Regexp
	}

	// ValueRule is an enumerated literal rule.
	ValueRule struct {
		// Values lists the accepted textual forms.
		Values []string
	}

	// IdentifierRule is the grammar-wide identifier rule.
	IdentifierRule struct {
		// Description explains the identifier convention.
		Description string
		// Pattern is the identifier regex, empty for none.
		Pattern string

		re *regexp.Regexp
	}

	// Embedding describes how foreign DSL expressions embed into this
	// grammar.
	Embedding struct {
		// Enabled reports whether EMBED is accepted.
		Enabled bool
		// Symbol is the embedding symbol name, normally "EMBED".
		Symbol string
		// AutoRegisterSymbol reports whether the symbol is implicitly
		// reserved.
		AutoRegisterSymbol bool
		// Params documents the embedding parameter shape.
		Params []*ParamDef
	}

	// Constraint is a global structural constraint.
	Constraint struct {
		// Rule names the constraint, e.g. "must_have_root".
		Rule string
		// Target optionally scopes the constraint.
		Target string
		// Symbol is the symbol the rule applies to.
		Symbol string
		// DependsOn lists symbols the rule depends on.
		DependsOn []string
	}

	// LLMSpecs holds prompt guidance resolved most-specific first: model
	// override, then provider default, then defaults.
	LLMSpecs struct {
		// Defaults is the fallback guidance text.
		Defaults string
		// ProviderDefaults maps provider names to guidance.
		ProviderDefaults map[string]string
		// Models maps model names to guidance.
		Models map[string]string
		// Profiles maps named profiles to guidance.
		Profiles map[string]string
	}
)

const (
	// CardinalityRequired means exactly one argument.
	CardinalityRequired Cardinality = "required"
	// CardinalityOptional means zero or one argument.
	CardinalityOptional Cardinality = "optional"
	// CardinalityZeroOrMore means any number of arguments.
	CardinalityZeroOrMore Cardinality = "zeroOrMore"
	// CardinalityOneOrMore means at least one argument.
	CardinalityOneOrMore Cardinality = "oneOrMore"
)

const (
	// ParamAny accepts any argument.
	ParamAny ParamKind = iota
	// ParamNode accepts a symbol expression.
	ParamNode
	// ParamIdentifier accepts a bare identifier.
	ParamIdentifier
	// ParamLiteral accepts a literal of the listed kinds.
	ParamLiteral
	// ParamDSLID accepts a DSL identifier.
	ParamDSLID
	// ParamEmbedded accepts an embedded foreign expression.
	ParamEmbedded
)

// Valid reports whether c is a known cardinality.
func (c Cardinality) Valid() bool {
	switch c {
	case CardinalityRequired, CardinalityOptional, CardinalityZeroOrMore, CardinalityOneOrMore:
		return true
	}
	return false
}

// Repeats reports whether the cardinality admits more than one argument.
func (c Cardinality) Repeats() bool {
	return c == CardinalityZeroOrMore || c == CardinalityOneOrMore
}

// Min returns the minimum number of arguments the cardinality requires.
func (c Cardinality) Min() int {
	if c == CardinalityRequired || c == CardinalityOneOrMore {
		return 1
	}
	return 0
}

// ID returns the DSL identifier.
func (g *Grammar) ID() string { return g.DSL.ID }

// Symbol resolves a symbol definition by name.
func (g *Grammar) Symbol(name string) (*SymbolDef, bool) {
	def, ok := g.symbols[name]
	return def, ok
}

// Defines reports whether name is a defined symbol.
func (g *Grammar) Defines(name string) bool {
	_, ok := g.symbols[name]
	return ok
}

// SymbolNames returns the defined symbol names in sorted order.
func (g *Grammar) SymbolNames() []string {
	names := make([]string, 0, len(g.symbols))
	for name := range g.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsReserved reports whether name is reserved in this grammar.
func (g *Grammar) IsReserved(name string) bool {
	_, ok := g.reserved[name]
	return ok
}

// EmbedSymbol returns the embedding symbol name.
func (g *Grammar) EmbedSymbol() string {
	if g.Embedding.Symbol != "" {
		return g.Embedding.Symbol
	}
	return ReservedEmbed
}

// RootConstraint returns the must_have_root symbol, or "" when the grammar
// declares none.
func (g *Grammar) RootConstraint() string {
	for _, c := range g.Constraints {
		if c.Rule == "must_have_root" {
			return c.Symbol
		}
	}
	return ""
}

// MatchString reports whether text is valid string literal content.
func (r LiteralRule) Match(text string) bool {
	if r.re == nil {
		return true
	}
	return r.re.MatchString(text)
}

// Contains reports whether text is one of the enumerated forms.
func (r ValueRule) Contains(text string) bool {
	for _, v := range r.Values {
		if v == text {
			return true
		}
	}
	return false
}

// Match reports whether text satisfies the identifier rule. An empty rule
// matches any text.
func (r IdentifierRule) Match(text string) bool {
	if r.re == nil {
		return true
	}
	return r.re.MatchString(text)
}

// Guidance resolves the prompt guidance for a provider and model: the
// model override when present, else the provider default, else the
// grammar defaults. The result is trimmed of surrounding whitespace.
func (s LLMSpecs) Guidance(provider, model string) string {
	if model != "" {
		if text, ok := s.Models[model]; ok {
			return strings.TrimSpace(text)
		}
	}
	if provider != "" {
		if text, ok := s.ProviderDefaults[provider]; ok {
			return strings.TrimSpace(text)
		}
	}
	return strings.TrimSpace(s.Defaults)
}

// Kind returns the classified parameter kind.
func (p *ParamDef) Kind() ParamKind { return p.kind }

// LiteralKinds returns the kinds listed by a literal(...) type expression.
func (p *ParamDef) LiteralKinds() []string { return p.kinds }

// Allows reports whether name satisfies the allowed-symbols restriction. An
// empty restriction allows everything.
func (p *ParamDef) Allows(name string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	_, ok := p.allowed[name]
	return ok
}

// Restricted reports whether the parameter restricts node symbols.
func (p *ParamDef) Restricted() bool { return len(p.allowed) > 0 }

// MatchPattern reports whether text satisfies the parameter identifier
// pattern, falling back to the grammar rule when the parameter declares
// none.
func (p *ParamDef) MatchPattern(g *Grammar, text string) bool {
	if p.pattern != nil {
		return p.pattern.MatchString(text)
	}
	return g.Identifier.Match(text)
}

// Summary renders the parameter for grammar summaries, e.g.
// "table:identifier(required)" or "clauses:node(oneOrMore){allowed=F|S|W}".
func (p *ParamDef) Summary() string {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteByte(':')
	b.WriteString(p.Type)
	b.WriteByte('(')
	b.WriteString(string(p.Cardinality))
	b.WriteByte(')')
	if len(p.AllowedSymbols) > 0 {
		b.WriteString("{allowed=")
		b.WriteString(strings.Join(p.AllowedSymbols, "|"))
		b.WriteByte('}')
	}
	return b.String()
}
