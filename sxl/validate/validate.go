// Package validate checks parsed SXL expressions against registered
// grammars. The validator itself is stateless; per-validation state travels
// in a value passed down the recursion.
package validate

import (
	"context"
	"fmt"
	"sort"

	"goa.design/maestro/sxl"
	"goa.design/maestro/sxl/grammar"
)

// Validator validates SXL expression sequences against the grammars of a
// registry. Safe for concurrent use.
type Validator struct {
	registry *grammar.Registry
}

// New creates a validator backed by the given grammar registry.
func New(registry *grammar.Registry) *Validator {
	return &Validator{registry: registry}
}

// state carries the context chain through the recursion. It is a value
// type: pushes copy, so sibling branches never alias.
type state struct {
	chain []string
}

func (s state) push(names ...string) state {
	next := make([]string, 0, len(s.chain)+len(names))
	next = append(next, s.chain...)
	next = append(next, names...)
	return state{chain: next}
}

// Validate checks nodes as a top-level expression sequence of the DSL
// identified by dslID.
func (v *Validator) Validate(nodes []sxl.Node, dslID string) error {
	g, ok := v.registry.Lookup(dslID)
	if !ok {
		return &Error{
			Code:  CodeUnknownDSL,
			Known: v.registry.IDs(),
			Msg:   fmt.Sprintf("unknown DSL %q", dslID),
		}
	}
	return v.validateTop(state{}, g, nodes)
}

// ResolveDSL parses and validates DSL source text and returns the node
// sequence. It satisfies the action binder's DSL resolver contract.
func (v *Validator) ResolveDSL(_ context.Context, dslID, source string) (any, error) {
	nodes, err := sxl.Parse(source)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(nodes, dslID); err != nil {
		return nil, err
	}
	return nodes, nil
}

// validateTop validates a top-level sequence: global constraints first,
// then every node, which must be a symbol expression.
func (v *Validator) validateTop(st state, g *grammar.Grammar, nodes []sxl.Node) error {
	if root := g.RootConstraint(); root != "" {
		if len(nodes) == 0 {
			return &Error{
				Code:  CodeGlobalConstraint,
				Chain: st.chain,
				Msg:   fmt.Sprintf("%s expects root symbol %s, found no expression", g.ID(), root),
			}
		}
		first, ok := nodes[0].(*sxl.Symbol)
		if !ok || first.Name != root {
			return &Error{
				Code:  CodeGlobalConstraint,
				Chain: st.chain,
				Pos:   nodes[0].Pos(),
				Msg:   fmt.Sprintf("%s expects root symbol %s, found %s", g.ID(), root, describeNode(nodes[0])),
			}
		}
	}
	for _, node := range nodes {
		sym, ok := node.(*sxl.Symbol)
		if !ok {
			return &Error{
				Code:  CodeTypeMismatch,
				Chain: st.chain,
				Pos:   node.Pos(),
				Msg:   fmt.Sprintf("expected a symbol expression, found %s", describeNode(node)),
			}
		}
		if err := v.validateSymbol(st, g, sym); err != nil {
			return err
		}
	}
	return nil
}

// validateSymbol validates one symbol expression: embedding, then symbol
// resolution, then positional parameters.
func (v *Validator) validateSymbol(st state, g *grammar.Grammar, sym *sxl.Symbol) error {
	if g.Embedding.Enabled && sym.Name == g.EmbedSymbol() {
		return v.validateEmbed(st, g, sym)
	}
	def, ok := g.Symbol(sym.Name)
	if !ok {
		if g.IsReserved(sym.Name) {
			return &Error{
				Code:   CodeReservedAsSymbol,
				Chain:  st.chain,
				Symbol: sym.Name,
				Pos:    sym.Pos(),
				Msg:    fmt.Sprintf("%q is reserved and cannot be used as a symbol", sym.Name),
			}
		}
		return &Error{
			Code:   CodeUnknownSymbol,
			Chain:  st.chain,
			Symbol: sym.Name,
			Pos:    sym.Pos(),
			Known:  g.SymbolNames(),
			Msg:    fmt.Sprintf("unknown symbol %q", sym.Name),
		}
	}
	return v.validateParams(st.push(sym.Name), g, def, sym)
}

// validateEmbed validates (EMBED <dsl-id> <payload>...) and delegates the
// payload to the embedded grammar as if it were top-level there.
func (v *Validator) validateEmbed(st state, g *grammar.Grammar, sym *sxl.Symbol) error {
	est := st.push(sym.Name)
	if len(sym.Args) == 0 {
		return &Error{
			Code:   CodeCardinality,
			Chain:  est.chain,
			Symbol: sym.Name,
			Param:  "dsl",
			Pos:    sym.Pos(),
			Msg:    fmt.Sprintf("%s requires a DSL id and a payload", sym.Name),
		}
	}
	dslSym, ok := sym.Args[0].(*sxl.Symbol)
	if !ok {
		return &Error{
			Code:   CodeTypeMismatch,
			Chain:  est.chain,
			Symbol: sym.Name,
			Param:  "dsl",
			Pos:    sym.Args[0].Pos(),
			Msg:    fmt.Sprintf("%s DSL id must be a bare identifier, found %s", sym.Name, describeNode(sym.Args[0])),
		}
	}
	if !dslSym.Bare() {
		return &Error{
			Code:   CodeTypeMismatch,
			Chain:  est.chain,
			Symbol: sym.Name,
			Param:  "dsl",
			Pos:    dslSym.Pos(),
			Msg:    fmt.Sprintf("%s DSL id must be a bare identifier, found expression %s", sym.Name, describeNode(dslSym)),
		}
	}
	if len(sym.Args) < 2 {
		return &Error{
			Code:   CodeCardinality,
			Chain:  est.chain,
			Symbol: sym.Name,
			Param:  "body",
			Pos:    sym.Pos(),
			Msg:    fmt.Sprintf("%s %s requires a payload", sym.Name, dslSym.Name),
		}
	}
	target, ok := v.registry.Lookup(dslSym.Name)
	if !ok {
		return &Error{
			Code:   CodeUnknownDSL,
			Chain:  est.chain,
			Symbol: sym.Name,
			Param:  "dsl",
			Pos:    dslSym.Pos(),
			Known:  v.registry.IDs(),
			Msg:    fmt.Sprintf("unknown DSL %q", dslSym.Name),
		}
	}
	return v.validateTop(est.push(dslSym.Name), target, sym.Args[1:])
}

// validateParams matches arguments against parameter definitions with a
// positional cursor. Optional and repeating slots consume an argument only
// when its category matches, so a non-matching argument advances to the
// next slot without being consumed. Once a slot consumes an argument, type
// failures surface as precise errors.
func (v *Validator) validateParams(st state, g *grammar.Grammar, def *grammar.SymbolDef, sym *sxl.Symbol) error {
	args := sym.Args
	idx := 0
	for _, p := range def.Params {
		switch p.Cardinality {
		case grammar.CardinalityRequired:
			if idx >= len(args) {
				return v.missingArg(st, def, p, sym)
			}
			if err := v.validateArg(st, g, p, args[idx]); err != nil {
				return err
			}
			idx++
		case grammar.CardinalityOptional:
			if idx < len(args) && v.categoryMatch(g, p, args[idx]) {
				if err := v.validateArg(st, g, p, args[idx]); err != nil {
					return err
				}
				idx++
			}
		case grammar.CardinalityOneOrMore:
			if idx >= len(args) {
				return v.missingArg(st, def, p, sym)
			}
			if err := v.validateArg(st, g, p, args[idx]); err != nil {
				return err
			}
			idx++
			for idx < len(args) && v.categoryMatch(g, p, args[idx]) {
				if err := v.validateArg(st, g, p, args[idx]); err != nil {
					return err
				}
				idx++
			}
		case grammar.CardinalityZeroOrMore:
			for idx < len(args) && v.categoryMatch(g, p, args[idx]) {
				if err := v.validateArg(st, g, p, args[idx]); err != nil {
					return err
				}
				idx++
			}
		}
	}
	if idx < len(args) {
		return &Error{
			Code:   CodeCardinality,
			Chain:  st.chain,
			Symbol: def.Name,
			Pos:    args[idx].Pos(),
			Msg:    fmt.Sprintf("too many arguments for %s, unexpected %s", def.Name, describeNode(args[idx])),
		}
	}
	return nil
}

func (v *Validator) missingArg(st state, def *grammar.SymbolDef, p *grammar.ParamDef, sym *sxl.Symbol) *Error {
	return &Error{
		Code:   CodeCardinality,
		Chain:  st.chain,
		Symbol: def.Name,
		Param:  p.Name,
		Pos:    sym.Pos(),
		Msg:    fmt.Sprintf("%s is missing required parameter %q", def.Name, p.Name),
	}
}

// categoryMatch reports whether arg belongs to the slot's category. It
// decides consumption for optional and repeating slots; it never inspects
// deeper than the argument's shape.
func (v *Validator) categoryMatch(g *grammar.Grammar, p *grammar.ParamDef, arg sxl.Node) bool {
	switch p.Kind() {
	case grammar.ParamAny, grammar.ParamEmbedded:
		return true
	case grammar.ParamLiteral:
		switch n := arg.(type) {
		case *sxl.Literal:
			return true
		case *sxl.Symbol:
			return n.Bare() && v.canonicalLiteral(g, p, n.Name)
		}
		return false
	case grammar.ParamIdentifier:
		n, ok := arg.(*sxl.Symbol)
		if !ok || !n.Bare() {
			return false
		}
		if g.Defines(n.Name) {
			return p.Restricted() && p.Allows(n.Name)
		}
		return true
	case grammar.ParamDSLID:
		n, ok := arg.(*sxl.Symbol)
		return ok && n.Bare()
	case grammar.ParamNode:
		n, ok := arg.(*sxl.Symbol)
		if !ok {
			return false
		}
		if g.Embedding.Enabled && n.Name == g.EmbedSymbol() {
			return true
		}
		if p.Restricted() {
			return p.Allows(n.Name)
		}
		if n.Bare() {
			return g.Defines(n.Name)
		}
		return true
	}
	return false
}

// canonicalLiteral reports whether a bare identifier is a canonical boolean
// or null form accepted by one of the slot's literal kinds.
func (v *Validator) canonicalLiteral(g *grammar.Grammar, p *grammar.ParamDef, text string) bool {
	for _, kind := range p.LiteralKinds() {
		switch kind {
		case "boolean":
			if g.Literals.Boolean.Contains(text) {
				return true
			}
		case "null":
			if g.Literals.Null.Contains(text) {
				return true
			}
		}
	}
	return false
}

// validateArg fully validates one consumed argument against its slot.
func (v *Validator) validateArg(st state, g *grammar.Grammar, p *grammar.ParamDef, arg sxl.Node) error {
	switch p.Kind() {
	case grammar.ParamAny, grammar.ParamEmbedded:
		if n, ok := arg.(*sxl.Symbol); ok && !n.Bare() {
			return v.validateSymbol(st, g, n)
		}
		return nil

	case grammar.ParamLiteral:
		return v.validateLiteralArg(st, g, p, arg)

	case grammar.ParamIdentifier:
		n, ok := arg.(*sxl.Symbol)
		if !ok || !n.Bare() {
			return v.typeMismatch(st, p, arg)
		}
		if g.Defines(n.Name) && !(p.Restricted() && p.Allows(n.Name)) {
			return &Error{
				Code:  CodeTypeMismatch,
				Chain: st.chain,
				Param: p.Name,
				Pos:   n.Pos(),
				Msg:   fmt.Sprintf("parameter %q expects an identifier, %q names a symbol", p.Name, n.Name),
			}
		}
		if !p.MatchPattern(g, n.Name) {
			return &Error{
				Code:  CodeIdentifierPattern,
				Chain: st.chain,
				Param: p.Name,
				Pos:   n.Pos(),
				Msg:   fmt.Sprintf("identifier %q does not match the pattern for parameter %q", n.Name, p.Name),
			}
		}
		return nil

	case grammar.ParamDSLID:
		n, ok := arg.(*sxl.Symbol)
		if !ok || !n.Bare() {
			return v.typeMismatch(st, p, arg)
		}
		if _, found := v.registry.Lookup(n.Name); !found {
			return &Error{
				Code:  CodeUnknownDSL,
				Chain: st.chain,
				Param: p.Name,
				Pos:   n.Pos(),
				Known: v.registry.IDs(),
				Msg:   fmt.Sprintf("unknown DSL %q", n.Name),
			}
		}
		return nil

	case grammar.ParamNode:
		n, ok := arg.(*sxl.Symbol)
		if !ok {
			return v.typeMismatch(st, p, arg)
		}
		if g.Embedding.Enabled && n.Name == g.EmbedSymbol() {
			return v.validateSymbol(st, g, n)
		}
		if p.Restricted() && !p.Allows(n.Name) {
			allowed := append([]string{}, p.AllowedSymbols...)
			sort.Strings(allowed)
			return &Error{
				Code:   CodeTypeMismatch,
				Chain:  st.chain,
				Symbol: n.Name,
				Param:  p.Name,
				Pos:    n.Pos(),
				Known:  allowed,
				Msg:    fmt.Sprintf("symbol %q is not allowed for parameter %q", n.Name, p.Name),
			}
		}
		return v.validateSymbol(st, g, n)
	}
	return nil
}

func (v *Validator) validateLiteralArg(st state, g *grammar.Grammar, p *grammar.ParamDef, arg sxl.Node) error {
	switch n := arg.(type) {
	case *sxl.Literal:
		for _, kind := range p.LiteralKinds() {
			switch kind {
			case "string":
				if n.Kind == sxl.LiteralString && g.Literals.String.Match(n.Text) {
					return nil
				}
			case "number":
				if n.Kind == sxl.LiteralNumber && g.Literals.Number.Match(n.Text) {
					return nil
				}
			}
		}
	case *sxl.Symbol:
		if n.Bare() && v.canonicalLiteral(g, p, n.Name) {
			return nil
		}
	}
	return v.typeMismatch(st, p, arg)
}

func (v *Validator) typeMismatch(st state, p *grammar.ParamDef, arg sxl.Node) *Error {
	return &Error{
		Code:  CodeTypeMismatch,
		Chain: st.chain,
		Param: p.Name,
		Pos:   arg.Pos(),
		Msg:   fmt.Sprintf("parameter %q expects %s, found %s", p.Name, p.Type, describeNode(arg)),
	}
}

// describeNode renders a short description of a node for error messages.
func describeNode(node sxl.Node) string {
	switch n := node.(type) {
	case *sxl.Literal:
		if n.Kind == sxl.LiteralNumber {
			return fmt.Sprintf("number literal %s", n.Text)
		}
		return fmt.Sprintf("string literal %q", n.Text)
	case *sxl.Symbol:
		if n.Bare() {
			return fmt.Sprintf("identifier %q", n.Name)
		}
		return fmt.Sprintf("expression (%s ...)", n.Name)
	}
	return "unknown node"
}
