// Package sxl implements the S-expression micro-language used for plan and
// parameter values. The parser is universal and grammar-agnostic: it produces
// a uniform AST of symbols and literals which sxl/validate checks against a
// DSL grammar. Source positions are attached to nodes at parse time so
// validators can report precise locations without identity maps.
package sxl

import "strings"

type (
	// Pos locates a token or node in the source text. Line and Column are
	// 1-based; Offset is the 0-based byte offset.
	Pos struct {
		Line   int
		Column int
		Offset int
	}

	// Node is an element of the parsed AST. The two implementations are
	// *Symbol and *Literal; the set is closed.
	Node interface {
		// Pos returns the source position of the node.
		Pos() Pos
		// String returns the canonical textual form of the node. Parsing
		// the result yields an equal AST.
		String() string

		node()
	}

	// Symbol is a named expression. With arguments it represents the call
	// form "(name arg1 arg2)"; with zero arguments it is a bare identifier.
	Symbol struct {
		// Name is the symbol name as written in the source.
		Name string
		// Args holds the argument nodes in source order.
		Args []Node

		pos Pos
	}

	// Literal is a quoted string or a number.
	Literal struct {
		// Text is the literal value with string quotes stripped.
		Text string
		// Kind distinguishes strings from numbers.
		Kind LiteralKind

		pos Pos
	}

	// LiteralKind enumerates literal categories produced by the lexer.
	// Booleans and nulls surface as bare identifiers and are classified by
	// grammars, not the parser.
	LiteralKind int
)

const (
	// LiteralString is a quoted string literal.
	LiteralString LiteralKind = iota
	// LiteralNumber is a numeric literal.
	LiteralNumber
)

// NewSymbol constructs a symbol node at the given position.
func NewSymbol(name string, pos Pos, args ...Node) *Symbol {
	return &Symbol{Name: name, Args: args, pos: pos}
}

// NewLiteral constructs a literal node at the given position.
func NewLiteral(text string, kind LiteralKind, pos Pos) *Literal {
	return &Literal{Text: text, Kind: kind, pos: pos}
}

// Pos returns the position of the symbol name.
func (s *Symbol) Pos() Pos { return s.pos }

// Bare reports whether the symbol is a bare identifier (zero arguments).
func (s *Symbol) Bare() bool { return len(s.Args) == 0 }

// String renders the symbol canonically: bare identifiers print unadorned,
// call forms print parenthesized with space-separated arguments.
func (s *Symbol) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(s.Name)
	for _, arg := range s.Args {
		b.WriteByte(' ')
		b.WriteString(arg.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (*Symbol) node() {}

// Pos returns the position of the literal token.
func (l *Literal) Pos() Pos { return l.pos }

// String renders the literal canonically; strings are double-quoted with
// backslash escapes.
func (l *Literal) String() string {
	if l.Kind == LiteralNumber {
		return l.Text
	}
	return quote(l.Text)
}

func (*Literal) node() {}

// quote renders s as a double-quoted SXL string literal.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
