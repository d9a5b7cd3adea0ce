package sxl

import "fmt"

type (
	// TokenKind enumerates the lexical token categories.
	TokenKind int

	// Token is a lexical unit with its source position.
	Token struct {
		Kind TokenKind
		// Text is the token content. String tokens carry the unquoted,
		// unescaped value; structural tokens carry their literal spelling.
		Text string
		Pos  Pos
	}
)

const (
	// TokenEOF marks the end of input.
	TokenEOF TokenKind = iota
	// TokenLParen is "(".
	TokenLParen
	// TokenRParen is ")".
	TokenRParen
	// TokenIdent is an identifier such as Q, o.id or sxl-sql.
	TokenIdent
	// TokenString is a single- or double-quoted string, quotes stripped.
	TokenString
	// TokenNumber is a numeric literal.
	TokenNumber
	// TokenComma is the optional argument separator.
	TokenComma
)

// String returns a human-readable name for the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "EOF"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenIdent:
		return "IDENTIFIER"
	case TokenString:
		return "STRING"
	case TokenNumber:
		return "NUMBER"
	case TokenComma:
		return "COMMA"
	default:
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
}

// String renders the token for diagnostics.
func (t Token) String() string {
	if t.Text == "" {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
}
