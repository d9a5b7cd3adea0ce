package sxl

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// lexer walks the source text rune by rune, tracking line and column for
// error reporting.
type lexer struct {
	src    string
	pos    int
	line   int
	column int
}

// identDelimiters terminate an identifier or number token.
const identDelimiters = "()'\",;"

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, column: 1}
}

// Lex tokenizes the entire input. The returned slice always ends with an EOF
// token carrying the final position.
func Lex(src string) ([]Token, error) {
	lx := newLexer(src)
	var toks []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokenEOF {
			return toks, nil
		}
	}
}

// next returns the next token.
func (lx *lexer) next() (Token, error) {
	lx.skipSpace()
	start := lx.here()
	if lx.eof() {
		return Token{Kind: TokenEOF, Pos: start}, nil
	}

	switch r := lx.peek(); {
	case r == '(':
		lx.advance()
		return Token{Kind: TokenLParen, Text: "(", Pos: start}, nil
	case r == ')':
		lx.advance()
		return Token{Kind: TokenRParen, Text: ")", Pos: start}, nil
	case r == ',':
		lx.advance()
		return Token{Kind: TokenComma, Text: ",", Pos: start}, nil
	case r == '\'' || r == '"':
		return lx.lexString()
	case isNumberStart(r, lx.peekAt(1)):
		return lx.lexNumber()
	case isIdentStart(r):
		return lx.lexIdent()
	default:
		return Token{}, parseErrorf(CodeInvalidToken, start, "unexpected character %q", r)
	}
}

// lexString consumes a quoted string honoring backslash escapes. Single and
// double quotes both delimit strings; the quote characters are stripped.
func (lx *lexer) lexString() (Token, error) {
	start := lx.here()
	delim := lx.peek()
	lx.advance()

	var b strings.Builder
	for {
		if lx.eof() {
			return Token{}, parseErrorf(CodeUnterminatedString, start, "unterminated string")
		}
		r := lx.peek()
		lx.advance()
		switch {
		case r == delim:
			return Token{Kind: TokenString, Text: b.String(), Pos: start}, nil
		case r == '\\':
			if lx.eof() {
				return Token{}, parseErrorf(CodeUnterminatedString, start, "unterminated string")
			}
			esc := lx.peek()
			lx.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				// Unknown escapes keep the escaped character ('\\', quotes).
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
}

// lexNumber consumes a numeric literal: optional sign, digits, optional
// fraction and exponent. Format validation beyond this shape belongs to the
// grammar's literal rules.
func (lx *lexer) lexNumber() (Token, error) {
	start := lx.here()
	var b strings.Builder
	if r := lx.peek(); r == '-' || r == '+' {
		b.WriteRune(r)
		lx.advance()
	}
	digits := func() {
		for !lx.eof() && unicode.IsDigit(lx.peek()) {
			b.WriteRune(lx.peek())
			lx.advance()
		}
	}
	digits()
	if !lx.eof() && lx.peek() == '.' && unicode.IsDigit(lx.peekAt(1)) {
		b.WriteByte('.')
		lx.advance()
		digits()
	}
	if !lx.eof() && (lx.peek() == 'e' || lx.peek() == 'E') {
		mark := *lx
		b2 := b.String()
		b.WriteRune(lx.peek())
		lx.advance()
		if !lx.eof() && (lx.peek() == '-' || lx.peek() == '+') {
			b.WriteRune(lx.peek())
			lx.advance()
		}
		if lx.eof() || !unicode.IsDigit(lx.peek()) {
			// Not an exponent after all; restore and emit what we had.
			*lx = mark
			return Token{Kind: TokenNumber, Text: b2, Pos: start}, nil
		}
		digits()
	}
	return Token{Kind: TokenNumber, Text: b.String(), Pos: start}, nil
}

// lexIdent consumes an identifier: any run of characters up to a delimiter.
// Grammars impose their own identifier patterns during validation.
func (lx *lexer) lexIdent() (Token, error) {
	start := lx.here()
	var b strings.Builder
	for !lx.eof() {
		r := lx.peek()
		if unicode.IsSpace(r) || strings.ContainsRune(identDelimiters, r) {
			break
		}
		b.WriteRune(r)
		lx.advance()
	}
	return Token{Kind: TokenIdent, Text: b.String(), Pos: start}, nil
}

// skipSpace consumes whitespace and ";" line comments.
func (lx *lexer) skipSpace() {
	for !lx.eof() {
		r := lx.peek()
		switch {
		case unicode.IsSpace(r):
			lx.advance()
		case r == ';':
			for !lx.eof() && lx.peek() != '\n' {
				lx.advance()
			}
		default:
			return
		}
	}
}

func (lx *lexer) here() Pos {
	return Pos{Line: lx.line, Column: lx.column, Offset: lx.pos}
}

func (lx *lexer) eof() bool {
	return lx.pos >= len(lx.src)
}

func (lx *lexer) peek() rune {
	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos:])
	return r
}

// peekAt returns the rune n runes ahead of the cursor, or utf8.RuneError at
// end of input.
func (lx *lexer) peekAt(n int) rune {
	pos := lx.pos
	for i := 0; i < n; i++ {
		if pos >= len(lx.src) {
			return utf8.RuneError
		}
		_, size := utf8.DecodeRuneInString(lx.src[pos:])
		pos += size
	}
	if pos >= len(lx.src) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(lx.src[pos:])
	return r
}

func (lx *lexer) advance() {
	r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
	lx.pos += size
	if r == '\n' {
		lx.line++
		lx.column = 1
	} else {
		lx.column++
	}
}

// isNumberStart reports whether a rune begins a numeric literal. A sign only
// starts a number when followed by a digit, so "-" and "->" remain
// identifiers.
func isNumberStart(r, next rune) bool {
	if unicode.IsDigit(r) {
		return true
	}
	return (r == '-' || r == '+') && unicode.IsDigit(next)
}

// isIdentStart reports whether a rune can begin an identifier.
func isIdentStart(r rune) bool {
	return !unicode.IsSpace(r) && !strings.ContainsRune(identDelimiters, r)
}
