package sxl

import "fmt"

// ParseCode classifies parse failures.
type ParseCode string

const (
	// CodeEmptyExpression reports bare "()" with no symbol.
	CodeEmptyExpression ParseCode = "EmptyExpression"
	// CodeUnmatchedParen reports an opening parenthesis with no close.
	CodeUnmatchedParen ParseCode = "UnmatchedParen"
	// CodeUnexpectedRParen reports a ")" with no matching open.
	CodeUnexpectedRParen ParseCode = "UnexpectedRParen"
	// CodeExpectedSymbol reports a call form whose head is not an identifier.
	CodeExpectedSymbol ParseCode = "ExpectedSymbol"
	// CodeUnterminatedString reports a string literal with no closing quote.
	CodeUnterminatedString ParseCode = "UnterminatedString"
	// CodeInvalidToken reports a character the lexer cannot tokenize.
	CodeInvalidToken ParseCode = "InvalidToken"
)

// ParseError describes a lexical or syntactic failure with its source
// position.
type ParseError struct {
	Code ParseCode
	Pos  Pos
	Msg  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("sxl parse error at %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

func parseErrorf(code ParseCode, pos Pos, format string, args ...any) *ParseError {
	return &ParseError{Code: code, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
