package validate

import (
	"fmt"
	"strings"

	"goa.design/maestro/sxl"
)

// Code identifies a validation failure class.
type Code string

const (
	// CodeUnknownSymbol flags a symbol the grammar does not define.
	CodeUnknownSymbol Code = "UnknownSymbol"
	// CodeReservedAsSymbol flags use of a reserved name as a symbol.
	CodeReservedAsSymbol Code = "ReservedAsSymbol"
	// CodeUnknownDSL flags an embedding of an unregistered DSL.
	CodeUnknownDSL Code = "UnknownDSL"
	// CodeCardinality flags missing or surplus arguments.
	CodeCardinality Code = "CardinalityViolation"
	// CodeTypeMismatch flags an argument of the wrong shape.
	CodeTypeMismatch Code = "TypeMismatch"
	// CodeIdentifierPattern flags an identifier that violates its pattern.
	CodeIdentifierPattern Code = "IdentifierPatternViolation"
	// CodeGlobalConstraint flags a violated global grammar constraint.
	CodeGlobalConstraint Code = "GlobalConstraintViolation"
)

// Error is a grammar validation failure. Chain names the enclosing symbol
// path down to the parent of the offending node, e.g. EMBED.sxl-sql.Q.
type Error struct {
	// Code classifies the failure.
	Code Code
	// Chain is the enclosing context chain, outermost first.
	Chain []string
	// Symbol is the symbol being validated when the failure occurred.
	Symbol string
	// Param is the parameter being matched, when applicable.
	Param string
	// Pos is the source position of the offending node.
	Pos sxl.Pos
	// Known lists the legal alternatives in sorted order, when the
	// failure is about an unknown name.
	Known []string
	// Msg is the human-readable description.
	Msg string
}

// Error renders the failure with its position, context chain and, for
// unknown names, the sorted legal set.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("sxl validation error")
	if e.Pos != (sxl.Pos{}) {
		fmt.Fprintf(&b, " at %d:%d", e.Pos.Line, e.Pos.Column)
	}
	if len(e.Chain) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Chain, "."))
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if len(e.Known) > 0 {
		fmt.Fprintf(&b, " (known symbols: %s)", strings.Join(e.Known, ", "))
	}
	return b.String()
}
