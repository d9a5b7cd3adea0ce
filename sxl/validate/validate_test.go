package validate

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/maestro/sxl"
	"goa.design/maestro/sxl/grammar"
)

func builtinValidator(t *testing.T) *Validator {
	t.Helper()
	reg, err := grammar.Builtin()
	require.NoError(t, err)
	return New(reg)
}

func mustParse(t *testing.T, src string) []sxl.Node {
	t.Helper()
	nodes, err := sxl.Parse(src)
	require.NoError(t, err)
	return nodes
}

func TestValidateEmbeddedQuery(t *testing.T) {
	v := builtinValidator(t)
	nodes := mustParse(t, `(EMBED sxl-sql (Q (F orders o) (S (AS o.id id))))`)

	require.NoError(t, v.Validate(nodes, "sxl-plan"))

	// The AST keeps EMBED at the root with the DSL id and payload as args.
	require.Len(t, nodes, 1)
	embed := nodes[0].(*sxl.Symbol)
	assert.Equal(t, "EMBED", embed.Name)
	require.Len(t, embed.Args, 2)
	assert.Equal(t, "sxl-sql", embed.Args[0].(*sxl.Symbol).Name)
	assert.Equal(t, "Q", embed.Args[1].(*sxl.Symbol).Name)
}

func TestValidatePlanWithEmbeddedQueryArgument(t *testing.T) {
	v := builtinValidator(t)
	nodes := mustParse(t, `(PLAN
	  (STEP fetchCustomer (ARG customerId "42"))
	  (STEP runQuery (ARG query (EMBED sxl-sql (Q (F orders)))))
	  (STEP greet))`)

	require.NoError(t, v.Validate(nodes, "sxl-plan"))
}

func TestUnknownSymbolCarriesContextChain(t *testing.T) {
	v := builtinValidator(t)
	nodes := mustParse(t, `(EMBED sxl-sql (Q (WRONG)))`)

	err := v.Validate(nodes, "sxl-plan")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeUnknownSymbol, verr.Code)
	assert.Equal(t, []string{"EMBED", "sxl-sql", "Q"}, verr.Chain)
	assert.Equal(t, "WRONG", verr.Symbol)
	assert.Equal(t, []string{
		"AS", "And", "Eq", "F", "G", "Ge", "Gt", "In", "L", "Le",
		"Like", "Lt", "Ne", "Not", "O", "Or", "Q", "S", "W",
	}, verr.Known)
	assert.True(t, sort.StringsAreSorted(verr.Known))

	text := err.Error()
	assert.Contains(t, text, "EMBED.sxl-sql.Q")
	assert.Contains(t, text, `unknown symbol "WRONG"`)
	assert.Contains(t, text, "AS, And, Eq, F")
}

func TestValidateCardinality(t *testing.T) {
	v := builtinValidator(t)

	t.Run("missing required", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(Q)"), "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeCardinality, verr.Code)
		assert.Equal(t, "Q", verr.Symbol)
		assert.Equal(t, "clauses", verr.Param)
		assert.Equal(t, []string{"Q"}, verr.Chain)
	})

	t.Run("too many arguments", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(Q (L 10 20))"), "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeCardinality, verr.Code)
		assert.Equal(t, "L", verr.Symbol)
		assert.Equal(t, []string{"Q", "L"}, verr.Chain)
		assert.Contains(t, verr.Msg, "too many arguments")
	})
}

func TestValidateTypeMismatch(t *testing.T) {
	v := builtinValidator(t)

	t.Run("literal where identifier expected", func(t *testing.T) {
		err := v.Validate(mustParse(t, `(Q (F "orders"))`), "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeTypeMismatch, verr.Code)
		assert.Equal(t, "table", verr.Param)
	})

	t.Run("identifier where number literal expected", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(Q (L ten))"), "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeTypeMismatch, verr.Code)
		assert.Equal(t, "count", verr.Param)
		assert.Contains(t, verr.Msg, "literal(number)")
	})

	t.Run("string where number literal expected", func(t *testing.T) {
		err := v.Validate(mustParse(t, `(Q (L "10"))`), "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeTypeMismatch, verr.Code)
	})

	t.Run("disallowed symbol in restricted node slot", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(Q (W (F orders)))"), "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeTypeMismatch, verr.Code)
		assert.Equal(t, "F", verr.Symbol)
		assert.Equal(t, "condition", verr.Param)
		assert.True(t, sort.StringsAreSorted(verr.Known))
		assert.Contains(t, verr.Known, "Eq")
	})
}

func TestValidateIdentifierPattern(t *testing.T) {
	v := builtinValidator(t)

	require.NoError(t, v.Validate(mustParse(t, "(Q (F orders o) (O o.id desc))"), "sxl-sql"))
	require.NoError(t, v.Validate(mustParse(t, "(Q (F orders o) (O o.id))"), "sxl-sql"))

	err := v.Validate(mustParse(t, "(Q (F orders o) (O o.id upward))"), "sxl-sql")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeIdentifierPattern, verr.Code)
	assert.Equal(t, "direction", verr.Param)
	assert.Contains(t, verr.Msg, `"upward"`)
}

func TestValidateGlobalConstraint(t *testing.T) {
	v := builtinValidator(t)

	t.Run("wrong root", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(F orders)"), "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeGlobalConstraint, verr.Code)
		assert.Contains(t, verr.Msg, "root symbol Q")
	})

	t.Run("empty sequence", func(t *testing.T) {
		err := v.Validate(nil, "sxl-sql")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeGlobalConstraint, verr.Code)
	})

	t.Run("embedded payload root", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(EMBED sxl-sql (F orders))"), "sxl-plan")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeGlobalConstraint, verr.Code)
		assert.Equal(t, []string{"EMBED", "sxl-sql"}, verr.Chain)
		assert.Contains(t, err.Error(), "[EMBED.sxl-sql]")
	})
}

func TestValidateEmbedShape(t *testing.T) {
	v := builtinValidator(t)

	cases := []struct {
		name  string
		src   string
		code  Code
		param string
	}{
		{"missing dsl id", "(EMBED)", CodeCardinality, "dsl"},
		{"literal dsl id", `(EMBED "sxl-sql" (Q (F t)))`, CodeTypeMismatch, "dsl"},
		{"expression dsl id", "(EMBED (sxl-sql x) (Q (F t)))", CodeTypeMismatch, "dsl"},
		{"missing payload", "(EMBED sxl-sql)", CodeCardinality, "body"},
		{"unknown dsl", "(EMBED sxl-nope (Q (F t)))", CodeUnknownDSL, "dsl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(mustParse(t, tc.src), "sxl-plan")
			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.code, verr.Code)
			assert.Equal(t, tc.param, verr.Param)
			assert.Equal(t, []string{"EMBED"}, verr.Chain)
		})
	}

	t.Run("unknown dsl lists registered ids", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(EMBED sxl-nope (Q (F t)))"), "sxl-plan")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"sxl-plan", "sxl-sql", "sxl-universal"}, verr.Known)
	})
}

func TestValidateUnknownTopLevelDSL(t *testing.T) {
	v := builtinValidator(t)
	err := v.Validate(mustParse(t, "(Q (F t))"), "sxl-nope")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeUnknownDSL, verr.Code)
	assert.Equal(t, []string{"sxl-plan", "sxl-sql", "sxl-universal"}, verr.Known)
}

const cursorGrammar = `
dsl:
  id: sxl-cursor
symbols:
  T:
    params:
      - name: limit
        type: literal(number)
        cardinality: optional
      - name: name
        type: identifier
        cardinality: required
  B:
    params:
      - name: flag
        type: literal(boolean|null)
        cardinality: required
`

func cursorValidator(t *testing.T) *Validator {
	t.Helper()
	g, err := grammar.Parse([]byte(cursorGrammar))
	require.NoError(t, err)
	reg := grammar.NewRegistry()
	require.NoError(t, reg.Register(g))
	return New(reg)
}

// An argument that does not match an optional slot's category advances the
// cursor without being consumed; a category match that fails type
// validation raises the precise error instead of skipping.
func TestValidateOrderedCursor(t *testing.T) {
	v := cursorValidator(t)

	require.NoError(t, v.Validate(mustParse(t, "(T foo)"), "sxl-cursor"))
	require.NoError(t, v.Validate(mustParse(t, "(T 5 foo)"), "sxl-cursor"))

	err := v.Validate(mustParse(t, `(T "five" foo)`), "sxl-cursor")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeTypeMismatch, verr.Code)
	assert.Equal(t, "limit", verr.Param)
}

func TestValidateCanonicalBooleanAndNull(t *testing.T) {
	v := cursorValidator(t)

	require.NoError(t, v.Validate(mustParse(t, "(B true)"), "sxl-cursor"))
	require.NoError(t, v.Validate(mustParse(t, "(B false)"), "sxl-cursor"))
	require.NoError(t, v.Validate(mustParse(t, "(B null)"), "sxl-cursor"))

	err := v.Validate(mustParse(t, "(B maybe)"), "sxl-cursor")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeTypeMismatch, verr.Code)
	assert.Equal(t, "flag", verr.Param)
}

const reservedGrammar = `
dsl:
  id: sxl-res
symbols:
  X:
    params:
      - name: v
        cardinality: optional
reserved_symbols: [SECRET]
`

func TestValidateReservedAsSymbol(t *testing.T) {
	g, err := grammar.Parse([]byte(reservedGrammar))
	require.NoError(t, err)
	reg := grammar.NewRegistry()
	require.NoError(t, reg.Register(g))
	v := New(reg)

	t.Run("listed reserved name", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(SECRET 1)"), "sxl-res")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeReservedAsSymbol, verr.Code)
		assert.Equal(t, "SECRET", verr.Symbol)
	})

	t.Run("embed reserved even when embedding disabled", func(t *testing.T) {
		err := v.Validate(mustParse(t, "(EMBED sxl-res (X))"), "sxl-res")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeReservedAsSymbol, verr.Code)
		assert.Equal(t, "EMBED", verr.Symbol)
	})
}

func TestResolveDSL(t *testing.T) {
	v := builtinValidator(t)
	ctx := context.Background()

	t.Run("valid source", func(t *testing.T) {
		val, err := v.ResolveDSL(ctx, "sxl-sql", `(Q (F orders o) (S o.id) (L 10))`)
		require.NoError(t, err)
		nodes, ok := val.([]sxl.Node)
		require.True(t, ok)
		require.Len(t, nodes, 1)
		assert.Equal(t, "Q", nodes[0].(*sxl.Symbol).Name)
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := v.ResolveDSL(ctx, "sxl-sql", "(Q (F orders")
		var perr *sxl.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, sxl.CodeUnmatchedParen, perr.Code)
	})

	t.Run("validation error", func(t *testing.T) {
		_, err := v.ResolveDSL(ctx, "sxl-sql", "(Q (WRONG))")
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeUnknownSymbol, verr.Code)
	})
}
