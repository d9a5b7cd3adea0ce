package prompt_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/runtime/prompt"
	"goa.design/maestro/sxl/grammar"
)

const universalYAML = `
dsl:
  id: sxl-universal
  description: Shared S-expression conventions.
  version: "0.1.0"
llm_specs:
  defaults: |
    Emit balanced parentheses and double-quoted strings.
  provider_defaults:
    anthropic: |
      Emit the plan inside a single code block.
`

const planYAML = `
dsl:
  id: sxl-plan
  description: Plan steps.
  version: "0.2.0"
symbols:
  PLAN:
    description: Plan root.
    kind: root
    params:
      - name: steps
        type: node
        cardinality: oneOrMore
        allowed_symbols: [STEP]
  STEP:
    description: One step.
    kind: step
    params:
      - name: action
        type: identifier
        cardinality: required
      - name: args
        type: node
        cardinality: zeroOrMore
        allowed_symbols: [ARG]
  ARG:
    description: Named argument.
    kind: binding
    params:
      - name: name
        type: identifier
        cardinality: required
      - name: value
        type: any
        cardinality: required
llm_specs:
  defaults: |
    Use only registered action ids.
  models:
    claude-sonnet-4-5: |
      Keep plans to at most five steps.
`

const queryYAML = `
dsl:
  id: sxl-query
  description: Query expressions.
  version: "1.0.0"
symbols:
  Q:
    kind: clause
    params:
      - name: table
        type: identifier
        cardinality: required
      - name: clauses
        type: node
        cardinality: zeroOrMore
        allowed_symbols: [F, W]
  F:
    kind: clause
    params:
      - name: fields
        type: identifier
        cardinality: oneOrMore
  W:
    kind: clause
    params:
      - name: cond
        type: any
        cardinality: required
llm_specs:
  defaults: |
    Project with F, filter with W.
`

const emailYAML = `
dsl:
  id: sxl-email
  description: Email drafting.
llm_specs:
  defaults: |
    Write plain-text email bodies.
`

func testGrammars(t *testing.T, yamls ...string) *grammar.Registry {
	t.Helper()
	reg := grammar.NewRegistry()
	for _, src := range yamls {
		g, err := grammar.Parse([]byte(src))
		require.NoError(t, err)
		require.NoError(t, reg.Register(g))
	}
	return reg
}

func testActions(t *testing.T, descs ...*action.Descriptor) *action.Registry {
	t.Helper()
	reg := action.NewRegistry()
	for _, d := range descs {
		require.NoError(t, reg.Register(d))
	}
	return reg
}

type stubContributor struct {
	ids  []string
	text map[string]string
	err  error
}

func (c *stubContributor) DSLIDs() []string { return c.ids }

func (c *stubContributor) Contribute(_ context.Context, dslID string, _ prompt.Input) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.text[dslID], nil
}

func TestBuildCollectsAndOrdersDSLs(t *testing.T) {
	actions := testActions(t, &action.Descriptor{
		ID: "runQuery",
		Parameters: []action.ParameterSpec{
			{Name: "query", TypeID: "string", DSLID: "sxl-query"},
		},
	})
	grammars := testGrammars(t, queryYAML, emailYAML, planYAML, universalYAML)
	contrib := &stubContributor{ids: []string{"sxl-email"}}
	b := prompt.NewBuilder(actions, grammars, prompt.WithContributors(contrib))

	out, err := b.Build(context.Background(), prompt.Input{})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(out, "DSL GUIDANCE:\n\n"))
	universal := strings.Index(out, "DSL sxl-universal:")
	plan := strings.Index(out, "DSL sxl-plan:")
	email := strings.Index(out, "DSL sxl-email:")
	query := strings.Index(out, "DSL sxl-query:")
	require.NotEqual(t, -1, universal)
	require.NotEqual(t, -1, plan)
	require.NotEqual(t, -1, email)
	require.NotEqual(t, -1, query)
	assert.Less(t, universal, plan)
	assert.Less(t, plan, email)
	assert.Less(t, email, query)
}

func TestBuildSXLFormat(t *testing.T) {
	actions := testActions(t, &action.Descriptor{
		ID:          "fetchCustomer",
		Description: "Fetch a customer.",
		Parameters:  []action.ParameterSpec{{Name: "id", TypeID: "string"}},
		ContextKey:  "customer",
	})
	b := prompt.NewBuilder(actions, testGrammars(t, planYAML),
		prompt.WithContributors(prompt.NewActionsContributor()))

	out, err := b.Build(context.Background(), prompt.Input{
		ExamplePlan: `{"message":"demo","steps":[]}`,
	})
	require.NoError(t, err)

	want := `DSL GUIDANCE:

DSL sxl-plan:
Use only registered action ids.
GRAMMAR sxl-plan v0.2.0: Plan steps.
SYMBOLS:
  PLAN (root): steps:node(oneOrMore){allowed=STEP}
  STEP (step): action:identifier(required), args:node(zeroOrMore){allowed=ARG}
  ARG (binding): name:identifier(required), value:any(required)
RESERVED: EMBED
AVAILABLE ACTIONS:
  fetchCustomer(id:string) writes=customer: Fetch a customer.

EXAMPLE PLAN:
{"message":"demo","steps":[]}`
	assert.Equal(t, want, out)
}

func TestBuildGuidanceOverrides(t *testing.T) {
	actions := testActions(t)
	b := prompt.NewBuilder(actions, testGrammars(t, universalYAML, planYAML))

	out, err := b.Build(context.Background(), prompt.Input{})
	require.NoError(t, err)
	assert.Contains(t, out, "Emit balanced parentheses")
	assert.Contains(t, out, "Use only registered action ids.")
	assert.NotContains(t, out, "Keep plans to at most five steps.")

	out, err = b.Build(context.Background(), prompt.Input{Provider: "anthropic"})
	require.NoError(t, err)
	assert.Contains(t, out, "Emit the plan inside a single code block.")
	assert.NotContains(t, out, "Emit balanced parentheses")
	assert.Contains(t, out, "Use only registered action ids.")

	out, err = b.Build(context.Background(), prompt.Input{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-5",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Emit the plan inside a single code block.")
	assert.Contains(t, out, "Keep plans to at most five steps.")
	assert.NotContains(t, out, "Use only registered action ids.")
}

func TestBuildExamplePlanPlacement(t *testing.T) {
	actions := testActions(t, &action.Descriptor{
		ID: "runQuery",
		Parameters: []action.ParameterSpec{
			{Name: "query", TypeID: "string", DSLID: "sxl-query"},
		},
	})
	b := prompt.NewBuilder(actions, testGrammars(t, universalYAML, planYAML, queryYAML))

	out, err := b.Build(context.Background(), prompt.Input{
		ExamplePlan: `{"message":"demo","steps":[]}`,
	})
	require.NoError(t, err)

	plan := strings.Index(out, "DSL sxl-plan:")
	example := strings.Index(out, "EXAMPLE PLAN:")
	query := strings.Index(out, "DSL sxl-query:")
	require.NotEqual(t, -1, example)
	assert.Less(t, plan, example)
	assert.Less(t, example, query)

	out, err = b.Build(context.Background(), prompt.Input{})
	require.NoError(t, err)
	assert.NotContains(t, out, "EXAMPLE PLAN:")
}

func TestBuildJSONDocument(t *testing.T) {
	actions := testActions(t, &action.Descriptor{
		ID:          "runQuery",
		Description: "Run a query.",
		Parameters: []action.ParameterSpec{
			{Name: "query", TypeID: "string", DSLID: "sxl-query"},
			{Name: "ec", TypeID: action.TypeIDContext},
		},
		ContextKey: "rows",
	})
	b := prompt.NewBuilder(actions, testGrammars(t, universalYAML, planYAML, queryYAML),
		prompt.WithContributors(prompt.NewActionsContributor()))

	out, err := b.Build(context.Background(), prompt.Input{Mode: prompt.ModeJSON})
	require.NoError(t, err)
	assert.Contains(t, out, "\n  \"actions\"")

	var doc struct {
		Actions []struct {
			ID         string `json:"id"`
			Mutability string `json:"mutability"`
			Writes     []string
			Parameters []struct {
				Name  string `json:"name"`
				DSLID string `json:"dslId"`
			} `json:"parameters"`
		} `json:"actions"`
		DSLGuidance map[string]string `json:"dslGuidance"`
		DSLSchemas  map[string]struct {
			Version string `json:"version"`
			Symbols map[string]struct {
				Kind   string   `json:"kind"`
				Params []string `json:"params"`
			} `json:"symbols"`
			Reserved []string `json:"reserved"`
		} `json:"dslSchemas"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	require.Len(t, doc.Actions, 1)
	assert.Equal(t, "runQuery", doc.Actions[0].ID)
	assert.Equal(t, "READ_ONLY", doc.Actions[0].Mutability)
	assert.Equal(t, []string{"rows"}, doc.Actions[0].Writes)
	// The injected execution context parameter is omitted.
	require.Len(t, doc.Actions[0].Parameters, 1)
	assert.Equal(t, "query", doc.Actions[0].Parameters[0].Name)
	assert.Equal(t, "sxl-query", doc.Actions[0].Parameters[0].DSLID)

	assert.Equal(t, "Use only registered action ids.", doc.DSLGuidance["sxl-plan"])
	assert.Equal(t, "Project with F, filter with W.", doc.DSLGuidance["sxl-query"])

	require.Contains(t, doc.DSLSchemas, "sxl-query")
	schema := doc.DSLSchemas["sxl-query"]
	assert.Equal(t, "1.0.0", schema.Version)
	require.Contains(t, schema.Symbols, "Q")
	assert.Equal(t, "clause", schema.Symbols["Q"].Kind)
	assert.Equal(t, []string{
		"table:identifier(required)",
		"clauses:node(zeroOrMore){allowed=F|W}",
	}, schema.Symbols["Q"].Params)
	assert.Contains(t, schema.Reserved, "EMBED")
}

func TestBuildUnknownDSL(t *testing.T) {
	actions := testActions(t, &action.Descriptor{
		ID: "summon",
		Parameters: []action.ParameterSpec{
			{Name: "incantation", TypeID: "string", DSLID: "sxl-ghost"},
		},
	})
	b := prompt.NewBuilder(actions, testGrammars(t, universalYAML, planYAML))

	_, err := b.Build(context.Background(), prompt.Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no grammar registered for dsl "sxl-ghost"`)
}

func TestBuildUnknownMode(t *testing.T) {
	b := prompt.NewBuilder(testActions(t), testGrammars(t, planYAML))

	_, err := b.Build(context.Background(), prompt.Input{Mode: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "xml"`)
}

func TestBuildDefaultsToAllRegisteredActions(t *testing.T) {
	actions := testActions(t,
		&action.Descriptor{ID: "zulu", Description: "Last."},
		&action.Descriptor{ID: "alpha", Description: "First."},
	)
	b := prompt.NewBuilder(actions, testGrammars(t, planYAML),
		prompt.WithContributors(prompt.NewActionsContributor()))

	out, err := b.Build(context.Background(), prompt.Input{})
	require.NoError(t, err)

	alpha := strings.Index(out, "alpha()")
	zulu := strings.Index(out, "zulu()")
	require.NotEqual(t, -1, alpha)
	require.NotEqual(t, -1, zulu)
	assert.Less(t, alpha, zulu)
}

func TestBuildContributorError(t *testing.T) {
	contrib := &stubContributor{err: errors.New("catalog offline")}
	b := prompt.NewBuilder(testActions(t), testGrammars(t, planYAML),
		prompt.WithContributors(contrib))

	_, err := b.Build(context.Background(), prompt.Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `contribute to dsl "sxl-plan"`)
	assert.Contains(t, err.Error(), "catalog offline")
}

func TestActionsContributorSignature(t *testing.T) {
	d := &action.Descriptor{
		ID:                    "createOrder",
		Description:           "Create an order.",
		Mutability:            action.MutabilityMutate,
		ContextKey:            "order",
		AdditionalContextKeys: []string{"orderAudit"},
		Parameters: []action.ParameterSpec{
			{Name: "customer", TypeID: "json", FromContext: "customer"},
			{Name: "query", TypeID: "string", DSLID: "sxl-query"},
			{Name: "note", TypeID: "string"},
			{Name: "ec", TypeID: action.TypeIDContext},
		},
		Examples: []string{`(STEP createOrder (ARG note "rush"))`},
	}
	c := prompt.NewActionsContributor()

	text, err := c.Contribute(context.Background(), grammar.DSLPlan, prompt.Input{
		Actions: []*action.Descriptor{d},
	})
	require.NoError(t, err)

	want := `AVAILABLE ACTIONS:
  createOrder(customer:fromContext(customer), query:dsl(sxl-query), note:string) MUTATE writes=order,orderAudit: Create an order.
    e.g. (STEP createOrder (ARG note "rush"))`
	assert.Equal(t, want, text)

	// The catalog attaches to the plan DSL section only.
	text, err = c.Contribute(context.Background(), "sxl-query", prompt.Input{
		Actions: []*action.Descriptor{d},
	})
	require.NoError(t, err)
	assert.Empty(t, text)

	// JSON mode carries the catalog in the actions key instead.
	text, err = c.Contribute(context.Background(), grammar.DSLPlan, prompt.Input{
		Actions: []*action.Descriptor{d},
		Mode:    prompt.ModeJSON,
	})
	require.NoError(t, err)
	assert.Empty(t, text)
}
