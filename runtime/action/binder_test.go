package action_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/sxl"
	"goa.design/maestro/sxl/grammar"
	"goa.design/maestro/sxl/validate"
)

type fakeResolver struct {
	dslID  string
	source string
	value  any
	err    error
}

func (f *fakeResolver) ResolveDSL(_ context.Context, dslID, source string) (any, error) {
	f.dslID = dslID
	f.source = source
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}

func rawParams(t *testing.T, kv map[string]any) map[string]json.RawMessage {
	t.Helper()
	params := make(map[string]json.RawMessage, len(kv))
	for k, v := range kv {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		params[k] = data
	}
	return params
}

func TestBindBuiltinTypes(t *testing.T) {
	desc := &action.Descriptor{
		ID: "shape",
		Parameters: []action.ParameterSpec{
			{Name: "name", TypeID: "string"},
			{Name: "count", TypeID: "int"},
			{Name: "ratio", TypeID: "float"},
			{Name: "dryRun", TypeID: "bool"},
			{Name: "wait", TypeID: "duration"},
			{Name: "payload", TypeID: "any"},
			{Name: "loose"},
		},
	}
	params := rawParams(t, map[string]any{
		"name":    "orders",
		"count":   42,
		"ratio":   0.25,
		"dryRun":  true,
		"wait":    "1m30s",
		"payload": map[string]any{"region": "eu"},
		"loose":   []any{"a", "b"},
	})

	args, err := action.NewBinder().Bind(context.Background(), desc, params, nil)
	require.NoError(t, err)
	require.Len(t, args, 7)
	assert.False(t, args.Failed())

	vals := args.Values()
	assert.Equal(t, "orders", vals[0])
	assert.Equal(t, int64(42), vals[1])
	assert.Equal(t, 0.25, vals[2])
	assert.Equal(t, true, vals[3])
	assert.Equal(t, 90*time.Second, vals[4])
	assert.Equal(t, map[string]any{"region": "eu"}, vals[5])
	assert.Equal(t, []any{"a", "b"}, vals[6])
	assert.NoError(t, args.Err(desc.ID))
}

func TestBindMissingArgument(t *testing.T) {
	desc := &action.Descriptor{
		ID:         "notify",
		Parameters: []action.ParameterSpec{{Name: "channel", TypeID: "string"}},
	}

	_, err := action.NewBinder().Bind(context.Background(), desc, nil, nil)
	var me *action.MissingArgumentError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "channel", me.Param)
	assert.Equal(t, action.ID("notify"), me.ActionID)
	assert.Equal(t, action.CodeMissingArgument, me.Code())
	assert.Contains(t, err.Error(), `missing argument "channel"`)
}

func TestBindMissingContext(t *testing.T) {
	desc := &action.Descriptor{
		ID:         "bill",
		Parameters: []action.ParameterSpec{{Name: "user", TypeID: "string", FromContext: "user"}},
	}
	b := action.NewBinder()

	_, err := b.Bind(context.Background(), desc, nil, action.NewContext())
	var mc *action.MissingContextError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, "user", mc.Key)
	assert.Equal(t, action.CodeMissingContext, mc.Code())

	// A nil context behaves like an empty one.
	_, err = b.Bind(context.Background(), desc, nil, nil)
	require.ErrorAs(t, err, &mc)

	// A value of the wrong type is missing too, with the type error as
	// cause.
	ec := action.NewContext()
	ec.Put("user", 41)
	_, err = b.Bind(context.Background(), desc, nil, ec)
	require.ErrorAs(t, err, &mc)
	var te *action.TypeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "string", te.Want)
	assert.Equal(t, "int", te.Got)
}

func TestBindFromContext(t *testing.T) {
	desc := &action.Descriptor{
		ID: "report",
		Parameters: []action.ParameterSpec{
			{Name: "user", TypeID: "string", FromContext: "user"},
			{Name: "orders", TypeID: "any", FromContext: "orders"},
		},
	}
	ec := action.NewContext()
	ec.Put("user", "ada")
	ec.Put("orders", []string{"o-1", "o-2"})

	args, err := action.NewBinder().Bind(context.Background(), desc, nil, ec)
	require.NoError(t, err)
	assert.Equal(t, []any{"ada", []string{"o-1", "o-2"}}, args.Values())
}

func TestBindInjectsExecutionContext(t *testing.T) {
	desc := &action.Descriptor{
		ID: "audit",
		Parameters: []action.ParameterSpec{
			{Name: "ctx", TypeID: action.TypeIDContext},
			{Name: "note", TypeID: "string"},
		},
	}
	ec := action.NewContext()

	args, err := action.NewBinder().Bind(context.Background(), desc, rawParams(t, map[string]any{"note": "hi"}), ec)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Same(t, ec, args[0].Value)
	assert.Equal(t, "hi", args[1].Value)
}

func TestBindCollectsFieldErrors(t *testing.T) {
	desc := &action.Descriptor{
		ID: "mixed",
		Parameters: []action.ParameterSpec{
			{Name: "count", TypeID: "int"},
			{Name: "name", TypeID: "string"},
			{Name: "wait", TypeID: "duration"},
		},
	}
	params := rawParams(t, map[string]any{
		"count": "not-a-number",
		"name":  "fine",
		"wait":  "soon",
	})

	args, err := action.NewBinder().Bind(context.Background(), desc, params, nil)
	var be *action.BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, action.CodeDeserialization, be.Code())
	assert.Equal(t, action.ID("mixed"), be.ActionID)
	require.Len(t, be.Fields, 2)
	assert.Equal(t, "count", be.Fields[0].Param)
	assert.Equal(t, "wait", be.Fields[1].Param)
	assert.Contains(t, string(be.Raw), "not-a-number")

	require.Len(t, args, 3)
	assert.True(t, args.Failed())
	assert.NotEmpty(t, args[0].Issues)
	assert.Empty(t, args[1].Issues)
	assert.Equal(t, "fine", args[1].Value)
	assert.NotEmpty(t, args[2].Issues)
	assert.JSONEq(t, `"not-a-number"`, string(args[0].Raw))

	folded := args.Err(desc.ID)
	require.ErrorAs(t, folded, &be)
	assert.Len(t, be.Fields, 2)
}

func TestBindAllowedRegex(t *testing.T) {
	desc := &action.Descriptor{
		ID: "route",
		Parameters: []action.ParameterSpec{
			{Name: "region", TypeID: "string", AllowedRegex: "^(eu|us)$"},
		},
	}
	b := action.NewBinder()

	args, err := b.Bind(context.Background(), desc, rawParams(t, map[string]any{"region": "eu"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "eu", args[0].Value)

	_, err = b.Bind(context.Background(), desc, rawParams(t, map[string]any{"region": "mars"}), nil)
	var be *action.BindError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, err.Error(), "does not match allowed pattern")
}

func TestBindUnknownTypeIDDecodesRawJSON(t *testing.T) {
	desc := &action.Descriptor{
		ID:         "custom",
		Parameters: []action.ParameterSpec{{Name: "ref", TypeID: "ticketRef"}},
	}

	args, err := action.NewBinder().Bind(context.Background(), desc, rawParams(t, map[string]any{"ref": "T-1"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "T-1", args[0].Value)
}

func TestBindCustomTypeHandler(t *testing.T) {
	type ticket struct{ ID string }
	b := action.NewBinder(action.WithTypeHandler("ticketRef", func(_ context.Context, _ action.ParameterSpec, raw json.RawMessage) (any, error) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return ticket{ID: s}, nil
	}))
	desc := &action.Descriptor{
		ID:         "custom",
		Parameters: []action.ParameterSpec{{Name: "ref", TypeID: "ticketRef"}},
	}

	args, err := b.Bind(context.Background(), desc, rawParams(t, map[string]any{"ref": "T-1"}), nil)
	require.NoError(t, err)
	assert.Equal(t, ticket{ID: "T-1"}, args[0].Value)
}

func TestBindDSLParameter(t *testing.T) {
	resolver := &fakeResolver{value: "parsed"}
	b := action.NewBinder(action.WithDSLResolver(resolver))
	desc := &action.Descriptor{
		ID:         "query",
		Parameters: []action.ParameterSpec{{Name: "q", TypeID: "string", DSLID: "sxl-sql"}},
	}

	args, err := b.Bind(context.Background(), desc, rawParams(t, map[string]any{"q": "(Q (F users))"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "parsed", args[0].Value)
	assert.Equal(t, "sxl-sql", resolver.dslID)
	assert.Equal(t, "(Q (F users))", resolver.source)
}

func TestBindDSLWithoutResolver(t *testing.T) {
	desc := &action.Descriptor{
		ID:         "query",
		Parameters: []action.ParameterSpec{{Name: "q", TypeID: "string", DSLID: "sxl-sql"}},
	}

	_, err := action.NewBinder().Bind(context.Background(), desc, rawParams(t, map[string]any{"q": "(Q)"}), nil)
	var be *action.BindError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, err.Error(), "no resolver is configured")
}

func TestBindDSLRejectsNonString(t *testing.T) {
	b := action.NewBinder(action.WithDSLResolver(&fakeResolver{}))
	desc := &action.Descriptor{
		ID:         "query",
		Parameters: []action.ParameterSpec{{Name: "q", TypeID: "string", DSLID: "sxl-sql"}},
	}

	_, err := b.Bind(context.Background(), desc, rawParams(t, map[string]any{"q": 7}), nil)
	var be *action.BindError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, err.Error(), "expected string of sxl-sql source")
}

// TestBindDSLAgainstGrammar exercises the binder with the real SXL
// validator as resolver: valid source binds to the parsed nodes, invalid
// source surfaces the validation error as a bind failure.
func TestBindDSLAgainstGrammar(t *testing.T) {
	grammars, err := grammar.Builtin()
	require.NoError(t, err)
	b := action.NewBinder(action.WithDSLResolver(validate.New(grammars)))
	desc := &action.Descriptor{
		ID:         "run-query",
		Parameters: []action.ParameterSpec{{Name: "q", TypeID: "string", DSLID: "sxl-sql"}},
	}

	args, err := b.Bind(context.Background(), desc, rawParams(t, map[string]any{
		"q": `(Q (F orders o) (S (AS o.id id)) (L 10))`,
	}), nil)
	require.NoError(t, err)
	nodes, ok := args[0].Value.([]sxl.Node)
	require.True(t, ok)
	require.Len(t, nodes, 1)

	_, err = b.Bind(context.Background(), desc, rawParams(t, map[string]any{
		"q": `(Q (WRONG 1))`,
	}), nil)
	var be *action.BindError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, err.Error(), `unknown symbol "WRONG"`)
}
