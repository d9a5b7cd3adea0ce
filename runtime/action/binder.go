package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type (
	// TypeHandler converts a raw JSON parameter value into a host value.
	// Handlers are registered per type id when the binder is built; the
	// bind path performs no reflection.
	TypeHandler func(ctx context.Context, spec ParameterSpec, raw json.RawMessage) (any, error)

	// DSLResolver parses and validates DSL source carried by a string
	// parameter and returns the bound host value.
	DSLResolver interface {
		ResolveDSL(ctx context.Context, dslID, source string) (any, error)
	}

	// Binder converts plan-step JSON parameters into the positional
	// arguments of an action handler.
	Binder struct {
		handlers map[string]TypeHandler
		resolver DSLResolver
	}

	// BinderOption configures a Binder.
	BinderOption func(*Binder)

	// Argument is one bound argument: either a resolved value or the
	// field errors that prevented binding.
	Argument struct {
		Name   string
		Value  any
		Raw    json.RawMessage
		Issues []FieldError
	}

	// Arguments holds the bound arguments of one step in positional
	// order.
	Arguments []Argument
)

// WithTypeHandler registers a handler for a type id, replacing any
// built-in under the same id.
func WithTypeHandler(typeID string, h TypeHandler) BinderOption {
	return func(b *Binder) { b.handlers[typeID] = h }
}

// WithDSLResolver sets the resolver used for parameters bound to a DSL.
func WithDSLResolver(r DSLResolver) BinderOption {
	return func(b *Binder) { b.resolver = r }
}

// NewBinder returns a binder with handlers for the built-in type ids
// string, int, float, bool, duration, json and any. Type ids without a
// handler decode the raw JSON value as-is.
func NewBinder(opts ...BinderOption) *Binder {
	b := &Binder{handlers: map[string]TypeHandler{
		"string":   bindString,
		"int":      bindInt,
		"float":    bindFloat,
		"bool":     bindBool,
		"duration": bindDuration,
		"json":     bindAny,
		"any":      bindAny,
	}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind resolves the descriptor's parameters against the step's JSON
// parameters and the execution context. Missing context keys and missing
// arguments fail immediately; conversion failures are collected across all
// parameters and returned as a single BindError, with each failed Argument
// carrying its field errors.
func (b *Binder) Bind(ctx context.Context, desc *Descriptor, params map[string]json.RawMessage, ec *Context) (Arguments, error) {
	args := make(Arguments, 0, len(desc.Parameters))
	var fields []FieldError
	for _, spec := range desc.Parameters {
		switch {
		case spec.FromContext != "":
			v, err := contextValue(spec, ec, desc.ID)
			if err != nil {
				return args, err
			}
			args = append(args, Argument{Name: spec.Name, Value: v})
		case spec.TypeID == TypeIDContext:
			args = append(args, Argument{Name: spec.Name, Value: ec})
		default:
			raw, ok := params[spec.Name]
			if !ok {
				return args, &MissingArgumentError{Param: spec.Name, ActionID: desc.ID}
			}
			v, err := b.bindValue(ctx, spec, raw)
			if err != nil {
				fe := FieldError{Param: spec.Name, Message: err.Error()}
				fields = append(fields, fe)
				args = append(args, Argument{Name: spec.Name, Raw: raw, Issues: []FieldError{fe}})
				continue
			}
			args = append(args, Argument{Name: spec.Name, Value: v, Raw: raw})
		}
	}
	if len(fields) > 0 {
		raw, _ := json.Marshal(params)
		return args, &BindError{ActionID: desc.ID, Fields: fields, Raw: raw}
	}
	return args, nil
}

// Values returns the bound values in positional order, ready to pass to
// the action handler.
func (as Arguments) Values() []any {
	vals := make([]any, len(as))
	for i, a := range as {
		vals[i] = a.Value
	}
	return vals
}

// Failed reports whether any argument carries field errors.
func (as Arguments) Failed() bool {
	for _, a := range as {
		if len(a.Issues) > 0 {
			return true
		}
	}
	return false
}

// Err folds the arguments' field errors into a single BindError, or nil
// when every argument bound.
func (as Arguments) Err(id ID) error {
	var fields []FieldError
	raw := make(map[string]json.RawMessage)
	for _, a := range as {
		fields = append(fields, a.Issues...)
		if a.Raw != nil {
			raw[a.Name] = a.Raw
		}
	}
	if len(fields) == 0 {
		return nil
	}
	data, _ := json.Marshal(raw)
	return &BindError{ActionID: id, Fields: fields, Raw: data}
}

func (b *Binder) bindValue(ctx context.Context, spec ParameterSpec, raw json.RawMessage) (any, error) {
	if spec.DSLID != "" {
		return b.bindDSL(ctx, spec, raw)
	}
	h, ok := b.handlers[spec.TypeID]
	if !ok {
		h = bindAny
	}
	return h(ctx, spec, raw)
}

func (b *Binder) bindDSL(ctx context.Context, spec ParameterSpec, raw json.RawMessage) (any, error) {
	if b.resolver == nil {
		return nil, fmt.Errorf("parameter carries DSL %q but no resolver is configured", spec.DSLID)
	}
	var src string
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("expected string of %s source: %w", spec.DSLID, err)
	}
	if ok, err := spec.MatchAllowed(src); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("value %q does not match allowed pattern %s", src, spec.AllowedRegex)
	}
	return b.resolver.ResolveDSL(ctx, spec.DSLID, src)
}

// contextValue resolves a fromContext binding. Absent keys and values of
// an unusable type both fail with MissingContext, the latter with the
// TypeError as cause.
func contextValue(spec ParameterSpec, ec *Context, id ID) (any, error) {
	if ec == nil {
		return nil, &MissingContextError{Key: spec.FromContext, Param: spec.Name, ActionID: id}
	}
	v, ok := ec.Get(spec.FromContext)
	if !ok {
		return nil, &MissingContextError{Key: spec.FromContext, Param: spec.Name, ActionID: id}
	}
	if err := checkContextType(spec, v); err != nil {
		return nil, &MissingContextError{Key: spec.FromContext, Param: spec.Name, ActionID: id, Cause: err}
	}
	return v, nil
}

// checkContextType verifies a context value against the parameter's
// declared type for the built-in type ids. Host-defined type ids are not
// checked here; their handlers never see context values.
func checkContextType(spec ParameterSpec, v any) error {
	var want string
	ok := true
	switch spec.TypeID {
	case "string":
		want = "string"
		_, ok = v.(string)
	case "int":
		want = "int"
		switch v.(type) {
		case int, int32, int64:
		default:
			ok = false
		}
	case "float":
		want = "float"
		switch v.(type) {
		case float32, float64:
		default:
			ok = false
		}
	case "bool":
		want = "bool"
		_, ok = v.(bool)
	case "duration":
		want = "time.Duration"
		_, ok = v.(time.Duration)
	}
	if ok {
		return nil
	}
	return &TypeError{Key: spec.FromContext, Want: want, Got: fmt.Sprintf("%T", v)}
}

func bindString(_ context.Context, spec ParameterSpec, raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected string: %w", err)
	}
	if ok, err := spec.MatchAllowed(s); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("value %q does not match allowed pattern %s", s, spec.AllowedRegex)
	}
	return s, nil
}

func bindInt(_ context.Context, _ ParameterSpec, raw json.RawMessage) (any, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("expected integer: %w", err)
	}
	return n, nil
}

func bindFloat(_ context.Context, _ ParameterSpec, raw json.RawMessage) (any, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("expected number: %w", err)
	}
	return f, nil
}

func bindBool(_ context.Context, _ ParameterSpec, raw json.RawMessage) (any, error) {
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("expected boolean: %w", err)
	}
	return v, nil
}

func bindDuration(_ context.Context, _ ParameterSpec, raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf(`expected duration string such as "30s": %w`, err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func bindAny(_ context.Context, _ ParameterSpec, raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON value: %w", err)
	}
	return v, nil
}
