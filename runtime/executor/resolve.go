package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/runtime/dag"
	"goa.design/maestro/runtime/plan"
)

// Executable is one resolved plan step, ready for scheduling. Binding is
// deferred to invocation time so fromContext parameters observe the writes
// of upstream steps.
type Executable struct {
	// StepID identifies the step. Steps are keyed by their action id; a
	// plan referencing the same action twice fails the DAG duplicate
	// check.
	StepID string
	// Desc is the registered descriptor behind the step.
	Desc *action.Descriptor
	// Params holds the step's raw JSON parameters.
	Params map[string]json.RawMessage
	// Meta is the scheduling metadata derived from descriptor and step.
	Meta dag.Metadata

	binder *action.Binder
}

// Resolve maps every plan step to its registered action and derives the
// scheduling metadata. Unknown actions and handler-less descriptors fail
// fast so no plan with an uninvokable step ever starts executing.
func Resolve(p *plan.Plan, reg *action.Registry, binder *action.Binder) ([]*Executable, error) {
	if p == nil || len(p.Steps) == 0 {
		return nil, errors.New("plan has no steps")
	}
	if binder == nil {
		binder = action.NewBinder()
	}
	execs := make([]*Executable, 0, len(p.Steps))
	for _, step := range p.Steps {
		desc, err := reg.Lookup(step.ActionID)
		if err != nil {
			return nil, err
		}
		if desc.Handler == nil {
			return nil, fmt.Errorf("action %q has no handler", desc.ID)
		}
		execs = append(execs, &Executable{
			StepID: string(desc.ID),
			Desc:   desc,
			Params: step.Parameters,
			Meta:   metadataFor(desc, step),
			binder: binder,
		})
	}
	return execs, nil
}

// Bind resolves the step's arguments against the execution context.
func (e *Executable) Bind(ctx context.Context, ec *action.Context) (action.Arguments, error) {
	return e.binder.Bind(ctx, e.Desc, e.Params, ec)
}

// Perform binds the step's arguments and invokes the action handler.
func (e *Executable) Perform(ctx context.Context, ec *action.Context) (any, error) {
	args, err := e.Bind(ctx, ec)
	if err != nil {
		return nil, err
	}
	return e.Desc.Handler(ctx, args.Values())
}

// metadataFor derives the immutable scheduling metadata of one step.
func metadataFor(desc *action.Descriptor, step plan.Step) dag.Metadata {
	deps := make([]string, len(desc.DependsOn))
	for i, dep := range desc.DependsOn {
		deps[i] = string(dep)
	}
	return dag.Metadata{
		StepID:          string(desc.ID),
		ActionName:      string(desc.ID),
		AffinityIDs:     resolveAffinities(desc.Affinities, step.Parameters),
		Mutability:      desc.Mutability,
		ResourceReads:   append([]string(nil), desc.ResourceReads...),
		ResourceWrites:  append([]string(nil), desc.ResourceWrites...),
		RequiresContext: desc.RequiredContext(),
		ProducesContext: desc.ProducesContext(),
		DependsOn:       deps,
		Cost:            desc.Cost,
		Priority:        desc.Priority,
		Timeout:         desc.Timeout,
		MaxRetries:      desc.MaxRetries,
		Idempotent:      desc.Idempotent,
	}
}

// resolveAffinities substitutes {placeholder} segments in the descriptor's
// affinity templates with step parameter values. Placeholders address
// nested objects with dotted paths ("user.id"). Placeholders without a
// matching parameter pass through verbatim.
func resolveAffinities(templates []string, params map[string]json.RawMessage) []string {
	if len(templates) == 0 {
		return nil
	}
	values := flattenParams(params)
	out := make([]string, len(templates))
	for i, tmpl := range templates {
		out[i] = substitute(tmpl, values)
	}
	return out
}

// flattenParams decodes the step parameters into a flat map of dotted
// paths to string values. Objects recurse, scalars stringify, arrays and
// nulls are not addressable.
func flattenParams(params map[string]json.RawMessage) map[string]string {
	flat := make(map[string]string, len(params))
	for name, raw := range params {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		flattenValue(flat, name, v)
	}
	return flat
}

func flattenValue(flat map[string]string, path string, v any) {
	switch val := v.(type) {
	case string:
		flat[path] = val
	case json.Number:
		flat[path] = val.String()
	case bool:
		if val {
			flat[path] = "true"
		} else {
			flat[path] = "false"
		}
	case map[string]any:
		for k, nested := range val {
			flattenValue(flat, path+"."+k, nested)
		}
	}
}

// substitute replaces each {name} segment with its value, leaving unknown
// placeholders and unbalanced braces untouched.
func substitute(tmpl string, values map[string]string) string {
	if !strings.ContainsRune(tmpl, '{') {
		return tmpl
	}
	var b strings.Builder
	for {
		i := strings.IndexByte(tmpl, '{')
		if i < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		j := strings.IndexByte(tmpl[i:], '}')
		if j < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		b.WriteString(tmpl[:i])
		name := tmpl[i+1 : i+j]
		if v, ok := values[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(tmpl[i : i+j+1])
		}
		tmpl = tmpl[i+j+1:]
	}
}
