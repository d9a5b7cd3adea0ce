// Package action holds the registry of host operations the planner may
// call, the shared execution context, and the binder that turns plan-step
// JSON into positional host arguments.
package action

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Mutability states whether an action changes host state.
type Mutability string

const (
	// MutabilityReadOnly marks actions without observable side effects.
	MutabilityReadOnly Mutability = "READ_ONLY"
	// MutabilityMutate marks actions that change host state.
	MutabilityMutate Mutability = "MUTATE"
)

// TypeIDContext is the parameter type that injects the active execution
// context instead of a model-provided value.
const TypeIDContext = "ExecutionContext"

type (
	// ID uniquely names a registered action. Plan steps reference actions
	// by this id, and it doubles as the step id during execution.
	ID string

	// Handler is the host function behind an action. Arguments arrive in
	// the positional order of the descriptor's parameters.
	Handler func(ctx context.Context, args []any) (any, error)

	// Descriptor describes one host operation: its parameters, scheduling
	// hints and context dataflow. Descriptors are registered during host
	// initialization and immutable afterwards.
	Descriptor struct {
		// ID is the unique action id.
		ID ID
		// Description explains the action to the LLM.
		Description string
		// Parameters holds the positional parameter specs.
		Parameters []ParameterSpec
		// Examples holds example invocations for prompts.
		Examples []string
		// Mutability defaults to READ_ONLY.
		Mutability Mutability
		// Cost is the relative execution cost, at least 1.
		Cost int
		// Affinities tags the action with host affinities; entries may
		// carry {placeholder} templates resolved from step parameters.
		Affinities []string
		// ContextKey names the context key the action's result is
		// stored under, when set.
		ContextKey string
		// AdditionalContextKeys lists further keys the handler writes
		// itself.
		AdditionalContextKeys []string
		// RequiresContext lists context keys the action reads beyond
		// those implied by fromContext parameters.
		RequiresContext []string
		// DependsOn lists actions that must complete first.
		DependsOn []ID
		// ResourceReads and ResourceWrites declare touched resources.
		// They are advisory: a parallel scheduler avoids conflicting
		// invocations, the sequential executor ignores them.
		ResourceReads  []string
		ResourceWrites []string
		// Priority orders ready actions under priority scheduling.
		Priority int
		// Idempotent permits retries on transient failures.
		Idempotent bool
		// MaxRetries bounds retry attempts after the first.
		MaxRetries int
		// Timeout bounds a single invocation, zero for none.
		Timeout time.Duration
		// Handler is the host function to invoke.
		Handler Handler
	}

	// ParameterSpec declares one positional action parameter.
	ParameterSpec struct {
		// Name is the parameter name, a valid identifier.
		Name string
		// TypeID selects the binder's type handler.
		TypeID string
		// DSLID marks string parameters carrying DSL source; the binder
		// parses and validates the source against that DSL.
		DSLID string
		// AllowedRegex restricts string values, when set.
		AllowedRegex string
		// Examples holds example values for prompts.
		Examples []string
		// FromContext binds the value from the execution context under
		// this key instead of the step JSON.
		FromContext string

		allowed *regexp.Regexp
	}
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// normalize validates the descriptor and fills defaults. It returns a copy
// so registered descriptors never alias caller state.
func (d *Descriptor) normalize() (*Descriptor, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("action: empty id")
	}
	nd := *d
	if nd.Cost == 0 {
		nd.Cost = 1
	}
	if nd.Cost < 1 {
		return nil, fmt.Errorf("action %q: cost must be positive", d.ID)
	}
	if nd.MaxRetries < 0 {
		return nil, fmt.Errorf("action %q: negative maxRetries", d.ID)
	}
	if nd.Timeout < 0 {
		return nil, fmt.Errorf("action %q: negative timeout", d.ID)
	}
	switch nd.Mutability {
	case "":
		nd.Mutability = MutabilityReadOnly
	case MutabilityReadOnly, MutabilityMutate:
	default:
		return nil, fmt.Errorf("action %q: unknown mutability %q", d.ID, nd.Mutability)
	}

	nd.Parameters = append([]ParameterSpec{}, d.Parameters...)
	seen := make(map[string]struct{}, len(nd.Parameters))
	for i := range nd.Parameters {
		p := &nd.Parameters[i]
		if !identRE.MatchString(p.Name) {
			return nil, fmt.Errorf("action %q: parameter name %q is not a valid identifier", d.ID, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("action %q: duplicate parameter %q", d.ID, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.AllowedRegex != "" {
			re, err := regexp.Compile(p.AllowedRegex)
			if err != nil {
				return nil, fmt.Errorf("action %q: parameter %q: invalid allowed regex: %w", d.ID, p.Name, err)
			}
			p.allowed = re
		}
	}
	return &nd, nil
}

// ProducesContext returns the context keys the action writes: the primary
// context key followed by the additional keys.
func (d *Descriptor) ProducesContext() []string {
	keys := make([]string, 0, 1+len(d.AdditionalContextKeys))
	if d.ContextKey != "" {
		keys = append(keys, d.ContextKey)
	}
	keys = append(keys, d.AdditionalContextKeys...)
	return keys
}

// RequiredContext returns the context keys the action reads: declared keys
// plus the fromContext bindings of its parameters, deduplicated in
// declaration order.
func (d *Descriptor) RequiredContext() []string {
	keys := make([]string, 0, len(d.RequiresContext))
	seen := make(map[string]struct{})
	add := func(key string) {
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, key := range d.RequiresContext {
		add(key)
	}
	for _, p := range d.Parameters {
		add(p.FromContext)
	}
	return keys
}

// MatchAllowed reports whether value satisfies the parameter's allowed
// regex. Parameters without a regex allow everything. Specs obtained from
// a registry carry the pattern pre-compiled; otherwise it is compiled here
// and a bad pattern is reported as an error.
func (p *ParameterSpec) MatchAllowed(value string) (bool, error) {
	re := p.allowed
	if re == nil {
		if p.AllowedRegex == "" {
			return true, nil
		}
		var err error
		re, err = regexp.Compile(p.AllowedRegex)
		if err != nil {
			return false, fmt.Errorf("parameter %q: invalid allowed regex: %w", p.Name, err)
		}
	}
	return re.MatchString(value), nil
}
