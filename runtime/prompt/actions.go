package prompt

import (
	"context"
	"strings"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/sxl/grammar"
)

// ActionsContributor appends the available-action catalog to the plan DSL
// section so the model plans against registered actions only. Parameters
// bound from the execution context are rendered as fromContext(key); the
// model must not supply values for them.
type ActionsContributor struct{}

// NewActionsContributor creates the catalog contributor.
func NewActionsContributor() *ActionsContributor { return &ActionsContributor{} }

// DSLIDs returns nil: the catalog attaches to the plan DSL section, which
// the builder includes whenever its grammar is registered.
func (*ActionsContributor) DSLIDs() []string { return nil }

// Contribute renders the catalog for the plan DSL section. In JSON mode
// the document's actions key already carries the catalog, so the
// contributor stays silent.
func (*ActionsContributor) Contribute(_ context.Context, dslID string, in Input) (string, error) {
	if dslID != grammar.DSLPlan || in.Mode == ModeJSON || len(in.Actions) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("AVAILABLE ACTIONS:")
	for _, d := range in.Actions {
		b.WriteString("\n  ")
		writeSignature(&b, d)
		for _, ex := range d.Examples {
			b.WriteString("\n    e.g. ")
			b.WriteString(ex)
		}
	}
	return b.String(), nil
}

// writeSignature renders one action as id(name:type, ...) followed by its
// mutability, the context keys it writes and its description. Injected
// execution context parameters are omitted.
func writeSignature(b *strings.Builder, d *action.Descriptor) {
	b.WriteString(string(d.ID))
	b.WriteByte('(')
	n := 0
	for i := range d.Parameters {
		p := &d.Parameters[i]
		if p.TypeID == action.TypeIDContext {
			continue
		}
		if n > 0 {
			b.WriteString(", ")
		}
		n++
		b.WriteString(p.Name)
		b.WriteByte(':')
		switch {
		case p.FromContext != "":
			b.WriteString("fromContext(")
			b.WriteString(p.FromContext)
			b.WriteByte(')')
		case p.DSLID != "":
			b.WriteString("dsl(")
			b.WriteString(p.DSLID)
			b.WriteByte(')')
		default:
			b.WriteString(p.TypeID)
		}
	}
	b.WriteByte(')')
	if d.Mutability == action.MutabilityMutate {
		b.WriteString(" MUTATE")
	}
	if keys := d.ProducesContext(); len(keys) > 0 {
		b.WriteString(" writes=")
		b.WriteString(strings.Join(keys, ","))
	}
	if d.Description != "" {
		b.WriteString(": ")
		b.WriteString(d.Description)
	}
}
