// Package prompt assembles the model-facing planning prompt from the
// action registry and the grammar registry. Output is emitted through
// explicit sections of a strings.Builder: SXL mode renders a plain-text
// guidance document, JSON mode a pretty-printed object.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/sxl/grammar"
)

// Mode selects the prompt output format.
type Mode string

const (
	// ModeSXL renders plain-text DSL guidance with grammar summaries.
	ModeSXL Mode = "sxl"
	// ModeJSON renders a pretty-printed JSON document.
	ModeJSON Mode = "json"
)

type (
	// Builder assembles prompts over an action registry and a grammar
	// registry. It is safe for concurrent use once constructed.
	Builder struct {
		actions      *action.Registry
		grammars     *grammar.Registry
		contributors []Contributor
	}

	// Input carries the per-request build parameters.
	Input struct {
		// Actions selects the actions presented to the model. Nil
		// selects every registered action; Build fills the field
		// before contributors run.
		Actions []*action.Descriptor
		// Mode selects the output format, ModeSXL when empty.
		Mode Mode
		// Provider and Model select guidance overrides: a model
		// override wins over the provider default, which wins over
		// the grammar defaults.
		Provider string
		Model    string
		// DSLContext carries host data for contributors, keyed by
		// DSL id. The builder does not interpret it.
		DSLContext map[string]any
		// ExamplePlan is rendered in an EXAMPLE PLAN block directly
		// after the plan DSL section in SXL mode.
		ExamplePlan string
	}

	// Contributor appends DSL-specific context to prompt sections, such
	// as the action catalog for the plan DSL or a table catalog for a
	// query DSL.
	Contributor interface {
		// DSLIDs lists extra DSL ids whose sections the contributor
		// needs included, beyond those the builder collects itself.
		DSLIDs() []string
		// Contribute returns additional context for the section of
		// dslID, or "" for none. Input.Actions holds the resolved
		// action selection.
		Contribute(ctx context.Context, dslID string, in Input) (string, error)
	}

	// Option configures a Builder.
	Option func(*Builder)

	// section is one assembled DSL section.
	section struct {
		id       string
		guidance string
		grammar  *grammar.Grammar
		context  []string
	}
)

// WithContributors appends contributors consulted for every DSL section.
func WithContributors(cs ...Contributor) Option {
	return func(b *Builder) { b.contributors = append(b.contributors, cs...) }
}

// NewBuilder creates a prompt builder over the given registries.
func NewBuilder(actions *action.Registry, grammars *grammar.Registry, opts ...Option) *Builder {
	b := &Builder{actions: actions, grammars: grammars}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the prompt described by in. The DSL sections cover the
// ids referenced by the selected actions' parameters, the universal and
// plan DSLs when their grammars are registered, and the ids contributors
// declare, ordered universal first, plan second, then alphabetical.
func (b *Builder) Build(ctx context.Context, in Input) (string, error) {
	if in.Mode == "" {
		in.Mode = ModeSXL
	}
	if in.Mode != ModeSXL && in.Mode != ModeJSON {
		return "", fmt.Errorf("prompt: unknown mode %q", in.Mode)
	}
	if in.Actions == nil {
		in.Actions = b.actions.Actions()
	}

	sections := make([]*section, 0, 4)
	for _, id := range b.collectDSLs(in.Actions) {
		g, ok := b.grammars.Lookup(id)
		if !ok {
			return "", fmt.Errorf("prompt: no grammar registered for dsl %q", id)
		}
		sec := &section{
			id:       id,
			guidance: g.LLMSpecs.Guidance(in.Provider, in.Model),
			grammar:  g,
		}
		for _, c := range b.contributors {
			text, err := c.Contribute(ctx, id, in)
			if err != nil {
				return "", fmt.Errorf("prompt: contribute to dsl %q: %w", id, err)
			}
			if text = strings.TrimSpace(text); text != "" {
				sec.context = append(sec.context, text)
			}
		}
		sections = append(sections, sec)
	}

	if in.Mode == ModeJSON {
		return renderJSON(in.Actions, sections)
	}
	return renderSXL(sections, in.ExamplePlan), nil
}

// collectDSLs gathers the DSL ids the prompt must cover.
func (b *Builder) collectDSLs(acts []*action.Descriptor) []string {
	seen := make(map[string]struct{})
	add := func(id string) {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	for _, d := range acts {
		for _, p := range d.Parameters {
			add(p.DSLID)
		}
	}
	for _, id := range []string{grammar.DSLUniversal, grammar.DSLPlan} {
		if _, ok := b.grammars.Lookup(id); ok {
			add(id)
		}
	}
	for _, c := range b.contributors {
		for _, id := range c.DSLIDs() {
			add(id)
		}
	}
	return orderDSLs(seen)
}

// orderDSLs pins the universal and plan DSLs ahead of the alphabetically
// sorted remainder.
func orderDSLs(seen map[string]struct{}) []string {
	rest := make([]string, 0, len(seen))
	for id := range seen {
		if id != grammar.DSLUniversal && id != grammar.DSLPlan {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	ids := make([]string, 0, len(seen))
	if _, ok := seen[grammar.DSLUniversal]; ok {
		ids = append(ids, grammar.DSLUniversal)
	}
	if _, ok := seen[grammar.DSLPlan]; ok {
		ids = append(ids, grammar.DSLPlan)
	}
	return append(ids, rest...)
}

// renderSXL joins the header, the DSL sections and the example plan into
// blank-line separated blocks.
func renderSXL(sections []*section, examplePlan string) string {
	blocks := make([]string, 0, len(sections)+2)
	blocks = append(blocks, "DSL GUIDANCE:")
	for _, sec := range sections {
		var b strings.Builder
		b.WriteString("DSL ")
		b.WriteString(sec.id)
		b.WriteString(":\n")
		parts := make([]string, 0, 2+len(sec.context))
		if sec.guidance != "" {
			parts = append(parts, sec.guidance)
		}
		parts = append(parts, summarize(sec.grammar))
		parts = append(parts, sec.context...)
		b.WriteString(strings.Join(parts, "\n"))
		blocks = append(blocks, b.String())
		if sec.id == grammar.DSLPlan && examplePlan != "" {
			blocks = append(blocks, "EXAMPLE PLAN:\n"+strings.TrimSpace(examplePlan))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// summarize renders the concise grammar summary of a DSL section: the
// grammar header, one line per symbol with its parameter summaries, and
// the reserved symbol list.
func summarize(g *grammar.Grammar) string {
	var b strings.Builder
	b.WriteString("GRAMMAR ")
	b.WriteString(g.ID())
	if v := g.DSL.Version; v != "" {
		b.WriteString(" v")
		b.WriteString(v)
	}
	if d := g.DSL.Description; d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	}
	if len(g.Symbols) > 0 {
		b.WriteString("\nSYMBOLS:")
	}
	for _, sym := range g.Symbols {
		b.WriteString("\n  ")
		b.WriteString(sym.Name)
		if sym.Kind != "" {
			b.WriteString(" (")
			b.WriteString(sym.Kind)
			b.WriteByte(')')
		}
		for i, p := range sym.Params {
			if i == 0 {
				b.WriteString(": ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString(p.Summary())
		}
	}
	if len(g.Reserved) > 0 {
		b.WriteString("\nRESERVED: ")
		b.WriteString(strings.Join(g.Reserved, ", "))
	}
	return b.String()
}

type (
	// promptDoc is the JSON mode document.
	promptDoc struct {
		Actions     []*actionView          `json:"actions"`
		DSLGuidance map[string]string      `json:"dslGuidance"`
		DSLSchemas  map[string]*schemaView `json:"dslSchemas"`
	}

	actionView struct {
		ID          string       `json:"id"`
		Description string       `json:"description,omitempty"`
		Parameters  []*paramView `json:"parameters,omitempty"`
		Mutability  string       `json:"mutability,omitempty"`
		Writes      []string     `json:"writes,omitempty"`
		Examples    []string     `json:"examples,omitempty"`
	}

	paramView struct {
		Name        string   `json:"name"`
		TypeID      string   `json:"typeId,omitempty"`
		DSLID       string   `json:"dslId,omitempty"`
		FromContext string   `json:"fromContext,omitempty"`
		Examples    []string `json:"examples,omitempty"`
	}

	schemaView struct {
		ID          string                 `json:"id"`
		Description string                 `json:"description,omitempty"`
		Version     string                 `json:"version,omitempty"`
		Symbols     map[string]*symbolView `json:"symbols"`
		Reserved    []string               `json:"reserved,omitempty"`
	}

	symbolView struct {
		Kind        string   `json:"kind,omitempty"`
		Description string   `json:"description,omitempty"`
		Params      []string `json:"params,omitempty"`
	}
)

// renderJSON emits the pretty-printed JSON document with the action
// catalog, the composed per-DSL guidance and a schema per grammar.
func renderJSON(acts []*action.Descriptor, sections []*section) (string, error) {
	doc := promptDoc{
		Actions:     make([]*actionView, 0, len(acts)),
		DSLGuidance: make(map[string]string, len(sections)),
		DSLSchemas:  make(map[string]*schemaView, len(sections)),
	}
	for _, d := range acts {
		doc.Actions = append(doc.Actions, newActionView(d))
	}
	for _, sec := range sections {
		parts := make([]string, 0, 1+len(sec.context))
		if sec.guidance != "" {
			parts = append(parts, sec.guidance)
		}
		parts = append(parts, sec.context...)
		doc.DSLGuidance[sec.id] = strings.Join(parts, "\n")
		doc.DSLSchemas[sec.id] = newSchemaView(sec.grammar)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("prompt: encode json document: %w", err)
	}
	return string(out), nil
}

func newActionView(d *action.Descriptor) *actionView {
	v := &actionView{
		ID:          string(d.ID),
		Description: d.Description,
		Mutability:  string(d.Mutability),
		Writes:      d.ProducesContext(),
		Examples:    d.Examples,
	}
	for i := range d.Parameters {
		p := &d.Parameters[i]
		if p.TypeID == action.TypeIDContext {
			continue
		}
		v.Parameters = append(v.Parameters, &paramView{
			Name:        p.Name,
			TypeID:      p.TypeID,
			DSLID:       p.DSLID,
			FromContext: p.FromContext,
			Examples:    p.Examples,
		})
	}
	return v
}

func newSchemaView(g *grammar.Grammar) *schemaView {
	v := &schemaView{
		ID:          g.ID(),
		Description: g.DSL.Description,
		Version:     g.DSL.Version,
		Symbols:     make(map[string]*symbolView, len(g.Symbols)),
		Reserved:    g.Reserved,
	}
	for _, sym := range g.Symbols {
		sv := &symbolView{Kind: sym.Kind, Description: sym.Description}
		for _, p := range sym.Params {
			sv.Params = append(sv.Params, p.Summary())
		}
		v.Symbols[sym.Name] = sv
	}
	return v
}
