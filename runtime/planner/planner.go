// Package planner turns a user goal into a validated action plan: it
// assembles the planning prompt, completes it against the configured
// model client, extracts the plan JSON from the raw completion and
// resolves every step against the action registry.
package planner

import (
	"context"
	"fmt"
	"time"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/runtime/model"
	"goa.design/maestro/runtime/plan"
	"goa.design/maestro/runtime/prompt"
	"goa.design/maestro/runtime/telemetry"
)

type (
	// Planner generates plans through a model client. Construct with New;
	// a Planner is safe for concurrent use.
	Planner struct {
		client  model.Client
		builder *prompt.Builder
		actions *action.Registry

		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer

		provider    string
		model       string
		mode        prompt.Mode
		maxTokens   int
		temperature float64
		examplePlan string
	}

	// Request is one planning request.
	Request struct {
		// Goal is the user goal the plan must accomplish.
		Goal string
		// Actions narrows the action selection presented to the model.
		// Nil selects every registered action.
		Actions []*action.Descriptor
		// DSLContext carries host data for prompt contributors.
		DSLContext map[string]any
		// ExamplePlan overrides the planner's configured example plan.
		ExamplePlan string
	}

	// Result carries the decoded plan and the completion that produced it.
	Result struct {
		// Plan is the validated plan.
		Plan *plan.Plan
		// Prompt is the system prompt sent to the model.
		Prompt string
		// Raw is the completion text the plan was extracted from.
		Raw string
		// Provider and Model identify the completion source. Model is
		// the one the provider reports, falling back to the configured
		// model.
		Provider string
		Model    string
		// Usage is the token usage the provider reported.
		Usage model.Usage
		// Duration is the end-to-end planning time.
		Duration time.Duration
	}

	// Option configures a Planner.
	Option func(*Planner)
)

// WithLogger sets the planner logger.
func WithLogger(l telemetry.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithMetrics sets the planner metrics sink.
func WithMetrics(m telemetry.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithTracer sets the planner tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(p *Planner) { p.tracer = t }
}

// WithProvider names the provider for guidance overrides and telemetry,
// e.g. "anthropic".
func WithProvider(name string) Option {
	return func(p *Planner) { p.provider = name }
}

// WithModel sets the model requested from the client and used for
// guidance overrides.
func WithModel(name string) Option {
	return func(p *Planner) { p.model = name }
}

// WithMode sets the prompt mode, prompt.ModeSXL when unset.
func WithMode(m prompt.Mode) Option {
	return func(p *Planner) { p.mode = m }
}

// WithMaxTokens caps the completion length. Zero leaves the client
// default in place.
func WithMaxTokens(n int) Option {
	return func(p *Planner) { p.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Planner) { p.temperature = t }
}

// WithExamplePlan sets the example plan shown to the model when the
// request carries none.
func WithExamplePlan(s string) Option {
	return func(p *Planner) { p.examplePlan = s }
}

// New creates a planner over the given model client, prompt builder and
// action registry.
func New(client model.Client, builder *prompt.Builder, actions *action.Registry, opts ...Option) *Planner {
	p := &Planner{
		client:  client,
		builder: builder,
		actions: actions,
		logger:  telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		tracer:  telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan generates and validates a plan for the request goal. Decode and
// validation failures return their typed errors unwrapped so callers can
// branch on plan.DecodeError and action.UnknownActionError.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	if req.Goal == "" {
		return nil, fmt.Errorf("planner: empty goal")
	}

	ctx, span := p.tracer.Start(ctx, "maestro.planner.plan")
	defer span.End()
	start := time.Now()

	examplePlan := req.ExamplePlan
	if examplePlan == "" {
		examplePlan = p.examplePlan
	}
	system, err := p.builder.Build(ctx, prompt.Input{
		Actions:     req.Actions,
		Mode:        p.mode,
		Provider:    p.provider,
		Model:       p.model,
		DSLContext:  req.DSLContext,
		ExamplePlan: examplePlan,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("planner: build prompt: %w", err)
	}

	resp, err := p.client.Complete(ctx, &model.Request{
		Model:       p.model,
		System:      system,
		Messages:    []model.Message{{Role: model.RoleUser, Content: req.Goal}},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		span.RecordError(err)
		p.logger.Error(ctx, "model completion failed", "provider", p.provider, "model", p.model, "err", err)
		p.metrics.IncCounter("planner.model.error", 1, "provider", p.provider)
		return nil, fmt.Errorf("planner: complete: %w", err)
	}

	pl, err := plan.ParseLenient(resp.Text)
	if err != nil {
		span.RecordError(err)
		p.logger.Warn(ctx, "model output is not a valid plan", "model", resp.Model, "output_len", len(resp.Text), "err", err)
		p.metrics.IncCounter("planner.decode.error", 1, "provider", p.provider)
		return nil, err
	}
	if err := pl.Validate(p.actions); err != nil {
		span.RecordError(err)
		p.logger.Warn(ctx, "plan references unknown action", "model", resp.Model, "err", err)
		p.metrics.IncCounter("planner.validate.error", 1, "provider", p.provider)
		return nil, err
	}

	duration := time.Since(start)
	usedModel := resp.Model
	if usedModel == "" {
		usedModel = p.model
	}
	p.logger.Info(ctx, "plan generated",
		"provider", p.provider,
		"model", usedModel,
		"steps", len(pl.Steps),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration_ms", duration.Milliseconds(),
	)
	p.metrics.IncCounter("planner.plan.success", 1, "provider", p.provider)
	p.metrics.RecordTimer("planner.plan.duration", duration, "provider", p.provider)

	return &Result{
		Plan:     pl,
		Prompt:   system,
		Raw:      resp.Text,
		Provider: p.provider,
		Model:    usedModel,
		Usage:    resp.Usage,
		Duration: duration,
	}, nil
}
