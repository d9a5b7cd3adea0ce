// Package executor turns a validated plan into an ordered run of action
// invocations. Resolution maps plan steps to registered actions and derives
// their scheduling metadata; execution builds the dependency graph, walks it
// in order, applies per-action timeouts and retry policy, threads results
// through the shared execution context and emits lifecycle events for every
// attempt.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/runtime/dag"
	"goa.design/maestro/runtime/events"
	"goa.design/maestro/runtime/retry"
	"goa.design/maestro/runtime/telemetry"
)

type (
	// Executor runs resolved plans. The zero value is not usable; construct
	// with New. Executors are safe for concurrent use and may be shared
	// across runs.
	Executor struct {
		logger      telemetry.Logger
		metrics     telemetry.Metrics
		tracer      telemetry.Tracer
		bus         events.Bus
		retryCfg    retry.Config
		strategy    dag.Strategy
		parallelism int
		sessionID   string
		newRunID    func() string
		baseCtx     *action.Context
	}

	// Option configures an Executor.
	Option func(*Executor)

	// Result summarizes a completed run.
	Result struct {
		// RunID identifies the run across events and run logs.
		RunID string
		// Context is the execution context after the final step.
		Context *action.Context
		// Steps is the number of executed steps.
		Steps int
		// Duration is the wall-clock run duration.
		Duration time.Duration
	}
)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// WithMetrics sets the metrics recorder. Defaults to a no-op recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(x *Executor) { x.metrics = m }
}

// WithTracer sets the tracer. Defaults to a no-op tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(x *Executor) { x.tracer = t }
}

// WithBus sets the event bus lifecycle events are published to. Without a
// bus no events are emitted.
func WithBus(b events.Bus) Option {
	return func(x *Executor) { x.bus = b }
}

// WithRetryConfig sets the backoff applied to transient failures of
// idempotent actions. MaxAttempts is ignored; each action's MaxRetries
// bounds its attempts.
func WithRetryConfig(cfg retry.Config) Option {
	return func(x *Executor) { x.retryCfg = cfg }
}

// WithTransientClassifier registers the host predicate deciding which
// errors are transient. Defaults to retry.DefaultClassifier.
func WithTransientClassifier(c retry.Classifier) Option {
	return func(x *Executor) { x.retryCfg.Classify = c }
}

// WithStrategy sets the order strategy for the dependency graph. Defaults
// to dag.KahnOrder.
func WithStrategy(s dag.Strategy) Option {
	return func(x *Executor) { x.strategy = s }
}

// WithParallelism allows up to n steps to run concurrently. Values below
// two keep the sequential walk.
func WithParallelism(n int) Option {
	return func(x *Executor) { x.parallelism = n }
}

// WithSessionID stamps all emitted events with the session id.
func WithSessionID(id string) Option {
	return func(x *Executor) { x.sessionID = id }
}

// WithRunIDSource sets the run id generator, used by tests to make run ids
// predictable. Defaults to uuid.NewString.
func WithRunIDSource(f func() string) Option {
	return func(x *Executor) { x.newRunID = f }
}

// WithContext seeds runs with the given execution context instead of a
// fresh one. Successive runs share it.
func WithContext(ec *action.Context) Option {
	return func(x *Executor) { x.baseCtx = ec }
}

// New constructs an Executor. Without options it runs sequentially with
// default retry backoff and no telemetry.
func New(opts ...Option) *Executor {
	x := &Executor{
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		tracer:   telemetry.NewNoopTracer(),
		retryCfg: retry.DefaultConfig(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs the resolved steps in dependency order and returns the final
// execution context. Graph construction failures (cycles, contradictions,
// duplicate steps) surface before any action runs. A step failing
// terminally aborts the remainder and yields a *PlanError naming the step.
func (x *Executor) Execute(ctx context.Context, execs []*Executable) (*Result, error) {
	metas := make([]dag.Metadata, len(execs))
	byID := make(map[string]*Executable, len(execs))
	for i, e := range execs {
		metas[i] = e.Meta
		byID[e.StepID] = e
	}
	var buildOpts []dag.BuildOption
	if x.strategy != nil {
		buildOpts = append(buildOpts, dag.WithStrategy(x.strategy))
	}
	g, err := dag.Build(metas, buildOpts...)
	if err != nil {
		return nil, err
	}

	runID := x.newRunID()
	planInv := uuid.NewString()
	ec := x.baseCtx
	if ec == nil {
		ec = action.NewContext()
	}

	ctx, span := x.tracer.Start(ctx, "maestro.plan.execute")
	defer span.End()

	x.logger.Info(ctx, "executing plan", "run_id", runID, "steps", g.Len(), "parallelism", max(x.parallelism, 1))
	start := time.Now()
	if err := x.emit(ctx, events.NewPlanStarted(runID, planInv, x.sessionID, g.Len())); err != nil {
		return nil, err
	}

	var runErr error
	if x.parallelism > 1 {
		runErr = x.runParallel(ctx, g, byID, ec, runID, planInv)
	} else {
		runErr = x.runSequential(ctx, g, byID, ec, runID, planInv)
	}
	duration := time.Since(start)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, reason(runErr))
		x.logger.Error(ctx, "plan failed", "run_id", runID, "duration_ms", duration.Milliseconds(), "err", runErr)
		x.metrics.IncCounter("executor.plan.error", 1, "reason", reason(runErr))
		x.emitOrLog(ctx, events.NewPlanFailed(runID, planInv, x.sessionID, duration, reason(runErr)))
		return nil, runErr
	}

	x.logger.Info(ctx, "plan succeeded", "run_id", runID, "duration_ms", duration.Milliseconds())
	x.metrics.IncCounter("executor.plan.success", 1)
	x.metrics.RecordTimer("executor.plan.duration", duration)
	if err := x.emit(ctx, events.NewPlanSucceeded(runID, planInv, x.sessionID, duration)); err != nil {
		return nil, err
	}
	return &Result{RunID: runID, Context: ec, Steps: g.Len(), Duration: duration}, nil
}

// runSequential walks the nodes in order index. Cancellation between steps
// stops the walk before the next action starts.
func (x *Executor) runSequential(ctx context.Context, g *dag.Graph, byID map[string]*Executable, ec *action.Context, runID, planInv string) error {
	for _, n := range g.Ordered() {
		e := byID[n.StepID]
		if ctx.Err() != nil {
			return x.planError(runID, e, &CancelledError{StepID: n.StepID})
		}
		if err := x.runNode(ctx, e, ec, runID, planInv); err != nil {
			return x.planError(runID, e, err)
		}
	}
	return nil
}

// runNode executes one step under its retry policy. Only idempotent
// actions retry; their MaxRetries bounds attempts after the first. Steps
// allowing a single attempt skip the retry loop so their failures surface
// unwrapped.
func (x *Executor) runNode(ctx context.Context, e *Executable, ec *action.Context, runID, planInv string) error {
	maxAttempts := 1
	if e.Meta.Idempotent {
		maxAttempts = e.Meta.MaxRetries + 1
	}
	if maxAttempts == 1 {
		return x.attempt(ctx, e, ec, runID, planInv, 1, neverRetry)
	}
	cfg := x.retryCfg
	cfg.MaxAttempts = maxAttempts
	classify := cfg.Classify
	if classify == nil {
		classify = retry.DefaultClassifier
	}
	return retry.Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		retriable := func(err error) bool {
			return attempt < maxAttempts && classify(err)
		}
		return x.attempt(ctx, e, ec, runID, planInv, attempt, retriable)
	})
}

func neverRetry(error) bool { return false }

// attempt performs a single invocation attempt: request event, bind,
// start event, handler invocation, context write and contract check,
// terminal event. The retriable predicate decides the Retrying flag on
// failure events.
func (x *Executor) attempt(ctx context.Context, e *Executable, ec *action.Context, runID, planInv string, attempt int, retriable func(error) bool) error {
	invID := uuid.NewString()
	name := e.Meta.ActionName

	ctx, span := x.tracer.Start(ctx, "maestro.action.invoke")
	defer span.End()

	if err := x.emit(ctx, events.NewActionRequested(name, e.StepID, invID, planInv, runID, x.sessionID, attempt)); err != nil {
		return err
	}

	args, err := e.Bind(ctx, ec)
	if err != nil {
		span.RecordError(err)
		x.logger.Error(ctx, "argument binding failed", "run_id", runID, "step", e.StepID, "err", err)
		x.metrics.IncCounter("executor.action.error", 1, "action", name, "reason", reason(err))
		x.emitOrLog(ctx, events.NewActionFailed(name, e.StepID, invID, planInv, runID, x.sessionID, attempt, 0, reason(err), false))
		return err
	}

	if err := x.emit(ctx, events.NewActionStarted(name, e.StepID, invID, planInv, runID, x.sessionID, attempt)); err != nil {
		return err
	}

	x.logger.Debug(ctx, "invoking action", "run_id", runID, "step", e.StepID, "attempt", attempt)
	start := time.Now()
	result, err := x.invoke(ctx, e, args, attempt)
	duration := time.Since(start)

	if err == nil {
		if e.Desc.ContextKey != "" && result != nil {
			ec.Put(e.Desc.ContextKey, result)
		}
		if missing := missingKeys(e.Meta.ProducesContext, ec); len(missing) > 0 {
			err = &ContractError{StepID: e.StepID, ActionID: string(e.Desc.ID), Missing: missing}
		}
	}

	if err != nil {
		retrying := retriable(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason(err))
		x.logger.Warn(ctx, "action attempt failed",
			"run_id", runID, "step", e.StepID, "attempt", attempt,
			"duration_ms", duration.Milliseconds(), "retrying", retrying, "err", err)
		x.metrics.IncCounter("executor.action.error", 1, "action", name, "reason", reason(err))
		x.emitOrLog(ctx, events.NewActionFailed(name, e.StepID, invID, planInv, runID, x.sessionID, attempt, duration, reason(err), retrying))
		return err
	}

	x.metrics.RecordTimer("executor.action.duration", duration, "action", name)
	x.metrics.IncCounter("executor.action.success", 1, "action", name)
	return x.emit(ctx, events.NewActionSucceeded(name, e.StepID, invID, planInv, runID, x.sessionID, attempt, duration))
}

// invoke runs the handler under the step's timeout and maps the failure
// modes: run cancellation, per-action timeout, handler error.
func (x *Executor) invoke(ctx context.Context, e *Executable, args action.Arguments, attempt int) (any, error) {
	ictx := ctx
	if e.Meta.Timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, e.Meta.Timeout)
		defer cancel()
	}
	result, err := e.Desc.Handler(ictx, args.Values())
	if err == nil {
		return result, nil
	}
	switch {
	case ctx.Err() != nil:
		return nil, &CancelledError{StepID: e.StepID}
	case e.Meta.Timeout > 0 && ictx.Err() != nil:
		return nil, &TimeoutError{StepID: e.StepID, ActionID: string(e.Desc.ID), Timeout: e.Meta.Timeout}
	default:
		return nil, &InvocationError{StepID: e.StepID, ActionID: string(e.Desc.ID), Attempt: attempt, Cause: err}
	}
}

// planError wraps a terminal step failure with run diagnostics.
func (x *Executor) planError(runID string, e *Executable, cause error) error {
	return &PlanError{
		RunID:       runID,
		StepID:      e.StepID,
		ActionName:  e.Meta.ActionName,
		ArgsSummary: argsSummary(e.Params),
		Cause:       cause,
	}
}

func (x *Executor) emit(ctx context.Context, evt events.Event) error {
	if x.bus == nil {
		return nil
	}
	return x.bus.Publish(ctx, evt)
}

// emitOrLog publishes an event on a path that already failed; a subscriber
// error must not mask the original failure, so it is only logged.
func (x *Executor) emitOrLog(ctx context.Context, evt events.Event) {
	if err := x.emit(ctx, evt); err != nil {
		x.logger.Warn(ctx, "event publish failed", "event", string(evt.Type()), "err", err)
	}
}

// argsSummaryMax bounds the bound-argument summary attached to PlanError.
const argsSummaryMax = 256

// argsSummary renders the step parameters as compact JSON for error
// messages, truncated to argsSummaryMax bytes.
func argsSummary(params map[string]json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	if len(data) > argsSummaryMax {
		return string(data[:argsSummaryMax]) + "..."
	}
	return string(data)
}

// missingKeys returns the declared produced keys absent from the context.
func missingKeys(produces []string, ec *action.Context) []string {
	var missing []string
	for _, key := range produces {
		if !ec.Contains(key) {
			missing = append(missing, key)
		}
	}
	return missing
}
