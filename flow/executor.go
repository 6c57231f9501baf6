package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tluyben/crmflow/backend"
	"go.uber.org/zap"
)

// Executor runs flows against a model backend. It keeps no state between
// calls; concurrent executions share nothing but their read-only Specs.
type Executor struct {
	backend  backend.Backend
	logger   *zap.Logger
	observer Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers an observer notified after every execution.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// NewExecutor returns an executor that calls b once per execution.
func NewExecutor(b backend.Backend, opts ...Option) *Executor {
	e := &Executor{
		backend: b,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "flow"))
	return e
}

// Execute validates input, renders the prompt, calls the backend once and
// returns the validated output. Failures are *ValidationError,
// *ModelResponseError or a wrapped backend error. There are no retries.
func (e *Executor) Execute(ctx context.Context, spec *Spec, input any) (map[string]any, error) {
	exec := e.Run(ctx, spec, input)
	if exec.Err != nil {
		return nil, exec.Err
	}
	return exec.Output, nil
}

// Run is Execute but returns the full execution record.
func (e *Executor) Run(ctx context.Context, spec *Spec, input any) *Execution {
	exec := &Execution{
		ID:      uuid.NewString(),
		Flow:    spec.Name(),
		State:   StateIdle,
		Started: time.Now(),
	}
	log := e.logger.With(zap.String("flow", exec.Flow), zap.String("execution_id", exec.ID))

	e.run(ctx, spec, input, exec, log)

	exec.Duration = time.Since(exec.Started)
	if exec.Err != nil {
		log.Info("flow failed",
			zap.String("stage", string(exec.FailedStage)),
			zap.Duration("duration", exec.Duration),
			zap.Error(exec.Err))
	} else {
		log.Info("flow completed", zap.Duration("duration", exec.Duration))
	}
	if e.observer != nil {
		e.observer.ObserveExecution(exec)
	}
	return exec
}

func (e *Executor) run(ctx context.Context, spec *Spec, input any, exec *Execution, log *zap.Logger) {
	validated, violations := spec.Input().Validate(input)
	if len(violations) > 0 {
		e.fail(exec, StageInput, &ValidationError{Flow: spec.Name(), Stage: StageInput, Violations: violations})
		return
	}
	exec.Input = validated
	e.transition(exec, StateInputValidated, log)

	exec.Prompt = spec.Render(validated)
	e.transition(exec, StatePromptRendered, log)

	e.transition(exec, StateAwaitingModel, log)
	raw, err := e.backend.Generate(ctx, backend.Request{
		Flow:         spec.Name(),
		Model:        spec.Model(),
		SystemPrompt: spec.SystemPrompt(),
		Prompt:       exec.Prompt,
		OutputSchema: spec.Output().JSONSchema(),
	})
	if err != nil {
		e.fail(exec, StageBackend, fmt.Errorf("flow %s: %w", spec.Name(), err))
		return
	}
	exec.Raw = raw
	log.Debug("model responded", zap.String("raw", raw))

	parsed, err := parseResponse(raw)
	if err != nil {
		e.fail(exec, StageParse, &ModelResponseError{Flow: spec.Name(), Stage: StageParse, Raw: raw, Cause: err})
		return
	}

	output, violations := spec.Output().Validate(parsed)
	if len(violations) > 0 {
		e.fail(exec, StageOutput, &ValidationError{Flow: spec.Name(), Stage: StageOutput, Violations: violations})
		return
	}
	exec.Output = output
	e.transition(exec, StateOutputValidated, log)
}

func (e *Executor) transition(exec *Execution, to State, log *zap.Logger) {
	log.Debug("state change", zap.String("from", string(exec.State)), zap.String("to", string(to)))
	exec.State = to
}

func (e *Executor) fail(exec *Execution, stage Stage, err error) {
	exec.State = StateFailed
	exec.FailedStage = stage
	exec.Err = err
}
