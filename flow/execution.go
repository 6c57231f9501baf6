package flow

import (
	"time"
)

// State is the position of one execution in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateInputValidated  State = "input_validated"
	StatePromptRendered  State = "prompt_rendered"
	StateAwaitingModel   State = "awaiting_model"
	StateOutputValidated State = "output_validated"
	StateFailed          State = "failed"
)

// Execution records a single flow invocation. It is created per call and
// never shared.
type Execution struct {
	ID     string
	Flow   string
	State  State
	Input  map[string]any
	Prompt string
	Raw    string
	Output map[string]any
	Err    error

	// FailedStage is set when State is StateFailed.
	FailedStage Stage
	Started     time.Time
	Duration    time.Duration
}

// Succeeded reports whether the execution produced a validated output.
func (e *Execution) Succeeded() bool {
	return e.State == StateOutputValidated
}

// Outcome is a short label for metrics: "success" or the failed stage.
func (e *Execution) Outcome() string {
	if e.Succeeded() {
		return "success"
	}
	return string(e.FailedStage)
}

// Observer is notified once per finished execution.
type Observer interface {
	ObserveExecution(exec *Execution)
}
