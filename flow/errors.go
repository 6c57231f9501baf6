package flow

import (
	"fmt"

	"github.com/tluyben/crmflow/schema"
	"github.com/tluyben/crmflow/types"
)

// Stage identifies where an execution failed.
type Stage string

const (
	StageInput   Stage = "input"
	StageParse   Stage = "parse"
	StageBackend Stage = "backend"
	StageOutput  Stage = "output"
)

// ValidationError reports that the caller's input or the model's output did
// not conform to the flow's schema.
type ValidationError struct {
	Flow       string
	Stage      Stage
	Violations []types.Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow %s: %s validation failed: %s", e.Flow, e.Stage, schema.Violations(e.Violations))
}

// Fields returns the names of the violated fields.
func (e *ValidationError) Fields() []string {
	return schema.Violations(e.Violations).Fields()
}

// ModelResponseError reports that the model's answer could not be read as a
// JSON object. Raw is kept for diagnostics and is left out of Error.
type ModelResponseError struct {
	Flow  string
	Stage Stage
	Raw   string
	Cause error
}

func (e *ModelResponseError) Error() string {
	return fmt.Sprintf("flow %s: unreadable model response: %v", e.Flow, e.Cause)
}

func (e *ModelResponseError) Unwrap() error { return e.Cause }
