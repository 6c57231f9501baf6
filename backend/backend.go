// Package backend defines the language-model contract used by flows and an
// OpenRouter implementation of it.
package backend

import (
	"context"
)

// Request is a single, non-streaming generation request.
type Request struct {
	// Flow names the flow issuing the request, for logging.
	Flow string

	// Model is the flow's model tier ("high", "low" or empty).
	Model        string
	SystemPrompt string
	Prompt       string

	// OutputSchema is a JSON Schema describing the expected answer. It is a
	// hint only; callers validate the response themselves.
	OutputSchema map[string]any
}

// Backend generates raw model text for a rendered prompt.
//
// Implementations report failures as *UnavailableError or *TimeoutError and
// must be safe for concurrent use.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts an ordinary function to the Backend interface.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f(ctx, req).
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
