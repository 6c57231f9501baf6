package flow

import (
	"context"
	"sync"

	"github.com/tluyben/crmflow/backend"
	"github.com/tluyben/crmflow/types"
)

// stubBackend returns a fixed answer and records every request.
type stubBackend struct {
	mu       sync.Mutex
	requests []backend.Request
	respond  func(req backend.Request) (string, error)
}

func respondWith(raw string) *stubBackend {
	return &stubBackend{respond: func(backend.Request) (string, error) { return raw, nil }}
}

func failWith(err error) *stubBackend {
	return &stubBackend{respond: func(backend.Request) (string, error) { return "", err }}
}

func (s *stubBackend) Generate(ctx context.Context, req backend.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.respond(req)
}

func (s *stubBackend) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubBackend) prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.Prompt)
	}
	return out
}

func summarizeDef() types.Flow {
	return types.Flow{
		Name:         "summarize-call",
		Description:  "Summarize a call transcript.",
		Model:        "low",
		SystemPrompt: "You summarize customer calls.",
		Prompt:       "Summarize this call:\n\n{{transcript}}",
		Input: []types.Property{
			{Name: "transcript", Type: types.TypeString, Description: "The call transcript.", MinLength: 50,
				Message: "Transcript must be at least 50 characters long."},
		},
		Output: []types.Property{
			{Name: "summary", Type: types.TypeString, Description: "A concise summary."},
			{Name: "actionItems", Type: types.TypeArray, Description: "Follow-up actions.",
				Items: &types.Property{Type: types.TypeString, Description: "One action."}},
			{Name: "sentiment", Type: types.TypeString, Description: "Overall sentiment.",
				Enum: []string{"positive", "negative", "neutral"}},
		},
	}
}

func scriptDef() types.Flow {
	return types.Flow{
		Name:        "enhance-script",
		Description: "Improve a sales script.",
		Prompt:      "Context: {{context}}\nOriginal: {{script}}",
		Input: []types.Property{
			{Name: "script", Type: types.TypeString, Description: "The script.", MinLength: 20},
			{Name: "context", Type: types.TypeString, Description: "Background.", Optional: true},
		},
		Output: []types.Property{
			{Name: "enhancedScript", Type: types.TypeString, Description: "The improved script."},
			{Name: "explanation", Type: types.TypeString, Description: "What changed.", Optional: true},
		},
	}
}

const billingTranscript = "Agent: Thanks for calling. Customer: I was double charged on my last bill and want a refund."

const billingResponse = `{"summary":"Customer reported a double charge and requested a refund.","actionItems":["Process refund"],"sentiment":"neutral"}`
