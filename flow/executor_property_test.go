package flow

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

// The backend is reached exactly when the input validates, and the prompt it
// sees depends only on the input.
func TestProperty_BackendCalledOnlyForValidInput(t *testing.T) {
	spec := MustSpec(summarizeDef())

	rapid.Check(t, func(rt *rapid.T) {
		transcript := rapid.String().Draw(rt, "transcript")
		b := respondWith(billingResponse)
		e := NewExecutor(b)
		input := map[string]any{"transcript": transcript}

		_, err := e.Execute(context.Background(), spec, input)
		valid := utf8.RuneCountInString(transcript) >= 50

		var verr *ValidationError
		switch {
		case valid && err != nil:
			rt.Fatalf("valid input failed: %v", err)
		case !valid && (!errors.As(err, &verr) || verr.Stage != StageInput):
			rt.Fatalf("short input: expected input ValidationError, got %v", err)
		case !valid && b.calls() != 0:
			rt.Fatalf("backend called for invalid input")
		}
		if !valid {
			return
		}

		_, err = e.Execute(context.Background(), spec, input)
		if err != nil {
			rt.Fatalf("second run failed: %v", err)
		}
		prompts := b.prompts()
		if len(prompts) != 2 || prompts[0] != prompts[1] {
			rt.Fatalf("prompts differ across runs: %q", prompts)
		}
	})
}

// An output that fails validation never leaks a partial object.
func TestProperty_NoPartialOutput(t *testing.T) {
	spec := MustSpec(summarizeDef())

	rapid.Check(t, func(rt *rapid.T) {
		sentiment := rapid.SampledFrom([]string{"positive", "negative", "neutral", "mixed", "Positive", ""}).Draw(rt, "sentiment")
		withSummary := rapid.Bool().Draw(rt, "withSummary")

		obj := `{"actionItems":["Call back"],"sentiment":"` + sentiment + `"`
		if withSummary {
			obj += `,"summary":"Customer wants a call back."`
		}
		obj += "}"

		out, err := NewExecutor(respondWith(obj)).Execute(context.Background(), spec,
			map[string]any{"transcript": billingTranscript})

		valid := withSummary && (sentiment == "positive" || sentiment == "negative" || sentiment == "neutral")
		if valid {
			if err != nil || out == nil {
				rt.Fatalf("expected success for %s, got %v", obj, err)
			}
			return
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Stage != StageOutput {
			rt.Fatalf("expected output ValidationError for %s, got %v", obj, err)
		}
		if out != nil {
			rt.Fatalf("partial output returned: %v", out)
		}
	})
}
