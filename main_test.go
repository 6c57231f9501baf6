package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tluyben/crmflow/backend"
	"github.com/tluyben/crmflow/flow"
	"github.com/tluyben/crmflow/types"
)

func TestParseInput(t *testing.T) {
	obj, err := parseInput(`{"transcript":"hello","count":3,"tags":["a"]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"transcript": "hello",
		"count":      float64(3),
		"tags":       []any{"a"},
	}, obj)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "array", raw: `["a","b"]`, want: "must be a JSON object"},
		{name: "string", raw: `"hello"`, want: "must be a JSON object"},
		{name: "number", raw: `42`, want: "must be a JSON object"},
		{name: "broken", raw: `{"transcript":`, want: "not valid JSON"},
		{name: "empty", raw: ``, want: "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseInput(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFormatError(t *testing.T) {
	validation := &flow.ValidationError{
		Flow:  "summarize-call",
		Stage: flow.StageOutput,
		Violations: []types.Violation{
			{Field: "sentiment", Reason: "must be one of positive, negative, neutral"},
			{Field: "summary", Reason: "required"},
		},
	}
	assert.Equal(t,
		"output validation failed for flow summarize-call:\n"+
			"  sentiment: must be one of positive, negative, neutral\n"+
			"  summary: required",
		formatError(fmt.Errorf("run: %w", validation)))

	timeout := &backend.TimeoutError{Provider: "openrouter"}
	assert.Equal(t, "backend openrouter timed out (transient, safe to retry)", formatError(timeout))

	unavailable := &backend.UnavailableError{Provider: "openrouter", StatusCode: 503}
	assert.Contains(t, formatError(unavailable), "(transient, safe to retry)")

	assert.Equal(t, "flow not found", formatError(errors.New("flow not found")))
}
