package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tluyben/crmflow/flow"
)

// Sentiment is the overall tone of a call.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type CallSummaryInput struct {
	Transcript string `json:"transcript"`
}

type CallSummary struct {
	Summary     string    `json:"summary"`
	ActionItems []string  `json:"actionItems"`
	Sentiment   Sentiment `json:"sentiment"`
}

type ScriptInput struct {
	Script string `json:"script"`
	// Context is optional; empty means absent.
	Context string `json:"context,omitempty"`
}

type EnhancedScript struct {
	EnhancedScript string `json:"enhancedScript"`
	Explanation    string `json:"explanation,omitempty"`
}

type MultiChannelInput struct {
	CustomerData       string `json:"customerData"`
	InteractionHistory string `json:"interactionHistory"`
	ChannelPreferences string `json:"channelPreferences"`
	MessageGoal        string `json:"messageGoal"`
}

type MultiChannelMessage struct {
	SMSMessage      string `json:"smsMessage"`
	WhatsAppMessage string `json:"whatsAppMessage"`
	EmailMessage    string `json:"emailMessage"`
}

// Service exposes the built-in flows as typed calls.
type Service struct {
	executor *flow.Executor
}

func NewService(executor *flow.Executor) *Service {
	return &Service{executor: executor}
}

// SummarizeCall summarizes a call transcript.
func (s *Service) SummarizeCall(ctx context.Context, in CallSummaryInput) (*CallSummary, error) {
	return execute[CallSummary](ctx, s.executor, SummarizeCallFlow, in)
}

// EnhanceScript suggests improvements to a call script.
func (s *Service) EnhanceScript(ctx context.Context, in ScriptInput) (*EnhancedScript, error) {
	return execute[EnhancedScript](ctx, s.executor, EnhanceScriptFlow, in)
}

// ComposeMultiChannelMessage drafts SMS, WhatsApp and email messages.
func (s *Service) ComposeMultiChannelMessage(ctx context.Context, in MultiChannelInput) (*MultiChannelMessage, error) {
	return execute[MultiChannelMessage](ctx, s.executor, ComposeMultiChannelMessageFlow, in)
}

func execute[T any](ctx context.Context, executor *flow.Executor, name string, in any) (*T, error) {
	spec, ok := Spec(name)
	if !ok {
		return nil, fmt.Errorf("built-in flow %s not found", name)
	}
	input, err := toMap(in)
	if err != nil {
		return nil, fmt.Errorf("flow %s: encoding input: %w", name, err)
	}
	output, err := executor.Execute(ctx, spec, input)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("flow %s: encoding output: %w", name, err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("flow %s: decoding output: %w", name, err)
	}
	return &out, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
