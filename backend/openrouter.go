package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	providerOpenRouter    = "openrouter"
	DefaultOpenRouterURL  = "https://openrouter.ai/api/v1"
	maxErrorBodyInMessage = 512
)

// OpenRouterConfig configures the OpenRouter chat-completions backend.
type OpenRouterConfig struct {
	BaseURL   string
	APIKey    string
	ModelHigh string
	ModelLow  string
	Timeout   time.Duration

	// RequestsPerSecond limits request starts; zero disables the limit.
	RequestsPerSecond float64
	Burst             int

	// MaxConcurrent caps in-flight requests; zero disables the cap.
	MaxConcurrent int64
	Referer       string
	Title         string
}

// OpenRouter calls the OpenRouter chat-completions API.
type OpenRouter struct {
	cfg     OpenRouterConfig
	client  *http.Client
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	logger  *zap.Logger
}

type openRouterRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenRouter creates an OpenRouter backend.
func NewOpenRouter(cfg OpenRouterConfig, logger *zap.Logger) *OpenRouter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &OpenRouter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "backend"), zap.String("provider", providerOpenRouter)),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return o
}

// Model resolves a flow model tier to a configured model name.
func (o *OpenRouter) Model(tier string) string {
	if tier == "low" && o.cfg.ModelLow != "" {
		return o.cfg.ModelLow
	}
	return o.cfg.ModelHigh
}

// Generate sends one chat completion and returns the assistant's text.
func (o *OpenRouter) Generate(ctx context.Context, req Request) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", o.waitError(ctx, err)
		}
	}
	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return "", o.waitError(ctx, err)
		}
		defer o.sem.Release(1)
	}

	system, err := systemPrompt(req)
	if err != nil {
		return "", err
	}
	body := openRouterRequest{
		Model: o.Model(req.Model),
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(o.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	if o.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", o.cfg.Referer)
	}
	if o.cfg.Title != "" {
		httpReq.Header.Set("X-Title", o.cfg.Title)
	}

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", o.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", o.transportError(ctx, err)
	}
	o.logger.Debug("completion received",
		zap.String("flow", req.Flow),
		zap.String("model", body.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return "", &UnavailableError{
			Provider:   providerOpenRouter,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("body: %s", truncate(string(respBody), maxErrorBodyInMessage)),
		}
	}

	var parsed openRouterResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &UnavailableError{
			Provider:   providerOpenRouter,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("error unmarshaling response: %w", err),
		}
	}
	if parsed.Error != nil {
		return "", &UnavailableError{
			Provider:   providerOpenRouter,
			StatusCode: resp.StatusCode,
			Cause:      errors.New(parsed.Error.Message),
		}
	}
	if len(parsed.Choices) == 0 {
		return "", &UnavailableError{
			Provider:   providerOpenRouter,
			StatusCode: resp.StatusCode,
			Cause:      errors.New("no choices returned"),
		}
	}
	return parsed.Choices[0].Message.Content, nil
}

func systemPrompt(req Request) (string, error) {
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(strings.TrimSpace(req.SystemPrompt))
		b.WriteString("\n\n")
	}
	b.WriteString("Respond only with a JSON object, no explanations and no code fences.")
	if len(req.OutputSchema) > 0 {
		schemaJSON, err := json.MarshalIndent(req.OutputSchema, "", "  ")
		if err != nil {
			return "", fmt.Errorf("error marshaling output schema: %w", err)
		}
		b.WriteString(" The object must conform to this JSON Schema:\n")
		b.Write(schemaJSON)
	}
	return b.String(), nil
}

// waitError maps a failed limiter or semaphore wait. Both only fail because
// the context ended or its deadline is too close.
func (o *OpenRouter) waitError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return &TimeoutError{Provider: providerOpenRouter, Cause: err}
}

func (o *OpenRouter) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Provider: providerOpenRouter, Cause: err}
	}
	return &UnavailableError{Provider: providerOpenRouter, Cause: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
