package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) OpenRouterConfig {
	return OpenRouterConfig{
		BaseURL:   url,
		APIKey:    "test-key",
		ModelHigh: "vendor/high",
		ModelLow:  "vendor/low",
		Timeout:   5 * time.Second,
		Referer:   "https://example.com",
		Title:     "Test",
	}
}

func completion(content string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(data)
}

func testRequest() Request {
	return Request{
		Flow:         "summarize-call",
		Model:        "low",
		SystemPrompt: "You summarize calls.",
		Prompt:       "Summarize: hello",
		OutputSchema: map[string]any{"type": "object", "required": []string{"summary"}},
	}
}

func TestOpenRouter_Generate(t *testing.T) {
	var got openRouterRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(`{"summary":"ok"}`)))
	}))
	defer srv.Close()

	o := NewOpenRouter(testConfig(srv.URL+"/"), nil)
	raw, err := o.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, raw)

	assert.Equal(t, "Bearer test-key", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "https://example.com", headers.Get("HTTP-Referer"))
	assert.Equal(t, "Test", headers.Get("X-Title"))

	assert.Equal(t, "vendor/low", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, "You summarize calls.\n\nRespond only with a JSON object"))
	assert.Contains(t, got.Messages[0].Content, `"required": [`)
	assert.Equal(t, message{Role: "user", Content: "Summarize: hello"}, got.Messages[1])
}

func TestOpenRouter_Model(t *testing.T) {
	o := NewOpenRouter(testConfig(""), nil)
	assert.Equal(t, "vendor/low", o.Model("low"))
	assert.Equal(t, "vendor/high", o.Model("high"))
	assert.Equal(t, "vendor/high", o.Model(""))

	cfg := testConfig("")
	cfg.ModelLow = ""
	assert.Equal(t, "vendor/high", NewOpenRouter(cfg, nil).Model("low"))
}

func TestOpenRouter_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    int
		message string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: "overloaded", code: 503, message: "overloaded"},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, code: 429, message: "slow down"},
		{name: "bad key", status: http.StatusUnauthorized, body: "no auth", code: 401, message: "no auth"},
		{name: "provider error", status: http.StatusOK, body: `{"error":{"message":"model not found"}}`, code: 200, message: "model not found"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, code: 200, message: "no choices returned"},
		{name: "garbage", status: http.StatusOK, body: `<html>`, code: 200, message: "error unmarshaling response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenRouter(testConfig(srv.URL), nil).Generate(context.Background(), testRequest())

			var uerr *UnavailableError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, tt.code, uerr.StatusCode)
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, IsRetryable(err))
		})
	}
}

func TestOpenRouter_LongErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	_, err := NewOpenRouter(testConfig(srv.URL), nil).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 700)
	assert.True(t, strings.HasSuffix(err.Error(), "..."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))

	// "é" is two bytes; cutting after the first must not split it.
	got := truncate("aé", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))

	got = truncate(strings.Repeat("ü", 600), maxErrorBodyInMessage+1)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestOpenRouter_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOpenRouter(testConfig(url), nil).Generate(context.Background(), testRequest())

	var uerr *UnavailableError
	require.ErrorAs(t, err, &uerr)
	assert.Zero(t, uerr.StatusCode)
}

func TestOpenRouter_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	_, err := NewOpenRouter(cfg, nil).Generate(context.Background(), testRequest())

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.True(t, IsRetryable(err))
}

func TestOpenRouter_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOpenRouter(testConfig(srv.URL), nil).Generate(ctx, testRequest())

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
}

func TestOpenRouter_Cancelled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpenRouter(testConfig(srv.URL), nil).Generate(ctx, testRequest())

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsRetryable(err))
	assert.Zero(t, hits.Load())
}

func TestOpenRouter_ConcurrencyCap(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(completion(`{}`)))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxConcurrent = 2
	o := NewOpenRouter(cfg, nil)

	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := o.Generate(context.Background(), testRequest())
			errs <- err
		}()
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, <-errs)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSystemPrompt(t *testing.T) {
	s, err := systemPrompt(Request{})
	require.NoError(t, err)
	assert.Equal(t, "Respond only with a JSON object, no explanations and no code fences.", s)

	s, err = systemPrompt(Request{SystemPrompt: "  Be brief.\n", OutputSchema: map[string]any{"type": "object"}})
	require.NoError(t, err)
	assert.Equal(t, "Be brief.\n\nRespond only with a JSON object, no explanations and no code fences. "+
		"The object must conform to this JSON Schema:\n{\n  \"type\": \"object\"\n}", s)
}

func TestFunc(t *testing.T) {
	var b Backend = Func(func(ctx context.Context, req Request) (string, error) {
		return "echo: " + req.Prompt, nil
	})
	out, err := b.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}

func TestOpenRouter_RateLimitWaitTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completion(`{}`)))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RequestsPerSecond = 0.1
	cfg.Burst = 1
	o := NewOpenRouter(cfg, nil)

	_, err := o.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = o.Generate(ctx, testRequest())

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
}
