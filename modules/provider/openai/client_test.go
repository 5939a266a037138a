package openai

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

	"github.com/cenkalti/backoff/v4"

	"github.com/flemzord/tgmcp/internal/provider"
)

func newTestProvider(t *testing.T, cfg Config, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	switch {
	case cfg.Azure.Endpoint == "-":
		cfg.Azure.Endpoint = srv.URL
	case cfg.ProxyBaseURL == "-":
		cfg.ProxyBaseURL = srv.URL
	default:
		cfg.BaseURL = srv.URL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	p.client = srv.Client()
	p.retryBase = time.Millisecond
	return p
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func readRequestBody(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	return req
}

func textReply(content string) chatResponse {
	return chatResponse{
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: ptr("stop"),
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func userTurn(text string) provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: text}},
	}
}

func TestComplete_OpenAIMode(t *testing.T) {
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if req := readRequestBody(t, r); req.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", req.Model)
		}
		writeJSON(t, w, textReply("Hello!"))
	}))

	resp, err := p.Complete(context.Background(), userTurn("Hi"))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "Hello!" || resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total_tokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestComplete_AzureMode(t *testing.T) {
	cfg := Config{
		Model: "my-deployment",
		Azure: AzureConfig{APIKey: "az-key", Endpoint: "-", APIVersion: "2024-06-01"},
	}
	p := newTestProvider(t, cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/my-deployment/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "2024-06-01" {
			t.Errorf("api-version = %q", got)
		}
		if got := r.Header.Get("api-key"); got != "az-key" {
			t.Errorf("api-key = %q", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("azure requests must not carry a bearer token")
		}
		writeJSON(t, w, textReply("azure"))
	}))

	if p.Mode() != ModeAzure {
		t.Fatalf("mode = %q, want azure", p.Mode())
	}
	resp, err := p.Complete(context.Background(), userTurn("Hi"))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "azure" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestComplete_ProxyMode(t *testing.T) {
	cfg := Config{ProxyAPIKey: "chatai", ProxyBaseURL: "-"}
	p := newTestProvider(t, cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer chatai" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(t, w, textReply("proxied"))
	}))

	if !p.Proxied() {
		t.Fatal("expected proxy mode")
	}
	if _, err := p.Complete(context.Background(), userTurn("Hi")); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
}

func TestComplete_ToolCallRoundTrip(t *testing.T) {
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readRequestBody(t, r)
		if len(req.Tools) != 1 || req.Tools[0].Type != "function" || req.Tools[0].Function.Name != "fetch" {
			t.Errorf("tools = %+v", req.Tools)
		}
		writeJSON(t, w, chatResponse{
			Choices: []chatChoice{{
				Message: chatMessage{
					Role: "assistant",
					ToolCalls: []chatToolCall{{
						ID:       "call_1",
						Type:     "function",
						Function: chatFunctionCall{Name: "fetch", Arguments: `{"url":"https://example.com"}`},
					}},
				},
				FinishReason: ptr("tool_calls"),
			}},
		})
	}))

	req := userTurn("Fetch it")
	req.Tools = []provider.ToolDefinition{{
		Name:        "fetch",
		Description: "Fetch a URL",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}}
	resp, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.FinishReason != provider.FinishReasonToolUse {
		t.Errorf("finish_reason = %q, want tool_use", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "fetch" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if string(resp.ToolCalls[0].Arguments) != `{"url":"https://example.com"}` {
		t.Errorf("arguments = %s", resp.ToolCalls[0].Arguments)
	}
}

func TestComplete_JSONSchemaAndModelOverride(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = readRequestBody(t, r)
		writeJSON(t, w, textReply(`{"summary":"ok"}`))
	}))

	req := userTurn("Summarize")
	req.Model = "gpt-4.1-mini"
	req.JSONSchema = &provider.ResponseSchema{
		Name:   "summary",
		Schema: json.RawMessage(`{"type":"object","properties":{"summary":{"type":"string"}}}`),
	}
	if _, err := p.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Model != "gpt-4.1-mini" {
		t.Errorf("model = %q, want override", got.Model)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_schema" {
		t.Fatalf("response_format = %+v", got.ResponseFormat)
	}
	if got.ResponseFormat.JSONSchema.Name != "summary" || !got.ResponseFormat.JSONSchema.Strict {
		t.Errorf("json_schema = %+v", got.ResponseFormat.JSONSchema)
	}
}

func TestComplete_TemperatureAndMaxTokens(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = readRequestBody(t, r)
		writeJSON(t, w, textReply("OK"))
	}))
	configTemp := 0.0
	p.config.Temperature = &configTemp
	p.config.MaxTokens = 1000

	if _, err := p.Complete(context.Background(), userTurn("Hi")); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", got.Temperature)
	}
	if got.MaxTokens != 1000 {
		t.Errorf("max_tokens = %d, want 1000", got.MaxTokens)
	}

	reqTemp := 0.9
	req := userTurn("Hi")
	req.Temperature = &reqTemp
	req.MaxTokens = 50
	if _, err := p.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Temperature == nil || *got.Temperature != 0.9 || got.MaxTokens != 50 {
		t.Errorf("request overrides not applied: temp=%v max=%d", got.Temperature, got.MaxTokens)
	}
}

func TestComplete_ReasoningModelLimits(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, Config{APIKey: "sk-test", Model: "o3-mini"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = readRequestBody(t, r)
		writeJSON(t, w, textReply("OK"))
	}))
	temp := 0.0
	p.config.Temperature = &temp
	p.config.MaxTokens = 800

	if _, err := p.Complete(context.Background(), userTurn("Hi")); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Temperature != nil {
		t.Errorf("temperature = %v, want omitted", *got.Temperature)
	}
	if got.MaxTokens != 0 || got.MaxCompletionTokens != 800 {
		t.Errorf("max_tokens=%d max_completion_tokens=%d, want 0/800", got.MaxTokens, got.MaxCompletionTokens)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate_limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, provider.ErrRateLimit},
		{"context_length_code", http.StatusBadRequest, `{"error":{"message":"too long","code":"context_length_exceeded"}}`, provider.ErrContextLength},
		{"context_length_message", http.StatusBadRequest, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`, provider.ErrContextLength},
		{"bad_request", http.StatusBadRequest, `{"error":{"message":"invalid schema"}}`, provider.ErrBadRequest},
		{"unknown_deployment", http.StatusNotFound, `{"error":{"code":"DeploymentNotFound","message":"The API deployment for this resource does not exist."}}`, provider.ErrBadRequest},
		{"content_filter", http.StatusBadRequest, `{"error":{"code":"content_filter","message":"The response was filtered"}}`, provider.ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Invalid API key"}}`, provider.ErrAuthentication},
		{"forbidden", http.StatusForbidden, `plain text`, provider.ErrAuthentication},
		{"server_error", http.StatusBadGateway, `upstream`, provider.ErrProviderDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := p.Complete(context.Background(), userTurn("Hi"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_RetryableErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, Config{APIKey: "sk-test", MaxRetries: 2}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := p.Complete(context.Background(), userTurn("Hi"))
	if !provider.IsRetryable(err) {
		t.Errorf("503 should be retryable: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`))
			return
		}
		writeJSON(t, w, textReply("hello"))
	}))
	resp, err := p.Complete(context.Background(), userTurn("Hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" || calls.Load() != 2 {
		t.Errorf("content = %q after %d calls", resp.Content, calls.Load())
	}
}

func TestComplete_NoRetryOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	if _, err := p.Complete(context.Background(), userTurn("Hi")); !errors.Is(err, provider.ErrAuthentication) {
		t.Fatalf("err = %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestComplete_MalformedBody(t *testing.T) {
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	_, err := p.Complete(context.Background(), userTurn("Hi"))
	if err == nil || !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("error = %v, want unmarshal error", err)
	}
}

func TestComplete_ContextCancellation(t *testing.T) {
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Complete(ctx, userTurn("Hi"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestHealthCheck(t *testing.T) {
	p := newTestProvider(t, Config{APIKey: "sk-test"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if req := readRequestBody(t, r); req.MaxTokens != 1 {
			t.Errorf("health check max_tokens = %d, want 1", req.MaxTokens)
		}
		writeJSON(t, w, textReply("."))
	}))
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
}

func TestNewAPIError(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Retry-After", "7")
	e := newAPIError(http.StatusNotFound, h, []byte(`{"error":{"code":"DeploymentNotFound","message":"no such deployment"}}`))
	if !errors.Is(e, provider.ErrBadRequest) {
		t.Errorf("kind = %v", e.kind)
	}
	if e.Status != http.StatusNotFound || e.Code != "DeploymentNotFound" || e.RetryAfter != 7*time.Second {
		t.Errorf("e = %+v", e)
	}
	if msg := e.Error(); !strings.Contains(msg, "Azure deployment") || !strings.Contains(msg, "no such deployment") {
		t.Errorf("Error() = %q", msg)
	}

	h.Set("Retry-After", "3600")
	if e := newAPIError(http.StatusTooManyRequests, h, []byte("busy")); e.RetryAfter != maxRetryAfter || e.Message != "busy" {
		t.Errorf("e = %+v", e)
	}
}

func TestServerHinted(t *testing.T) {
	t.Parallel()

	policy := &serverHinted{BackOff: backoff.WithMaxRetries(&backoff.ConstantBackOff{Interval: time.Millisecond}, 2)}
	policy.hint = 2 * time.Second
	if d := policy.NextBackOff(); d != 2*time.Second {
		t.Errorf("hinted wait = %v", d)
	}
	if d := policy.NextBackOff(); d != time.Millisecond {
		t.Errorf("hint not cleared: %v", d)
	}
	if d := policy.NextBackOff(); d != backoff.Stop {
		t.Errorf("retries not capped: %v", d)
	}
}
