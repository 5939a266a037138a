// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/tgmcp/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Unset funcs fall back to harmless defaults. Safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	HealthCheckFunc func(ctx context.Context) error
	Model           string
	Window          int

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

// Complete records req and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.CompleteFunc == nil {
		return provider.CompletionResponse{Content: "ok", FinishReason: provider.FinishReasonStop}, nil
	}
	return m.CompleteFunc(ctx, req)
}

// Requests returns a copy of the requests received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// ContextWindowSize returns Window, defaulting to 128000.
func (m *MockProvider) ContextWindowSize() int {
	if m.Window == 0 {
		return 128000
	}
	return m.Window
}

// ModelName returns Model, defaulting to "mock".
func (m *MockProvider) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// HealthCheck delegates to HealthCheckFunc.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Scripted returns a CompleteFunc that replays responses in order and
// repeats the last one once exhausted.
func Scripted(responses ...provider.CompletionResponse) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	var mu sync.Mutex
	i := 0
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		r := responses[min(i, len(responses)-1)]
		i++
		return r, nil
	}
}

var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
