// Package provider is the contract between the agent and the LLM
// backend. The OpenAI and Azure OpenAI implementation lives in
// modules/provider/openai.
package provider

import "context"

// ServiceName publishes the active Provider on the AppContext.
const ServiceName = "provider"

type Provider interface {
	// Complete returns the whole reply at once.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ContextWindowSize is the model's window in tokens, used to trim
	// history before a request.
	ContextWindowSize() int

	ModelName() string
}

// HealthChecker probes the backend. The status endpoint and startup
// checks use it when the provider supports it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
