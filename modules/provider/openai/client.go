package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flemzord/tgmcp/internal/provider"
)

// maxResponseSize is the maximum response body size (10 MB).
const maxResponseSize = 10 * 1024 * 1024

// buildChatRequest creates a Chat Completions request. Request-level
// limits win over the configured ones.
func (p *Provider) buildChatRequest(req provider.CompletionRequest) chatRequest {
	cr := chatRequest{
		Model:    p.model(req),
		Messages: encodeMessages(req.Messages),
	}

	if len(req.Tools) > 0 {
		cr.Tools = encodeTools(req.Tools)
	}

	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := p.config.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	cr.setLimits(maxTokens, temperature)

	if req.JSONSchema != nil {
		cr.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   req.JSONSchema.Name,
				Schema: req.JSONSchema.Schema,
				Strict: true,
			},
		}
	}

	return cr
}

func (p *Provider) model(req provider.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.config.Model
}

// endpoint returns the chat completions URL for the resolved mode. In
// Azure mode the model selects the deployment.
func (p *Provider) endpoint(model string) string {
	switch p.mode {
	case ModeAzure:
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			p.config.Azure.Endpoint, url.PathEscape(model), url.QueryEscape(p.config.Azure.APIVersion))
	case ModeProxy:
		return p.config.ProxyBaseURL + "/chat/completions"
	default:
		return p.config.BaseURL + "/chat/completions"
	}
}

// authorize sets the credentials header for the resolved mode.
func (p *Provider) authorize(h http.Header) {
	switch p.mode {
	case ModeAzure:
		h.Set("api-key", p.config.Azure.APIKey)
	case ModeProxy:
		h.Set("Authorization", "Bearer "+p.config.ProxyAPIKey)
	default:
		h.Set("Authorization", "Bearer "+p.config.APIKey)
	}
}

// post sends cr and returns the reply body, at most maxResponseSize
// bytes. Non-2xx replies come back as *APIError.
func (p *Provider) post(ctx context.Context, cr chatRequest) ([]byte, error) {
	payload, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(cr.Model), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, resp.Header, body)
	}
	return body, nil
}

// Complete sends a completion request. Rate limits and server errors are
// retried with exponential backoff, up to MaxRetries times; a Retry-After
// from the server stretches the next wait.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	cr := p.buildChatRequest(req)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.retryBase
	bo.MaxElapsedTime = 0
	policy := &serverHinted{BackOff: backoff.WithMaxRetries(bo, uint64(p.config.MaxRetries))}

	var out provider.CompletionResponse
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		resp, err := p.complete(ctx, cr)
		if err == nil {
			out = resp
			return nil
		}
		if !provider.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			policy.hint = apiErr.RetryAfter
		}
		p.logger.Warn("openai: transient failure", "model", cr.Model, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(policy, ctx))
	return out, err
}

// serverHinted waits at least as long as the last Retry-After asked.
type serverHinted struct {
	backoff.BackOff
	hint time.Duration
}

func (s *serverHinted) NextBackOff() time.Duration {
	next := s.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	next, s.hint = max(next, s.hint), 0
	return next
}

func (p *Provider) complete(ctx context.Context, cr chatRequest) (provider.CompletionResponse, error) {
	body, err := p.post(ctx, cr)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	return decodeResponse(&resp), nil
}

// HealthCheck sends a minimal 1-token completion. This exercises
// authentication, model access and quota.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req := provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleUser, Content: "hi"},
		},
		MaxTokens: 1,
	}
	_, err := p.Complete(ctx, req)
	return err
}

// ContextWindowSize returns the maximum context window in tokens.
func (p *Provider) ContextWindowSize() int {
	return p.contextWindow
}

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string {
	return p.config.Model
}
