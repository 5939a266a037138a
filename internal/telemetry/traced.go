package telemetry

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/tgmcp/internal/agent"
	"github.com/flemzord/tgmcp/internal/provider"
)

// Langfuse reads these attributes to build traces, sessions and
// generations out of plain OTLP spans.
const (
	attrTraceName   = "langfuse.trace.name"
	attrSessionID   = "langfuse.session.id"
	attrUserID      = "langfuse.user.id"
	attrObsType     = "langfuse.observation.type"
	attrObsInput    = "langfuse.observation.input"
	attrObsOutput   = "langfuse.observation.output"
	attrModel       = "gen_ai.request.model"
	attrInputToks   = "gen_ai.usage.input_tokens"
	attrOutputToks  = "gen_ai.usage.output_tokens"
	attrFinish      = "gen_ai.response.finish_reasons"
	attrToolName    = "gen_ai.tool.name"
	attrToolCallID  = "gen_ai.tool.call.id"
	attrStopReason  = "agent.stop_reason"
	attrIterations  = "agent.iterations"
	attrIteration   = "agent.iteration"
	attrToolIsError = "tool.is_error"
)

// Runner is the agent entry point traced by TraceRunner.
type Runner interface {
	Run(ctx context.Context, req agent.Request) (agent.Response, error)
}

type tracedRunner struct {
	next       Runner
	tracer     *Tracer
	name       string
	maxPayload int
}

// TraceRunner wraps next so every run is an agent.run span carrying the
// chat and session IDs. Provider and tool spans nest under it.
func TraceRunner(next Runner, t *Tracer, traceName string, maxPayload int) Runner {
	if !t.Enabled() {
		return next
	}
	return &tracedRunner{next: next, tracer: t, name: traceName, maxPayload: maxPayload}
}

func (r *tracedRunner) Run(ctx context.Context, req agent.Request) (agent.Response, error) {
	attrs := []attribute.KeyValue{
		attribute.String(attrTraceName, r.name),
		attribute.String(attrSessionID, req.Env.SessionID),
		attribute.String(attrUserID, req.Env.ChatID),
	}
	if n := len(req.Messages); n > 0 {
		attrs = append(attrs, attribute.String(attrObsInput, truncate(req.Messages[n-1].Content, r.maxPayload)))
	}
	ctx, span := r.tracer.Start(ctx, SpanAgentRun, attrs...)
	defer span.End()

	resp, err := r.next.Run(ctx, req)
	span.SetAttributes(
		attribute.String(attrObsOutput, truncate(resp.Content, r.maxPayload)),
		attribute.String(attrStopReason, string(resp.StopReason)),
		attribute.Int(attrIterations, resp.Iterations),
		attribute.Int(attrInputToks, resp.TotalUsage.PromptTokens),
		attribute.Int(attrOutputToks, resp.TotalUsage.CompletionTokens),
	)
	recordError(span, err)
	return resp, err
}

// TracedProvider records every completion as an llm.complete generation.
type TracedProvider struct {
	provider.Provider
	tracer     *Tracer
	maxPayload int
}

// TraceProvider wraps p. It returns p unchanged when tracing is off.
func TraceProvider(p provider.Provider, t *Tracer, maxPayload int) provider.Provider {
	if !t.Enabled() {
		return p
	}
	return &TracedProvider{Provider: p, tracer: t, maxPayload: maxPayload}
}

// Complete implements provider.Provider.
func (p *TracedProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.ModelName()
	}
	ctx, span := p.tracer.Start(ctx, SpanLLMComplete,
		attribute.String(attrObsType, "generation"),
		attribute.String(attrModel, model),
		attribute.String(attrObsInput, p.payload(req.Messages)),
	)
	defer span.End()

	resp, err := p.Provider.Complete(ctx, req)
	if err == nil {
		output := resp.Content
		if len(resp.ToolCalls) > 0 {
			output = p.payload(resp.ToolCalls)
		}
		span.SetAttributes(
			attribute.String(attrObsOutput, truncate(output, p.maxPayload)),
			attribute.Int(attrInputToks, resp.Usage.PromptTokens),
			attribute.Int(attrOutputToks, resp.Usage.CompletionTokens),
			attribute.StringSlice(attrFinish, []string{string(resp.FinishReason)}),
		)
	}
	recordError(span, err)
	return resp, err
}

// HealthCheck forwards to the wrapped provider when it supports it.
func (p *TracedProvider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.Provider.(provider.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *TracedProvider) payload(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return truncate(string(raw), p.maxPayload)
}

// ToolObserver turns tool executions into tool.call spans. It implements
// agent.Observer.
type ToolObserver struct {
	tracer     *Tracer
	maxPayload int
}

// NewToolObserver returns nil when tracing is off.
func NewToolObserver(t *Tracer, maxPayload int) agent.Observer {
	if !t.Enabled() {
		return nil
	}
	return &ToolObserver{tracer: t, maxPayload: maxPayload}
}

var _ agent.Observer = (*ToolObserver)(nil)

// ToolStarted implements agent.Observer.
func (o *ToolObserver) ToolStarted(ctx context.Context, call provider.ToolCall) context.Context {
	ctx, _ = o.tracer.Start(ctx, SpanToolCall,
		attribute.String(attrObsType, "tool"),
		attribute.String(attrToolName, call.Name),
		attribute.String(attrToolCallID, call.ID),
		attribute.String(attrObsInput, truncate(string(call.Arguments), o.maxPayload)),
	)
	return ctx
}

// ToolFinished implements agent.Observer.
func (o *ToolObserver) ToolFinished(ctx context.Context, rec agent.ToolCallRecord) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String(attrObsOutput, truncate(rec.Output.Content, o.maxPayload)),
		attribute.Bool(attrToolIsError, rec.Output.IsError),
		attribute.Int64("tool.duration_ms", rec.Duration.Milliseconds()),
	)
	if rec.Output.IsError || rec.Panicked {
		span.SetStatus(codes.Error, truncate(rec.Output.Content, 256))
	}
	span.End()
}

// Completed implements agent.Observer.
func (o *ToolObserver) Completed(ctx context.Context, iteration int, _ provider.CompletionResponse) {
	trace.SpanFromContext(ctx).AddEvent("iteration", trace.WithAttributes(attribute.Int(attrIteration, iteration)))
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
