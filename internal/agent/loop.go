package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/tool"
)

// Sentinel errors for agent loop termination.
var (
	ErrTokenBudgetExceeded  = errors.New("agent: token budget exceeded")
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
	ErrToolKeepsFailing     = errors.New("agent: tool keeps failing")
)

// Loop implements the ReAct (Reason + Act) reasoning loop.
type Loop struct {
	provider provider.Provider
	executor *ToolExecutor
	config   LoopConfig
	observer Observer
	summary  *SummaryAgent
}

// NewLoop creates a Loop with the given provider, executor, and config.
func NewLoop(p provider.Provider, executor *ToolExecutor, cfg LoopConfig) *Loop {
	cfg = cfg.withDefaults()
	executor.SetMaxOutput(cfg.MaxToolOutput)
	return &Loop{
		provider: p,
		executor: executor,
		config:   cfg,
		observer: executor.observer,
	}
}

// WithSummaryAgent enables the handoff tool. The model can then transfer
// the conversation to s, whose answer ends the run.
func (l *Loop) WithSummaryAgent(s *SummaryAgent) *Loop {
	l.summary = s
	return l
}

func (l *Loop) tools(req Request) []provider.ToolDefinition {
	if l.summary == nil {
		return req.Tools
	}
	return append(slices.Clip(req.Tools), l.summary.Definition())
}

// run is the state of one Run call.
type run struct {
	messages []provider.LLMMessage
	records  []ToolCallRecord
	detector *loopDetector
	tokens   *tokenTracker
}

func (l *Loop) newRun(req Request) *run {
	r := &run{
		detector: newLoopDetector(l.config.LoopThreshold),
		tokens:   newTokenTracker(l.config.TokenBudget),
	}
	if req.SystemPrompt != "" {
		r.messages = append(r.messages, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: req.SystemPrompt})
	}
	r.messages = append(r.messages, req.Messages...)
	return r
}

func (r *run) end(iterations int, reason StopReason, content string) Response {
	return Response{
		Content:    content,
		ToolCalls:  r.records,
		TotalUsage: r.tokens.total(),
		Iterations: iterations,
		StopReason: reason,
	}
}

// record appends the assistant turn and the results of its tool calls.
func (r *run) record(resp provider.CompletionResponse, results []ToolCallRecord) {
	r.messages = append(r.messages, provider.LLMMessage{
		Role:      provider.MessageRoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	for _, rec := range results {
		r.messages = append(r.messages, provider.LLMMessage{
			Role:    provider.MessageRoleTool,
			Content: rec.Output.Content,
			Name:    rec.Name,
			ToolID:  rec.ID,
			IsError: rec.Output.IsError,
		})
	}
	r.records = append(r.records, results...)
}

// repeatedCall counts every call of a turn and reports whether any of them
// reached the loop threshold.
func (r *run) repeatedCall(calls []provider.ToolCall) bool {
	hit := false
	for _, tc := range calls {
		if r.detector.repeated(tc) {
			hit = true
		}
	}
	return hit
}

// failingTool counts every result of a turn and returns the first one whose
// tool has now failed threshold times in a row.
func (r *run) failingTool(results []ToolCallRecord) *ToolCallRecord {
	var first *ToolCallRecord
	for i := range results {
		if r.detector.failing(results[i]) && first == nil {
			first = &results[i]
		}
	}
	return first
}

// handoff ends the run with the summary agent's answer. Other calls of the
// same turn run first, so the summary sees their output and every tool
// call in the history has a result.
func (l *Loop) handoff(ctx context.Context, r *run, iterations int, resp provider.CompletionResponse, env tool.ExecutionEnv) (Response, error) {
	handoffs, others := splitHandoff(resp.ToolCalls)
	results := l.executor.Execute(ctx, others, env)
	r.record(resp, results)
	for _, tc := range handoffs {
		r.messages = append(r.messages, provider.LLMMessage{
			Role:    provider.MessageRoleTool,
			Content: handoffResult,
			Name:    tc.Name,
			ToolID:  tc.ID,
		})
	}

	content, usage, err := l.summary.Run(ctx, r.messages)
	r.tokens.add(usage)
	if err != nil {
		return r.end(iterations, StopReasonError, ""), err
	}
	out := r.end(iterations, StopReasonHandoff, content)
	out.HandedOffTo = l.summary.Name()
	return out, nil
}

// Run executes the ReAct loop and returns the final response. The
// configured Timeout applies on top of any deadline ctx already carries.
func (l *Loop) Run(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	r := l.newRun(req)
	tools := l.tools(req)

	for i := range l.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			reason := StopReasonError
			if errors.Is(err, context.DeadlineExceeded) {
				reason = StopReasonTimeout
			}
			return r.end(i, reason, ""), err
		}
		if r.tokens.exceeded() {
			return r.end(i, StopReasonTokenBudget, ""), ErrTokenBudgetExceeded
		}

		resp, err := l.provider.Complete(ctx, provider.CompletionRequest{
			Messages:    r.messages,
			Tools:       tools,
			Temperature: l.config.Temperature,
		})
		if err != nil {
			return r.end(i, StopReasonError, ""), err
		}
		if l.observer != nil {
			l.observer.Completed(ctx, i+1, resp)
		}
		r.tokens.add(resp.Usage)
		if r.tokens.exceeded() {
			return r.end(i+1, StopReasonTokenBudget, ""), ErrTokenBudgetExceeded
		}

		if len(resp.ToolCalls) == 0 {
			return r.end(i+1, StopReasonComplete, resp.Content), nil
		}

		if l.summary != nil && l.summary.Requested(resp.ToolCalls) {
			return l.handoff(ctx, r, i+1, resp, req.Env)
		}

		// Checked before the assistant turn is recorded, so the history
		// never holds tool calls without results.
		if r.repeatedCall(resp.ToolCalls) {
			return r.end(i+1, StopReasonLoopDetected, ""), ErrLoopDetected
		}

		results := l.executor.Execute(ctx, resp.ToolCalls, req.Env)
		r.record(resp, results)

		if rec := r.failingTool(results); rec != nil {
			return r.end(i+1, StopReasonLoopDetected, ""), fmt.Errorf("%w: %s: %s", ErrToolKeepsFailing, rec.Name, rec.Output.Content)
		}
	}

	return r.end(l.config.MaxIterations, StopReasonMaxIterations, ""), ErrMaxIterationsReached
}
