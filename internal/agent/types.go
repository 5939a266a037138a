// Package agent runs the reason/act loop behind every reply: ask the
// model, run the tools it calls (local or MCP), feed the results back,
// and stop on a final answer, a handoff to the summary agent or a guard.
package agent

import (
	"encoding/json"
	"time"

	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/tool"
)

// StopReason says why a run ended.
type StopReason string

const (
	StopReasonComplete      StopReason = "complete"
	StopReasonHandoff       StopReason = "handoff"
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonLoopDetected  StopReason = "loop_detected"
	StopReasonTokenBudget   StopReason = "token_budget"
	StopReasonTimeout       StopReason = "timeout"
	StopReasonError         StopReason = "error"
)

// ToolCallRecord is one executed tool call, kept for tracing and for the
// guards.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Output    tool.Output
	Duration  time.Duration
	Panicked  bool
}

type Request struct {
	Messages     []provider.LLMMessage
	SystemPrompt string
	Tools        []provider.ToolDefinition
	Env          tool.ExecutionEnv
}

type Response struct {
	Content    string
	ToolCalls  []ToolCallRecord
	TotalUsage provider.TokenUsage
	Iterations int
	StopReason StopReason
	// HandedOffTo is set when the summary agent wrote Content.
	HandedOffTo string
}
