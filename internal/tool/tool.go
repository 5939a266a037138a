// Package tool defines the functions the agent can call and the registry
// that executes them. Tools come from MCP servers and from the built-in
// web module.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is one function the model may invoke.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error)
}

// Sourced is implemented by tools that report where they come from,
// e.g. "mcp:fetch" or "builtin".
type Sourced interface {
	Source() string
}

// ExecutionEnv describes the conversation a tool runs for.
type ExecutionEnv struct {
	// ChatID is the chat that triggered the run.
	ChatID string

	// SessionID identifies the agent run, for tracing and logs.
	SessionID string

	// DataDir is the persistent data directory.
	DataDir string
}

// Output is the result of a tool execution.
type Output struct {
	// Content is the output text from the tool.
	Content string

	// IsError tells the model the call failed; Content explains why.
	IsError bool
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	ToolSchema      json.RawMessage
	ToolSource      string
	Fn              func(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error)
}

// Name implements Tool.
func (f *Func) Name() string { return f.ToolName }

// Description implements Tool.
func (f *Func) Description() string { return f.ToolDescription }

// Schema implements Tool.
func (f *Func) Schema() json.RawMessage { return f.ToolSchema }

// Source implements Sourced.
func (f *Func) Source() string {
	if f.ToolSource == "" {
		return "builtin"
	}
	return f.ToolSource
}

// Execute implements Tool.
func (f *Func) Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	return f.Fn(ctx, args, env)
}

// DecodeArgs unmarshals tool arguments into v, treating empty input as {}.
func DecodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return json.Unmarshal(args, v)
}
