// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/tgmcp/internal/tool"
)

// MockTool is a configurable implementation of tool.Tool.
type MockTool struct {
	ToolName    string
	ExecuteFunc func(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error)

	mu    sync.Mutex
	calls []json.RawMessage
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.ToolName == "" {
		return "mock_tool"
	}
	return m.ToolName
}

// Description implements tool.Tool.
func (m *MockTool) Description() string { return "a mock tool" }

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

// Execute records the call and delegates to ExecuteFunc, echoing the
// arguments when unset.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args, env)
	}
	return tool.Output{Content: string(args)}, nil
}

// Calls returns the arguments of every call so far.
func (m *MockTool) Calls() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]json.RawMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ tool.Tool = (*MockTool)(nil)
