package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/security"
	"github.com/flemzord/tgmcp/internal/tool"
)

// ToolRunner executes a tool by name. *tool.Registry implements it.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error)
}

// ToolExecutor runs the tool calls of one model turn.
type ToolExecutor struct {
	runner    ToolRunner
	observer  Observer
	maxOutput int
}

// NewToolExecutor creates a ToolExecutor. A nil observer is allowed.
func NewToolExecutor(runner ToolRunner, observer Observer) *ToolExecutor {
	return &ToolExecutor{runner: runner, observer: observer, maxOutput: DefaultMaxToolOutput}
}

// SetMaxOutput caps the size of each tool result. Values <= 0 are ignored.
func (e *ToolExecutor) SetMaxOutput(n int) {
	if n > 0 {
		e.maxOutput = n
	}
}

// Execute runs calls concurrently and returns their records in call order.
// A panicking tool yields an error record instead of crashing the run.
func (e *ToolExecutor) Execute(ctx context.Context, calls []provider.ToolCall, env tool.ExecutionEnv) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Go(func() {
			callCtx := ctx
			if e.observer != nil {
				callCtx = e.observer.ToolStarted(ctx, tc)
			}
			records[i] = e.call(callCtx, tc, env)
			if e.observer != nil {
				e.observer.ToolFinished(callCtx, records[i])
			}
		})
	}
	wg.Wait()
	return records
}

func (e *ToolExecutor) call(ctx context.Context, tc provider.ToolCall, env tool.ExecutionEnv) (rec ToolCallRecord) {
	rec = ToolCallRecord{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
	start := time.Now()
	defer func() {
		rec.Duration = time.Since(start)
		if v := recover(); v != nil {
			rec.Panicked = true
			rec.Output = errorOutput(fmt.Sprintf("panic: %v", v))
		}
	}()

	if err := (security.PayloadLimits{}).Check(tc.Arguments); err != nil {
		rec.Output = errorOutput("invalid arguments: " + err.Error())
		return rec
	}
	out, err := e.runner.Execute(ctx, tc.Name, tc.Arguments, env)
	if err != nil {
		rec.Output = errorOutput(err.Error())
		return rec
	}
	out.Content = tool.TruncateOutput(out.Content, e.maxOutput)
	rec.Output = out
	return rec
}

func errorOutput(msg string) tool.Output {
	return tool.Output{Content: msg, IsError: true}
}
