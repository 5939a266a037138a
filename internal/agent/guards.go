package agent

import (
	"encoding/json"

	"github.com/flemzord/tgmcp/internal/provider"
)

// loopDetector stops runs that go nowhere: the same call repeated with
// the same arguments, or one tool failing again and again (typically an
// MCP server that went away) whatever the arguments.
type loopDetector struct {
	threshold int
	calls     map[string]int
	failures  map[string]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{
		threshold: threshold,
		calls:     make(map[string]int),
		failures:  make(map[string]int),
	}
}

// callKey identifies a call by tool name and canonical arguments, so
// payloads differing only in key order or spacing compare equal.
func callKey(name string, args json.RawMessage) string {
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return name + ":" + string(args)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return name + ":" + string(args)
	}
	return name + ":" + string(canonical)
}

// repeated registers a requested call and reports whether it reached the
// threshold.
func (d *loopDetector) repeated(tc provider.ToolCall) bool {
	key := callKey(tc.Name, tc.Arguments)
	d.calls[key]++
	return d.calls[key] >= d.threshold
}

// failing registers a result and reports whether its tool has now failed
// threshold times in a row. A success resets the count.
func (d *loopDetector) failing(rec ToolCallRecord) bool {
	if !rec.Output.IsError {
		delete(d.failures, rec.Name)
		return false
	}
	d.failures[rec.Name]++
	return d.failures[rec.Name] >= d.threshold
}

// tokenTracker accumulates token usage against a budget. Owned by a
// single Run call.
type tokenTracker struct {
	budget int
	usage  provider.TokenUsage
}

func newTokenTracker(budget int) *tokenTracker {
	return &tokenTracker{budget: budget}
}

func (t *tokenTracker) add(usage provider.TokenUsage) {
	t.usage.Add(usage)
}

// exceeded reports whether usage reached the budget. Zero never exceeds.
func (t *tokenTracker) exceeded() bool {
	return t.budget > 0 && t.usage.TotalTokens >= t.budget
}

func (t *tokenTracker) total() provider.TokenUsage {
	return t.usage
}
