package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/tgmcp/internal/provider"
)

// HandoffToolName is the tool the model calls to hand the conversation to
// the summary agent.
const HandoffToolName = "transfer_to_summary_agent"

// Summary defaults.
const (
	DefaultSummaryLanguage = "台灣中文"
	DefaultSummaryLength   = 1000
)

var summarySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["summary", "key_points"],
  "additionalProperties": false
}`)

// SummaryConfig configures the summary agent.
type SummaryConfig struct {
	Language string
	Length   int
	// Model overrides the provider's model when set.
	Model string
}

// SummaryAgent produces a structured summary of the conversation so far.
type SummaryAgent struct {
	provider provider.Provider
	cfg      SummaryConfig
}

// NewSummaryAgent creates a summary agent using p for completions.
func NewSummaryAgent(p provider.Provider, cfg SummaryConfig) *SummaryAgent {
	if cfg.Language == "" {
		cfg.Language = DefaultSummaryLanguage
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultSummaryLength
	}
	return &SummaryAgent{provider: p, cfg: cfg}
}

// Name identifies the agent in responses and traces.
func (s *SummaryAgent) Name() string { return "summary" }

// Definition returns the handoff tool offered to the main agent.
func (s *SummaryAgent) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        HandoffToolName,
		Description: "Handoff to the summary agent to summarize the conversation and any fetched content.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

// handoffResult answers the handoff call in the history.
const handoffResult = "Transferred to the summary agent."

// Requested reports whether calls contain the handoff tool.
func (s *SummaryAgent) Requested(calls []provider.ToolCall) bool {
	return slices.ContainsFunc(calls, isHandoff)
}

func isHandoff(tc provider.ToolCall) bool { return tc.Name == HandoffToolName }

// splitHandoff separates handoff calls from the rest, keeping order.
func splitHandoff(calls []provider.ToolCall) (handoffs, others []provider.ToolCall) {
	for _, tc := range calls {
		if isHandoff(tc) {
			handoffs = append(handoffs, tc)
		} else {
			others = append(others, tc)
		}
	}
	return handoffs, others
}

// Instructions returns the summary agent's system prompt.
func (s *SummaryAgent) Instructions() string {
	return fmt.Sprintf(
		"Summarize the conversation and any tool output in %s, in at most %d characters. "+
			"Respond with a JSON object holding a summary and a list of key points.",
		s.cfg.Language, s.cfg.Length,
	)
}

type summaryOutput struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// Run summarizes messages. The main agent's system prompt is replaced by
// the summary instructions.
func (s *SummaryAgent) Run(ctx context.Context, messages []provider.LLMMessage) (string, provider.TokenUsage, error) {
	req := provider.CompletionRequest{
		Model:      s.cfg.Model,
		JSONSchema: &provider.ResponseSchema{Name: "summary", Schema: summarySchema},
	}
	req.Messages = append(req.Messages, provider.LLMMessage{
		Role:    provider.MessageRoleSystem,
		Content: s.Instructions(),
	})
	for _, m := range messages {
		if m.Role == provider.MessageRoleSystem {
			continue
		}
		req.Messages = append(req.Messages, m)
	}

	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return "", provider.TokenUsage{}, fmt.Errorf("summary agent: %w", err)
	}
	return renderSummary(resp.Content), resp.Usage, nil
}

// renderSummary turns the structured output into chat text. Content that
// is not the expected JSON is returned unchanged.
func renderSummary(content string) string {
	var out summaryOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil || out.Summary == "" {
		return content
	}
	var b strings.Builder
	b.WriteString(out.Summary)
	if len(out.KeyPoints) > 0 {
		b.WriteString("\n")
		for _, p := range out.KeyPoints {
			b.WriteString("\n• ")
			b.WriteString(p)
		}
	}
	return b.String()
}
