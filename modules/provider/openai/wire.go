package openai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/flemzord/tgmcp/internal/provider"
)

// Chat Completions request and response bodies. The same shapes are
// accepted by OpenAI, Azure OpenAI deployments and the proxy endpoint.

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	Tools               []chatTool      `json:"tools,omitempty"`
	ParallelToolCalls   *bool           `json:"parallel_tool_calls,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Refusal    string         `json:"refusal,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason *string     `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// reasoningPrefixes lists model families that take max_completion_tokens
// and reject a non-default temperature.
var reasoningPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, p := range reasoningPrefixes {
		if m == p || strings.HasPrefix(m, p+"-") {
			return true
		}
	}
	return false
}

// setLimits applies the token cap and temperature in the form model accepts.
func (cr *chatRequest) setLimits(maxTokens int, temperature *float64) {
	if isReasoningModel(cr.Model) {
		cr.MaxCompletionTokens = maxTokens
		return
	}
	cr.MaxTokens = maxTokens
	cr.Temperature = temperature
}

// invalidNameChars matches what the API refuses in a participant name.
var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// participantName turns a Telegram display name into a valid "name"
// field. Names with nothing usable are dropped.
func participantName(name string) string {
	n := strings.Trim(invalidNameChars.ReplaceAllString(name, "_"), "_")
	if len(n) > 64 {
		n = n[:64]
	}
	return n
}

// encodeMessages converts the conversation to API messages.
func encodeMessages(msgs []provider.LLMMessage) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolID,
		}
		if m.Role == provider.MessageRoleUser {
			cm.Name = participantName(m.Name)
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatFunctionCall{
					Name:      tc.Name,
					Arguments: encodeArguments(tc.Arguments),
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

// encodeArguments returns "{}" for calls made without arguments; the API
// rejects an empty string when the call is replayed from history.
func encodeArguments(args json.RawMessage) string {
	if len(strings.TrimSpace(string(args))) == 0 {
		return "{}"
	}
	return string(args)
}

func encodeTools(tools []provider.ToolDefinition) []chatTool {
	out := make([]chatTool, len(tools))
	for i, t := range tools {
		out[i] = chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// decodeResponse converts the first choice of resp. A refusal stands in
// for the content so the user sees why nothing was answered.
func decodeResponse(resp *chatResponse) provider.CompletionResponse {
	cr := provider.CompletionResponse{
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return cr
	}

	choice := resp.Choices[0]
	cr.Content = choice.Message.Content
	if cr.Content == "" && choice.Message.Refusal != "" {
		cr.Content = choice.Message.Refusal
	}
	cr.FinishReason = decodeFinishReason(choice.FinishReason)
	for _, c := range choice.Message.ToolCalls {
		cr.ToolCalls = append(cr.ToolCalls, provider.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: json.RawMessage(encodeArguments(json.RawMessage(c.Function.Arguments))),
		})
	}
	return cr
}

func decodeFinishReason(reason *string) provider.FinishReason {
	if reason == nil {
		return ""
	}
	switch *reason {
	case "stop":
		return provider.FinishReasonStop
	case "length":
		return provider.FinishReasonLength
	case "tool_calls", "function_call":
		return provider.FinishReasonToolUse
	case "content_filter":
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReason(*reason)
	}
}
