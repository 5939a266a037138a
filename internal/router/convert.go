package router

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/flemzord/tgmcp/internal/agent"
	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/pkg/message"
)

// ErrorReplyPrefix starts every error reply.
const ErrorReplyPrefix = "I'm sorry, I encountered an error: "

// ResponseSender delivers outbound messages to a channel.
type ResponseSender interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
}

// AgentRunner runs one agent turn. *agent.Loop implements it.
type AgentRunner interface {
	Run(ctx context.Context, req agent.Request) (agent.Response, error)
}

// ToolLister returns the tool schemas offered to the model on each run.
// *tool.Registry implements it.
type ToolLister interface {
	Definitions() []provider.ToolDefinition
}

// messageToLLM converts an inbound message to a user-role LLM message.
// A reply to someone else's message carries the quoted text along.
func messageToLLM(msg message.InboundMessage, extra string) provider.LLMMessage {
	var b strings.Builder
	if r := msg.ReplyTo; r != nil && !r.ToBot && r.Text != "" {
		fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(r.Text, "\n", "\n> "))
	}
	b.WriteString(msg.TextContent())
	if extra != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(extra)
	}
	return provider.LLMMessage{
		Role:    provider.MessageRoleUser,
		Content: b.String(),
	}
}

// buildReply creates the agent's answer. The channel decides between a
// quoted short reply and an expandable block from the text length.
func buildReply(original message.InboundMessage, text string) message.OutboundMessage {
	out := message.NewReply(original, text)
	out.Hints = &message.Hints{Quote: true, Expandable: true, ParseMode: message.ParseMarkdown}
	return out
}

// buildErrorReply wraps err in the user-facing error wording.
func buildErrorReply(original message.InboundMessage, err error) message.OutboundMessage {
	out := message.NewReply(original, ErrorReplyPrefix+err.Error())
	out.Hints = &message.Hints{Quote: true}
	return out
}

// buildStartReply greets the user with an HTML mention and opens the reply
// interface for them only.
func buildStartReply(original message.InboundMessage) message.OutboundMessage {
	name := original.Sender.DisplayName
	if name == "" {
		name = original.Sender.Name()
	}
	mention := fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, html.EscapeString(original.Sender.ID), html.EscapeString(name))
	out := message.NewReply(original, "Hi "+mention+"!")
	out.Hints = &message.Hints{ParseMode: message.ParseHTML, Quote: true, ForceReply: true}
	return out
}

// window returns the last n messages of history.
func window(history []provider.LLMMessage, n int) []provider.LLMMessage {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
