package router

import (
	"strings"

	"github.com/flemzord/tgmcp/pkg/message"
)

// TriggerPolicy decides which non-command messages reach the agent.
//
// Private chats: every message with content. Groups: messages that mention
// the bot, or that reply to another message. MentionOnly drops the reply
// rule for busy groups.
type TriggerPolicy struct {
	MentionOnly bool
}

// ShouldProcess reports whether msg should be answered by the agent.
func (p TriggerPolicy) ShouldProcess(msg message.InboundMessage) bool {
	if strings.TrimSpace(msg.TextContent()) == "" && !hasAttachment(msg) {
		return false
	}
	if msg.Sender.IsBot {
		return false
	}
	if msg.IsPrivate() {
		return true
	}
	if msg.IsMentioned {
		return true
	}
	return !p.MentionOnly && msg.IsReply() && msg.Command == nil
}

func hasAttachment(msg message.InboundMessage) bool {
	for _, b := range msg.Blocks {
		if b.Type == message.BlockFile {
			return true
		}
	}
	return false
}
