package router

import (
	"testing"

	"github.com/flemzord/tgmcp/pkg/message"
)

func TestTriggerPolicy(t *testing.T) {
	t.Parallel()

	mention := groupMsg("1", "@bot hi")
	mention.IsMentioned = true

	reply := groupMsg("2", "yes")
	reply.ReplyTo = &message.ReplyRef{MessageID: "1"}

	commandReply := withCommand(groupMsg("3", "/x"), "x")
	commandReply.ReplyTo = &message.ReplyRef{MessageID: "1"}

	bot := privateMsg("4", "beep")
	bot.Sender.IsBot = true

	doc := groupMsg("5", "")
	doc.Blocks = []message.ContentBlock{message.NewFileBlock("f", "application/pdf", "a.pdf", 1)}
	doc.IsMentioned = true

	tests := []struct {
		name        string
		msg         message.InboundMessage
		mentionOnly bool
		want        bool
	}{
		{"private", privateMsg("0", "hi"), false, true},
		{"private empty", privateMsg("0", "  "), false, false},
		{"group plain", groupMsg("0", "hi"), false, false},
		{"group mention", mention, false, true},
		{"group reply", reply, false, true},
		{"group reply mention only", reply, true, false},
		{"group command reply", commandReply, false, false},
		{"bot sender", bot, false, false},
		{"document only", doc, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := TriggerPolicy{MentionOnly: tt.mentionOnly}
			if got := p.ShouldProcess(tt.msg); got != tt.want {
				t.Errorf("ShouldProcess = %v, want %v", got, tt.want)
			}
		})
	}
}
