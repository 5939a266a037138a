package router

import (
	"testing"

	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/pkg/message"
)

func TestMessageToLLM_QuotesReplies(t *testing.T) {
	t.Parallel()

	msg := groupMsg("2", "is this right?")
	msg.ReplyTo = &message.ReplyRef{MessageID: "1", Text: "line one\nline two"}

	got := messageToLLM(msg, "")
	want := "> line one\n> line two\n\nis this right?"
	if got.Role != provider.MessageRoleUser || got.Content != want {
		t.Errorf("got %q, want %q", got.Content, want)
	}

	msg.ReplyTo.ToBot = true
	if got := messageToLLM(msg, "extra"); got.Content != "is this right?\n\nextra" {
		t.Errorf("reply to bot = %q", got.Content)
	}
}

func TestWindow(t *testing.T) {
	t.Parallel()

	history := make([]provider.LLMMessage, 8)
	for i := range history {
		history[i].Content = string(rune('a' + i))
	}
	if got := window(history, 5); len(got) != 5 || got[0].Content != "d" {
		t.Errorf("window = %+v", got)
	}
	if got := window(history[:3], 5); len(got) != 3 {
		t.Errorf("short window = %d", len(got))
	}
}

func TestSessionKey_String(t *testing.T) {
	t.Parallel()

	if got := (SessionKey{Channel: "telegram", ChatID: "-1"}).String(); got != "telegram:-1" {
		t.Errorf("got %q", got)
	}
	if got := (SessionKey{Channel: "telegram", ChatID: "-1", ThreadID: "9"}).String(); got != "telegram:-1:9" {
		t.Errorf("got %q", got)
	}
}
