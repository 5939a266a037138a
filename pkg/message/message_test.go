package message

import "testing"

func TestTextContent(t *testing.T) {
	t.Parallel()

	blocks := []ContentBlock{
		NewTextBlock("hello"),
		NewFileBlock("f1", "application/pdf", "doc.pdf", 10),
		NewTextBlock(""),
		NewTextBlock("world"),
	}
	if got := TextContent(blocks); got != "hello\nworld" {
		t.Errorf("TextContent = %q, want %q", got, "hello\nworld")
	}
	if got := TextContent(nil); got != "" {
		t.Errorf("TextContent(nil) = %q", got)
	}
}

func TestSender_Name(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sender Sender
		want   string
	}{
		{Sender{ID: "1", Username: "ann", DisplayName: "Ann"}, "Ann"},
		{Sender{ID: "1", Username: "ann"}, "@ann"},
		{Sender{ID: "1"}, "1"},
	}
	for _, tt := range tests {
		if got := tt.sender.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestNewReply(t *testing.T) {
	t.Parallel()

	in := InboundMessage{
		ID:      "42",
		Channel: "channel.telegram",
		Chat:    Chat{ID: "-100", Type: ChatGroup},
		Blocks:  []ContentBlock{NewTextBlock("hi")},
		ReplyTo: &ReplyRef{MessageID: "41", ToBot: true},
	}
	out := NewReply(in, "hello")

	if out.Channel != in.Channel || out.Chat.ID != "-100" {
		t.Errorf("reply routed to %s/%s", out.Channel, out.Chat.ID)
	}
	if out.ReplyToID != "42" {
		t.Errorf("ReplyToID = %q, want 42", out.ReplyToID)
	}
	if out.TextContent() != "hello" {
		t.Errorf("text = %q", out.TextContent())
	}
	if !in.IsReply() || in.IsPrivate() {
		t.Error("IsReply/IsPrivate mismatch")
	}
}
