package channel

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/flemzord/tgmcp/pkg/message"
)

func textMsg(text string) message.OutboundMessage {
	return message.OutboundMessage{
		Channel:   "test",
		Chat:      message.Chat{ID: "chat-1"},
		Blocks:    []message.ContentBlock{message.NewTextBlock(text)},
		ReplyToID: "9",
	}
}

func TestSplitMessage_NoChunkingWhenDisabled(t *testing.T) {
	t.Parallel()
	if got := SplitMessage(textMsg(strings.Repeat("a", 50)), ChunkConfig{}); len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
}

func TestSplitMessage_ShortMessageUnchanged(t *testing.T) {
	t.Parallel()
	got := SplitMessage(textMsg("hello world"), ChunkConfig{MaxLength: 100})
	if len(got) != 1 || got[0].TextContent() != "hello world" {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitMessage_SplitsLongText(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 100) + "\n" + strings.Repeat("b", 100)
	got := SplitMessage(textMsg(text), ChunkConfig{MaxLength: 110})
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].ReplyToID != "9" || got[1].ReplyToID != "" {
		t.Errorf("reply ids = %q, %q", got[0].ReplyToID, got[1].ReplyToID)
	}
}

func TestSplitMessage_CountsRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("中", 30)
	got := SplitMessage(textMsg(text), ChunkConfig{MaxLength: 10})
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, m := range got {
		c := m.TextContent()
		if !utf8.ValidString(c) || utf8.RuneCountInString(c) != 10 {
			t.Errorf("chunk %d = %q", i, c)
		}
	}
}

func TestSplitMessage_PreservesCodeBlocks(t *testing.T) {
	t.Parallel()
	text := "Before\n```\nfunc main() {\n\tprintln(1)\n}\n```\nAfter"
	got := SplitMessage(textMsg(text), ChunkConfig{MaxLength: 40, PreserveBlocks: true})

	want := []string{
		"Before\n```\nfunc main() {\n\tprintln(1)\n```",
		"```\n}\n```\nAfter",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks: %+v", len(got), got)
	}
	for i, m := range got {
		if c := m.TextContent(); c != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, c, want[i])
		}
	}
}

func TestSplitMessage_ReopensFenceWithLanguage(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	b.WriteString("Here is the script:\n```python\n")
	for i := range 40 {
		b.WriteString("print(" + strings.Repeat("x", i%7) + ")\n")
	}
	b.WriteString("```\nDone.")

	const limit = 60
	got := SplitMessage(textMsg(b.String()), ChunkConfig{MaxLength: limit, PreserveBlocks: true})
	if len(got) < 3 {
		t.Fatalf("expected several chunks, got %d", len(got))
	}
	for i, m := range got {
		c := m.TextContent()
		if n := utf8.RuneCountInString(c); n > limit {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if strings.Count(c, "```")%2 != 0 {
			t.Errorf("chunk %d has unbalanced fences: %q", i, c)
		}
		if i > 0 && i < len(got)-1 && !strings.HasPrefix(c, "```python\n") {
			t.Errorf("chunk %d does not reopen the block: %q", i, c)
		}
	}
}

func TestSplitMessage_FenceMovesWhole(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 14) + "\n```\n" + strings.Repeat("b", 10) + "\n```"
	got := SplitMessage(textMsg(text), ChunkConfig{MaxLength: 20, PreserveBlocks: true})
	if len(got) != 2 {
		t.Fatalf("got %d chunks: %+v", len(got), got)
	}
	if c := got[0].TextContent(); c != strings.Repeat("a", 14) {
		t.Errorf("first chunk = %q, want no empty code block", c)
	}
	if c := got[1].TextContent(); c != "```\n"+strings.Repeat("b", 10)+"\n```" {
		t.Errorf("second chunk = %q", c)
	}
}

func TestSplitMessage_NonTextOnFirstChunk(t *testing.T) {
	t.Parallel()
	msg := textMsg(strings.Repeat("x", 30))
	msg.Blocks = append([]message.ContentBlock{message.NewImageBlock("f1", "image/png")}, msg.Blocks...)
	got := SplitMessage(msg, ChunkConfig{MaxLength: 10})
	if got[0].Blocks[0].Type != message.BlockImage {
		t.Error("image block should lead the first chunk")
	}
	for _, m := range got[1:] {
		if len(m.Blocks) != 1 {
			t.Errorf("later chunk has %d blocks", len(m.Blocks))
		}
	}
}
