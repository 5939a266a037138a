package channel

import (
	"strings"
	"unicode/utf8"

	"github.com/flemzord/tgmcp/pkg/message"
)

// ChunkConfig controls how outbound messages are split when they exceed
// a platform's maximum message length.
type ChunkConfig struct {
	// MaxLength is the maximum number of characters per chunk.
	// A value <= 0 means no splitting.
	MaxLength int

	// PreserveBlocks closes and reopens fenced code blocks (```) that
	// cross a chunk boundary.
	PreserveBlocks bool
}

// SplitMessage splits an outbound message into messages that each respect
// cfg.MaxLength. Non-text blocks and the document ride on the first chunk.
// Only the first chunk replies to the original message.
func SplitMessage(msg message.OutboundMessage, cfg ChunkConfig) []message.OutboundMessage {
	if cfg.MaxLength <= 0 {
		return []message.OutboundMessage{msg}
	}

	var textParts []string
	var nonText []message.ContentBlock
	for _, b := range msg.Blocks {
		if b.Type == message.BlockText {
			textParts = append(textParts, b.Text)
		} else {
			nonText = append(nonText, b)
		}
	}

	fullText := strings.Join(textParts, "\n")
	if utf8.RuneCountInString(fullText) <= cfg.MaxLength {
		return []message.OutboundMessage{msg}
	}

	chunks := splitText(fullText, cfg)
	result := make([]message.OutboundMessage, 0, len(chunks))
	for i, chunk := range chunks {
		out := message.OutboundMessage{
			Channel: msg.Channel,
			Chat:    msg.Chat,
			Hints:   msg.Hints,
		}
		if i == 0 {
			out.ReplyToID = msg.ReplyToID
			out.Document = msg.Document
			out.Blocks = append(out.Blocks, nonText...)
		}
		out.Blocks = append(out.Blocks, message.NewTextBlock(chunk))
		result = append(result, out)
	}
	return result
}

// fenceClose ends a code block cut at a chunk boundary; closeCost is
// what it adds to a chunk, separator included.
const (
	fenceClose = "```"
	closeCost  = len(fenceClose) + 1
)

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// chunker packs lines into chunks of at most limit runes. With fences
// set, a code block crossing a boundary is closed at the end of one
// chunk and reopened with its original fence line at the start of the
// next, so every chunk renders on its own.
type chunker struct {
	limit  int
	fences bool

	chunks []string
	lines  []string
	size   int

	open       string // fence line of the block in progress
	blockLines int    // content lines of that block in the current chunk
}

func splitText(text string, cfg ChunkConfig) []string {
	c := &chunker{limit: cfg.MaxLength, fences: cfg.PreserveBlocks}
	for _, line := range strings.Split(text, "\n") {
		c.add(line)
	}
	c.cut()
	return c.chunks
}

func (c *chunker) sep() int {
	if len(c.lines) > 0 {
		return 1
	}
	return 0
}

// fits reports whether n more runes fit, keeping room for a closing
// fence when the chunk will still be inside a block.
func (c *chunker) fits(n int, inside bool) bool {
	reserve := 0
	if inside {
		reserve = closeCost
	}
	return c.size+c.sep()+n+reserve <= c.limit
}

func (c *chunker) push(line string) {
	c.size += c.sep() + utf8.RuneCountInString(line)
	c.lines = append(c.lines, line)
	if c.open != "" && line != c.open {
		c.blockLines++
	}
}

func (c *chunker) add(line string) {
	fence := c.fences && isFence(line)
	inside := (c.open != "") != fence
	n := utf8.RuneCountInString(line)

	if len(c.lines) > 0 && !c.fits(n, inside) {
		c.cut()
	}
	if !fence && !c.fits(n, inside) {
		c.hardSplit([]rune(line))
		return
	}

	switch {
	case fence && c.open == "":
		c.open, c.blockLines = strings.TrimSpace(line), 0
		c.push(c.open)
	case fence:
		c.open = ""
		c.push(line)
	default:
		c.push(line)
	}
}

// hardSplit breaks a line that cannot fit in any chunk.
func (c *chunker) hardSplit(runes []rune) {
	for len(runes) > 0 {
		avail := c.limit - c.size - c.sep()
		if c.open != "" {
			avail -= closeCost
		}
		if avail <= 0 {
			if c.open != "" && len(c.lines) == 1 {
				// The fence alone leaves no room; give up on it.
				c.open, c.lines, c.size = "", nil, 0
			} else {
				c.cut()
			}
			continue
		}
		take := min(avail, len(runes))
		c.push(string(runes[:take]))
		runes = runes[take:]
		if len(runes) > 0 {
			c.cut()
		}
	}
}

// cut ends the current chunk. An open block is closed, or moved whole to
// the next chunk when nothing of it was written yet.
func (c *chunker) cut() {
	lines := c.lines
	if c.open != "" {
		if c.blockLines == 0 && len(lines) > 0 {
			lines = lines[:len(lines)-1]
		} else {
			lines = append(lines, fenceClose)
		}
	}
	if chunk := strings.Join(lines, "\n"); strings.TrimSpace(chunk) != "" {
		c.chunks = append(c.chunks, chunk)
	}
	c.lines, c.size, c.blockLines = nil, 0, 0
	if c.open != "" {
		c.push(c.open)
	}
}
