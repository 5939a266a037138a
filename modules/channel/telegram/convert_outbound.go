package telegram

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/flemzord/tgmcp/internal/channel"
	"github.com/flemzord/tgmcp/pkg/message"
)

const (
	parseModeHTML = "HTML"

	// quoteOverhead is the room kept for the blockquote tags and HTML
	// escaping when long replies are chunked.
	quoteOverhead = 512

	// minChunk is the smallest limit fitRendered splits at.
	minChunk = 64
)

// outboundPart is one Bot API call worth of text.
type outboundPart struct {
	text      string
	parseMode string
	replyTo   int
}

// planOutbound decides how a reply is rendered. Replies shorter than the
// quote threshold are sent as plain quoted replies. Longer replies marked
// expandable are rendered to HTML and wrapped in an expandable block quote.
// Every part stays within MaxMessageLength once rendered.
func (t *Telegram) planOutbound(msg message.OutboundMessage) []outboundPart {
	hints := msg.Hints
	if hints == nil {
		hints = &message.Hints{}
	}
	replyTo := 0
	if hints.Quote || hints.Expandable || hints.ForceReply {
		replyTo = parseOptionalInt(msg.ReplyToID)
	}
	text := msg.TextContent()
	if text == "" {
		return nil
	}

	expandable := hints.Expandable && utf8.RuneCountInString(text) >= t.config.QuoteThreshold
	limit := t.config.MaxMessageLength
	if expandable || hints.ParseMode == message.ParseMarkdown {
		limit = max(limit-quoteOverhead, limit/2)
	}

	parseMode := ""
	render := func(s string) string { return s }
	switch {
	case expandable:
		parseMode = parseModeHTML
		render = func(s string) string {
			switch hints.ParseMode {
			case message.ParseMarkdown:
				s = MarkdownToHTML(s)
			case message.ParseHTML:
			default:
				s = EscapeHTML(s)
			}
			return "<blockquote expandable>" + s + "</blockquote>"
		}
	case hints.ParseMode == message.ParseHTML:
		parseMode = parseModeHTML
	}

	rendered := fitRendered(text, limit, t.config.MaxMessageLength, render)
	parts := make([]outboundPart, 0, len(rendered))
	for i, body := range rendered {
		part := outboundPart{text: body, parseMode: parseMode}
		if i == 0 {
			part.replyTo = replyTo
		}
		parts = append(parts, part)
	}
	return parts
}

// fitRendered chunks text at limit and renders each chunk. A chunk whose
// rendering is longer than maxLen is split again at a proportionally
// smaller limit until it fits.
func fitRendered(text string, limit, maxLen int, render func(string) string) []string {
	var out []string
	for _, raw := range splitRaw(text, limit) {
		body := render(raw)
		rawLen, bodyLen := utf8.RuneCountInString(raw), utf8.RuneCountInString(body)
		if bodyLen <= maxLen || rawLen <= minChunk {
			out = append(out, body)
			continue
		}
		smaller := max(min(rawLen*maxLen/bodyLen, rawLen-1), minChunk)
		out = append(out, fitRendered(raw, smaller, maxLen, render)...)
	}
	return out
}

func splitRaw(text string, limit int) []string {
	msg := message.OutboundMessage{Blocks: []message.ContentBlock{message.NewTextBlock(text)}}
	chunks := channel.SplitMessage(msg, channel.ChunkConfig{MaxLength: limit, PreserveBlocks: true})
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.TextContent())
	}
	return out
}

// sendOutbound delivers text parts, then the document if any. Sending stops
// at the first failure.
func (t *Telegram) sendOutbound(ctx context.Context, msg message.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.Chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", msg.Chat.ID, err)
	}
	threadID := parseOptionalInt(msg.Chat.ThreadID)

	parts := t.planOutbound(msg)
	for i, part := range parts {
		req := SendMessageRequest{
			ChatID:          chatID,
			Text:            part.text,
			ParseMode:       part.parseMode,
			MessageThreadID: threadID,
		}
		if part.replyTo != 0 {
			req.ReplyParameters = &ReplyParameters{MessageID: part.replyTo, AllowSendingWithoutReply: true}
		}
		if i == 0 && msg.Hints != nil && msg.Hints.ForceReply {
			req.ReplyMarkup = &ForceReply{ForceReply: true, Selective: true}
		}
		if t.config.DisableLinkPreview {
			req.LinkPreviewOptions = &LinkPreviewOptions{IsDisabled: true}
		}

		if _, err := t.client.SendMessage(ctx, req); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}

	if doc := msg.Document; doc != nil {
		req := SendDocumentRequest{
			ChatID:          chatID,
			FileName:        doc.FileName,
			Data:            doc.Data,
			Caption:         doc.Caption,
			MessageThreadID: threadID,
		}
		if id := parseOptionalInt(msg.ReplyToID); id != 0 && len(parts) == 0 {
			req.ReplyParameters = &ReplyParameters{MessageID: id, AllowSendingWithoutReply: true}
		}
		if _, err := t.client.SendDocument(ctx, req); err != nil {
			return fmt.Errorf("telegram: send document: %w", err)
		}
	}

	return nil
}

// parseOptionalInt converts a string to int, returning 0 for empty or
// invalid values.
func parseOptionalInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
