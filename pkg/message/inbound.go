package message

import (
	"encoding/json"
	"time"
)

// InboundMessage is a message received from a channel.
type InboundMessage struct {
	ID        string         `json:"id"`
	Channel   string         `json:"channel"`
	Chat      Chat           `json:"chat"`
	Sender    Sender         `json:"sender"`
	Blocks    []ContentBlock `json:"blocks"`
	Mentions  []Mention      `json:"mentions,omitempty"`
	Command   *Command       `json:"command,omitempty"`
	ReplyTo   *ReplyRef      `json:"reply_to,omitempty"`
	CreatedAt time.Time      `json:"created_at"`

	// IsMentioned is set by the channel when the bot itself is mentioned.
	IsMentioned bool `json:"is_mentioned,omitempty"`

	// Raw keeps the platform payload for debugging.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Command is a slash command addressed to the bot ("/help", "/start").
type Command struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

// ReplyRef describes the message an inbound message replies to.
type ReplyRef struct {
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id,omitempty"`
	Text      string `json:"text,omitempty"`

	// ToBot is true when the replied-to message was sent by this bot.
	ToBot bool `json:"to_bot,omitempty"`
}

// TextContent returns the text of the message.
func (m InboundMessage) TextContent() string {
	return TextContent(m.Blocks)
}

// IsPrivate reports whether the message comes from a one-to-one chat.
func (m InboundMessage) IsPrivate() bool {
	return m.Chat.Type == ChatPrivate
}

// IsReply reports whether the message replies to another message.
func (m InboundMessage) IsReply() bool {
	return m.ReplyTo != nil
}
