package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/flemzord/tgmcp/pkg/message"
)

// errOtherBot marks commands addressed to another bot ("/help@other_bot").
var errOtherBot = errors.New("command addressed to another bot")

// inboundConverter turns Telegram updates into platform-neutral messages.
type inboundConverter struct {
	botID       int64
	botUsername string
	channelName string
}

// convert transforms an Update into an InboundMessage.
func (c inboundConverter) convert(update *Update) (message.InboundMessage, error) {
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: update %d contains no message", update.UpdateID)
	}

	raw, err := json.Marshal(update)
	if err != nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: marshal update: %w", err)
	}

	inbound := message.InboundMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Channel:   c.channelName,
		Chat:      convertChat(msg),
		Sender:    convertSender(msg.From),
		Blocks:    convertBlocks(msg),
		CreatedAt: time.Unix(int64(msg.Date), 0),
		Raw:       raw,
	}

	text, entities := msg.Text, msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}

	cmd, err := c.parseCommand(text, entities)
	if err != nil {
		return message.InboundMessage{}, err
	}
	inbound.Command = cmd
	inbound.Mentions, inbound.IsMentioned = c.extractMentions(text, entities)
	inbound.ReplyTo = c.replyRef(msg)

	return inbound, nil
}

func convertSender(user *User) message.Sender {
	if user == nil {
		return message.Sender{}
	}
	displayName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	return message.Sender{
		ID:          strconv.FormatInt(user.ID, 10),
		Username:    user.Username,
		DisplayName: displayName,
		IsBot:       user.IsBot,
	}
}

func convertChat(msg *Message) message.Chat {
	chat := message.Chat{
		ID:    strconv.FormatInt(msg.Chat.ID, 10),
		Type:  mapChatType(msg.Chat.Type),
		Title: msg.Chat.Title,
	}
	if msg.IsTopicMessage && msg.MessageThreadID != 0 {
		chat.ThreadID = strconv.Itoa(msg.MessageThreadID)
	}
	return chat
}

func mapChatType(tgType string) message.ChatType {
	switch tgType {
	case "private":
		return message.ChatPrivate
	case "channel":
		return message.ChatChannel
	default:
		return message.ChatGroup
	}
}

// convertBlocks keeps the text (or caption) and references to attached
// files. Files are downloaded lazily through FetchFile.
func convertBlocks(msg *Message) []message.ContentBlock {
	var blocks []message.ContentBlock

	if msg.Text != "" {
		blocks = append(blocks, message.NewTextBlock(msg.Text))
	} else if msg.Caption != "" {
		blocks = append(blocks, message.NewTextBlock(msg.Caption))
	}

	if d := msg.Document; d != nil {
		blocks = append(blocks, message.NewFileBlock(d.FileID, d.MIMEType, d.FileName, d.FileSize))
	}
	if n := len(msg.Photo); n > 0 {
		blocks = append(blocks, message.NewImageBlock(msg.Photo[n-1].FileID, "image/jpeg"))
	}
	return blocks
}

// parseCommand reads a bot_command entity at the start of the text.
func (c inboundConverter) parseCommand(text string, entities []MessageEntity) (*message.Command, error) {
	for _, ent := range entities {
		if ent.Type != "bot_command" || ent.Offset != 0 {
			continue
		}
		token := strings.TrimPrefix(entityText(text, ent.Offset, ent.Length), "/")
		name, target, addressed := strings.Cut(token, "@")
		if addressed && !strings.EqualFold(target, c.botUsername) {
			return nil, errOtherBot
		}
		var args string
		if encoded := utf16.Encode([]rune(text)); ent.Length < len(encoded) {
			args = strings.TrimSpace(string(utf16.Decode(encoded[ent.Length:])))
		}
		return &message.Command{Name: strings.ToLower(name), Args: args}, nil
	}
	return nil, nil
}

// extractMentions lists the users mentioned in the text and reports
// whether the bot itself is one of them.
func (c inboundConverter) extractMentions(text string, entities []MessageEntity) ([]message.Mention, bool) {
	var (
		mentions  []message.Mention
		mentioned bool
	)
	for _, ent := range entities {
		switch ent.Type {
		case "mention":
			username := strings.TrimPrefix(entityText(text, ent.Offset, ent.Length), "@")
			if username == "" {
				continue
			}
			mentions = append(mentions, message.Mention{Username: username})
			if c.botUsername != "" && strings.EqualFold(username, c.botUsername) {
				mentioned = true
			}
		case "text_mention":
			if ent.User == nil {
				continue
			}
			mentions = append(mentions, message.Mention{
				Username: ent.User.Username,
				UserID:   strconv.FormatInt(ent.User.ID, 10),
			})
			if c.botID != 0 && ent.User.ID == c.botID {
				mentioned = true
			}
		}
	}
	return mentions, mentioned
}

// replyRef describes the replied-to message. In forum topics every message
// implicitly replies to the topic's first message; that is not a reply.
func (c inboundConverter) replyRef(msg *Message) *message.ReplyRef {
	r := msg.ReplyToMessage
	if r == nil {
		return nil
	}
	if msg.IsTopicMessage && r.MessageID == msg.MessageThreadID {
		return nil
	}

	ref := &message.ReplyRef{
		MessageID: strconv.Itoa(r.MessageID),
		Text:      r.Text,
	}
	if ref.Text == "" {
		ref.Text = r.Caption
	}
	if r.From != nil {
		ref.SenderID = strconv.FormatInt(r.From.ID, 10)
		ref.ToBot = r.From.ID == c.botID ||
			(r.From.IsBot && c.botUsername != "" && strings.EqualFold(r.From.Username, c.botUsername))
	}
	return ref
}

// entityText extracts a substring using UTF-16 offsets, which is what
// Telegram uses for entity offsets and lengths.
func entityText(text string, offset, length int) string {
	encoded := utf16.Encode([]rune(text))
	if offset < 0 || offset >= len(encoded) {
		return ""
	}
	end := min(offset+length, len(encoded))
	return string(utf16.Decode(encoded[offset:end]))
}
