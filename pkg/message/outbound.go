package message

// ParseMode tells the channel how to interpret outbound text.
type ParseMode string

// Parse modes.
const (
	ParsePlain    ParseMode = ""
	ParseHTML     ParseMode = "html"
	ParseMarkdown ParseMode = "markdown"
)

// OutboundMessage is a message to deliver through a channel.
type OutboundMessage struct {
	Channel   string         `json:"channel"`
	Chat      Chat           `json:"chat"`
	Blocks    []ContentBlock `json:"blocks"`
	ReplyToID string         `json:"reply_to_id,omitempty"`
	Hints     *Hints         `json:"hints,omitempty"`

	// Document is an optional file upload sent alongside or instead of text.
	Document *Document `json:"-"`
}

// Hints carry presentation preferences a channel may honor.
type Hints struct {
	ParseMode ParseMode `json:"parse_mode,omitempty"`

	// Quote asks for the reply to visibly quote the message it answers.
	Quote bool `json:"quote,omitempty"`

	// Expandable asks for long text to be wrapped in a collapsible block.
	Expandable bool `json:"expandable,omitempty"`

	// ForceReply opens the reply interface for the addressed user.
	ForceReply bool `json:"force_reply,omitempty"`
}

// Document is an in-memory file attached to an outbound message.
type Document struct {
	FileName string
	MIMEType string
	Data     []byte
	Caption  string
}

// NewReply builds a text reply addressed to the chat of in.
func NewReply(in InboundMessage, text string) OutboundMessage {
	return OutboundMessage{
		Channel:   in.Channel,
		Chat:      in.Chat,
		Blocks:    []ContentBlock{NewTextBlock(text)},
		ReplyToID: in.ID,
	}
}

// TextContent returns the text of the message.
func (m OutboundMessage) TextContent() string {
	return TextContent(m.Blocks)
}
