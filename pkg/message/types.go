// Package message defines the platform-neutral messages exchanged between
// channels and the router.
package message

// ChatType classifies a conversation.
type ChatType string

// Chat types.
const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID       string   `json:"id"`
	Type     ChatType `json:"type"`
	Title    string   `json:"title,omitempty"`
	ThreadID string   `json:"thread_id,omitempty"`
}

// Sender is the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

// Name returns the most readable name available for the sender.
func (s Sender) Name() string {
	switch {
	case s.DisplayName != "":
		return s.DisplayName
	case s.Username != "":
		return "@" + s.Username
	default:
		return s.ID
	}
}

// Mention is a reference to a user inside message text.
type Mention struct {
	Username string `json:"username,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}
