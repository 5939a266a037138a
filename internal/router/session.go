package router

import (
	"time"

	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/pkg/message"
)

// SessionKey identifies a conversation by channel, chat and thread.
type SessionKey struct {
	Channel  string
	ChatID   string
	ThreadID string
}

// SessionKeyFromMessage derives a SessionKey from an inbound message.
func SessionKeyFromMessage(msg message.InboundMessage) SessionKey {
	return SessionKey{
		Channel:  msg.Channel,
		ChatID:   msg.Chat.ID,
		ThreadID: msg.Chat.ThreadID,
	}
}

// String returns the key used by persistent history stores.
func (k SessionKey) String() string {
	s := k.Channel + ":" + k.ChatID
	if k.ThreadID != "" {
		s += ":" + k.ThreadID
	}
	return s
}

// Session is one chat's conversation state. History holds user and
// assistant turns only; tool traffic stays inside an agent run.
type Session struct {
	ID           string
	Key          SessionKey
	Title        string
	CreatedAt    time.Time
	LastActiveAt time.Time
	History      []provider.LLMMessage
	Runs         int
}

// SessionStore manages session lifecycle. Implementations must be safe for
// concurrent use; a session's fields are guarded by its lane.
type SessionStore interface {
	// GetOrCreate returns the session for key, creating it when missing.
	// The bool reports whether it was created.
	GetOrCreate(key SessionKey) (*Session, bool)

	// Get returns the session for key, or nil.
	Get(key SessionKey) *Session

	// Touch updates LastActiveAt.
	Touch(key SessionKey)

	// Delete removes the session for key.
	Delete(key SessionKey)

	// Prune removes sessions idle longer than maxIdle, leaving those skip
	// accepts, and returns how many went.
	Prune(maxIdle time.Duration, skip func(SessionKey) bool) int

	// Len returns the number of sessions.
	Len() int

	// Keys lists the session keys in a stable order.
	Keys() []SessionKey
}

// historyCopy returns a copy of the history. Safe on a nil session.
func (s *Session) historyCopy() []provider.LLMMessage {
	if s == nil {
		return nil
	}
	return append([]provider.LLMMessage(nil), s.History...)
}
