// Package channeltest provides test doubles for the channel package.
package channeltest

import (
	"context"
	"sync"

	"github.com/flemzord/tgmcp/internal/channel"
	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/pkg/message"
)

// MockChannel implements channel.TypingChannel and channel.FileFetcher.
// It records sent messages and typing calls, and lets tests push inbound
// messages through Simulate.
type MockChannel struct {
	name      string
	allowList *channel.AllowList

	// SendFunc, if set, is called instead of recording.
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error

	// Files backs FetchFile.
	Files map[string][]byte

	mu     sync.Mutex
	inbox  func(msg message.InboundMessage) error
	sent   []message.OutboundMessage
	typing []message.Chat
	notify chan struct{}
}

var (
	_ channel.TypingChannel = (*MockChannel)(nil)
	_ channel.FileFetcher   = (*MockChannel)(nil)
)

// NewMockChannel creates a MockChannel. A nil allowList allows everyone.
func NewMockChannel(name string, allowList *channel.AllowList) *MockChannel {
	return &MockChannel{name: name, allowList: allowList, notify: make(chan struct{}, 64)}
}

// ModuleInfo implements core.Module.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID("channel." + m.name),
		New: func() core.Module { return NewMockChannel(m.name, m.allowList) },
	}
}

// Send records the outbound message, or delegates to SendFunc.
func (m *MockChannel) Send(ctx context.Context, msg message.OutboundMessage) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// SetInbox stores the inbox callback.
func (m *MockChannel) SetInbox(fn func(msg message.InboundMessage) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// SendTyping records the chat.
func (m *MockChannel) SendTyping(_ context.Context, chat message.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, chat)
	return nil
}

// FetchFile returns Files[fileID].
func (m *MockChannel) FetchFile(_ context.Context, fileID string) ([]byte, error) {
	data, ok := m.Files[fileID]
	if !ok {
		return nil, channel.ErrNoFiles
	}
	return data, nil
}

// Simulate pushes msg through the allow-list into the inbox, tagged with
// this channel's name.
func (m *MockChannel) Simulate(msg message.InboundMessage) error {
	m.mu.Lock()
	inbox := m.inbox
	m.mu.Unlock()

	if !m.allowList.IsAllowed(msg) {
		return channel.ErrDenied
	}
	if inbox == nil {
		return channel.ErrNoInbox
	}
	msg.Channel = m.name
	return inbox(msg)
}

// Sent returns a copy of the recorded outbound messages.
func (m *MockChannel) Sent() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// TypingChats returns a copy of the chats that received typing indicators.
func (m *MockChannel) TypingChats() []message.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.Chat, len(m.typing))
	copy(out, m.typing)
	return out
}

// Notify receives a value after every recorded Send.
func (m *MockChannel) Notify() <-chan struct{} { return m.notify }
