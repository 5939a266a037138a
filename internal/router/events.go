package router

import (
	"time"

	"github.com/flemzord/tgmcp/internal/agent"
)

// EventType names a router event.
type EventType string

// Router event types.
const (
	EventReceived EventType = "message.received"
	EventFiltered EventType = "message.filtered"
	EventCommand  EventType = "command"
	EventReplied  EventType = "reply.sent"
	EventFailed   EventType = "reply.failed"
)

// Event describes one step of message handling. Text fields are not
// included; only metadata leaves the router.
type Event struct {
	Type       EventType         `json:"type"`
	Time       time.Time         `json:"time"`
	Channel    string            `json:"channel"`
	ChatID     string            `json:"chat_id"`
	SessionID  string            `json:"session_id,omitempty"`
	Command    string            `json:"command,omitempty"`
	Duration   time.Duration     `json:"duration_ns,omitempty"`
	StopReason agent.StopReason  `json:"stop_reason,omitempty"`
	Tools      []string          `json:"tools,omitempty"`
	Tokens     int               `json:"tokens,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventSink receives router events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// EventSinks fans events out.
type EventSinks []EventSink

// Publish implements EventSink.
func (s EventSinks) Publish(e Event) {
	for _, sink := range s {
		sink.Publish(e)
	}
}
