package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/tgmcp/internal/agent"
	"github.com/flemzord/tgmcp/internal/channel"
	"github.com/flemzord/tgmcp/internal/channel/channeltest"
	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/pkg/message"
)

type agentFunc func(ctx context.Context, req agent.Request) (agent.Response, error)

func (f agentFunc) Run(ctx context.Context, req agent.Request) (agent.Response, error) {
	return f(ctx, req)
}

// echoAgent answers with the last user message.
func echoAgent() agentFunc {
	return func(_ context.Context, req agent.Request) (agent.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		return agent.Response{
			Content:    "echo: " + last.Content,
			StopReason: agent.StopReasonComplete,
			TotalUsage: provider.TokenUsage{TotalTokens: 10},
		}, nil
	}
}

type memoryHistory struct {
	mu   sync.Mutex
	msgs map[string][]provider.LLMMessage
	err  error
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{msgs: make(map[string][]provider.LLMMessage)}
}

func (h *memoryHistory) Load(_ context.Context, key string, limit int) ([]provider.LLMMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	msgs := h.msgs[key]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]provider.LLMMessage(nil), msgs...), nil
}

func (h *memoryHistory) Append(_ context.Context, key string, msgs ...provider.LLMMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs[key] = append(h.msgs[key], msgs...)
	return nil
}

func (h *memoryHistory) Clear(_ context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.msgs, key)
	return nil
}

func (h *memoryHistory) get(key string) []provider.LLMMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]provider.LLMMessage(nil), h.msgs[key]...)
}

type upperExtractor struct{}

func (upperExtractor) Supports(mimeType, _ string) bool { return mimeType == "application/pdf" }

func (upperExtractor) Extract(_ string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}
	return "PDF:" + string(data), nil
}

type stubExporter struct{ titles []string }

func (e *stubExporter) Export(title string, history []provider.LLMMessage) ([]byte, error) {
	e.titles = append(e.titles, title)
	return []byte("%PDF-" + history[0].Content), nil
}

type capturedErrors struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (c *capturedErrors) CaptureError(err error, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	c.tags = append(c.tags, tags)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

// newTestPipeline wires a pipeline to a mock "telegram" channel.
func newTestPipeline(t *testing.T, cfg PipelineConfig) (*Pipeline, *channeltest.MockChannel) {
	t.Helper()
	mock := channeltest.NewMockChannel("telegram", nil)
	d := channel.NewDispatcher()
	if err := d.Register("telegram", mock); err != nil {
		t.Fatal(err)
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.LaneLock == nil {
		cfg.LaneLock = NewLaneLock()
	}
	if cfg.Agent == nil {
		cfg.Agent = echoAgent()
	}
	cfg.Sender = d
	cfg.Files = d
	return NewPipeline(cfg), mock
}

func privateMsg(id, text string) message.InboundMessage {
	return message.InboundMessage{
		ID:      id,
		Channel: "telegram",
		Chat:    message.Chat{ID: "100", Type: message.ChatPrivate},
		Sender:  message.Sender{ID: "7", Username: "ann", DisplayName: "Ann"},
		Blocks:  []message.ContentBlock{message.NewTextBlock(text)},
	}
}

func groupMsg(id, text string) message.InboundMessage {
	msg := privateMsg(id, text)
	msg.Chat = message.Chat{ID: "-200", Type: message.ChatGroup, Title: "Team"}
	return msg
}

func envFor(msg message.InboundMessage) envelope {
	return envelope{Message: msg, Key: SessionKeyFromMessage(msg), Received: time.Now()}
}

func withCommand(msg message.InboundMessage, name string) message.InboundMessage {
	msg.Command = &message.Command{Name: name}
	return msg
}
