package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/tgmcp/internal/agent"
	"github.com/flemzord/tgmcp/internal/channel"
	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/security"
	"github.com/flemzord/tgmcp/internal/tool"
	"github.com/flemzord/tgmcp/pkg/message"
)

// Defaults for the pipeline.
const (
	DefaultHistoryWindow = 5
	defaultMaxHistoryLen = 100
	maxAttachmentSize    = 20 << 20
	emptyReply           = "(empty response)"
)

// HistoryStore persists chat history across restarts.
type HistoryStore interface {
	Load(ctx context.Context, key string, limit int) ([]provider.LLMMessage, error)
	Append(ctx context.Context, key string, msgs ...provider.LLMMessage) error
	Clear(ctx context.Context, key string) error
}

// FileFetcher downloads attachments through the channel that received
// them. Implemented by channel.Dispatcher.
type FileFetcher interface {
	FetchFile(ctx context.Context, channelName, fileID string) ([]byte, error)
	Typing(name string) (channel.TypingChannel, bool)
}

// TextExtractor turns an attachment into text for the model.
type TextExtractor interface {
	Supports(mimeType, fileName string) bool
	Extract(mimeType string, data []byte) (string, error)
}

// TranscriptExporter renders a chat history as a document.
type TranscriptExporter interface {
	Export(title string, history []provider.LLMMessage) ([]byte, error)
}

// ErrorReporter forwards unexpected errors, e.g. to Sentry.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

// PipelineConfig groups the pipeline dependencies. Only Store, LaneLock,
// Agent and Sender are required.
type PipelineConfig struct {
	Store    SessionStore
	LaneLock *LaneLock
	Agent    AgentRunner
	Sender   ResponseSender
	Tools    ToolLister
	Policy   TriggerPolicy
	Pruner   *lazyPruner
	Logger   *slog.Logger

	// Instructions is the agent's system prompt.
	Instructions string

	// HistoryWindow is how many past messages the agent sees (default 5).
	HistoryWindow int

	// MaxHistoryLen caps the history kept per session (default 100).
	MaxHistoryLen int

	DataDir     string
	History     HistoryStore
	Files       FileFetcher
	Extractor   TextExtractor
	Exporter    TranscriptExporter
	Reporter    ErrorReporter
	Events      EventSink
	RateLimiter *security.RateLimiter
}

// PipelineResult contains the outcome of pipeline execution.
type PipelineResult struct {
	Session  *Session
	Response *agent.Response
	Error    error
	Skipped  bool
}

// Pipeline processes one inbound message end to end.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.MaxHistoryLen <= 0 {
		cfg.MaxHistoryLen = defaultMaxHistoryLen
	}
	if cfg.MaxHistoryLen < cfg.HistoryWindow {
		cfg.MaxHistoryLen = cfg.HistoryWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg}
}

func (p *Pipeline) publish(e Event) {
	if p.cfg.Events == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	p.cfg.Events.Publish(e)
}

// Execute runs the pipeline for a single message.
func (p *Pipeline) Execute(ctx context.Context, env envelope) PipelineResult {
	logger := p.cfg.Logger.With("channel", env.Key.Channel, "chat_id", env.Key.ChatID)
	msg := env.Message

	p.publish(Event{Type: EventReceived, Channel: env.Key.Channel, ChatID: env.Key.ChatID})

	if msg.Command != nil {
		if handled, res := p.handleCommand(ctx, env, logger); handled {
			return res
		}
	}

	if !p.cfg.Policy.ShouldProcess(msg) {
		logger.Debug("pipeline: message filtered", "sender", msg.Sender.ID)
		p.publish(Event{Type: EventFiltered, Channel: env.Key.Channel, ChatID: env.Key.ChatID})
		return PipelineResult{Skipped: true}
	}

	if err := p.cfg.LaneLock.Acquire(ctx, env.Key); err != nil {
		logger.Warn("pipeline: gave up waiting for session", "error", err)
		return PipelineResult{Error: err}
	}
	defer p.cfg.LaneLock.Release(env.Key)

	session := p.session(ctx, env.Key, msg, logger)
	start := time.Now()

	extra := p.readAttachments(ctx, msg, logger)
	userMsg := messageToLLM(msg, extra)
	p.appendHistory(ctx, session, logger, userMsg)

	var cancelTyping context.CancelFunc
	if p.cfg.Files != nil {
		if tc, ok := p.cfg.Files.Typing(env.Key.Channel); ok {
			typingCtx, cancel := context.WithCancel(ctx)
			cancelTyping = cancel
			channel.StartTypingLoop(typingCtx, tc, msg.Chat, 0)
		}
	}

	resp, err := p.run(ctx, session)

	if cancelTyping != nil {
		cancelTyping()
	}

	if err != nil {
		logger.Error("pipeline: error processing message", "error", err, "session_id", session.ID)
		p.report(err, env, session)
		p.send(ctx, buildErrorReply(msg, err), logger)
		p.publish(Event{
			Type: EventFailed, Channel: env.Key.Channel, ChatID: env.Key.ChatID,
			SessionID: session.ID, Duration: time.Since(start), Error: err.Error(),
			StopReason: resp.StopReason,
		})
		return PipelineResult{Session: session, Response: &resp, Error: err}
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		content = emptyReply
	}

	if err := p.send(ctx, buildReply(msg, content), logger); err != nil {
		p.report(err, env, session)
		return PipelineResult{Session: session, Response: &resp, Error: err}
	}

	p.appendHistory(ctx, session, logger, provider.LLMMessage{
		Role:    provider.MessageRoleAssistant,
		Content: content,
	})
	session.Runs++
	p.cfg.Store.Touch(env.Key)

	tools := make([]string, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		tools = append(tools, tc.Name)
	}
	p.publish(Event{
		Type: EventReplied, Channel: env.Key.Channel, ChatID: env.Key.ChatID,
		SessionID: session.ID, Duration: time.Since(start), StopReason: resp.StopReason,
		Tools: tools, Tokens: resp.TotalUsage.TotalTokens,
	})

	if p.cfg.Pruner != nil {
		if pruned := p.cfg.Pruner.TryPrune(); pruned > 0 {
			logger.Info("pipeline: pruned stale sessions", "count", pruned)
		}
	}

	return PipelineResult{Session: session, Response: &resp}
}

// session resolves the session for key and restores persisted history for
// new ones. Must be called with the lane held.
func (p *Pipeline) session(ctx context.Context, key SessionKey, msg message.InboundMessage, logger *slog.Logger) *Session {
	session, created := p.cfg.Store.GetOrCreate(key)
	if !created {
		return session
	}
	session.Title = msg.Chat.Title
	if session.Title == "" {
		session.Title = msg.Sender.Name()
	}
	logger.Info("pipeline: new session", "session_id", session.ID)

	if p.cfg.History != nil {
		restored, err := p.cfg.History.Load(ctx, key.String(), p.cfg.MaxHistoryLen)
		if err != nil {
			logger.Warn("pipeline: failed to restore history", "error", err)
		} else if len(restored) > 0 {
			session.History = restored
			logger.Info("pipeline: restored history", "session_id", session.ID, "messages", len(restored))
		}
	}
	return session
}

func (p *Pipeline) appendHistory(ctx context.Context, session *Session, logger *slog.Logger, msg provider.LLMMessage) {
	session.History = append(session.History, msg)
	if limit := p.cfg.MaxHistoryLen; len(session.History) > limit {
		session.History = session.History[len(session.History)-limit:]
	}
	if p.cfg.History != nil {
		if err := p.cfg.History.Append(ctx, session.Key.String(), msg); err != nil {
			logger.Warn("pipeline: failed to persist message", "session_id", session.ID, "error", err)
		}
	}
}

// run applies the token budget and calls the agent on the history window.
func (p *Pipeline) run(ctx context.Context, session *Session) (agent.Response, error) {
	if p.cfg.Agent == nil {
		return agent.Response{}, ErrNoAgent
	}
	if rl := p.cfg.RateLimiter; rl != nil {
		if err := rl.Allow(security.KindToken, ""); err != nil {
			return agent.Response{}, fmt.Errorf("hourly token budget: %w", err)
		}
	}

	req := agent.Request{
		Messages:     append([]provider.LLMMessage(nil), window(session.History, p.cfg.HistoryWindow)...),
		SystemPrompt: p.cfg.Instructions,
		Env: tool.ExecutionEnv{
			ChatID:    session.Key.ChatID,
			SessionID: session.ID,
			DataDir:   p.cfg.DataDir,
		},
	}
	if p.cfg.Tools != nil {
		req.Tools = p.cfg.Tools.Definitions()
	}

	resp, err := p.cfg.Agent.Run(ctx, req)
	if rl := p.cfg.RateLimiter; rl != nil {
		rl.Record(security.KindToken, "", resp.TotalUsage.TotalTokens)
	}
	return resp, err
}

// readAttachments extracts the text of supported file blocks. Failures are
// reported inline so the model can tell the user.
func (p *Pipeline) readAttachments(ctx context.Context, msg message.InboundMessage, logger *slog.Logger) string {
	if p.cfg.Files == nil || p.cfg.Extractor == nil {
		return ""
	}
	var parts []string
	for _, b := range msg.Blocks {
		if b.Type != message.BlockFile || !p.cfg.Extractor.Supports(b.MIMEType, b.FileName) {
			continue
		}
		text, err := p.readAttachment(ctx, msg.Channel, b)
		if err != nil {
			logger.Warn("pipeline: attachment unreadable", "file", b.FileName, "error", err)
			parts = append(parts, fmt.Sprintf("[attachment %s could not be read: %v]", b.FileName, err))
			continue
		}
		parts = append(parts, fmt.Sprintf("[attachment %s]\n%s", b.FileName, text))
	}
	return strings.Join(parts, "\n\n")
}

func (p *Pipeline) readAttachment(ctx context.Context, channelName string, b message.ContentBlock) (string, error) {
	if b.Size > maxAttachmentSize {
		return "", fmt.Errorf("file too large (%d bytes)", b.Size)
	}
	data, err := p.cfg.Files.FetchFile(ctx, channelName, b.FileID)
	if err != nil {
		return "", err
	}
	return p.cfg.Extractor.Extract(b.MIMEType, data)
}

func (p *Pipeline) send(ctx context.Context, out message.OutboundMessage, logger *slog.Logger) error {
	if err := p.cfg.Sender.Send(ctx, out); err != nil {
		logger.Error("pipeline: failed to send reply", "error", err)
		return err
	}
	return nil
}

func (p *Pipeline) report(err error, env envelope, session *Session) {
	if p.cfg.Reporter == nil || errors.Is(err, context.Canceled) {
		return
	}
	tags := map[string]string{"channel": env.Key.Channel, "chat_id": env.Key.ChatID}
	if session != nil {
		tags["session_id"] = session.ID
	}
	p.cfg.Reporter.CaptureError(err, tags)
}
