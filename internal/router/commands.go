package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/tgmcp/pkg/message"
)

// Command replies.
const (
	HelpText        = "Help!"
	ResetText       = "Conversation history cleared."
	NothingToExport = "Nothing to export yet."
)

// handleCommand answers the built-in commands. It reports false for
// commands it does not know, which then go through the trigger policy.
func (p *Pipeline) handleCommand(ctx context.Context, env envelope, logger *slog.Logger) (bool, PipelineResult) {
	msg := env.Message
	name := strings.ToLower(msg.Command.Name)

	var (
		out message.OutboundMessage
		err error
	)
	switch name {
	case "start":
		out = buildStartReply(msg)
	case "help":
		out = message.NewReply(msg, HelpText)
		out.Hints = &message.Hints{Quote: true}
	case "reset":
		out, err = p.reset(ctx, env)
	case "export":
		out, err = p.export(ctx, env)
	default:
		return false, PipelineResult{}
	}

	p.publish(Event{Type: EventCommand, Channel: env.Key.Channel, ChatID: env.Key.ChatID, Command: name})
	if err != nil {
		logger.Error("pipeline: command failed", "command", name, "error", err)
		out = buildErrorReply(msg, err)
	}
	_ = p.send(ctx, out, logger)
	return true, PipelineResult{Skipped: true, Error: err}
}

func (p *Pipeline) reset(ctx context.Context, env envelope) (message.OutboundMessage, error) {
	if err := p.cfg.LaneLock.Acquire(ctx, env.Key); err != nil {
		return message.OutboundMessage{}, err
	}
	defer p.cfg.LaneLock.Release(env.Key)

	if s := p.cfg.Store.Get(env.Key); s != nil {
		s.History = nil
	}
	if p.cfg.History != nil {
		if err := p.cfg.History.Clear(ctx, env.Key.String()); err != nil {
			return message.OutboundMessage{}, fmt.Errorf("clear history: %w", err)
		}
	}
	out := message.NewReply(env.Message, ResetText)
	out.Hints = &message.Hints{Quote: true}
	return out, nil
}

func (p *Pipeline) export(ctx context.Context, env envelope) (message.OutboundMessage, error) {
	if p.cfg.Exporter == nil {
		return message.OutboundMessage{}, ErrNoExporter
	}

	if err := p.cfg.LaneLock.Acquire(ctx, env.Key); err != nil {
		return message.OutboundMessage{}, err
	}
	s := p.cfg.Store.Get(env.Key)
	var (
		title   string
		history = s.historyCopy()
	)
	if s != nil {
		title = s.Title
	}
	p.cfg.LaneLock.Release(env.Key)

	if len(history) == 0 {
		out := message.NewReply(env.Message, NothingToExport)
		out.Hints = &message.Hints{Quote: true}
		return out, nil
	}
	if title == "" {
		title = env.Message.Sender.Name()
	}

	data, err := p.cfg.Exporter.Export(title, history)
	if err != nil {
		return message.OutboundMessage{}, fmt.Errorf("export transcript: %w", err)
	}

	out := message.OutboundMessage{
		Channel:   env.Message.Channel,
		Chat:      env.Message.Chat,
		ReplyToID: env.Message.ID,
		Document: &message.Document{
			FileName: "transcript-" + time.Now().UTC().Format("20060102-150405") + ".pdf",
			MIMEType: "application/pdf",
			Data:     data,
			Caption:  fmt.Sprintf("%d messages", len(history)),
		},
	}
	return out, nil
}
