package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/flemzord/tgmcp/internal/channel"
	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/gateway"
	"github.com/flemzord/tgmcp/pkg/message"
	"gopkg.in/yaml.v3"
)

// ModuleID is the ID and channel name of the Telegram channel.
const ModuleID = "channel.telegram"

func init() {
	core.RegisterModule(&Telegram{})
}

var (
	_ channel.Channel       = (*Telegram)(nil)
	_ channel.TypingChannel = (*Telegram)(nil)
	_ channel.FileFetcher   = (*Telegram)(nil)
	_ core.Configurable     = (*Telegram)(nil)
	_ core.Provisioner      = (*Telegram)(nil)
	_ core.Validator        = (*Telegram)(nil)
	_ core.Starter          = (*Telegram)(nil)
	_ core.Stopper          = (*Telegram)(nil)
)

// webhookRegistrar is the part of the gateway dispatcher the channel uses.
type webhookRegistrar interface {
	Register(source string, h gateway.WebhookHandler, verify gateway.Verifier)
}

// Telegram is the Telegram Bot API channel.
type Telegram struct {
	config    Config
	client    *Client
	logger    *slog.Logger
	allowList *channel.AllowList
	appCtx    *core.AppContext

	mu    sync.RWMutex
	inbox func(message.InboundMessage) error
	conv  inboundConverter

	poller  *Poller
	webhook *WebhookReceiver
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.appCtx = ctx
	t.logger = ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL)
	t.allowList = channel.NewAllowList(t.config.AllowUsers, t.config.AllowGroups)
	t.conv = inboundConverter{botUsername: t.config.BotUsername, channelName: ModuleID}
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	return t.config.validate()
}

// Start authenticates the bot with getMe, then starts polling or registers
// the webhook.
func (t *Telegram) Start() error {
	t.mu.RLock()
	hasInbox := t.inbox != nil
	t.mu.RUnlock()
	if !hasInbox {
		return errors.New("telegram: inbox not set, call SetInbox before Start")
	}

	ctx := context.Background()
	user, err := t.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}

	t.mu.Lock()
	t.conv.botID = user.ID
	if t.conv.botUsername == "" {
		t.conv.botUsername = user.Username
	}
	t.mu.Unlock()

	if t.config.BotUsername != "" && user.Username != "" && t.config.BotUsername != user.Username {
		t.logger.Warn("telegram: configured bot username differs from getMe",
			"configured", t.config.BotUsername,
			"actual", user.Username,
		)
	}
	t.logger.Info("telegram bot authenticated", "id", user.ID, "username", user.Username)

	switch t.config.Mode {
	case ModeWebhook:
		return t.startWebhook(ctx)
	default:
		// A leftover webhook makes getUpdates fail with 409.
		if err := t.client.DeleteWebhook(ctx); err != nil {
			t.logger.Warn("telegram: deleteWebhook before polling failed", "error", err)
		}
		t.poller = NewPoller(t.client, t.handleUpdate, t.logger, t.config)
		t.poller.Start()
		t.logger.Info("telegram polling started", "timeout", t.config.pollingTimeout())
		return nil
	}
}

func (t *Telegram) startWebhook(ctx context.Context) error {
	if t.config.WebhookSecret == "" {
		t.logger.Warn("telegram webhook running without webhook_secret")
	}
	registrar, ok := core.ServiceAs[webhookRegistrar](t.appCtx, "gateway.webhook_dispatcher")
	if !ok {
		return errors.New("telegram: webhook mode needs the gateway.http module")
	}

	t.webhook = NewWebhookReceiver(t.handleUpdate)
	registrar.Register("telegram", t.webhook, webhookVerifier(t.config.WebhookSecret))

	if err := t.client.SetWebhook(ctx, SetWebhookRequest{
		URL:            t.config.WebhookURL,
		SecretToken:    t.config.WebhookSecret,
		AllowedUpdates: t.config.AllowedUpdates,
	}); err != nil {
		return fmt.Errorf("telegram: setWebhook failed: %w", err)
	}
	t.logger.Info("telegram webhook configured", "url", t.config.WebhookURL)
	return nil
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	t.logger.Info("telegram channel stopping")

	if t.poller != nil {
		t.poller.Stop()
	}
	if t.webhook != nil {
		if err := t.client.DeleteWebhook(ctx); err != nil {
			t.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
		}
	}
	return nil
}

// handleUpdate converts an update, applies the allow-list and pushes the
// message to the inbox.
func (t *Telegram) handleUpdate(update *Update) {
	t.mu.RLock()
	conv, inbox := t.conv, t.inbox
	t.mu.RUnlock()

	msg, err := conv.convert(update)
	if err != nil {
		t.logger.Debug("skipping update", "update_id", update.UpdateID, "reason", err)
		return
	}
	if !t.allowList.IsAllowed(msg) {
		t.logger.Debug("update denied by allow list",
			"update_id", update.UpdateID,
			"sender", msg.Sender.ID,
			"chat", msg.Chat.ID,
		)
		return
	}
	if err := inbox(msg); err != nil {
		t.logger.Warn("failed to deliver update to inbox", "update_id", update.UpdateID, "error", err)
	}
}

// Send implements channel.Channel.
func (t *Telegram) Send(ctx context.Context, msg message.OutboundMessage) error {
	return t.sendOutbound(ctx, msg)
}

// SetInbox implements channel.Channel.
func (t *Telegram) SetInbox(fn func(msg message.InboundMessage) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = fn
}

// SendTyping implements channel.TypingChannel.
func (t *Telegram) SendTyping(ctx context.Context, chat message.Chat) error {
	chatID, err := strconv.ParseInt(chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", chat.ID, err)
	}
	return t.client.SendChatAction(ctx, chatID, parseOptionalInt(chat.ThreadID), "typing")
}

// FetchFile implements channel.FileFetcher.
func (t *Telegram) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	return t.client.DownloadFile(ctx, fileID)
}
