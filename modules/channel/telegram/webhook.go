package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flemzord/tgmcp/internal/gateway"
)

// SecretHeader carries the secret token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookReceiver decodes updates pushed to /webhooks/telegram. The
// gateway checks SecretHeader before the body gets here.
type WebhookReceiver struct {
	handle updateHandler
}

func NewWebhookReceiver(handle updateHandler) *WebhookReceiver {
	return &WebhookReceiver{handle: handle}
}

func (w *WebhookReceiver) HandleWebhook(_ context.Context, _ string, body []byte, _ http.Header) error {
	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("telegram: invalid update JSON: %w", err)
	}
	w.handle(&update)
	return nil
}

// webhookVerifier returns the secret token check, or nil when no secret
// is configured and the gateway's own settings apply.
func webhookVerifier(secret string) gateway.Verifier {
	if secret == "" {
		return nil
	}
	return gateway.SecretToken(SecretHeader, secret)
}
