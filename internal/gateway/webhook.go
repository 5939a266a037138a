package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

// SignatureHeader carries the HMAC of generic webhook sources.
const SignatureHeader = "X-Signature-256"

// ErrWebhookUnauthorized marks credential failures. The dispatcher turns
// it into a 401, whether a Verifier or the handler returned it.
var ErrWebhookUnauthorized = errors.New("webhook: unauthorized")

// WebhookHandler consumes a verified payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// Verifier authenticates a payload before it reaches its handler.
type Verifier func(body []byte, headers http.Header) error

// HMACSignature expects SignatureHeader to hold "sha256=" followed by the
// hex HMAC-SHA256 of the body.
func HMACSignature(secret string) Verifier {
	return func(body []byte, headers http.Header) error {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(want), []byte(headers.Get(SignatureHeader))) {
			return fmt.Errorf("%w: bad signature", ErrWebhookUnauthorized)
		}
		return nil
	}
}

// SecretToken expects header to repeat token verbatim, as Telegram does
// with the secret given to setWebhook.
func SecretToken(header, token string) Verifier {
	return func(_ []byte, headers http.Header) error {
		if subtle.ConstantTimeCompare([]byte(token), []byte(headers.Get(header))) != 1 {
			return fmt.Errorf("%w: bad %s", ErrWebhookUnauthorized, header)
		}
		return nil
	}
}

type webhookRoute struct {
	handler WebhookHandler
	verify  Verifier
}

// WebhookDispatcher serves /webhooks/{source}. Sources register at start
// time; secrets from gateway config can arrive before or after.
type WebhookDispatcher struct {
	logger *slog.Logger

	mu      sync.RWMutex
	routes  map[string]webhookRoute
	secrets map[string]string
}

func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		logger:  logger,
		routes:  make(map[string]webhookRoute),
		secrets: make(map[string]string),
	}
}

// Register routes source to h. A nil verify falls back to an HMAC check
// when gateway config holds a secret for source, and to no check otherwise.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, verify Verifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[source] = webhookRoute{handler: h, verify: verify}
}

// SetSecret records the configured HMAC secret of source.
func (d *WebhookDispatcher) SetSecret(source, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.secrets[source] = secret
}

func (d *WebhookDispatcher) route(source string) (webhookRoute, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rt, ok := d.routes[source]
	if ok && rt.verify == nil && d.secrets[source] != "" {
		rt.verify = HMACSignature(d.secrets[source])
	}
	return rt, ok
}

func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source := chi.URLParam(r, "source")
	rt, ok := d.route(source)
	if !ok {
		d.logger.Warn("webhook for unknown source", "source", source)
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if rt.verify != nil {
		err = rt.verify(body, r.Header)
	}
	if err == nil {
		err = rt.handler.HandleWebhook(r.Context(), source, body, r.Header)
	}
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	case errors.Is(err, ErrWebhookUnauthorized):
		d.logger.Warn("webhook rejected", "source", source, "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
