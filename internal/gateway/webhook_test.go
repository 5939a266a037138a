package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type recordingHandler struct {
	calls  int
	source string
	body   []byte
	err    error
}

func (h *recordingHandler) HandleWebhook(_ context.Context, source string, body []byte, _ http.Header) error {
	h.calls++
	h.source = source
	h.body = body
	return h.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(d *WebhookDispatcher, source string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/webhooks/{source}", d.ServeHTTP)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+source, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestWebhookDispatcher(t *testing.T) {
	t.Parallel()

	body := []byte(`{"update_id":42}`)
	tests := []struct {
		name       string
		verify     Verifier
		secret     string // gateway config
		handlerErr error
		headers    map[string]string
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "no verification",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "telegram secret token",
			verify:     SecretToken("X-Telegram-Bot-Api-Secret-Token", "tg-secret"),
			headers:    map[string]string{"X-Telegram-Bot-Api-Secret-Token": "tg-secret"},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "wrong secret token",
			verify:     SecretToken("X-Telegram-Bot-Api-Secret-Token", "tg-secret"),
			headers:    map[string]string{"X-Telegram-Bot-Api-Secret-Token": "guess"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "hmac from config",
			secret:     "cfg-secret",
			headers:    map[string]string{SignatureHeader: sign(body, "cfg-secret")},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "hmac missing",
			secret:     "cfg-secret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "explicit verifier wins over config",
			verify:     SecretToken("X-Token", "t"),
			secret:     "cfg-secret",
			headers:    map[string]string{"X-Token": "t"},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "handler rejects credentials",
			handlerErr: fmt.Errorf("stale token: %w", ErrWebhookUnauthorized),
			wantStatus: http.StatusUnauthorized,
			wantCalled: true,
		},
		{
			name:       "handler fails",
			handlerErr: errors.New("decode failed"),
			wantStatus: http.StatusInternalServerError,
			wantCalled: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &recordingHandler{err: tt.handlerErr}
			d := NewWebhookDispatcher(testLogger())
			if tt.secret != "" {
				d.SetSecret("telegram", tt.secret)
			}
			d.Register("telegram", h, tt.verify)

			rr := postWebhook(d, "telegram", body, tt.headers)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if (h.calls > 0) != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", h.calls > 0, tt.wantCalled)
			}
			if tt.wantCalled && (h.source != "telegram" || !bytes.Equal(h.body, body)) {
				t.Errorf("handler got source=%q body=%q", h.source, h.body)
			}
		})
	}
}

func TestWebhookDispatcher_SecretAfterRegister(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	d := NewWebhookDispatcher(testLogger())
	d.Register("alerts", h, nil)
	d.SetSecret("alerts", "late")

	body := []byte(`{}`)
	if rr := postWebhook(d, "alerts", body, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("unsigned status = %d", rr.Code)
	}
	if rr := postWebhook(d, "alerts", body, map[string]string{SignatureHeader: sign(body, "late")}); rr.Code != http.StatusOK {
		t.Errorf("signed status = %d", rr.Code)
	}
}

func TestWebhookDispatcher_UnknownSource(t *testing.T) {
	t.Parallel()

	rr := postWebhook(NewWebhookDispatcher(testLogger()), "github", []byte(`{}`), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestWebhookDispatcher_PayloadTooLarge(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	d := NewWebhookDispatcher(testLogger())
	d.Register("telegram", h, nil)

	rr := postWebhook(d, "telegram", bytes.Repeat([]byte("a"), maxWebhookBody+1), nil)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
	if h.calls != 0 {
		t.Error("handler saw an oversized payload")
	}
}

func TestWebhookDispatcher_WrongMethod(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	NewWebhookDispatcher(testLogger()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/telegram", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}
