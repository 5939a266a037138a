package telegram

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// newTestTelegram returns a provisioned channel pointing at apiURL.
func newTestTelegram(t *testing.T, apiURL string) *Telegram {
	t.Helper()
	tg := &Telegram{config: Config{Token: "123:ABC", BotUsername: "test_bot", APIURL: apiURL}}
	tg.config.defaults()
	tg.logger = discardLogger()
	tg.client = NewClient(tg.config.Token, apiURL)
	tg.conv = inboundConverter{botID: 999, botUsername: "test_bot", channelName: ModuleID}
	return tg
}
