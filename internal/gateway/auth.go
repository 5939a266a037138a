package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// tokenQueryParam carries the bearer token on WebSocket upgrades, where
// browsers cannot set an Authorization header.
const tokenQueryParam = "access_token"

// authMiddleware guards the admin API with the configured bearer token or
// basic credentials. Comparisons run in constant time.
func authMiddleware(cfg AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch reason := checkCredentials(cfg, r); reason {
			case "":
				next.ServeHTTP(w, r)
			default:
				if logger != nil {
					logger.Warn("gateway: unauthorized request",
						"reason", reason,
						"remote_addr", r.RemoteAddr,
						"method", r.Method,
						"path", r.URL.Path,
					)
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="tgmcp"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
		})
	}
}

// checkCredentials returns why r is refused, or "" when it is allowed.
func checkCredentials(cfg AuthConfig, r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		if cfg.BearerToken != "" && isWebSocketUpgrade(r) {
			if tok := r.URL.Query().Get(tokenQueryParam); tok != "" {
				if constantTimeEqual(tok, cfg.BearerToken) {
					return ""
				}
				return "invalid query token"
			}
		}
		return "missing authorization header"
	}

	if cfg.BearerToken != "" {
		if tok, ok := strings.CutPrefix(header, "Bearer "); ok && constantTimeEqual(tok, cfg.BearerToken) {
			return ""
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
			return ""
		}
	}
	return "invalid credentials"
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
