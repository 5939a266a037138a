package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/flemzord/tgmcp/internal/provider"
)

const providerProbeTimeout = 10 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string        `json:"status"` // "ok" or "degraded"
	Sessions int           `json:"sessions"`
	MCP      MCPSummary    `json:"mcp"`
	Provider *ProviderInfo `json:"provider,omitempty"`
}

// MCPSummary counts configured and connected MCP servers.
type MCPSummary struct {
	Configured int `json:"configured"`
	Connected  int `json:"connected"`
}

// ProviderInfo describes the LLM backend.
type ProviderInfo struct {
	Model string `json:"model"`
	Error string `json:"error,omitempty"`
}

// handleHealth answers GET /health. Disconnected MCP servers are reported
// but do not fail the check: the bot keeps serving with the others. With
// ?probe=provider the LLM backend is called too and a failure returns 503.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.RLock()
		sessions, mcpStatus, p := g.sessions, g.mcp, g.provider
		g.mu.RUnlock()

		resp := HealthResponse{Status: "ok"}
		if sessions != nil {
			resp.Sessions = sessions.SessionCount()
		}
		if mcpStatus != nil {
			resp.MCP = summarizeMCP(mcpStatus)
		}

		if p != nil {
			resp.Provider = &ProviderInfo{Model: p.ModelName()}
			if r.URL.Query().Get("probe") == "provider" {
				if err := probe(r.Context(), p); err != nil {
					resp.Status = "degraded"
					resp.Provider.Error = err.Error()
				}
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

func probe(ctx context.Context, p provider.Provider) error {
	hc, ok := p.(provider.HealthChecker)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, providerProbeTimeout)
	defer cancel()
	return hc.HealthCheck(ctx)
}

func summarizeMCP(s MCPStatus) MCPSummary {
	var out MCPSummary
	for _, st := range s.Status() {
		out.Configured++
		if st.Connected {
			out.Connected++
		}
	}
	return out
}
