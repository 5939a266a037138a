// Package gateway provides the HTTP server for monitoring, webhooks and
// administration. It binds to loopback by default and follows the module
// system pattern.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/cron"
	"github.com/flemzord/tgmcp/internal/mcp"
	"github.com/flemzord/tgmcp/internal/router"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Version          string          `json:"version,omitempty"`
	Uptime           time.Duration   `json:"uptime_ns"`
	Metrics          MetricsSnapshot `json:"metrics"`
	Sessions         int             `json:"sessions"`
	MCP              MCPSummary      `json:"mcp"`
	Model            string          `json:"model,omitempty"`
	EventSubscribers int             `json:"event_subscribers"`
	EventsDropped    int64           `json:"events_dropped"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.mu.RLock()
		sessions, mcpStatus, p, version := g.sessions, g.mcp, g.provider, g.version
		g.mu.RUnlock()

		resp := StatusResponse{
			Version:          version,
			Uptime:           time.Since(g.startedAt).Truncate(time.Second),
			Metrics:          g.metrics.Snapshot(),
			EventSubscribers: g.events.Subscribers(),
			EventsDropped:    g.events.Dropped(),
		}
		if sessions != nil {
			resp.Sessions = sessions.SessionCount()
		}
		if mcpStatus != nil {
			resp.MCP = summarizeMCP(mcpStatus)
		}
		if p != nil {
			resp.Model = p.ModelName()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.mu.RLock()
		sessions := g.sessions
		g.mu.RUnlock()

		out := []router.SessionInfo{}
		if sessions != nil {
			out = sessions.Snapshot()
			slices.SortFunc(out, func(a, b router.SessionInfo) int {
				return b.LastActiveAt.Compare(a.LastActiveAt)
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) handlePruneSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.mu.RLock()
		sessions := g.sessions
		g.mu.RUnlock()

		if sessions == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "router not running"})
			return
		}
		n := sessions.PruneSessions()
		g.logger.Info("sessions pruned from admin API", "count", n)
		writeJSON(w, http.StatusOK, map[string]int{"pruned": n})
	}
}

func (g *Gateway) handleListMCP() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.mu.RLock()
		mcpStatus := g.mcp
		g.mu.RUnlock()

		out := []mcp.ServerStatus{}
		if mcpStatus != nil {
			out = mcpStatus.Status()
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) handleReconnectMCP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.RLock()
		mcpStatus := g.mcp
		g.mu.RUnlock()

		if mcpStatus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no MCP servers configured"})
			return
		}

		name := chi.URLParam(r, "server")
		err := mcpStatus.Reconnect(r.Context(), name)
		switch {
		case errors.Is(err, mcp.ErrUnknownServer):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case err != nil:
			g.logger.Warn("MCP reconnect from admin API failed", "server", name, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			g.logger.Info("MCP server reconnected from admin API", "server", name)
			writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
		}
	}
}

func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.mu.RLock()
		jobs := g.jobs
		g.mu.RUnlock()

		out := []cron.JobStatus{}
		if jobs != nil {
			out = jobs.Status()
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleRunJob runs a job synchronously and reports its outcome.
func (g *Gateway) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.RLock()
		jobs := g.jobs
		g.mu.RUnlock()

		if jobs == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not running"})
			return
		}

		name := chi.URLParam(r, "name")
		err := jobs.RunNow(r.Context(), name)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, cron.ErrJobBusy):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case err != nil:
			g.logger.Warn("job run from admin API failed", "job", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			g.logger.Info("job run from admin API", "job", name)
			writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
		}
	}
}

// moduleJSON describes a compiled-in module.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Enabled:   g.appCtx != nil && g.appCtx.HasModuleConfig(string(m.ID)),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
