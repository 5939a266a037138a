package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler builds the chi mux with every route wired.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	// Public.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", g.metrics.Handler())

	// Webhooks carry their own authentication per source.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// Admin endpoints are not mounted without credentials.
	if g.config.Auth.IsConfigured() {
		r.Route("/api", func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.logger))
			r.Get("/status", g.handleStatus())
			r.Get("/sessions", g.handleListSessions())
			r.Post("/sessions/prune", g.handlePruneSessions())
			r.Get("/mcp", g.handleListMCP())
			r.Post("/mcp/{server}/reconnect", g.handleReconnectMCP())
			r.Get("/jobs", g.handleListJobs())
			r.Post("/jobs/{name}/run", g.handleRunJob())
			r.Get("/modules", g.handleListModules())
			r.Get("/events", g.events.ServeHTTP)
		})
	}

	return r
}
