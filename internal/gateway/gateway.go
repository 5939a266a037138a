package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/cron"
	"github.com/flemzord/tgmcp/internal/mcp"
	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/router"
)

// ModuleID is the configuration key of the gateway.
const ModuleID = "gateway.http"

// Services registered and consumed by the gateway.
const (
	ServiceMetrics    = "gateway.metrics"
	ServiceEvents     = "gateway.events"
	ServiceDispatcher = "gateway.webhook_dispatcher"

	// ServiceSessions is where the app publishes the router.
	ServiceSessions = "router.sessions"

	// ServiceVersion is where the app publishes its version string.
	ServiceVersion = "app.version"

	// ServiceJobs is where the app publishes the cron scheduler.
	ServiceJobs = "cron.scheduler"
)

func init() {
	core.RegisterModule(&Gateway{})
}

var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// SessionSource exposes the router's sessions. *router.Router implements it.
type SessionSource interface {
	SessionCount() int
	Snapshot() []router.SessionInfo
	PruneSessions() int
}

// MCPStatus exposes the MCP servers. *mcp.Manager implements it.
type MCPStatus interface {
	Status() []mcp.ServerStatus
	Reconnect(ctx context.Context, name string) error
}

// JobRunner exposes the housekeeping jobs. *cron.Scheduler implements it.
type JobRunner interface {
	Status() []cron.JobStatus
	RunNow(ctx context.Context, name string) error
}

// Gateway is the HTTP module: health, Prometheus metrics, Telegram webhooks
// and the admin API with its live event stream.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	metrics    *Metrics
	events     *EventHub
	dispatcher *WebhookDispatcher
	startedAt  time.Time

	// Resolved at Start through the service registry; any may be nil.
	mu       sync.RWMutex
	sessions SessionSource
	mcp      MCPStatus
	provider provider.Provider
	jobs     JobRunner
	version  string
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.applyDefaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.applyDefaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	g.events = NewEventHub(g.config.EventBuffer, g.logger)
	g.dispatcher = NewWebhookDispatcher(g.logger)

	for source, secret := range g.config.WebhookSecrets {
		if secret != "" {
			g.dispatcher.SetSecret(source, secret)
			g.logger.Info("webhook source configured", "source", source)
		}
	}

	ctx.RegisterService(ServiceMetrics, g.metrics)
	ctx.RegisterService(ServiceEvents, g.events)
	ctx.RegisterService(ServiceDispatcher, g.dispatcher)

	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway admin API disabled: no auth configured")
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. Dependencies published by other modules
// and by the app are resolved here, after every module is provisioned.
func (g *Gateway) Start() error {
	g.resolve()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.Handler(),
		ReadTimeout:  g.config.Timeouts.Read,
		WriteTimeout: g.config.Timeouts.Write,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

func (g *Gateway) resolve() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := core.ServiceAs[SessionSource](g.appCtx, ServiceSessions); ok {
		g.sessions = s
	}
	if m, ok := core.ServiceAs[MCPStatus](g.appCtx, mcp.ServiceName); ok {
		g.mcp = m
	}
	if p, ok := core.ServiceAs[provider.Provider](g.appCtx, provider.ServiceName); ok {
		g.provider = p
	}
	if j, ok := core.ServiceAs[JobRunner](g.appCtx, ServiceJobs); ok {
		g.jobs = j
	}
	if v, ok := core.ServiceAs[string](g.appCtx, ServiceVersion); ok {
		g.version = v
	}
}

// Stop implements core.Stopper.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.events != nil {
		g.events.Close()
	}
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.Timeouts.Shutdown)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// Metrics returns the collectors fed by the router and the agent.
func (g *Gateway) Metrics() *Metrics { return g.metrics }

// Events returns the live event hub.
func (g *Gateway) Events() *EventHub { return g.events }
