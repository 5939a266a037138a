package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/tgmcp/internal/agent"
	"github.com/flemzord/tgmcp/internal/channel"
	"github.com/flemzord/tgmcp/internal/config"
	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/cron"
	"github.com/flemzord/tgmcp/internal/document"
	"github.com/flemzord/tgmcp/internal/export"
	"github.com/flemzord/tgmcp/internal/gateway"
	"github.com/flemzord/tgmcp/internal/mcp"
	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/router"
	"github.com/flemzord/tgmcp/internal/security"
	"github.com/flemzord/tgmcp/internal/telemetry"
	"github.com/flemzord/tgmcp/internal/tool"
)

// historyService is the key under which a history module publishes its store.
const historyService = "memory.history"

// routerModule wraps a *router.Router to satisfy core.Module, core.Starter,
// and core.Stopper, so the router participates in the App lifecycle.
type routerModule struct {
	router *router.Router
	ctx    context.Context
}

func (m *routerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "router"}
}

func (m *routerModule) Start() error {
	m.router.Start(m.ctx)
	return nil
}

func (m *routerModule) Stop(ctx context.Context) error {
	m.router.Stop(ctx)
	return nil
}

// schedulerModule puts the housekeeping scheduler in the App lifecycle.
// It is appended last, so it starts after every job target is running.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *schedulerModule) Start() error { return m.scheduler.Start() }

func (m *schedulerModule) Stop(ctx context.Context) error { return m.scheduler.Stop(ctx) }

// wiring connects the loaded modules. It runs between LoadModules and Start.
type wiring struct {
	app      *core.App
	appCtx   *core.AppContext
	ids      []string
	cfg      *config.Config
	logger   *slog.Logger
	registry *tool.Registry
	limiter  *security.RateLimiter
	reporter *telemetry.Sentry
}

// router discovers channels and the provider, builds the traced agent
// loop, wires every channel's inbox to a new Router and appends it to the
// app lifecycle. It returns nil when no channel module is loaded.
func (w *wiring) router() (*router.Router, error) {
	dispatcher := channel.NewDispatcher()
	var channels []channel.Channel
	var llm provider.Provider

	for _, id := range w.ids {
		mod, ok := w.app.Module(id)
		if !ok {
			continue
		}
		if ch, ok := mod.(channel.Channel); ok {
			// Registered under the full module ID, which is what channels
			// set as msg.Channel.
			if err := dispatcher.Register(id, ch); err != nil {
				return nil, fmt.Errorf("registering channel %s: %w", id, err)
			}
			channels = append(channels, ch)
			w.logger.Info("router: registered channel", "channel", id)
		}
		if p, ok := mod.(provider.Provider); ok {
			llm = p
			w.logger.Info("router: discovered provider", "module", id, "model", p.ModelName())
		}
	}

	if len(channels) == 0 {
		w.logger.Info("router: no channels found, skipping router wiring")
		return nil, nil
	}
	if llm == nil {
		return nil, fmt.Errorf("router: a provider module is required")
	}

	metrics, _ := core.ServiceAs[*gateway.Metrics](w.appCtx, gateway.ServiceMetrics)
	events, _ := core.ServiceAs[*gateway.EventHub](w.appCtx, gateway.ServiceEvents)

	r, err := router.NewRouter(router.Config{
		WorkerCount:   w.cfg.Router.Workers,
		InboxSize:     w.cfg.Router.InboxSize,
		MaxIdle:       w.cfg.Router.SessionTTL,
		HistoryWindow: w.cfg.Router.HistoryWindow,
		MaxHistory:    w.maxHistory(),
		Agent:         w.agent(llm, metrics),
		Instructions:  w.cfg.Agent.Instructions,
		Tools:         w.registry,
		Sender:        dispatcher,
		Files:         dispatcher,
		Logger:        w.logger,
		DataDir:       w.appCtx.DataDir,
		History:       w.history(),
		Extractor:     document.New(),
		Exporter:      export.New(),
		Reporter:      w.errorReporter(),
		Events:        eventSinks(metrics, events),
		RateLimiter:   w.limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	for _, ch := range channels {
		ch.SetInbox(r.Submit)
	}

	w.app.AppendModule("router", &routerModule{router: r, ctx: context.Background()})
	w.appCtx.RegisterService(gateway.ServiceSessions, r)

	w.logger.Info("router: wired", "channels", len(channels), "tools", w.registry.Len())
	return r, nil
}

// agent builds the agent loop around p: tracing when Langfuse is on,
// metrics and tool spans as observers, and the summary handoff.
func (w *wiring) agent(p provider.Provider, metrics *gateway.Metrics) router.AgentRunner {
	tracer := telemetry.Noop()
	if t, ok := core.ServiceAs[*telemetry.Tracer](w.appCtx, telemetry.ServiceName); ok {
		tracer = t
	}
	maxPayload := 0
	if mod, ok := w.app.Module(telemetry.ModuleID); ok {
		if tm, ok := mod.(*telemetry.Module); ok {
			maxPayload = tm.MaxPayload()
		}
	}

	traced := telemetry.TraceProvider(p, tracer, maxPayload)

	var observers agent.Observers
	if metrics != nil {
		observers = append(observers, metrics)
	}
	if obs := telemetry.NewToolObserver(tracer, maxPayload); obs != nil {
		observers = append(observers, obs)
	}

	executor := agent.NewToolExecutor(w.registry, observers)
	loop := agent.NewLoop(traced, executor, agent.LoopConfig{
		MaxIterations: w.cfg.Agent.MaxIterations,
		TokenBudget:   w.cfg.Agent.TokenBudget,
		Timeout:       w.cfg.Agent.Timeout,
		LoopThreshold: w.cfg.Agent.LoopThreshold,
		MaxToolOutput: w.cfg.Agent.MaxToolOutput,
	})

	if s := w.cfg.Agent.Summary; !s.Disabled {
		loop.WithSummaryAgent(agent.NewSummaryAgent(traced, agent.SummaryConfig{
			Language: s.Language,
			Length:   s.Length,
			Model:    s.Model,
		}))
	}

	return telemetry.TraceRunner(loop, tracer, w.cfg.Agent.Name, maxPayload)
}

func (w *wiring) history() router.HistoryStore {
	h, ok := core.ServiceAs[router.HistoryStore](w.appCtx, historyService)
	if !ok {
		return nil
	}
	w.logger.Info("router: persistent history enabled")
	return h
}

// maxHistory reads the retention of the history module, if any.
func (w *wiring) maxHistory() int {
	for _, id := range w.ids {
		mod, _ := w.app.Module(id)
		if m, ok := mod.(interface{ MaxMessages() int }); ok {
			return m.MaxMessages()
		}
	}
	return 0
}

func (w *wiring) errorReporter() router.ErrorReporter {
	if w.reporter == nil {
		return nil
	}
	return w.reporter
}

func eventSinks(metrics *gateway.Metrics, events *gateway.EventHub) router.EventSink {
	var sinks router.EventSinks
	if metrics != nil {
		sinks = append(sinks, metrics)
	}
	if events != nil {
		sinks = append(sinks, events)
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// scheduler registers the housekeeping jobs whose targets exist.
func (w *wiring) scheduler(r *router.Router) (*cron.Scheduler, error) {
	s := cron.NewScheduler(w.logger.With("component", "cron"))
	if w.reporter != nil {
		s.SetReporter(w.reporter)
	}

	var jobs []cron.Job
	if r != nil {
		jobs = append(jobs, &cron.SessionPruneJob{
			Sessions:     r,
			Limiter:      w.limiter,
			Logger:       w.logger,
			ScheduleExpr: w.cfg.Cron.SessionPrune,
		})
	}
	if m, ok := core.ServiceAs[*mcp.Manager](w.appCtx, mcp.ServiceName); ok {
		jobs = append(jobs, &cron.MCPHealthJob{
			Servers:      m,
			Logger:       w.logger,
			ScheduleExpr: w.cfg.Cron.MCPHealth,
		})
	}
	if h, ok := core.ServiceAs[cron.HistoryStore](w.appCtx, historyService); ok {
		jobs = append(jobs, &cron.HistoryTrimJob{
			Store:        h,
			Keep:         w.maxHistory(),
			Logger:       w.logger,
			ScheduleExpr: w.cfg.Cron.HistoryTrim,
		})
	}

	for _, j := range jobs {
		if err := s.RegisterJob(j); err != nil {
			return nil, err
		}
	}
	w.appCtx.RegisterService(gateway.ServiceJobs, s)
	return s, nil
}
