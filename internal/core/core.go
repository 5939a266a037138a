package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStopTimeout bounds the whole shutdown sequence.
const DefaultStopTimeout = 30 * time.Second

// App owns an ordered list of modules. Modules start in list order and
// stop in reverse; only the first running modules are ever live, so a
// single counter tracks them.
type App struct {
	ctx    *AppContext
	logger *slog.Logger

	ids     []ModuleID
	mods    []Module
	running int

	// StopTimeout overrides DefaultStopTimeout when positive.
	StopTimeout time.Duration
}

func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules builds, configures, provisions and validates the modules
// named by ids. When one fails, those already loaded are stopped and
// forgotten.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.running = len(a.mods)
			_ = a.stopAll()
			a.ids, a.mods = nil, nil
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.AppendModule(id, mod)
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds a module assembled outside the registry, such as
// the router or the scheduler.
func (a *App) AppendModule(id string, mod Module) {
	a.ids = append(a.ids, ModuleID(id))
	a.mods = append(a.mods, mod)
}

func (a *App) Module(id string) (Module, bool) {
	for i, mid := range a.ids {
		if string(mid) == id {
			return a.mods[i], true
		}
	}
	return nil, false
}

// Modules returns the modules in start order.
func (a *App) Modules() []Module {
	return append([]Module(nil), a.mods...)
}

// Start runs every Starter in order. A failure unwinds the modules that
// already started.
func (a *App) Start() error {
	for a.running < len(a.mods) {
		id, mod := a.ids[a.running], a.mods[a.running]
		if s, ok := mod.(Starter); ok {
			a.logger.Info("starting module", "module", string(id))
			if err := s.Start(); err != nil {
				a.logger.Error("module start failed", "module", string(id), "error", err)
				_ = a.stopAll()
				return fmt.Errorf("starting module %s: %w", id, err)
			}
		}
		a.running++
	}
	a.logger.Info("all modules started", "count", len(a.mods))
	return nil
}

// Stop stops the running modules, last started first. Stop errors are
// logged and joined.
func (a *App) Stop() error {
	return a.stopAll()
}

func (a *App) stopAll() error {
	timeout := a.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for ; a.running > 0; a.running-- {
		id, mod := a.ids[a.running-1], a.mods[a.running-1]
		s, ok := mod.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(id))
		start := time.Now()
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(id), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		a.logger.Debug("module stopped", "module", string(id), "took", time.Since(start))
	}
	return errors.Join(errs...)
}
