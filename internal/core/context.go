package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext carries shared resources available to modules during
// provisioning and at runtime.
type AppContext struct {
	// Logger for the current module scope.
	Logger *slog.Logger

	// DataDir is the root directory for persistent module data
	// (history database, telegraph account).
	DataDir string

	base     *slog.Logger
	configs  map[string]yaml.Node
	services *services
}

// services is shared by every context derived from the same root.
type services struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewAppContext creates an AppContext with the given base logger and data dir.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		base:     logger,
		services: &services{m: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy of the context holding the given
// per-module YAML sections. The service registry is shared with the copy.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// ForModule returns a context scoped to a module, with a child logger
// tagged with the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.base.With("module", string(id))
	return &cp
}

// HasModuleConfig reports whether the configuration carries a section for id.
func (ctx *AppContext) HasModuleConfig(id string) bool {
	_, ok := ctx.configs[id]
	return ok
}

// RegisterService publishes a value under name for other modules.
// A later registration under the same name replaces the earlier one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	ctx.services.m[name] = svc
	ctx.services.mu.Unlock()
}

// GetService returns the service registered under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.m[name]
	return svc, ok
}

// ServiceAs looks up a service and asserts its type.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	svc, _ := ctx.GetService(name)
	typed, ok := svc.(T)
	return typed, ok
}

// LoadModule instantiates a registered module and runs its setup stages
// in order: Configure (only when the config has a section for it),
// Provision, Validate. The first failing stage aborts the load.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()

	stages := []struct {
		name string
		run  func() error
	}{
		{"configuring", func() error {
			c, ok := mod.(Configurable)
			node, exists := ctx.configs[id]
			if !ok || !exists {
				return nil
			}
			return c.Configure(&node)
		}},
		{"provisioning", func() error {
			if p, ok := mod.(Provisioner); ok {
				return p.Provision(ctx.ForModule(info.ID))
			}
			return nil
		}},
		{"validating", func() error {
			if v, ok := mod.(Validator); ok {
				return v.Validate()
			}
			return nil
		}},
	}
	for _, st := range stages {
		if err := st.run(); err != nil {
			return nil, fmt.Errorf("%s module %s: %w", st.name, id, err)
		}
	}
	return mod, nil
}
