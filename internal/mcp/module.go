package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/tool"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// ModuleConfig is the mcp.servers section.
type ModuleConfig struct {
	ConfigFile     string        `yaml:"config_file"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	RetryWindow    time.Duration `yaml:"retry_window"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (c *ModuleConfig) defaults() {
	if c.ConfigFile == "" {
		c.ConfigFile = "servers_config.json"
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.RetryWindow == 0 {
		c.RetryWindow = DefaultRetryWindow
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = time.Minute
	}
}

// Module connects the servers of servers_config.json at start and exposes
// their tools through the shared tool registry.
type Module struct {
	config   ModuleConfig
	logger   *slog.Logger
	manager  *Manager
	registry *tool.Registry
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "mcp.servers",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("mcp: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	servers, err := LoadServers(m.config.ConfigFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		abs, _ := filepath.Abs(m.config.ConfigFile)
		m.logger.Warn("servers config not found, running without MCP servers", "path", abs)
	case err != nil:
		return err
	}

	version := "dev"
	if v, ok := core.ServiceAs[string](ctx, "app.version"); ok {
		version = v
	}

	m.manager = NewManager(servers,
		WithLogger(m.logger),
		WithSessionTimeout(m.config.SessionTimeout),
		WithRetryWindow(m.config.RetryWindow),
		WithVersion(version),
	)
	ctx.RegisterService(ServiceName, m.manager)

	if reg, ok := core.ServiceAs[*tool.Registry](ctx, tool.ServiceName); ok {
		m.registry = reg
	}
	return nil
}

// Start implements core.Starter. Unreachable servers do not fail startup.
func (m *Module) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	connected := m.manager.Connect(ctx)
	tools := 0
	if m.registry != nil {
		tools = m.manager.Register(m.registry)
	}
	m.logger.Info("MCP servers ready", "configured", len(m.manager.Servers()), "connected", connected, "tools", tools)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(context.Context) error {
	m.manager.Close()
	return nil
}

// Manager returns the module's manager.
func (m *Module) Manager() *Manager { return m.manager }
