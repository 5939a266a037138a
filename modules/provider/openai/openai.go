// Package openai implements the provider.openai module: Chat Completions
// with function calling against OpenAI, Azure OpenAI or an
// OpenAI-compatible proxy.
package openai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/provider"
	"gopkg.in/yaml.v3"
)

// ModuleID is the configuration key of this module.
const ModuleID = "provider.openai"

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
)

// Provider implements provider.Provider over the Chat Completions API.
type Provider struct {
	config        Config
	mode          Mode
	logger        *slog.Logger
	client        *http.Client
	contextWindow int
	retryBase     time.Duration
}

// New builds a provider from cfg without going through the module
// registry. Used by the CLI for one-off calls.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Provider{config: cfg, logger: logger}
	p.setup()
	return p, nil
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger
	p.setup()

	ctx.RegisterService(ModuleID, p)
	ctx.RegisterService(provider.ServiceName, p)

	p.logger.Info("provider configured", "mode", p.mode, "model", p.config.Model)
	return nil
}

func (p *Provider) setup() {
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.mode = p.config.mode()
	p.client = &http.Client{Timeout: p.config.parsedTimeout()}
	p.retryBase = time.Second

	// Resolve context window: explicit config > known model map > default.
	switch {
	case p.config.ContextWindow > 0:
		p.contextWindow = p.config.ContextWindow
	default:
		if size, ok := knownContextWindows[p.config.Model]; ok {
			p.contextWindow = size
		} else {
			p.contextWindow = defaultContextWindow
		}
	}
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Mode reports the resolved addressing mode.
func (p *Provider) Mode() Mode {
	return p.mode
}

// Proxied reports whether requests go through the proxy endpoint. Tracing
// is disabled in that case.
func (p *Provider) Proxied() bool {
	return p.mode == ModeProxy
}
