package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgmcp/internal/core"
)

// ModuleID is the configuration key of the Langfuse module.
const ModuleID = "telemetry.langfuse"

// ServiceName is the AppContext key of the *Tracer.
const ServiceName = "telemetry.tracer"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// proxied is implemented by providers that talk to a third-party proxy.
// Traces are not exported for those.
type proxied interface {
	Proxied() bool
}

// Module owns the tracer provider and registers it as a service.
type Module struct {
	config Config
	tracer *Tracer
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("telemetry.langfuse: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if p, ok := core.ServiceAs[proxied](ctx, "provider.openai"); ok && p.Proxied() && m.config.Enabled() {
		m.logger.Info("langfuse tracing disabled: provider uses a proxy endpoint")
		m.config.Disabled = true
	}

	tracer, err := NewTracer(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.tracer = tracer
	ctx.RegisterService(ServiceName, tracer)

	if tracer.Enabled() {
		m.logger.Info("langfuse tracing enabled", "host", m.config.Host, "service", m.config.ServiceName)
	} else {
		m.logger.Debug("langfuse tracing off")
	}
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.tracer == nil {
		return nil
	}
	return m.tracer.Shutdown(ctx)
}

// Tracer returns the module's tracer, a no-op one before Provision.
func (m *Module) Tracer() *Tracer {
	if m.tracer == nil {
		return Noop()
	}
	return m.tracer
}

// MaxPayload is the configured span payload cap.
func (m *Module) MaxPayload() int {
	return m.config.MaxPayload
}
