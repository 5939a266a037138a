package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/flemzord/tgmcp/internal/provider"
	"github.com/flemzord/tgmcp/internal/security"
)

// DefaultTimeout bounds a single tool call when the tool sets no tighter
// deadline itself.
const DefaultTimeout = 2 * time.Minute

// Info summarizes a registered tool for listings.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// Registry holds the tools available to the agent. MCP tools come and go
// as servers connect and disconnect, so every method is safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	rateLimiter *security.RateLimiter
	timeout     time.Duration
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: DefaultTimeout,
	}
}

// SetRateLimiter configures rate limiting for tool executions.
func (r *Registry) SetRateLimiter(limiter *security.RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = limiter
}

// SetTimeout overrides DefaultTimeout.
func (r *Registry) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

// Register adds a tool. It returns ErrDuplicateTool if the name is taken.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Unregister removes the tools with the given names.
func (r *Registry) Unregister(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		delete(r.tools, n)
	}
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the tool definitions sent to the model, sorted by name.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]provider.ToolDefinition, 0, len(r.tools))
	for name, t := range r.tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	slices.SortFunc(defs, func(a, b provider.ToolDefinition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// List returns a summary of every tool, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for name, t := range r.tools {
		src := "builtin"
		if s, ok := t.(Sourced); ok {
			src = s.Source()
		}
		infos = append(infos, Info{Name: name, Description: t.Description(), Source: src})
	}
	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return infos
}

// Execute runs a tool: lookup, rate limit, argument checks, then the call
// under the registry timeout.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, env ExecutionEnv) (Output, error) {
	t, err := r.Get(name)
	if err != nil {
		return Output{}, err
	}

	r.mu.RLock()
	rl := r.rateLimiter
	timeout := r.timeout
	r.mu.RUnlock()

	if rl != nil {
		if err := rl.Allow(security.KindToolCall, ""); err != nil {
			return Output{}, fmt.Errorf("tool %s: %w", name, err)
		}
	}

	if err := checkArgs(args); err != nil {
		return Output{}, fmt.Errorf("tool %s: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := t.Execute(ctx, args, env)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Output{}, fmt.Errorf("tool %s: %w after %s", name, ErrTimeout, timeout)
	}
	return out, err
}

func checkArgs(args json.RawMessage) error {
	if len(args) == 0 {
		return nil
	}
	if err := security.ValidateMessageSize(args, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if err := security.ValidateJSONDepth(args, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return nil
}

// TruncateOutput cuts s to at most limit bytes on a rune boundary and
// marks the cut. Tool results are fed back to the model, so they are
// bounded.
func TruncateOutput(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	i := limit
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "\n...(truncated)"
}

// ServiceName is the AppContext service key of the shared *Registry.
const ServiceName = "tool.registry"
