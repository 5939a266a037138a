package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/tgmcp/internal/tool"
)

// ServiceName is the AppContext service key of the *Manager.
const ServiceName = "mcp.manager"

// DefaultRetryWindow bounds the connection retries of one server.
const DefaultRetryWindow = 20 * time.Second

// ClientName is reported to servers during initialization.
const ClientName = "tgmcp"

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithDialer replaces Dial, e.g. with in-process servers in tests.
func WithDialer(d Dialer) Option { return func(m *Manager) { m.dial = d } }

// WithSessionTimeout bounds each request to a server.
func WithSessionTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithRetryWindow bounds connection retries. Zero disables retries.
func WithRetryWindow(d time.Duration) Option { return func(m *Manager) { m.retryWindow = d } }

// WithVersion sets the client version reported to servers.
func WithVersion(v string) Option { return func(m *Manager) { m.version = v } }

// Manager owns one client per configured server. Clients are shared by
// all sessions and safe for concurrent calls.
type Manager struct {
	logger      *slog.Logger
	dial        Dialer
	timeout     time.Duration
	retryWindow time.Duration
	version     string

	// ctx outlives individual requests and bounds long-lived transports.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	servers  []Server
	sessions map[string]*session
	lastErr  map[string]error
	registry *tool.Registry
	exposed  map[string][]string // server -> registered tool names
}

type session struct {
	server      Server
	client      Client
	info        mcp.Implementation
	tools       []mcp.Tool
	connectedAt time.Time
}

// NewManager creates a manager for servers. Nothing is connected yet.
func NewManager(servers []Server, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:      slog.Default(),
		dial:        Dial,
		timeout:     DefaultSessionTimeout,
		retryWindow: DefaultRetryWindow,
		version:     "dev",
		ctx:         ctx,
		cancel:      cancel,
		servers:     servers,
		sessions:    make(map[string]*session),
		lastErr:     make(map[string]error),
		exposed:     make(map[string][]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Servers returns the configured servers.
func (m *Manager) Servers() []Server {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Server(nil), m.servers...)
}

// Connect connects every server concurrently. A server that cannot be
// reached is logged and skipped. It returns the number of connected
// servers.
func (m *Manager) Connect(ctx context.Context) int {
	var wg sync.WaitGroup
	for _, s := range m.Servers() {
		wg.Add(1)
		go func(s Server) {
			defer wg.Done()
			if err := m.connect(ctx, s); err != nil {
				m.logger.Error("error connecting to MCP server", "server", s.Name, "error", err)
				return
			}
			m.logger.Info("MCP server connected", "server", s.Name, "transport", s.Transport)
		}(s)
	}
	wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) connect(ctx context.Context, s Server) error {
	var sess *session
	op := func() error {
		var err error
		sess, err = m.open(ctx, s)
		if errors.Is(err, ErrInvalidConfig) {
			return backoff.Permanent(err)
		}
		if err != nil {
			m.logger.Debug("MCP connect attempt failed", "server", s.Name, "error", err)
		}
		return err
	}

	var err error
	if m.retryWindow > 0 {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxElapsedTime = m.retryWindow
		err = backoff.Retry(op, backoff.WithContext(bo, ctx))
	} else {
		err = op()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lastErr[s.Name] = err
		return err
	}
	if old, ok := m.sessions[s.Name]; ok {
		_ = old.client.Close()
	}
	m.sessions[s.Name] = sess
	delete(m.lastErr, s.Name)
	return nil
}

// open dials, initializes and lists the tools of one server.
func (m *Manager) open(ctx context.Context, s Server) (*session, error) {
	c, err := m.dial(m.ctx, s)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: m.version}
	res, err := c.Initialize(reqCtx, initReq)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	tools, err := listTools(reqCtx, c)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	return &session{
		server:      s,
		client:      c,
		info:        res.ServerInfo,
		tools:       tools,
		connectedAt: time.Now(),
	}, nil
}

func listTools(ctx context.Context, c Client) ([]mcp.Tool, error) {
	var (
		all []mcp.Tool
		req mcp.ListToolsRequest
	)
	for {
		res, err := c.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			return all, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

// Tools returns adapters for every tool of every connected server. Names
// that collide across servers are prefixed with the server name.
func (m *Manager) Tools() []tool.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.toolsLocked()
}

func (m *Manager) toolsLocked() []tool.Tool {
	counts := make(map[string]int)
	for _, sess := range m.sessions {
		for _, t := range sess.tools {
			counts[sanitizeName(t.Name)]++
		}
	}

	var out []tool.Tool
	for _, s := range m.servers {
		sess, ok := m.sessions[s.Name]
		if !ok {
			continue
		}
		for _, t := range sess.tools {
			name := sanitizeName(t.Name)
			if counts[name] > 1 {
				name = sanitizeName(s.Name + "__" + t.Name)
			}
			out = append(out, newRemoteTool(m, s.Name, name, t))
		}
	}
	return out
}

// Register adds all tools to reg and remembers reg so that reconnects
// refresh the registered tools. Tools whose name is already taken are
// logged and skipped.
func (m *Manager) Register(reg *tool.Registry) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = reg
	return m.syncRegistryLocked()
}

func (m *Manager) syncRegistryLocked() int {
	if m.registry == nil {
		return 0
	}
	for server, names := range m.exposed {
		m.registry.Unregister(names...)
		delete(m.exposed, server)
	}

	n := 0
	for _, t := range m.toolsLocked() {
		rt := t.(*remoteTool)
		if err := m.registry.Register(rt); err != nil {
			m.logger.Warn("skipping MCP tool", "server", rt.server, "tool", rt.name, "error", err)
			continue
		}
		m.exposed[rt.server] = append(m.exposed[rt.server], rt.name)
		n++
	}
	return n
}

// CallTool invokes a tool on a server under the session timeout.
func (m *Manager) CallTool(ctx context.Context, server, name string, args map[string]any) (*mcp.CallToolResult, error) {
	m.mu.RLock()
	sess, ok := m.sessions[server]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, server)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := sess.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp %s/%s: %w", server, name, err)
	}
	return res, nil
}

// Ping checks every connected server and returns the failures by name.
func (m *Manager) Ping(ctx context.Context) map[string]error {
	m.mu.RLock()
	sessions := make(map[string]*session, len(m.sessions))
	for k, v := range m.sessions {
		sessions[k] = v
	}
	m.mu.RUnlock()

	failed := make(map[string]error)
	for name, sess := range sessions {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		if err := sess.client.Ping(pctx); err != nil {
			failed[name] = err
		}
		cancel()
	}
	return failed
}

// Reconnect reopens a server and refreshes its registered tools.
func (m *Manager) Reconnect(ctx context.Context, name string) error {
	var (
		s     Server
		found bool
	)
	for _, srv := range m.Servers() {
		if srv.Name == name {
			s, found = srv, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	if err := m.connect(ctx, s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncRegistryLocked()
	return nil
}

// HealthCheck pings all servers and reconnects the configured ones that
// failed or were never connected. It returns the servers still down.
func (m *Manager) HealthCheck(ctx context.Context) []string {
	failed := m.Ping(ctx)
	for _, s := range m.Servers() {
		m.mu.RLock()
		_, connected := m.sessions[s.Name]
		m.mu.RUnlock()
		if connected && failed[s.Name] == nil {
			continue
		}
		if err := m.Reconnect(ctx, s.Name); err != nil {
			m.logger.Warn("MCP server still unavailable", "server", s.Name, "error", err)
			continue
		}
		delete(failed, s.Name)
		m.logger.Info("MCP server reconnected", "server", s.Name)
	}

	down := make([]string, 0)
	for _, s := range m.Servers() {
		m.mu.RLock()
		_, connected := m.sessions[s.Name]
		m.mu.RUnlock()
		if !connected {
			down = append(down, s.Name)
		}
	}
	return down
}

// ServerStatus is a snapshot of one server.
type ServerStatus struct {
	Name          string    `json:"name"`
	Transport     string    `json:"transport"`
	Connected     bool      `json:"connected"`
	ServerName    string    `json:"server_name,omitempty"`
	ServerVersion string    `json:"server_version,omitempty"`
	Tools         []string  `json:"tools"`
	ConnectedAt   time.Time `json:"connected_at,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
}

// Status reports every configured server in name order.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.servers))
	for _, s := range m.servers {
		st := ServerStatus{Name: s.Name, Transport: s.Transport, Tools: []string{}}
		if sess, ok := m.sessions[s.Name]; ok {
			st.Connected = true
			st.ServerName = sess.info.Name
			st.ServerVersion = sess.info.Version
			st.ConnectedAt = sess.connectedAt
			for _, t := range sess.tools {
				st.Tools = append(st.Tools, t.Name)
			}
		}
		if err := m.lastErr[s.Name]; err != nil {
			st.LastError = err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Close shuts every client down. Errors are logged, not returned.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, sess := range m.sessions {
		if err := sess.client.Close(); err != nil {
			m.logger.Error("error during cleanup of MCP server", "server", name, "error", err)
		} else {
			m.logger.Info("MCP server cleaned up", "server", name)
		}
		delete(m.sessions, name)
	}
	if m.registry != nil {
		for server, names := range m.exposed {
			m.registry.Unregister(names...)
			delete(m.exposed, server)
		}
	}
	m.cancel()
}
