package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/tgmcp/internal/tool"
)

var errDialRefused = errors.New("connection refused")

func newTestServer(name string) *server.MCPServer {
	srv := server.NewMCPServer(name, "1.2.3", server.WithToolCapabilities(true))
	srv.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo the text back"),
			mcp.WithString("text", mcp.Required(), mcp.Description("text to echo")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(name + ":" + req.GetString("text", "")), nil
		},
	)
	srv.AddTool(
		mcp.NewTool(name+"_fail", mcp.WithDescription("Always fails")),
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("it broke"), nil
		},
	)
	return srv
}

// inProcessDialer serves the named servers in-process; any other name is
// refused.
func inProcessDialer(servers map[string]*server.MCPServer) Dialer {
	return func(ctx context.Context, s Server) (Client, error) {
		srv, ok := servers[s.Name]
		if !ok {
			return nil, errDialRefused
		}
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func newTestManager(t *testing.T, names ...string) *Manager {
	t.Helper()
	servers := make([]Server, 0, len(names))
	backends := make(map[string]*server.MCPServer)
	for _, n := range names {
		servers = append(servers, Server{Name: n, Command: n, Transport: TransportStdio})
		if n != "broken" {
			backends[n] = newTestServer(n)
		}
	}
	m := NewManager(servers,
		WithDialer(inProcessDialer(backends)),
		WithRetryWindow(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	t.Cleanup(m.Close)
	return m
}

func toolNames(tools []tool.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	slices.Sort(names)
	return names
}

func TestManager_ConnectAndCall(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "alpha")
	if n := m.Connect(context.Background()); n != 1 {
		t.Fatalf("Connect = %d, want 1", n)
	}

	reg := tool.NewRegistry()
	if n := m.Register(reg); n != 2 {
		t.Fatalf("Register = %d, want 2", n)
	}

	out, err := reg.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`), tool.ExecutionEnv{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError || out.Content != "alpha:hi" {
		t.Errorf("out = %+v", out)
	}

	tl, _ := reg.Get("echo")
	if src := tl.(tool.Sourced).Source(); src != "mcp:alpha" {
		t.Errorf("Source = %q", src)
	}
	var schema map[string]any
	if err := json.Unmarshal(tl.Schema(), &schema); err != nil || schema["type"] != "object" {
		t.Errorf("schema = %s (%v)", tl.Schema(), err)
	}
}

func TestManager_ErrorResult(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "alpha")
	m.Connect(context.Background())
	reg := tool.NewRegistry()
	m.Register(reg)

	out, err := reg.Execute(context.Background(), "alpha_fail", nil, tool.ExecutionEnv{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError || out.Content != "it broke" {
		t.Errorf("out = %+v", out)
	}
}

func TestManager_NameCollision(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "alpha", "beta")
	m.Connect(context.Background())

	got := toolNames(m.Tools())
	want := []string{"alpha__echo", "alpha_fail", "beta__echo", "beta_fail"}
	if !slices.Equal(got, want) {
		t.Fatalf("tools = %v, want %v", got, want)
	}

	reg := tool.NewRegistry()
	m.Register(reg)
	out, err := reg.Execute(context.Background(), "beta__echo", json.RawMessage(`{"text":"x"}`), tool.ExecutionEnv{})
	if err != nil || out.Content != "beta:x" {
		t.Errorf("out = %+v, err = %v", out, err)
	}
}

func TestManager_SkipsBrokenServer(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "alpha", "broken")
	if n := m.Connect(context.Background()); n != 1 {
		t.Fatalf("Connect = %d, want 1", n)
	}

	status := m.Status()
	if len(status) != 2 {
		t.Fatalf("status = %+v", status)
	}
	if !status[0].Connected || status[0].ServerName != "alpha" || status[0].ServerVersion != "1.2.3" {
		t.Errorf("alpha status = %+v", status[0])
	}
	if status[1].Connected || !strings.Contains(status[1].LastError, "connection refused") {
		t.Errorf("broken status = %+v", status[1])
	}

	if down := m.HealthCheck(context.Background()); !slices.Equal(down, []string{"broken"}) {
		t.Errorf("HealthCheck = %v", down)
	}
}

func TestManager_CallToolNotConnected(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "alpha")
	_, err := m.CallTool(context.Background(), "alpha", "echo", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestManager_ReconnectRefreshesRegistry(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "alpha")
	m.Connect(context.Background())
	reg := tool.NewRegistry()
	m.Register(reg)

	if err := m.Reconnect(context.Background(), "alpha"); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("registry has %d tools, want 2", reg.Len())
	}
	if err := m.Reconnect(context.Background(), "ghost"); !errors.Is(err, ErrUnknownServer) {
		t.Errorf("Reconnect ghost = %v", err)
	}
}

func TestManager_PingAndClose(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "alpha")
	m.Connect(context.Background())
	reg := tool.NewRegistry()
	m.Register(reg)

	if failed := m.Ping(context.Background()); len(failed) != 0 {
		t.Errorf("Ping failures = %v", failed)
	}

	m.Close()
	if reg.Len() != 0 {
		t.Errorf("registry has %d tools after Close", reg.Len())
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"echo", "echo"},
		{"fs.read file", "fs_read_file"},
		{"", "tool"},
		{strings.Repeat("a", 80), strings.Repeat("a", 64)},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResultText(t *testing.T) {
	t.Parallel()

	res := &mcp.CallToolResult{Content: []mcp.Content{
		mcp.NewTextContent("one"),
		mcp.NewTextContent("two"),
	}}
	if got := ResultText(res); got != "one\ntwo" {
		t.Errorf("ResultText = %q", got)
	}
}
