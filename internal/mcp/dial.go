package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Client is the subset of the mcp-go client the manager uses.
type Client interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

var _ Client = (*client.Client)(nil)

// Dialer opens a client for a server. The returned client is started but
// not yet initialized. ctx outlives the dial and bounds the transport.
type Dialer func(ctx context.Context, s Server) (Client, error)

// Dial opens an mcp-go client over the server's transport. Stdio servers
// are spawned with the process environment plus s.Env.
func Dial(ctx context.Context, s Server) (Client, error) {
	var (
		c   *client.Client
		err error
	)
	switch s.Transport {
	case TransportStdio:
		// The stdio transport starts the subprocess itself.
		return client.NewStdioMCPClient(s.Command, s.EnvList(), s.Args...)
	case TransportSSE:
		c, err = client.NewSSEMCPClient(s.URL, transport.WithHeaders(s.Headers))
	case TransportHTTP:
		c, err = client.NewStreamableHttpClient(s.URL, transport.WithHTTPHeaders(s.Headers))
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, s.Transport)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start %s transport: %w", s.Transport, err)
	}
	return c, nil
}
