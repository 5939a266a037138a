// Package mcp connects to Model Context Protocol servers and exposes their
// tools to the agent.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// Transport kinds.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// DefaultSessionTimeout bounds every request made to a server.
const DefaultSessionTimeout = 30 * time.Second

// Sentinel errors for server configuration.
var (
	ErrInvalidConfig = errors.New("mcp: invalid servers config")
	ErrUnknownServer = errors.New("mcp: unknown server")
	ErrNotConnected  = errors.New("mcp: server not connected")
)

// Server describes one entry of the "mcpServers" object.
type Server struct {
	Name      string            `json:"-"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport string            `json:"transport,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Disabled  bool              `json:"disabled,omitempty"`
}

// ServersFile is the layout of servers_config.json.
type ServersFile struct {
	MCPServers map[string]Server `json:"mcpServers"`
}

// EnvList returns Env as KEY=VALUE pairs sorted by key.
func (s Server) EnvList() []string {
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

func (s *Server) normalize() {
	if s.Transport == "" {
		if s.Command == "" && s.URL != "" {
			s.Transport = TransportHTTP
		} else {
			s.Transport = TransportStdio
		}
	}
	s.Transport = strings.ToLower(s.Transport)
}

func (s Server) validate() error {
	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("%w: server %q: command is required for stdio", ErrInvalidConfig, s.Name)
		}
	case TransportSSE, TransportHTTP:
		if s.URL == "" {
			return fmt.Errorf("%w: server %q: url is required for %s", ErrInvalidConfig, s.Name, s.Transport)
		}
	default:
		return fmt.Errorf("%w: server %q: unknown transport %q", ErrInvalidConfig, s.Name, s.Transport)
	}
	return nil
}

// ParseServers decodes a servers_config.json document. Disabled servers
// are dropped; the rest are returned sorted by name.
func ParseServers(data []byte) ([]Server, error) {
	var file ServersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var errs []error
	servers := make([]Server, 0, len(file.MCPServers))
	for name, s := range file.MCPServers {
		if s.Disabled {
			continue
		}
		s.Name = name
		s.normalize()
		if err := s.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		servers = append(servers, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	slices.SortFunc(servers, func(a, b Server) int { return strings.Compare(a.Name, b.Name) })
	return servers, nil
}

// LoadServers reads and parses the servers file at path. A missing file
// yields an error matching fs.ErrNotExist.
func LoadServers(path string) ([]Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcp: read servers config: %w", err)
	}
	servers, err := ParseServers(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return servers, nil
}
