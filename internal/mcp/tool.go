package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/tgmcp/internal/tool"
)

// maxToolName is the longest function name OpenAI accepts.
const maxToolName = 64

// remoteTool exposes one MCP tool through the tool.Tool interface.
type remoteTool struct {
	manager *Manager
	server  string
	name    string // name shown to the model
	remote  string // name on the server
	desc    string
	schema  json.RawMessage
}

var (
	_ tool.Tool    = (*remoteTool)(nil)
	_ tool.Sourced = (*remoteTool)(nil)
)

func newRemoteTool(m *Manager, server, name string, t mcp.Tool) *remoteTool {
	return &remoteTool{
		manager: m,
		server:  server,
		name:    name,
		remote:  t.Name,
		desc:    t.Description,
		schema:  toolSchema(t),
	}
}

func (t *remoteTool) Name() string            { return t.name }
func (t *remoteTool) Description() string     { return t.desc }
func (t *remoteTool) Schema() json.RawMessage { return t.schema }
func (t *remoteTool) Source() string          { return "mcp:" + t.server }

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
	params := map[string]any{}
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &params); err != nil {
			return tool.Output{}, fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
		}
	}

	res, err := t.manager.CallTool(ctx, t.server, t.remote, params)
	if err != nil {
		return tool.Output{}, err
	}
	return tool.Output{Content: ResultText(res), IsError: res.IsError}, nil
}

// toolSchema returns the tool's input schema as JSON. Servers that send a
// raw schema keep it verbatim.
func toolSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	schema := t.InputSchema
	if schema.Type == "" {
		schema.Type = "object"
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return data
}

// ResultText flattens a tool result into text for the model.
func ResultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if ic, ok := mcp.AsImageContent(c); ok {
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes base64]", ic.MIMEType, len(ic.Data)))
			continue
		}
		if er, ok := mcp.AsEmbeddedResource(c); ok {
			if tr, ok := mcp.AsTextResourceContents(er.Resource); ok {
				parts = append(parts, tr.Text)
				continue
			}
		}
		if data, err := json.Marshal(c); err == nil {
			parts = append(parts, string(data))
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName maps a tool name onto [a-zA-Z0-9_-]{1,64}.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() == maxToolName {
			break
		}
	}
	if b.Len() == 0 {
		return "tool"
	}
	return b.String()
}
