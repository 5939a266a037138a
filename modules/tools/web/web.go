// Package web implements the tools.web module: built-in tools that let the
// agent read and search the web and publish long answers to telegra.ph.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/tool"
)

// ModuleID is the configuration key of this module.
const ModuleID = "tools.web"

// Tool names.
const (
	ToolScrapeURL       = "scrape_url"
	ToolSearch          = "duckduckgo_search"
	ToolPublishPage     = "publish_page"
	ToolFirecrawlScrape = "firecrawl_scrape"
	ToolFirecrawlMap    = "firecrawl_map"
	ToolFirecrawlSearch = "firecrawl_search"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Module registers the web tools into the shared tool registry.
type Module struct {
	config Config
	logger *slog.Logger
	tools  []tool.Tool
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
		return fmt.Errorf("tools.web: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	reg, ok := core.ServiceAs[*tool.Registry](ctx, tool.ServiceName)
	if !ok {
		return errors.New("tools.web: tool registry service not available")
	}

	m.tools = Tools(m.config, ctx.DataDir)
	names := make([]string, 0, len(m.tools))
	for _, t := range m.tools {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("tools.web: %w", err)
		}
		names = append(names, t.Name())
	}

	m.logger.Info("web tools registered",
		"tools", strings.Join(names, ","),
		"firecrawl", m.config.FirecrawlAPIKey != "",
	)
	return nil
}

// Tools builds the enabled web tools. Firecrawl tools are only returned
// when an API key is configured.
func Tools(cfg Config, dataDir string) []tool.Tool {
	cfg.defaults()
	f := newFetcher(cfg)

	all := []tool.Tool{
		scrapeURLTool(f, cfg.MaxOutput),
		searchTool(f, cfg),
		publishTool(&telegraph{http: f, baseURL: cfg.TelegraphURL, author: cfg.TelegraphAuthor, dataDir: dataDir}),
	}
	if cfg.FirecrawlAPIKey != "" {
		fc := &firecrawl{http: f, baseURL: cfg.FirecrawlBaseURL, apiKey: cfg.FirecrawlAPIKey}
		all = append(all,
			firecrawlScrapeTool(fc, cfg.MaxOutput),
			firecrawlMapTool(fc),
			firecrawlSearchTool(fc, cfg.MaxResults),
		)
	}

	out := all[:0]
	for _, t := range all {
		if cfg.enabled(t.Name()) {
			out = append(out, t)
		}
	}
	return out
}

func schema(properties string, required ...string) json.RawMessage {
	req, _ := json.Marshal(required)
	return json.RawMessage(`{"type":"object","properties":` + properties + `,"required":` + string(req) + `}`)
}

// toolError reports a failure back to the model instead of aborting the run.
func toolError(err error) (tool.Output, error) {
	return tool.Output{Content: err.Error(), IsError: true}, nil
}

func requireString(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", tool.ErrInvalidArguments, name)
	}
	return nil
}

func clampResults(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, maxResultsCap)
}

func scrapeURLTool(f *fetcher, maxOutput int) tool.Tool {
	return &tool.Func{
		ToolName:        ToolScrapeURL,
		ToolDescription: "Fetch a web page and return its readable text content (headings, lists and links preserved as Markdown).",
		ToolSchema:      schema(`{"url":{"type":"string","description":"Absolute http(s) URL to fetch."}}`, "url"),
		Fn: func(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
			var in struct {
				URL string `json:"url"`
			}
			if err := tool.DecodeArgs(args, &in); err != nil {
				return tool.Output{}, fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
			}
			if err := requireString("url", in.URL); err != nil {
				return tool.Output{}, err
			}

			p, err := f.get(ctx, strings.TrimSpace(in.URL))
			if err != nil {
				return toolError(err)
			}
			if !isHTML(p.ContentType, p.Body) {
				return tool.Output{Content: tool.TruncateOutput(string(p.Body), maxOutput)}, nil
			}
			title, text, err := htmlToText(p.Body, p.ContentType)
			if err != nil {
				return toolError(err)
			}
			if title != "" {
				text = "# " + title + "\n\n" + text
			}
			return tool.Output{Content: tool.TruncateOutput(text, maxOutput)}, nil
		},
	}
}

func searchTool(f *fetcher, cfg Config) tool.Tool {
	return &tool.Func{
		ToolName:        ToolSearch,
		ToolDescription: "Search the web with DuckDuckGo and return result titles, URLs and snippets.",
		ToolSchema: schema(`{"query":{"type":"string","description":"Search query."},`+
			`"max_results":{"type":"integer","description":"Maximum number of results (default 5, max 20)."}}`, "query"),
		Fn: func(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
			var in struct {
				Query      string `json:"query"`
				MaxResults int    `json:"max_results"`
			}
			if err := tool.DecodeArgs(args, &in); err != nil {
				return tool.Output{}, fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
			}
			if err := requireString("query", in.Query); err != nil {
				return tool.Output{}, err
			}
			results, err := f.search(ctx, cfg.SearchURL, in.Query, clampResults(in.MaxResults, cfg.MaxResults))
			if err != nil {
				return toolError(err)
			}
			return tool.Output{Content: formatResults(in.Query, results)}, nil
		},
	}
}

func publishTool(t *telegraph) tool.Tool {
	return &tool.Func{
		ToolName: ToolPublishPage,
		ToolDescription: "Publish a long Markdown document as a telegra.ph page and return its URL. " +
			"Use it for answers too long for a chat message.",
		ToolSchema: schema(`{"title":{"type":"string","description":"Page title."},`+
			`"content":{"type":"string","description":"Page body in Markdown."}}`, "title", "content"),
		Fn: func(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
			var in struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			if err := tool.DecodeArgs(args, &in); err != nil {
				return tool.Output{}, fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
			}
			if err := errors.Join(requireString("title", in.Title), requireString("content", in.Content)); err != nil {
				return tool.Output{}, err
			}
			url, err := t.publish(ctx, in.Title, in.Content)
			if err != nil {
				return toolError(err)
			}
			return tool.Output{Content: url}, nil
		},
	}
}

func firecrawlScrapeTool(c *firecrawl, maxOutput int) tool.Tool {
	return &tool.Func{
		ToolName:        ToolFirecrawlScrape,
		ToolDescription: "Scrape a web page with Firecrawl and return its main content as Markdown. Handles JavaScript-heavy pages.",
		ToolSchema:      schema(`{"url":{"type":"string","description":"URL to scrape."}}`, "url"),
		Fn: func(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
			var in struct {
				URL string `json:"url"`
			}
			if err := tool.DecodeArgs(args, &in); err != nil {
				return tool.Output{}, fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
			}
			if err := requireString("url", in.URL); err != nil {
				return tool.Output{}, err
			}
			md, err := c.scrape(ctx, in.URL)
			if err != nil {
				return toolError(err)
			}
			return tool.Output{Content: tool.TruncateOutput(md, maxOutput)}, nil
		},
	}
}

func firecrawlMapTool(c *firecrawl) tool.Tool {
	return &tool.Func{
		ToolName:        ToolFirecrawlMap,
		ToolDescription: "List the URLs of a website with Firecrawl, optionally filtered by a search term.",
		ToolSchema: schema(`{"url":{"type":"string","description":"Site root URL."},`+
			`"search":{"type":"string","description":"Optional term to rank links by."},`+
			`"limit":{"type":"integer","description":"Maximum number of links."}}`, "url"),
		Fn: func(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
			var in struct {
				URL    string `json:"url"`
				Search string `json:"search"`
				Limit  int    `json:"limit"`
			}
			if err := tool.DecodeArgs(args, &in); err != nil {
				return tool.Output{}, fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
			}
			if err := requireString("url", in.URL); err != nil {
				return tool.Output{}, err
			}
			links, err := c.mapSite(ctx, in.URL, in.Search, in.Limit)
			if err != nil {
				return toolError(err)
			}
			if len(links) == 0 {
				return tool.Output{Content: "No links found."}, nil
			}
			return tool.Output{Content: strings.Join(links, "\n")}, nil
		},
	}
}

func firecrawlSearchTool(c *firecrawl, defaultLimit int) tool.Tool {
	return &tool.Func{
		ToolName:        ToolFirecrawlSearch,
		ToolDescription: "Search the web with Firecrawl and return result titles, URLs and descriptions.",
		ToolSchema: schema(`{"query":{"type":"string","description":"Search query."},`+
			`"limit":{"type":"integer","description":"Maximum number of results."}}`, "query"),
		Fn: func(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
			var in struct {
				Query string `json:"query"`
				Limit int    `json:"limit"`
			}
			if err := tool.DecodeArgs(args, &in); err != nil {
				return tool.Output{}, fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
			}
			if err := requireString("query", in.Query); err != nil {
				return tool.Output{}, err
			}
			results, err := c.search(ctx, in.Query, clampResults(in.Limit, defaultLimit))
			if err != nil {
				return toolError(err)
			}
			return tool.Output{Content: formatResults(in.Query, results)}, nil
		},
	}
}
