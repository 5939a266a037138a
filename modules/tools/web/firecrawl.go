package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrFirecrawl wraps unsuccessful Firecrawl responses.
var ErrFirecrawl = errors.New("firecrawl request failed")

// firecrawl is a minimal client for the Firecrawl v1 REST API.
type firecrawl struct {
	http    *fetcher
	baseURL string
	apiKey  string
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

type mapRequest struct {
	URL    string `json:"url"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type mapResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Links   []string `json:"links"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"data"`
}

func (c *firecrawl) post(ctx context.Context, path string, payload, out any) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	if err := c.http.postJSON(ctx, strings.TrimRight(c.baseURL, "/")+path, header, payload, out); err != nil {
		return fmt.Errorf("%w: %w", ErrFirecrawl, err)
	}
	return nil
}

func (c *firecrawl) scrape(ctx context.Context, target string) (string, error) {
	var resp scrapeResponse
	err := c.post(ctx, "/v1/scrape", scrapeRequest{
		URL:             target,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrFirecrawl, resp.Error)
	}
	md := resp.Data.Markdown
	if t := resp.Data.Metadata.Title; t != "" {
		md = "# " + t + "\n\n" + md
	}
	return md, nil
}

func (c *firecrawl) mapSite(ctx context.Context, target, search string, limit int) ([]string, error) {
	var resp mapResponse
	if err := c.post(ctx, "/v1/map", mapRequest{URL: target, Search: search, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrFirecrawl, resp.Error)
	}
	return resp.Links, nil
}

func (c *firecrawl) search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	var resp searchResponse
	if err := c.post(ctx, "/v1/search", searchRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrFirecrawl, resp.Error)
	}
	out := make([]SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, SearchResult{Title: d.Title, URL: d.URL, Snippet: d.Description})
	}
	return out, nil
}
