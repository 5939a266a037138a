package web

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// SearchResult is one hit of the keyless search.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// search queries the DuckDuckGo HTML endpoint.
func (f *fetcher) search(ctx context.Context, base, query string, limit int) ([]SearchResult, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("web: invalid search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	// The search endpoint is configured by the operator, so it bypasses
	// the URL filter meant for model-chosen targets.
	unfiltered := *f
	unfiltered.filter = nil
	p, err := unfiltered.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGo(p.Body, limit)
}

// parseDuckDuckGo extracts results from the HTML endpoint. Each result
// is a container with class "result" holding a "result__a" title link
// and an optional "result__snippet".
func parseDuckDuckGo(body []byte, limit int) ([]SearchResult, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("web: parse search results: %w", err)
	}

	var out []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r, ok := resultFrom(n); ok {
				out = append(out, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func resultFrom(n *html.Node) (SearchResult, bool) {
	var r SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a") && r.URL == "":
				r.Title = collapse(textContent(n))
				r.URL = normalizeResultURL(attr(n, "href"))
			case hasClass(n, "result__snippet") && r.Snippet == "":
				r.Snippet = collapse(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r, r.URL != "" && r.Title != ""
}

// normalizeResultURL unwraps DuckDuckGo redirect links
// (//duckduckgo.com/l/?uddg=<encoded>).
func normalizeResultURL(href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func formatResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
