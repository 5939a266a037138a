package web

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/flemzord/tgmcp/internal/security"
)

const (
	defaultFirecrawlURL = "https://api.firecrawl.dev"
	defaultSearchURL    = "https://html.duckduckgo.com/html/"
	defaultTelegraphURL = "https://api.telegra.ph"
	defaultAuthor       = "Telegram Bot"
	defaultUserAgent    = "Mozilla/5.0 (compatible; tgmcp/1.0; +https://github.com/flemzord/tgmcp)"
	defaultMaxBody      = 5 << 20
	defaultMaxOutput    = 32 << 10
	defaultMaxResults   = 5
	maxResultsCap       = 20
)

// Config is the tools.web section.
type Config struct {
	FirecrawlAPIKey  string `yaml:"firecrawl_api_key"`
	FirecrawlBaseURL string `yaml:"firecrawl_base_url"`

	SearchURL  string `yaml:"search_url"`
	MaxResults int    `yaml:"max_results"`

	TelegraphURL    string `yaml:"telegraph_url"`
	TelegraphAuthor string `yaml:"telegraph_author"`

	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxOutput    int           `yaml:"max_output"`

	// Disabled lists tool names that must not be registered.
	Disabled []string `yaml:"disabled"`

	URLFilter security.URLFilterConfig `yaml:"url_filter"`
}

func (c *Config) defaults() {
	if c.FirecrawlBaseURL == "" {
		c.FirecrawlBaseURL = defaultFirecrawlURL
	}
	if c.SearchURL == "" {
		c.SearchURL = defaultSearchURL
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.TelegraphURL == "" {
		c.TelegraphURL = defaultTelegraphURL
	}
	if c.TelegraphAuthor == "" {
		c.TelegraphAuthor = defaultAuthor
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBody
	}
	if c.MaxOutput <= 0 {
		c.MaxOutput = defaultMaxOutput
	}
}

func (c *Config) validate() error {
	var errs []error
	for name, raw := range map[string]string{
		"firecrawl_base_url": c.FirecrawlBaseURL,
		"search_url":         c.SearchURL,
		"telegraph_url":      c.TelegraphURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("tools.web: invalid %s %q", name, raw))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) enabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return false
		}
	}
	return true
}
