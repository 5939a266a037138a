package openai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects how requests are addressed and authenticated.
type Mode string

// Supported modes.
const (
	ModeOpenAI Mode = "openai"
	ModeAzure  Mode = "azure"
	ModeProxy  Mode = "proxy"
)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultModel           = "gpt-4o-mini"
	defaultAzureAPIVersion = "2024-10-21"
	defaultContextWindow   = 128000
	defaultMaxRetries      = 2
)

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	APIKey        string   `yaml:"api_key"`
	Model         string   `yaml:"model"`
	APIType       string   `yaml:"api_type"`
	BaseURL       string   `yaml:"base_url"`
	MaxTokens     int      `yaml:"max_tokens"`
	Temperature   *float64 `yaml:"temperature"`
	Timeout       string   `yaml:"timeout"`
	ContextWindow int      `yaml:"context_window"`

	// MaxRetries applies to rate limits and 5xx replies. Negative disables.
	MaxRetries int `yaml:"max_retries"`

	ProxyAPIKey  string      `yaml:"proxy_api_key"`
	ProxyBaseURL string      `yaml:"proxy_base_url"`
	Azure        AzureConfig `yaml:"azure"`
}

// AzureConfig addresses an Azure OpenAI resource. The model name doubles
// as the deployment name.
type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	APIVersion string `yaml:"api_version"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.ProxyBaseURL = strings.TrimRight(c.ProxyBaseURL, "/")
	c.Azure.Endpoint = strings.TrimRight(c.Azure.Endpoint, "/")
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
	if c.Azure.APIVersion == "" {
		c.Azure.APIVersion = defaultAzureAPIVersion
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = defaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
}

// mode resolves the effective mode. An explicit api_type wins; otherwise
// Azure is chosen when an endpoint is configured and no OpenAI key is
// present, and the proxy when both proxy settings are present.
func (c *Config) mode() Mode {
	switch strings.ToLower(c.APIType) {
	case "azure":
		return ModeAzure
	case "proxy":
		return ModeProxy
	case "openai":
		return ModeOpenAI
	}
	if c.Azure.Endpoint != "" && c.APIKey == "" {
		return ModeAzure
	}
	if c.ProxyAPIKey != "" && c.ProxyBaseURL != "" {
		return ModeProxy
	}
	return ModeOpenAI
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated by validate.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

func (c *Config) validate() error {
	var errs []error
	switch c.mode() {
	case ModeAzure:
		if c.Azure.APIKey == "" {
			errs = append(errs, errors.New("provider.openai: AZURE_OPENAI_API_KEY is required in azure mode"))
		}
		if c.Azure.Endpoint == "" {
			errs = append(errs, errors.New("provider.openai: AZURE_OPENAI_ENDPOINT is required in azure mode"))
		}
	case ModeProxy:
		if c.ProxyAPIKey == "" || c.ProxyBaseURL == "" {
			errs = append(errs, errors.New("provider.openai: proxy mode needs CHATAI_API_KEY and OPENAI_PROXY_BASE_URL"))
		}
	default:
		if c.APIKey == "" {
			errs = append(errs, errors.New("provider.openai: OPENAI_API_KEY or AZURE_OPENAI_API_KEY is required"))
		}
	}
	if c.Model == "" {
		errs = append(errs, errors.New("provider.openai: model is required"))
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("provider.openai: invalid timeout %q: %w", c.Timeout, err))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("provider.openai: temperature %v out of range [0, 2]", *c.Temperature))
	}
	return errors.Join(errs...)
}

// knownContextWindows maps model names to their maximum context window size
// in tokens. Unknown models (including Azure deployment names) fall back to
// defaultContextWindow.
var knownContextWindows = map[string]int{
	"gpt-3.5-turbo": 16385,
	"gpt-4":         8192,
	"gpt-4-turbo":   128000,
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"gpt-4.1":       1047576,
	"gpt-4.1-mini":  1047576,
	"gpt-4.1-nano":  1047576,
	"o1":            200000,
	"o3":            200000,
	"o3-mini":       200000,
	"o4-mini":       200000,
}
