package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// DefaultQuoteThreshold is the reply length from which answers are sent as
// an expandable block quote instead of a plain quoted reply.
const DefaultQuoteThreshold = 200

// Config holds the Telegram channel configuration.
type Config struct {
	Token       string `yaml:"token"`
	BotUsername string `yaml:"bot_username"`
	Mode        string `yaml:"mode"`

	// PollingTimeout is the long-poll wait in seconds. Nil means 30; an
	// explicit 0 selects short polling.
	PollingTimeout *int     `yaml:"polling_timeout"`
	AllowedUpdates []string `yaml:"allowed_updates"`

	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`

	// AllowUsers and AllowGroups restrict who can talk to the bot. Both
	// empty means everyone.
	AllowUsers  []string `yaml:"allow_users"`
	AllowGroups []string `yaml:"allow_groups"`

	MaxMessageLength   int    `yaml:"max_message_length"`
	QuoteThreshold     int    `yaml:"quote_threshold"`
	DisableLinkPreview bool   `yaml:"disable_link_preview"`
	APIURL             string `yaml:"api_url"`
}

const defaultPollingTimeout = 30

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = ModePolling
	}
	if c.PollingTimeout == nil {
		c.PollingTimeout = new(int)
		*c.PollingTimeout = defaultPollingTimeout
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message"}
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 4096
	}
	if c.QuoteThreshold == 0 {
		c.QuoteThreshold = DefaultQuoteThreshold
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
	c.BotUsername = strings.TrimPrefix(strings.TrimSpace(c.BotUsername), "@")
}

// validate reports every configuration problem at once.
func (c *Config) validate() error {
	var errs []error

	if c.Token == "" {
		errs = append(errs, errors.New("telegram: token is required (TELEGRAM_BOT_TOKEN)"))
	} else if !tokenPattern.MatchString(c.Token) {
		errs = append(errs, errors.New("telegram: token format invalid (expected <bot_id>:<hash>)"))
	}
	if c.BotUsername == "" {
		errs = append(errs, errors.New("telegram: bot_username is required (BOT_USERNAME)"))
	}

	switch c.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("telegram: webhook_url is required when mode is \"webhook\""))
		}
	default:
		errs = append(errs, fmt.Errorf("telegram: invalid mode %q (must be %q or %q)", c.Mode, ModePolling, ModeWebhook))
	}

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL))
	}
	if n := c.pollingTimeout(); n < 0 || n > 50 {
		errs = append(errs, fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", n))
	}
	if c.MaxMessageLength < 1 || c.MaxMessageLength > 4096 {
		errs = append(errs, fmt.Errorf("telegram: max_message_length must be 1-4096, got %d", c.MaxMessageLength))
	}
	if c.QuoteThreshold < 0 {
		errs = append(errs, fmt.Errorf("telegram: quote_threshold must be positive, got %d", c.QuoteThreshold))
	}

	return errors.Join(errs...)
}

func (c Config) pollingTimeout() int {
	if c.PollingTimeout == nil {
		return defaultPollingTimeout
	}
	return *c.PollingTimeout
}
