package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Config is the gateway.http module section.
//
//	gateway.http:
//	  bind: 127.0.0.1:8080
//	  auth: {bearer_token: ${GATEWAY_TOKEN}}
//	  webhook_secrets: {telegram: ${TELEGRAM_WEBHOOK_SECRET}}
//	  timeouts: {read: 10s, shutdown: 5s}
type Config struct {
	Bind           string            `yaml:"bind"`
	Auth           AuthConfig        `yaml:"auth"`
	WebhookSecrets map[string]string `yaml:"webhook_secrets"`
	Timeouts       Timeouts          `yaml:"timeouts"`
	// EventBuffer is the queue length of each event stream subscriber.
	EventBuffer int `yaml:"event_buffer"`
}

// Timeouts of the HTTP server. Write stays zero unless set: the event
// stream is long-lived.
type Timeouts struct {
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Shutdown time.Duration `yaml:"shutdown"`
}

func (c *Config) applyDefaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.Timeouts.Read <= 0 {
		c.Timeouts.Read = 10 * time.Second
	}
	c.Timeouts.Write = max(c.Timeouts.Write, 0)
	if c.Timeouts.Shutdown <= 0 {
		c.Timeouts.Shutdown = 5 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q: %w", c.Bind, err))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: auth.basic_user and auth.basic_pass must be set together"))
	}
	return errors.Join(errs...)
}

// AuthConfig protects the admin API. Either method is enough.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
