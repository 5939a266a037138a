package telemetry

import (
	"errors"
	"fmt"
	"net/url"
)

// DefaultHost is the Langfuse cloud endpoint.
const DefaultHost = "https://cloud.langfuse.com"

// Config configures Langfuse tracing.
type Config struct {
	PublicKey   string `yaml:"public_key"`
	SecretKey   string `yaml:"secret_key"`
	Host        string `yaml:"host"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`

	// MaxPayload caps the input and output recorded on spans, in bytes.
	MaxPayload int `yaml:"max_payload"`

	// Disabled turns tracing off even when keys are set.
	Disabled bool `yaml:"disabled"`
}

func (c *Config) defaults() {
	c.Host = trimHost(c.Host)
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.ServiceName == "" {
		c.ServiceName = "Telegram Bot"
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = 8 << 10
	}
}

// Enabled reports whether both keys are present and tracing is not disabled.
func (c Config) Enabled() bool {
	return !c.Disabled && c.PublicKey != "" && c.SecretKey != ""
}

func (c Config) endpoint() string {
	return c.Host + TracePath
}

func (c Config) validate() error {
	var errs []error
	if (c.PublicKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("telemetry.langfuse: LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY must be set together"))
	}
	if u, err := url.Parse(c.Host); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("telemetry.langfuse: invalid host %q", c.Host))
	}
	return errors.Join(errs...)
}
