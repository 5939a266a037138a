// Package config handles YAML configuration loading, environment variable
// expansion, .env files and structural validation.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// DataDir overrides the default persistent data directory.
	DataDir string `yaml:"data_dir"`

	Agent    AgentConfig    `yaml:"agent"`
	Router   RouterConfig   `yaml:"router"`
	Cron     CronConfig     `yaml:"cron"`
	Security SecurityConfig `yaml:"security"`
	Sentry   SentryConfig   `yaml:"sentry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// AgentConfig configures the conversational agent.
type AgentConfig struct {
	Name          string        `yaml:"name"`
	Instructions  string        `yaml:"instructions"`
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	TokenBudget   int           `yaml:"token_budget"`
	LoopThreshold int           `yaml:"loop_threshold"`
	MaxToolOutput int           `yaml:"max_tool_output"`
	Summary       SummaryConfig `yaml:"summary"`
}

// SummaryConfig configures the summary handoff.
type SummaryConfig struct {
	Disabled bool   `yaml:"disabled"`
	Language string `yaml:"language"`
	Length   int    `yaml:"length"`
	Model    string `yaml:"model"`
}

// RouterConfig configures message routing and sessions.
type RouterConfig struct {
	Workers       int           `yaml:"workers"`
	InboxSize     int           `yaml:"inbox_size"`
	HistoryWindow int           `yaml:"history_window"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

// CronConfig holds the schedules of housekeeping jobs. An empty
// expression keeps the job's default, "off" disables it.
type CronConfig struct {
	SessionPrune string `yaml:"session_prune"`
	MCPHealth    string `yaml:"mcp_health"`
	HistoryTrim  string `yaml:"history_trim"`
}

// SecurityConfig holds rate limits and log redaction settings.
type SecurityConfig struct {
	RateLimits RateLimitsConfig `yaml:"rate_limits"`

	// Redact lists literal values masked in every log line.
	Redact []string `yaml:"redact"`
}

// RateLimitsConfig mirrors security.RateLimitConfig.
type RateLimitsConfig struct {
	MessagesPerMin  int `yaml:"messages_per_min"`
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	TokensPerHour   int `yaml:"tokens_per_hour"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// moduleToggle is decoded from every module section to honor "enabled: false".
type moduleToggle struct {
	Enabled *bool `yaml:"enabled"`
}
