package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/cron"
)

var logLevels = []string{"", "debug", "info", "warn", "error"}

// Validate checks the structural validity of a Config and reports every
// problem at once. Module sections are only checked for a registered ID;
// their content is validated by the module during Provision.
func Validate(cfg *Config) error {
	var v validator

	switch cfg.Version {
	case "1":
	case "":
		v.fail("version field is required")
	default:
		v.fail("unsupported version %q (supported: \"1\")", cfg.Version)
	}
	if !slices.Contains(logLevels, strings.ToLower(cfg.LogLevel)) {
		v.fail("unknown log_level %q", cfg.LogLevel)
	}

	if len(cfg.Modules) == 0 {
		v.fail("at least one module must be configured")
	}
	for _, id := range slices.Sorted(maps.Keys(cfg.Modules)) {
		if _, ok := core.GetModule(id); !ok {
			v.fail("unknown module %q", id)
		}
	}

	a := cfg.Agent
	v.nonNegative("agent limits", a.MaxIterations, a.TokenBudget, a.LoopThreshold, a.MaxToolOutput, int(a.Timeout))
	v.nonNegative("agent.summary.length", a.Summary.Length)

	r := cfg.Router
	v.nonNegative("router sizes", r.Workers, r.InboxSize, r.HistoryWindow, int(r.SessionTTL))

	rl := cfg.Security.RateLimits
	v.nonNegative("security.rate_limits", rl.MessagesPerMin, rl.ToolCallsPerMin, rl.TokensPerHour)

	for _, job := range []struct{ name, expr string }{
		{"session_prune", cfg.Cron.SessionPrune},
		{"mcp_health", cfg.Cron.MCPHealth},
		{"history_trim", cfg.Cron.HistoryTrim},
	} {
		if job.expr == "" {
			continue
		}
		if _, err := cron.ParseSchedule(job.expr); err != nil {
			v.fail("cron.%s: %v", job.name, err)
		}
	}

	if s := cfg.Sentry.SampleRate; s < 0 || s > 1 {
		v.fail("sentry.sample_rate %v out of range [0,1]", s)
	}

	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("config: "+format, args...))
}

func (v *validator) nonNegative(what string, values ...int) {
	if slices.ContainsFunc(values, func(n int) bool { return n < 0 }) {
		v.fail("%s must not be negative", what)
	}
}
