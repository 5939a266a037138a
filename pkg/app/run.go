// Package app provides the entry point shared by the tgmcp commands: it
// loads configuration, assembles the modules and runs the bot until a
// shutdown signal arrives.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/flemzord/tgmcp/internal/config"
	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/gateway"
	"github.com/flemzord/tgmcp/internal/security"
	"github.com/flemzord/tgmcp/internal/telemetry"
	"github.com/flemzord/tgmcp/internal/tool"
)

// ErrNoConfigFile is returned by ResolveConfigPath when no file exists in
// the standard locations. Callers fall back to the built-in configuration.
var ErrNoConfigFile = errors.New("no configuration file found")

// secretEnv lists the environment variables whose values never reach the logs.
var secretEnv = []string{
	"TELEGRAM_BOT_TOKEN",
	"TELEGRAM_WEBHOOK_SECRET",
	"OPENAI_API_KEY",
	"AZURE_OPENAI_API_KEY",
	"CHATAI_API_KEY",
	"FIRECRAWL_API_KEY",
	"LANGFUSE_PUBLIC_KEY",
	"LANGFUSE_SECRET_KEY",
	"SENTRY_DSN",
	"TGMCP_ADMIN_TOKEN",
}

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is tried, then the built-in configuration.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the configured persistent data directory.
	DataDir string

	// LogLevel overrides the configured log level when set.
	LogLevel string

	// EnvDir is where the .env lookup starts. Defaults to the working directory.
	EnvDir string

	// Output receives the logs. Defaults to os.Stderr.
	Output io.Writer
}

// Run loads configuration, starts all modules, and blocks until SIGINT or
// SIGTERM is received.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, params)
}

// RunContext is Run with the shutdown signal replaced by ctx cancellation.
func RunContext(ctx context.Context, params RunParams) error {
	envDir := params.EnvDir
	if envDir == "" {
		envDir = "."
	}
	envFile, err := config.LoadDotenv(envDir)
	if err != nil {
		return err
	}

	cfg, source, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level := cfg.LogLevel
	if params.LogLevel != "" {
		level = params.LogLevel
	}
	out := params.Output
	if out == nil {
		out = os.Stderr
	}
	redactor := NewRedactor(cfg)
	logger := NewLogger(out, ParseLevel(level), redactor)
	logger.Info("configuration loaded", "source", source, "dotenv", envFile)

	reporter, err := telemetry.NewSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     params.Version,
		SampleRate:  cfg.Sentry.SampleRate,
		Redactor:    redactor,
	})
	if err != nil {
		// Error reporting is optional; the bot runs without it.
		logger.Warn("sentry disabled", "error", err)
		reporter = nil
	}
	defer reporter.Flush(2 * time.Second)
	defer func() {
		if r := reporter.Recover(recover()); r != nil {
			reporter.Flush(2 * time.Second)
			panic(r)
		}
	}()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	rl := cfg.Security.RateLimits
	limiter := security.NewRateLimiter(security.RateLimitConfig{
		MessagesPerMin:  rl.MessagesPerMin,
		ToolCallsPerMin: rl.ToolCallsPerMin,
		TokensPerHour:   rl.TokensPerHour,
	})

	registry := tool.NewRegistry()
	registry.SetRateLimiter(limiter)

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)

	// Published before LoadModules: tool modules register into the registry
	// while they provision.
	appCtx.RegisterService(tool.ServiceName, registry)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.ratelimiter", limiter)
	appCtx.RegisterService(gateway.ServiceVersion, params.Version)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}

	w := wiring{
		app:      application,
		appCtx:   appCtx,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		limiter:  limiter,
		reporter: reporter,
	}
	r, err := w.router()
	if err != nil {
		return err
	}
	scheduler, err := w.scheduler(r)
	if err != nil {
		return err
	}
	application.AppendModule("cron", &schedulerModule{scheduler: scheduler})

	if err := application.Start(); err != nil {
		reporter.CaptureError(err, map[string]string{"stage": "start"})
		return err
	}
	logger.Info("tgmcp started",
		"version", params.Version,
		"commit", params.Commit,
		"modules", len(ids),
		"tools", registry.Len(),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if err := application.Stop(); err != nil {
		logger.Warn("shutdown finished with errors", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// LoadConfig loads path, or the first file found by ResolveConfigPath, or
// the built-in configuration. It returns the source it used.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		switch {
		case errors.Is(err, ErrNoConfigFile):
			cfg, err := config.Default()
			return cfg, config.DefaultSource, err
		case err != nil:
			return nil, "", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

// NewRedactor builds the log redactor: default secret patterns, the values
// of secret environment variables and the configured literals.
func NewRedactor(cfg *config.Config) *security.Redactor {
	redactor := security.NewRedactor()
	for _, name := range secretEnv {
		redactor.AddLiteral(os.Getenv(name))
	}
	for _, literal := range cfg.Security.Redact {
		redactor.AddLiteral(literal)
	}
	return redactor
}

// NewLogger returns a text logger whose output goes through redactor.
func NewLogger(w io.Writer, level slog.Level, redactor *security.Redactor) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// ParseLevel maps a config log level to slog. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $TGMCP_CONFIG → $XDG_CONFIG_HOME/tgmcp/tgmcp.yaml →
// ~/.config/tgmcp/tgmcp.yaml → ./tgmcp.yaml
func ResolveConfigPath() (string, error) {
	if path, ok := os.LookupEnv("TGMCP_CONFIG"); ok && path != "" {
		return path, nil
	}

	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "tgmcp", "tgmcp.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tgmcp", "tgmcp.yaml"))
	}
	candidates = append(candidates, "tgmcp.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfigFile, candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/tgmcp if set, otherwise ~/.local/share/tgmcp per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "tgmcp")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tgmcp")
}
