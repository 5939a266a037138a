package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgmcp/internal/config"
	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/pkg/app"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check [path]",
			Short: "Validate configuration and provision every module",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := flags.configPath
				if len(args) == 1 {
					path = args[0]
				}
				return checkConfig(cmd.OutOrStdout(), path)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return showConfig(cmd.OutOrStdout(), flags.configPath)
			},
		},
	)
	return cmd
}

// checkConfig loads, validates and provisions the configured modules
// without starting them.
func checkConfig(w io.Writer, path string) error {
	if _, err := config.LoadDotenv("."); err != nil {
		return err
	}
	cfg, source, err := app.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := slog.New(slog.DiscardHandler)
	appCtx := core.NewAppContext(logger, app.DefaultDataDir()).WithModuleConfigs(cfg.Modules)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}
	defer application.Stop()

	fmt.Fprintf(w, "Configuration OK: %s (%d modules)\n", source, len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}

// showConfig prints the configuration after variable expansion. Values
// under secret keys and known credential formats are masked.
func showConfig(w io.Writer, path string) error {
	if _, err := config.LoadDotenv("."); err != nil {
		return err
	}
	cfg, source, err := app.LoadConfig(path)
	if err != nil {
		return err
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	app.NewRedactor(cfg).RedactMap(doc)
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	fmt.Fprintf(w, "# source: %s\n%s", source, out)
	return nil
}
