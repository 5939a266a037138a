// Package main is the entry point for the tgmcp CLI.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/pkg/app"

	_ "github.com/flemzord/tgmcp/internal/gateway"
	_ "github.com/flemzord/tgmcp/internal/mcp"
	_ "github.com/flemzord/tgmcp/internal/telemetry"
	_ "github.com/flemzord/tgmcp/modules/channel/telegram"
	_ "github.com/flemzord/tgmcp/modules/memory/sqlite"
	_ "github.com/flemzord/tgmcp/modules/provider/openai"
	_ "github.com/flemzord/tgmcp/modules/tools/web"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	dataDir    string
}

func rootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "tgmcp",
		Short:         "Telegram bot relaying conversations to an LLM agent with MCP tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Persistent data directory")

	root.AddCommand(
		versionCmd(),
		startCmd(&flags),
		configCmd(&flags),
		mcpCmd(&flags),
		initCmd(),
		serviceCmd(&flags),
	)
	return root
}

func (f *globalFlags) runParams() app.RunParams {
	return app.RunParams{
		ConfigPath: f.configPath,
		LogLevel:   f.logLevel,
		DataDir:    f.dataDir,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tgmcp %s (commit: %s, built: %s)\n", version, commit, date)
	mods := core.GetModules()
	if len(mods) == 0 {
		fmt.Fprintln(w, "\nNo compiled modules.")
		return
	}
	fmt.Fprintln(w, "\nCompiled modules:")
	for _, mod := range mods {
		fmt.Fprintf(w, "  %s\n", mod.ID)
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bot with all configured modules",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(flags.runParams())
		},
	}
}
