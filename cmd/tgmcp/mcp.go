package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/tgmcp/internal/config"
	"github.com/flemzord/tgmcp/internal/mcp"
	"github.com/flemzord/tgmcp/internal/tool"
)

func mcpCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect the MCP servers",
	}

	var (
		servers string
		timeout time.Duration
	)
	tools := &cobra.Command{
		Use:   "tools",
		Short: "Connect to every MCP server and list its tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.LoadDotenv("."); err != nil {
				return err
			}
			if servers == "" {
				servers = serversConfigPath()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			level := slog.LevelWarn
			if flags.logLevel == "debug" {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return listMCPTools(ctx, cmd.OutOrStdout(), servers, mcp.WithLogger(logger), mcp.WithVersion(version))
		},
	}
	tools.Flags().StringVar(&servers, "servers", "", "Path to servers_config.json (default $TGMCP_SERVERS_CONFIG or ./servers_config.json)")
	tools.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall connection timeout")

	cmd.AddCommand(tools)
	return cmd
}

func serversConfigPath() string {
	if p := os.Getenv("TGMCP_SERVERS_CONFIG"); p != "" {
		return p
	}
	return "servers_config.json"
}

// listMCPTools connects the servers of path and prints one line per tool,
// then one line per unreachable server.
func listMCPTools(ctx context.Context, w io.Writer, path string, opts ...mcp.Option) error {
	servers, err := mcp.LoadServers(path)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Fprintf(w, "No MCP servers configured in %s\n", path)
		return nil
	}

	m := mcp.NewManager(servers, opts...)
	defer m.Close()
	connected := m.Connect(ctx)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tSOURCE\tDESCRIPTION")
	for _, t := range m.Tools() {
		source := ""
		if s, ok := t.(tool.Sourced); ok {
			source = s.Source()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name(), source, firstLine(t.Description()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d/%d servers connected\n", connected, len(servers))
	for _, st := range m.Status() {
		if !st.Connected {
			fmt.Fprintf(w, "  %s: %s\n", st.Name, st.LastError)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
