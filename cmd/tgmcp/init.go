package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/flemzord/tgmcp/internal/mcp"
)

// errFileExists is returned when init would overwrite a file without --force.
var errFileExists = errors.New("file already exists (use --force to overwrite)")

// initAnswers holds what the setup wizard collects.
type initAnswers struct {
	BotToken    string
	BotUsername string
	Backend     string // "openai" or "azure"
	APIKey      string
	Model       string
	AzureURL    string
	AzureAPIVer string
	Firecrawl   string
	LangfusePub string
	LangfuseSec string
	FetchServer bool
}

func initCmd() *cobra.Command {
	var (
		dir        string
		force      bool
		accessible bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create .env and servers_config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			answers := initAnswers{Backend: "openai", Model: "gpt-4o-mini", FetchServer: true}
			if err := initForm(&answers).WithAccessible(accessible).Run(); err != nil {
				return err
			}
			return writeInitFiles(cmd.OutOrStdout(), dir, answers, force)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the files into")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&accessible, "accessible", false, "Use the accessible (plain prompt) form mode")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather").
				EchoMode(huh.EchoModePassword).
				Value(&a.BotToken).
				Validate(required("bot token")),
			huh.NewInput().
				Title("Bot username").
				Description("Used to detect mentions in groups").
				Value(&a.BotUsername).
				Validate(required("bot username")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM backend").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Azure OpenAI", "azure"),
				).
				Value(&a.Backend),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey).
				Validate(required("API key")),
			huh.NewInput().
				Title("Model or Azure deployment").
				Value(&a.Model),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Azure endpoint").
				Placeholder("https://my-resource.openai.azure.com").
				Value(&a.AzureURL).
				Validate(required("Azure endpoint")),
			huh.NewInput().
				Title("Azure API version").
				Placeholder("2024-10-21").
				Value(&a.AzureAPIVer),
		).WithHideFunc(func() bool { return a.Backend != "azure" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Firecrawl API key (optional)").
				EchoMode(huh.EchoModePassword).
				Value(&a.Firecrawl),
			huh.NewInput().
				Title("Langfuse public key (optional)").
				Value(&a.LangfusePub),
			huh.NewInput().
				Title("Langfuse secret key (optional)").
				EchoMode(huh.EchoModePassword).
				Value(&a.LangfuseSec),
			huh.NewConfirm().
				Title("Add the fetch MCP server?").
				Description("Runs @modelcontextprotocol/server-fetch through npx").
				Value(&a.FetchServer),
		),
	)
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// envMap turns the answers into .env entries. Empty optional values are
// left out.
func (a initAnswers) envMap() map[string]string {
	env := map[string]string{
		"TELEGRAM_BOT_TOKEN": strings.TrimSpace(a.BotToken),
		"BOT_USERNAME":       strings.TrimPrefix(strings.TrimSpace(a.BotUsername), "@"),
	}
	if a.Backend == "azure" {
		env["AZURE_OPENAI_API_KEY"] = a.APIKey
		env["AZURE_OPENAI_ENDPOINT"] = a.AzureURL
		if a.AzureAPIVer != "" {
			env["AZURE_OPENAI_API_VERSION"] = a.AzureAPIVer
		}
	} else {
		env["OPENAI_API_KEY"] = a.APIKey
	}
	if a.Model != "" {
		env["OPENAI_MODEL"] = a.Model
	}
	if a.Firecrawl != "" {
		env["FIRECRAWL_API_KEY"] = a.Firecrawl
	}
	if a.LangfusePub != "" && a.LangfuseSec != "" {
		env["LANGFUSE_PUBLIC_KEY"] = a.LangfusePub
		env["LANGFUSE_SECRET_KEY"] = a.LangfuseSec
	}
	return env
}

func (a initAnswers) servers() mcp.ServersFile {
	file := mcp.ServersFile{MCPServers: map[string]mcp.Server{}}
	if a.FetchServer {
		file.MCPServers["fetch"] = mcp.Server{
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-fetch"},
		}
	}
	return file
}

// writeInitFiles writes .env and servers_config.json into dir.
func writeInitFiles(w io.Writer, dir string, a initAnswers, force bool) error {
	envPath := filepath.Join(dir, ".env")
	serversPath := filepath.Join(dir, "servers_config.json")
	if !force {
		for _, p := range []string{envPath, serversPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s: %w", p, errFileExists)
			}
		}
	}

	if err := godotenv.Write(a.envMap(), envPath); err != nil {
		return fmt.Errorf("writing %s: %w", envPath, err)
	}
	if err := os.Chmod(envPath, 0o600); err != nil {
		return err
	}

	data, err := json.MarshalIndent(a.servers(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(serversPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", serversPath, err)
	}

	fmt.Fprintf(w, "Wrote %s and %s\nRun \"tgmcp start\" to launch the bot.\n", envPath, serversPath)
	return nil
}
