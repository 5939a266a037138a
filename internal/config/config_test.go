package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/tgmcp/internal/core"
	"gopkg.in/yaml.v3"
)

type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func expandYAML(t *testing.T, raw string) (map[string]any, error) {
	t.Helper()
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &root); err != nil {
		t.Fatal(err)
	}
	if err := expandEnv(&root); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := root.Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out, nil
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TGMCP_TEST_SET", "value")
	t.Setenv("TGMCP_TEST_PORT", "8080")

	raw := "a: ${TGMCP_TEST_SET}\nb: ${TGMCP_TEST_UNSET:-fallback}\nc: ${TGMCP_TEST_UNSET:-}\n" +
		"d: http://${TGMCP_TEST_SET}:${TGMCP_TEST_PORT}\nport: ${TGMCP_TEST_PORT}\nquoted: \"${TGMCP_TEST_PORT}\"\n" +
		"# ${TGMCP_TEST_IN_COMMENT}\n"
	got, err := expandYAML(t, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{
		"a":      "value",
		"b":      "fallback",
		"c":      nil,
		"d":      "http://value:8080",
		"port":   8080,
		"quoted": "8080",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %#v, want %#v", k, got[k], v)
		}
	}
}

func TestExpandEnv_Unresolved(t *testing.T) {
	_, err := expandYAML(t, "token: ${TGMCP_TEST_MISSING_ONE}\nname: ${TGMCP_TEST_MISSING_TWO}")
	if err == nil {
		t.Fatal("expected error for unresolved variables")
	}
	for _, name := range []string{"TGMCP_TEST_MISSING_ONE", "TGMCP_TEST_MISSING_TWO"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}
}

func TestDefault_ValuesWithYAMLSyntax(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BOT_USERNAME", "@my_bot")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-lf abc #tail")
	t.Setenv("OPENAI_MODEL", "gpt: [4o]")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	var tg struct {
		BotUsername string `yaml:"bot_username"`
	}
	node := cfg.Modules["channel.telegram"]
	if err := node.Decode(&tg); err != nil {
		t.Fatal(err)
	}
	if tg.BotUsername != "@my_bot" {
		t.Errorf("bot_username = %q, want @my_bot", tg.BotUsername)
	}

	var lf struct {
		SecretKey string `yaml:"secret_key"`
	}
	node = cfg.Modules["telemetry.langfuse"]
	if err := node.Decode(&lf); err != nil {
		t.Fatal(err)
	}
	if lf.SecretKey != "sk-lf abc #tail" {
		t.Errorf("secret_key = %q, want it untruncated", lf.SecretKey)
	}

	var p struct {
		Model string `yaml:"model"`
	}
	node = cfg.Modules["provider.openai"]
	if err := node.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Model != "gpt: [4o]" {
		t.Errorf("model = %q", p.Model)
	}
}

func TestDefault_RequiresBotCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BOT_USERNAME", "")
	os.Unsetenv("BOT_USERNAME")

	_, err := Default()
	if err == nil {
		t.Fatal("expected error when BOT_USERNAME is missing")
	}
	if !strings.Contains(err.Error(), "BOT_USERNAME") {
		t.Errorf("error should name BOT_USERNAME: %v", err)
	}
}

func TestDefault_FromEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BOT_USERNAME", "mcp_bot")
	t.Setenv("OPENAI_MODEL", "gpt-4.1")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("Version = %q", cfg.Version)
	}
	if cfg.Router.HistoryWindow != 5 {
		t.Errorf("HistoryWindow = %d, want 5", cfg.Router.HistoryWindow)
	}
	if cfg.Agent.Summary.Length != 1000 {
		t.Errorf("Summary.Length = %d, want 1000", cfg.Agent.Summary.Length)
	}

	node := cfg.Modules["provider.openai"]
	var p struct {
		Model string `yaml:"model"`
	}
	if err := node.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Model != "gpt-4.1" {
		t.Errorf("model = %q, want gpt-4.1", p.Model)
	}

	ids := Resolve(cfg)
	if slices.Contains(ids, "gateway.http") || slices.Contains(ids, "memory.sqlite") {
		t.Errorf("disabled modules resolved: %v", ids)
	}
	if !slices.Contains(ids, "channel.telegram") || !slices.Contains(ids, "mcp.servers") {
		t.Errorf("expected core modules in %v", ids)
	}
	if !slices.IsSorted(ids) {
		t.Errorf("Resolve should sort: %v", ids)
	}
}

func TestResolve_EnabledToggle(t *testing.T) {
	t.Parallel()

	var cfg Config
	raw := "modules:\n  b.two: {enabled: true}\n  a.one: {}\n  c.three: {enabled: false}\n"
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatal(err)
	}
	got := Resolve(&cfg)
	want := []string{"a.one", "b.two"}
	if !slices.Equal(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	core.RegisterModule(&stubModule{id: "configtest.known"})

	valid := &Config{Version: "1", Modules: map[string]yaml.Node{"configtest.known": {}}}
	if err := Validate(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := &Config{
		Version:  "2",
		LogLevel: "chatty",
		Modules:  map[string]yaml.Node{"configtest.unknown": {}},
		Router:   RouterConfig{Workers: -1},
		Cron:     CronConfig{MCPHealth: "every five minutes", SessionPrune: "OFF"},
	}
	err := Validate(bad)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"unsupported version", "log_level", "unknown module", "router sizes", "cron.mcp_health"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "session_prune") {
		t.Errorf("\"OFF\" is a valid schedule: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TGMCP_TEST_TOKEN", "42:xyz")

	path := filepath.Join(t.TempDir(), "tgmcp.yaml")
	content := "version: \"1\"\nmodules:\n  channel.telegram:\n    token: ${TGMCP_TEST_TOKEN}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	node := cfg.Modules["channel.telegram"]
	var tg struct {
		Token string `yaml:"token"`
	}
	if err := node.Decode(&tg); err != nil {
		t.Fatal(err)
	}
	if tg.Token != "42:xyz" {
		t.Errorf("token = %q", tg.Token)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadDotenv(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	env := "TGMCP_TEST_DOTENV=from-file\nTGMCP_TEST_DOTENV_KEEP=from-file\n"
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TGMCP_TEST_DOTENV", "")
	os.Unsetenv("TGMCP_TEST_DOTENV")
	t.Setenv("TGMCP_TEST_DOTENV_KEEP", "from-env")

	path, err := LoadDotenv(nested)
	if err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if path != filepath.Join(root, ".env") {
		t.Errorf("path = %q", path)
	}
	if got := os.Getenv("TGMCP_TEST_DOTENV"); got != "from-file" {
		t.Errorf("TGMCP_TEST_DOTENV = %q, want from-file", got)
	}
	if got := os.Getenv("TGMCP_TEST_DOTENV_KEEP"); got != "from-env" {
		t.Errorf("existing variable overridden: %q", got)
	}
}
