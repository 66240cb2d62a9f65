package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hkuds/runbox/internal/sandbox"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runbox.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load(explicit missing path) error = nil, want error")
	}

	// the implicit default path may be absent; that yields defaults
	t.Chdir(t.TempDir())

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Agent.Model != "gpt-4o" || cfg.Sandbox.Kind != "local" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
agent:
  model: gpt-4.1-mini
  maxIterations: 5
sandbox:
  kind: remote
  memoryLimit: 4g
  diskLimit: 8g
  networkEnabled: true
  autoStopMinutes: 10
  remote:
    baseUrl: https://sandboxes.example.com
tools:
  enabled: [shell, python]
  search:
    maxResults: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Model != "gpt-4.1-mini" || cfg.Agent.MaxIterations != 5 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Sandbox.Kind != "remote" || cfg.Sandbox.MemoryLimit != "4g" {
		t.Errorf("sandbox = %+v", cfg.Sandbox)
	}
	if len(cfg.Tools.Enabled) != 2 || cfg.Tools.Search.MaxResults != 3 {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	// unset fields keep their defaults
	if cfg.Agent.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want default 4096", cfg.Agent.MaxTokens)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "agent:\n  model: from-file\n")
	t.Setenv("RUNBOX_MODEL", "from-env")
	t.Setenv("RUNBOX_SANDBOX_KIND", "remote")
	t.Setenv("RUNBOX_MAX_ITERATIONS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Model != "from-env" {
		t.Errorf("Model = %q", cfg.Agent.Model)
	}
	if cfg.Sandbox.Kind != "remote" {
		t.Errorf("Kind = %q", cfg.Sandbox.Kind)
	}
	if cfg.Agent.MaxIterations != 7 {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
}

func TestToSandboxConfigLocal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.Image = "python:3.13-slim"
	cfg.Sandbox.ExecTimeoutSeconds = 90

	sc, err := cfg.ToSandboxConfig()
	if err != nil {
		t.Fatalf("ToSandboxConfig() error = %v", err)
	}
	if sc.Kind != sandbox.KindLocal || sc.Image != "python:3.13-slim" {
		t.Errorf("config = %+v", sc)
	}
	if sc.ExecTimeout != 90*time.Second {
		t.Errorf("ExecTimeout = %v", sc.ExecTimeout)
	}
}

func TestToSandboxConfigRemote(t *testing.T) {
	t.Setenv("RUNBOX_CLOUD_API_KEY", "ck-123")

	cfg := DefaultConfig()
	cfg.Sandbox.Kind = "remote"
	cfg.Sandbox.Remote.BaseURL = "https://sandboxes.example.com"

	sc, err := cfg.ToSandboxConfig()
	if err != nil {
		t.Fatalf("ToSandboxConfig() error = %v", err)
	}
	if sc.Remote.APIKey != "ck-123" {
		t.Errorf("APIKey = %q, want env value", sc.Remote.APIKey)
	}
	if sc.AutoStopInterval != sandbox.DefaultAutoStop {
		t.Errorf("AutoStopInterval = %v", sc.AutoStopInterval)
	}
}

func TestToSandboxConfigInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.Kind = "remote"
	cfg.Sandbox.MemoryLimit = "16g"

	if _, err := cfg.ToSandboxConfig(); err == nil {
		t.Error("ToSandboxConfig() error = nil, want limit rejection")
	}
}

func TestToSandboxConfigFiltersCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.PassEnvVars = []string{"HTTP_PROXY", "OPENAI_API_KEY", "BRAVE_API_KEY"}

	sc, err := cfg.ToSandboxConfig()
	if err != nil {
		t.Fatalf("ToSandboxConfig() error = %v", err)
	}
	if len(sc.PassEnvVars) != 1 || sc.PassEnvVars[0] != "HTTP_PROXY" {
		t.Errorf("PassEnvVars = %v, want credentials filtered", sc.PassEnvVars)
	}
}

func TestResolvedEnvironment(t *testing.T) {
	t.Setenv("RUNBOX_TEST_PASSTHROUGH", "from-host")

	sc := sandbox.DefaultConfig()
	sc.Environment = map[string]string{"MODE": "batch"}
	sc.PassEnvVars = []string{"RUNBOX_TEST_PASSTHROUGH", "RUNBOX_TEST_ABSENT"}

	env := sc.ResolvedEnvironment()
	if env["MODE"] != "batch" || env["RUNBOX_TEST_PASSTHROUGH"] != "from-host" {
		t.Errorf("ResolvedEnvironment() = %v", env)
	}
	if _, ok := env["RUNBOX_TEST_ABSENT"]; ok {
		t.Error("absent host variable should not appear")
	}
}
