package config

import (
	"os"
	"time"

	"github.com/hkuds/runbox/internal/sandbox"
)

// Config is the root configuration structure, loaded from runbox.yaml.
// API keys never live in the file; they come from the environment so
// configs can be committed and shared.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Tools   ToolsConfig   `yaml:"tools"`
}

// AgentConfig holds the model loop settings.
type AgentConfig struct {
	Model         string `yaml:"model"`
	APIBase       string `yaml:"apiBase,omitempty"`
	MaxTokens     int    `yaml:"maxTokens"`
	MaxIterations int    `yaml:"maxIterations"`
}

// SandboxConfig is the YAML mirror of the sandbox package's Config.
type SandboxConfig struct {
	Kind                 string            `yaml:"kind"`
	Image                string            `yaml:"image,omitempty"`
	MemoryLimit          string            `yaml:"memoryLimit,omitempty"`
	CPULimit             float64           `yaml:"cpuLimit,omitempty"`
	DiskLimit            string            `yaml:"diskLimit,omitempty"`
	NetworkEnabled       bool              `yaml:"networkEnabled"`
	VolumeMounts         map[string]string `yaml:"volumeMounts,omitempty"`
	Environment          map[string]string `yaml:"environment,omitempty"`
	PassEnvVars          []string          `yaml:"passEnvVars,omitempty"`
	ExecTimeoutSeconds   int               `yaml:"execTimeoutSeconds,omitempty"`
	MaxObservationTokens int               `yaml:"maxObservationTokens,omitempty"`
	AutoStopMinutes      int               `yaml:"autoStopMinutes,omitempty"`
	Remote               RemoteConfig      `yaml:"remote,omitempty"`
}

// RemoteConfig holds the cloud sandbox service settings. The API key is
// taken from RUNBOX_CLOUD_API_KEY, never from the file.
type RemoteConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
	Target  string `yaml:"target,omitempty"`
}

// ToolsConfig holds tool-related settings.
type ToolsConfig struct {
	Enabled []string        `yaml:"enabled,omitempty"`
	Search  WebSearchConfig `yaml:"search"`
	Browse  BrowseConfig    `yaml:"browse"`
}

// WebSearchConfig configures the web_search tool. The Brave API key
// comes from BRAVE_API_KEY.
type WebSearchConfig struct {
	MaxResults int `yaml:"maxResults"`
}

// BrowseConfig configures the web_browse tool.
type BrowseConfig struct {
	MaxChars int `yaml:"maxChars"`
}

// credentialEnvVars are never passed through into the sandbox, whatever
// passEnvVars says. Host tool keys stay on the host.
var credentialEnvVars = map[string]bool{
	"OPENAI_API_KEY":       true,
	"BRAVE_API_KEY":        true,
	"RUNBOX_CLOUD_API_KEY": true,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:         "gpt-4o",
			MaxTokens:     4096,
			MaxIterations: 20,
		},
		Sandbox: SandboxConfig{
			Kind: "local",
		},
		Tools: ToolsConfig{
			Search: WebSearchConfig{MaxResults: 5},
			Browse: BrowseConfig{MaxChars: 50000},
		},
	}
}

// ToSandboxConfig converts the YAML form into a validated sandbox
// configuration. Pass-through env vars are resolved here; credential
// variables are excluded regardless of the list.
func (c *Config) ToSandboxConfig() (sandbox.Config, error) {
	cfg := sandbox.DefaultConfig()
	cfg.Kind = sandbox.Kind(c.Sandbox.Kind)
	if c.Sandbox.Image != "" {
		cfg.Image = c.Sandbox.Image
	}
	if c.Sandbox.MemoryLimit != "" {
		cfg.MemoryLimit = c.Sandbox.MemoryLimit
	}
	if c.Sandbox.CPULimit > 0 {
		cfg.CPULimit = c.Sandbox.CPULimit
	}
	cfg.DiskLimit = c.Sandbox.DiskLimit
	cfg.NetworkEnabled = c.Sandbox.NetworkEnabled
	cfg.VolumeMounts = c.Sandbox.VolumeMounts
	if c.Sandbox.ExecTimeoutSeconds > 0 {
		cfg.ExecTimeout = time.Duration(c.Sandbox.ExecTimeoutSeconds) * time.Second
	}
	if c.Sandbox.MaxObservationTokens > 0 {
		cfg.MaxObservationTokens = c.Sandbox.MaxObservationTokens
	}
	if c.Sandbox.AutoStopMinutes > 0 {
		cfg.AutoStopInterval = time.Duration(c.Sandbox.AutoStopMinutes) * time.Minute
	}

	cfg.Environment = c.Sandbox.Environment
	for _, name := range c.Sandbox.PassEnvVars {
		if credentialEnvVars[name] {
			continue
		}
		cfg.PassEnvVars = append(cfg.PassEnvVars, name)
	}

	if cfg.Kind == sandbox.KindRemote {
		cfg.Remote = sandbox.RemoteConfig{
			BaseURL: c.Sandbox.Remote.BaseURL,
			APIKey:  os.Getenv("RUNBOX_CLOUD_API_KEY"),
			Target:  c.Sandbox.Remote.Target,
		}
	}

	if err := cfg.Validate(); err != nil {
		return sandbox.Config{}, err
	}
	return cfg, nil
}

// HostToolKeys returns the credentials host-side tools need, read from
// the environment.
func (c *Config) HostToolKeys() (openAIKey, braveKey string) {
	return os.Getenv("OPENAI_API_KEY"), os.Getenv("BRAVE_API_KEY")
}
