package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name looked up in the working
// directory when no path is given.
const DefaultConfigFile = "runbox.yaml"

// Load reads configuration from the given path. An empty path falls back
// to ./runbox.yaml; a missing file yields the defaults. A .env file in
// the working directory is loaded first so key lookups see it.
func Load(path string) (*Config, error) {
	// Missing .env is the common case and not an error.
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets RUNBOX_* environment variables override file
// values, so one config file serves several deployments.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RUNBOX_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("RUNBOX_SANDBOX_KIND"); v != "" {
		cfg.Sandbox.Kind = v
	}
	if v := os.Getenv("RUNBOX_SANDBOX_IMAGE"); v != "" {
		cfg.Sandbox.Image = v
	}
	if v := os.Getenv("RUNBOX_CLOUD_URL"); v != "" {
		cfg.Sandbox.Remote.BaseURL = v
	}
	if v := os.Getenv("RUNBOX_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
}
