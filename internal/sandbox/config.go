package sandbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Kind selects the backend variant.
type Kind string

const (
	// KindLocal runs commands in a Docker container on the host.
	KindLocal Kind = "local"
	// KindRemote runs commands in a cloud sandbox behind an HTTP API.
	KindRemote Kind = "remote"
)

// Default configuration values.
const (
	DefaultImage       = "python:3.12-slim"
	DefaultMemoryLimit = "2g"
	DefaultCPULimit    = 1.0
	DefaultDiskLimit   = "5g"
	DefaultExecTimeout = 60 * time.Second
	DefaultAutoStop    = 30 * time.Minute
)

// Remote variant hard caps, enforced at construction.
const (
	MaxRemoteMemory = 8 << 30  // 8g
	MaxRemoteDisk   = 10 << 30 // 10g
)

// RemoteConfig holds credentials and endpoint for the remote backend.
type RemoteConfig struct {
	// BaseURL is the control-plane endpoint, e.g. https://api.example.com.
	BaseURL string

	// APIKey authenticates control-plane calls.
	APIKey string

	// Target selects a deployment region or cluster. Optional.
	Target string
}

// Config holds configuration for a sandbox backend.
type Config struct {
	// Kind selects the backend variant. Default: local.
	Kind Kind

	// Image is the container image to run. Default: python:3.12-slim.
	Image string

	// MemoryLimit is a human-readable byte size ("512m", "2g").
	// Remote sandboxes allow at most 8g. Default: 2g.
	MemoryLimit string

	// CPULimit is the number of CPU cores. Default: 1.0.
	CPULimit float64

	// DiskLimit is a human-readable byte size, remote only.
	// At most 10g. Default: 5g.
	DiskLimit string

	// NetworkEnabled allows outbound network access. Default: false.
	NetworkEnabled bool

	// VolumeMounts maps host paths to sandbox paths, local only.
	VolumeMounts map[string]string

	// Environment is set inside the sandbox for every execution.
	Environment map[string]string

	// PassEnvVars names host environment variables copied into
	// Environment at creation time.
	PassEnvVars []string

	// ExecTimeout is the per-execution default when a request does not
	// carry its own. Default: 60s.
	ExecTimeout time.Duration

	// MaxObservationTokens budgets how much execution output reaches the
	// model; the character budget is 4x this. Default: 4000.
	MaxObservationTokens int

	// AutoStopInterval is how long a remote sandbox may sit idle before
	// the service stops it, remote only. Default: 30m.
	AutoStopInterval time.Duration

	// Remote holds endpoint and credentials, remote only.
	Remote RemoteConfig
}

// DefaultConfig returns a Config with sensible defaults for a local sandbox.
func DefaultConfig() Config {
	return Config{
		Kind:        KindLocal,
		Image:       DefaultImage,
		MemoryLimit: DefaultMemoryLimit,
		CPULimit:    DefaultCPULimit,
		ExecTimeout: DefaultExecTimeout,
	}
}

// WithKind returns a copy of the config with the specified backend kind.
func (c Config) WithKind(k Kind) Config {
	c.Kind = k
	return c
}

// WithImage returns a copy of the config with the specified image.
func (c Config) WithImage(image string) Config {
	c.Image = image
	return c
}

// WithMemoryLimit returns a copy of the config with the specified memory limit.
func (c Config) WithMemoryLimit(limit string) Config {
	c.MemoryLimit = limit
	return c
}

// WithCPULimit returns a copy of the config with the specified CPU core count.
func (c Config) WithCPULimit(cores float64) Config {
	c.CPULimit = cores
	return c
}

// WithDiskLimit returns a copy of the config with the specified disk limit.
func (c Config) WithDiskLimit(limit string) Config {
	c.DiskLimit = limit
	return c
}

// WithNetwork returns a copy of the config with network enabled or disabled.
func (c Config) WithNetwork(enabled bool) Config {
	c.NetworkEnabled = enabled
	return c
}

// WithVolumeMount returns a copy of the config with an additional bind mount.
func (c Config) WithVolumeMount(hostPath, sandboxPath string) Config {
	mounts := make(map[string]string, len(c.VolumeMounts)+1)
	for k, v := range c.VolumeMounts {
		mounts[k] = v
	}
	mounts[hostPath] = sandboxPath
	c.VolumeMounts = mounts
	return c
}

// WithEnv returns a copy of the config with an additional environment variable.
func (c Config) WithEnv(key, value string) Config {
	env := make(map[string]string, len(c.Environment)+1)
	for k, v := range c.Environment {
		env[k] = v
	}
	env[key] = value
	c.Environment = env
	return c
}

// WithExecTimeout returns a copy of the config with the specified default timeout.
func (c Config) WithExecTimeout(timeout time.Duration) Config {
	c.ExecTimeout = timeout
	return c
}

// WithRemote returns a copy of the config with remote endpoint and credentials.
func (c Config) WithRemote(r RemoteConfig) Config {
	c.Remote = r
	return c
}

// normalize fills in defaults for fields the caller left zero.
func (c *Config) normalize() {
	if c.Kind == "" {
		c.Kind = KindLocal
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.MemoryLimit == "" {
		c.MemoryLimit = DefaultMemoryLimit
	}
	if c.CPULimit <= 0 {
		c.CPULimit = DefaultCPULimit
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = DefaultExecTimeout
	}
	if c.MaxObservationTokens <= 0 {
		c.MaxObservationTokens = DefaultMaxObservationTokens
	}
	if c.Kind == KindRemote {
		if c.DiskLimit == "" {
			c.DiskLimit = DefaultDiskLimit
		}
		if c.AutoStopInterval <= 0 {
			c.AutoStopInterval = DefaultAutoStop
		}
	}
}

// Validate applies defaults and checks the configuration against the
// selected backend variant. Limits are enforced here so misconfiguration
// surfaces before any container or network call.
func (c *Config) Validate() error {
	c.normalize()

	switch c.Kind {
	case KindLocal, KindRemote:
	default:
		return &UnsupportedBackendError{Kind: c.Kind}
	}

	memBytes, err := ParseByteSize(c.MemoryLimit)
	if err != nil {
		return &ResourceLimitError{Field: "memory limit", Value: c.MemoryLimit}
	}
	if memBytes <= 0 {
		return &ResourceLimitError{Field: "memory limit", Value: c.MemoryLimit}
	}

	switch c.Kind {
	case KindLocal:
		if c.DiskLimit != "" {
			return &ResourceLimitError{Field: "disk limit", Value: c.DiskLimit + " (not supported by local backend)"}
		}
		if c.AutoStopInterval > 0 {
			return &ResourceLimitError{Field: "auto-stop interval", Value: c.AutoStopInterval.String() + " (not supported by local backend)"}
		}
	case KindRemote:
		if memBytes > MaxRemoteMemory {
			return &ResourceLimitError{Field: "memory limit", Value: c.MemoryLimit, Max: "8g"}
		}
		diskBytes, err := ParseByteSize(c.DiskLimit)
		if err != nil || diskBytes <= 0 {
			return &ResourceLimitError{Field: "disk limit", Value: c.DiskLimit}
		}
		if diskBytes > MaxRemoteDisk {
			return &ResourceLimitError{Field: "disk limit", Value: c.DiskLimit, Max: "10g"}
		}
		if len(c.VolumeMounts) > 0 {
			return fmt.Errorf("sandbox: volume mounts are not supported by the remote backend")
		}
	}

	if c.CPULimit > 64 {
		return &ResourceLimitError{Field: "cpu limit", Value: strconv.FormatFloat(c.CPULimit, 'f', -1, 64), Max: "64"}
	}

	return nil
}

// ResolvedEnvironment merges Environment with the host variables named
// by PassEnvVars. Explicit entries win over passed-through ones.
func (c *Config) ResolvedEnvironment() map[string]string {
	if len(c.Environment) == 0 && len(c.PassEnvVars) == 0 {
		return nil
	}
	env := make(map[string]string, len(c.Environment)+len(c.PassEnvVars))
	for _, name := range c.PassEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}
	for k, v := range c.Environment {
		env[k] = v
	}
	return env
}

// MemoryBytes returns the parsed memory limit. Call Validate first.
func (c *Config) MemoryBytes() int64 {
	n, _ := ParseByteSize(c.MemoryLimit)
	return n
}

// DiskBytes returns the parsed disk limit, 0 if unset. Call Validate first.
func (c *Config) DiskBytes() int64 {
	if c.DiskLimit == "" {
		return 0
	}
	n, _ := ParseByteSize(c.DiskLimit)
	return n
}

// ParseByteSize parses human-readable byte sizes like "512m", "2g", "256k"
// or plain byte counts like "1048576". Suffixes are case-insensitive and
// an optional trailing "b" is accepted ("512mb").
func ParseByteSize(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	s = strings.TrimSuffix(s, "b")
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1 << 10
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "m"):
		multiplier = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "g"):
		multiplier = 1 << 30
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "t"):
		multiplier = 1 << 40
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed size %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}

	return int64(n * float64(multiplier)), nil
}
