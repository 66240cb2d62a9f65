package sandbox

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Session owns the sandbox for one agent run. The backend is provisioned
// lazily on first use and shared by every tool in the run; Close tears it
// down. Each run gets its own Session, so concurrent runs never share an
// environment.
type Session struct {
	id      string
	cfg     Config
	factory func(Config) (Backend, error)

	mu      sync.Mutex
	backend Backend
	created bool
}

// NewSession validates the configuration and prepares a session. The
// sandbox itself is not provisioned until Resolve.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		factory: New,
	}, nil
}

// NewSessionWithFactory is NewSession with a custom backend constructor.
// Tests use it to substitute fake backends.
func NewSessionWithFactory(cfg Config, factory func(Config) (Backend, error)) (*Session, error) {
	s, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	s.factory = factory
	return s, nil
}

// ID returns the run-scoped session identifier.
func (s *Session) ID() string { return s.id }

// Config returns a copy of the session's sandbox configuration.
func (s *Session) Config() Config { return s.cfg }

// Resolve returns the session's backend, provisioning it on first call.
// The mutex makes creation single-flight: a second caller blocks until
// the first finishes and then receives the same backend, so a session
// never provisions twice.
func (s *Session) Resolve(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created {
		return s.backend, nil
	}

	backend, err := s.factory(s.cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("sandbox: session %s provisioning %s backend", s.id, s.cfg.Kind)
	if err := backend.Create(ctx); err != nil {
		return nil, err
	}

	s.backend = backend
	s.created = true
	return backend, nil
}

// Execute runs a command through the session's backend, provisioning it
// if needed, and trims the result to the observation budget. The most
// recent output survives truncation.
func (s *Session) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	backend, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	res, err := backend.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	TruncateResult(res, ObservationCharBudget(s.cfg.MaxObservationTokens))
	return res, nil
}

// ReadFile reads a workspace file through the session's backend.
func (s *Session) ReadFile(ctx context.Context, path string) ([]byte, error) {
	backend, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return backend.ReadFile(ctx, path)
}

// WriteFile writes a workspace file through the session's backend.
func (s *Session) WriteFile(ctx context.Context, path string, data []byte) error {
	backend, err := s.Resolve(ctx)
	if err != nil {
		return err
	}
	return backend.WriteFile(ctx, path, data)
}

// DownloadArtifacts collects output files through the session's backend.
func (s *Session) DownloadArtifacts(ctx context.Context, exts []string) (map[string][]byte, error) {
	backend, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return backend.DownloadArtifacts(ctx, exts)
}

// ListOutputFiles returns workspace-relative paths of everything under
// the output directory. Used by tools to report generated files.
func (s *Session) ListOutputFiles(ctx context.Context) ([]string, error) {
	backend, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	res, err := backend.Execute(ctx, ExecRequest{Command: "find " + OutputDir + " -type f", Kind: ExecShell})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, nil
	}

	var files []string
	for _, line := range splitLines(res.Stdout) {
		files = append(files, workspaceRelative(line))
	}
	return files, nil
}

// Created reports whether the session has provisioned its backend.
// Callers use it to skip work that would otherwise provision a sandbox
// just to inspect an empty one.
func (s *Session) Created() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Close destroys the backend if one was created. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		return nil
	}
	err := s.backend.Destroy(ctx)
	if err == nil {
		log.Printf("sandbox: session %s destroyed backend %s", s.id, s.backend.ID())
	}
	return err
}
