package sandbox

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Workspace layout shared by every backend variant.
const (
	WorkspaceDir = "/workspace"
	InputDir     = WorkspaceDir + "/input"
	OutputDir    = WorkspaceDir + "/output"
	TempDir      = WorkspaceDir + "/temp"
	DownloadsDir = WorkspaceDir + "/downloads"

	// ScriptPath is where python tool scripts land before execution.
	ScriptPath = TempDir + "/_script.py"
)

// TimeoutExitCode is the sentinel exit code for executions killed by the
// timeout, distinguishing them from any real process exit status.
const TimeoutExitCode = -1

// timeoutKillExitCode is what the in-container timeout(1) wrapper returns
// when it kills the command.
const timeoutKillExitCode = 124

// State is a backend lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateCreating
	StateRunning
	StateStopping
	StateStopped
	StateDestroying
	StateDestroyed
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreating:
		return "creating"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether the state absorbs all further transitions.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateDestroyed || s == StateFailed
}

// ExecKind selects the interpreter for an execution request.
type ExecKind string

const (
	ExecShell  ExecKind = "shell"
	ExecPython ExecKind = "python"
)

// ExecRequest describes one command to run inside the sandbox.
type ExecRequest struct {
	// Command is the shell command line to run.
	Command string

	// Kind records whether this is a plain shell command or a python
	// script invocation. Default: shell.
	Kind ExecKind

	// TimeoutSeconds caps wall-clock execution time. 0 means the
	// backend's configured default.
	TimeoutSeconds int
}

// ExecResult is the outcome of one execution. A timeout is a result, not
// an error: ExitCode is TimeoutExitCode and Truncated is true.
type ExecResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	Truncated  bool
	DurationMs int64
}

// TimedOut reports whether the execution was killed by the timeout.
func (r *ExecResult) TimedOut() bool {
	return r.ExitCode == TimeoutExitCode
}

// Backend is one isolated execution environment. Implementations are safe
// for concurrent use.
type Backend interface {
	// Create provisions the environment and initializes the workspace
	// directory layout. Transient provisioning failures are retried once.
	Create(ctx context.Context) error

	// Execute runs a command. Only a Running backend accepts work; any
	// other state yields a *NotReadyError.
	Execute(ctx context.Context, req ExecRequest) (*ExecResult, error)

	// ReadFile returns the contents of a workspace file.
	ReadFile(ctx context.Context, filePath string) ([]byte, error)

	// WriteFile stores data at a workspace path, creating parent
	// directories as needed.
	WriteFile(ctx context.Context, filePath string, data []byte) error

	// DownloadArtifacts collects output files matching the extensions
	// (DefaultArtifactExtensions when exts is empty), keyed by
	// workspace-relative path.
	DownloadArtifacts(ctx context.Context, exts []string) (map[string][]byte, error)

	// Destroy releases the environment. Idempotent: destroying an
	// already-destroyed sandbox succeeds.
	Destroy(ctx context.Context) error

	// ID returns the backend's opaque identifier, empty before Create.
	ID() string

	// State returns the current lifecycle state.
	State() State
}

// DefaultArtifactExtensions is the artifact filter used when a caller
// passes none.
var DefaultArtifactExtensions = []string{".json", ".html", ".png", ".jpg", ".csv", ".pdf"}

// ResolveWorkspacePath normalizes a user-supplied path to an absolute
// path under /workspace. Relative paths resolve against /workspace.
// Anything escaping the workspace is rejected with *PathEscapeError
// before any I/O happens.
func ResolveWorkspacePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.ContainsRune(p, '\x00') {
		return "", &PathEscapeError{Path: p}
	}

	abs := p
	if !path.IsAbs(abs) {
		abs = path.Join(WorkspaceDir, abs)
	}
	abs = path.Clean(abs)

	if abs != WorkspaceDir && !strings.HasPrefix(abs, WorkspaceDir+"/") {
		return "", &PathEscapeError{Path: p}
	}
	return abs, nil
}

// workspaceRelative converts an absolute workspace path back to the
// workspace-relative form used as artifact keys.
func workspaceRelative(abs string) string {
	return strings.TrimPrefix(strings.TrimPrefix(abs, WorkspaceDir), "/")
}

// workspaceInitCommand creates the standard directory layout. Both
// variants run it right after provisioning.
func workspaceInitCommand() string {
	return fmt.Sprintf("mkdir -p %s %s %s %s", InputDir, OutputDir, TempDir, DownloadsDir)
}

// wrapWithTimeout wraps a command so it is killed inside the sandbox at
// the deadline regardless of what the control plane does. timeout(1)
// exits with 124 when it fires.
func wrapWithTimeout(command string, timeoutSeconds int) string {
	return fmt.Sprintf("timeout %d sh -c %s", timeoutSeconds, shellQuote(command))
}

// shellQuote single-quotes a string for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// findArtifactsCommand builds the find invocation that lists output files
// matching the extension filter, one absolute path per line.
func findArtifactsCommand(exts []string) string {
	var b strings.Builder
	b.WriteString("find ")
	b.WriteString(OutputDir)
	b.WriteString(" -type f")
	if len(exts) > 0 {
		b.WriteString(" \\( ")
		for i, ext := range exts {
			if i > 0 {
				b.WriteString(" -o ")
			}
			b.WriteString("-name ")
			b.WriteString(shellQuote("*" + ext))
		}
		b.WriteString(" \\)")
	}
	return b.String()
}

// splitLines returns the non-empty trimmed lines of s.
func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// collectArtifacts runs the find listing and reads each file back through
// the backend. Shared by both variants.
func collectArtifacts(ctx context.Context, b Backend, exts []string) (map[string][]byte, error) {
	if len(exts) == 0 {
		exts = DefaultArtifactExtensions
	}
	res, err := b.Execute(ctx, ExecRequest{Command: findArtifactsCommand(exts), Kind: ExecShell})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("sandbox: artifact listing failed (exit %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	paths := splitLines(res.Stdout)
	sort.Strings(paths)

	artifacts := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := b.ReadFile(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: reading artifact %s: %w", p, err)
		}
		artifacts[workspaceRelative(p)] = data
	}
	return artifacts, nil
}
