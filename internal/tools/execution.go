package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/hkuds/runbox/internal/sandbox"
)

// ShellTool runs shell commands inside the run's sandbox.
type ShellTool struct {
	BaseTool
	session *sandbox.Session
}

// NewShellTool creates a ShellTool bound to the run's session.
func NewShellTool(session *sandbox.Session) *ShellTool {
	return &ShellTool{
		BaseTool: NewBaseTool(
			"shell",
			"Run a shell command inside the isolated sandbox. The working directory is /workspace with input/, output/, temp/ and downloads/ subdirectories. Save files the user should receive under /workspace/output.",
			LocationSandbox,
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The shell command to execute.",
					},
					"timeout": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum execution time in seconds. Defaults to the sandbox's configured timeout.",
					},
				},
				"required": []string{"command"},
			},
		),
		session: session,
	}
}

// Execute runs the command and formats the result as an observation.
func (t *ShellTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	command, err := GetStringParam(params, "command")
	if err != nil {
		return "", fmt.Errorf("shell: %w", err)
	}
	if reason := sandbox.GuardCommand(command); reason != "" {
		return "", fmt.Errorf("shell: %s", reason)
	}

	res, err := t.session.Execute(ctx, sandbox.ExecRequest{
		Command:        command,
		Kind:           sandbox.ExecShell,
		TimeoutSeconds: GetIntParamOr(params, "timeout", 0),
	})
	if err != nil {
		return "", fmt.Errorf("shell: %w", err)
	}
	return formatExecResult(res), nil
}

// PythonTool writes a script into the sandbox and runs it with python3.
type PythonTool struct {
	BaseTool
	session *sandbox.Session
}

// NewPythonTool creates a PythonTool bound to the run's session.
func NewPythonTool(session *sandbox.Session) *PythonTool {
	return &PythonTool{
		BaseTool: NewBaseTool(
			"python",
			"Run a Python script inside the isolated sandbox. Save plots, data files and other results under /workspace/output; generated files are reported back after the run.",
			LocationSandbox,
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"code": map[string]interface{}{
						"type":        "string",
						"description": "The Python source code to execute.",
					},
					"timeout": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum execution time in seconds. Defaults to the sandbox's configured timeout.",
					},
				},
				"required": []string{"code"},
			},
		),
		session: session,
	}
}

// Execute stages the script at the fixed workspace path, runs it and
// reports generated output files alongside the script's output.
func (t *PythonTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	code, err := GetStringParam(params, "code")
	if err != nil {
		return "", fmt.Errorf("python: %w", err)
	}

	if err := t.session.WriteFile(ctx, sandbox.ScriptPath, []byte(code)); err != nil {
		return "", fmt.Errorf("python: staging script: %w", err)
	}

	res, err := t.session.Execute(ctx, sandbox.ExecRequest{
		Command:        "python3 " + sandbox.ScriptPath,
		Kind:           sandbox.ExecPython,
		TimeoutSeconds: GetIntParamOr(params, "timeout", 0),
	})
	if err != nil {
		return "", fmt.Errorf("python: %w", err)
	}

	observation := formatExecResult(res)
	if files, err := t.session.ListOutputFiles(ctx); err == nil && len(files) > 0 {
		observation += "\n[generated files]\n" + strings.Join(files, "\n")
	}
	return observation, nil
}

// formatExecResult renders an execution result as observation text.
func formatExecResult(res *sandbox.ExecResult) string {
	var b strings.Builder

	if res.Stdout != "" {
		b.WriteString(res.Stdout)
	}
	if res.Stderr != "" {
		if b.Len() > 0 && !strings.HasSuffix(res.Stdout, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("[stderr]\n")
		b.WriteString(res.Stderr)
	}
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}

	switch {
	case res.TimedOut():
		b.WriteString("[execution timed out, process killed]")
	case res.ExitCode != 0:
		fmt.Fprintf(&b, "[exit code: %d]", res.ExitCode)
	case b.Len() == 0:
		b.WriteString("(no output)")
	}

	if res.Truncated && !res.TimedOut() {
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("[output truncated, oldest content dropped]")
	}

	return strings.TrimRight(b.String(), "\n")
}
