package tools

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/hkuds/runbox/internal/sandbox"
)

// FileReadTool reads a file from the sandbox workspace.
type FileReadTool struct {
	BaseTool
	session *sandbox.Session
}

// NewFileReadTool creates a FileReadTool bound to the run's session.
func NewFileReadTool(session *sandbox.Session) *FileReadTool {
	return &FileReadTool{
		BaseTool: NewBaseTool(
			"file_read",
			"Read a file from the sandbox workspace. Paths are relative to /workspace, e.g. output/result.json.",
			LocationSandbox,
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Workspace-relative path of the file to read.",
					},
				},
				"required": []string{"path"},
			},
		),
		session: session,
	}
}

// Execute reads the file and returns its contents.
func (t *FileReadTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	path, err := GetStringParam(params, "path")
	if err != nil {
		return "", fmt.Errorf("file_read: %w", err)
	}

	data, err := t.session.ReadFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("file_read: %w", err)
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("(binary file, %d bytes)", len(data)), nil
	}
	return string(data), nil
}

// FileWriteTool writes a file into the sandbox workspace.
type FileWriteTool struct {
	BaseTool
	session *sandbox.Session
}

// NewFileWriteTool creates a FileWriteTool bound to the run's session.
func NewFileWriteTool(session *sandbox.Session) *FileWriteTool {
	return &FileWriteTool{
		BaseTool: NewBaseTool(
			"file_write",
			"Write content to a file in the sandbox workspace, creating parent directories as needed. Paths are relative to /workspace; put deliverables under output/.",
			LocationSandbox,
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Workspace-relative path of the file to write.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The content to write.",
					},
				},
				"required": []string{"path", "content"},
			},
		),
		session: session,
	}
}

// Execute writes the content to the workspace file.
func (t *FileWriteTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	path, err := GetStringParam(params, "path")
	if err != nil {
		return "", fmt.Errorf("file_write: %w", err)
	}
	content, err := GetStringParam(params, "content")
	if err != nil {
		return "", fmt.Errorf("file_write: %w", err)
	}

	if err := t.session.WriteFile(ctx, path, []byte(content)); err != nil {
		return "", fmt.Errorf("file_write: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}
