package sandbox

import "fmt"

// UnsupportedBackendError is returned by the factory when the configured
// backend kind is not one of the known variants.
type UnsupportedBackendError struct {
	Kind Kind
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("sandbox: unsupported backend kind %q", e.Kind)
}

// ResourceLimitError is returned when a configured resource limit is
// malformed or exceeds the maximum the backend variant allows.
type ResourceLimitError struct {
	Field string
	Value string
	Max   string
}

func (e *ResourceLimitError) Error() string {
	if e.Max != "" {
		return fmt.Sprintf("sandbox: invalid %s %q: exceeds maximum %s", e.Field, e.Value, e.Max)
	}
	return fmt.Sprintf("sandbox: invalid %s %q", e.Field, e.Value)
}

// CreationError is returned when provisioning the execution environment
// fails after the configured retries.
type CreationError struct {
	Kind Kind
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("sandbox: %s backend creation failed: %v", e.Kind, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// NotReadyError is returned when an operation requires a running sandbox
// but the backend is in some other lifecycle state.
type NotReadyError struct {
	ID    string
	State State
}

func (e *NotReadyError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("sandbox: not ready (state %s)", e.State)
	}
	return fmt.Sprintf("sandbox %s: not ready (state %s)", e.ID, e.State)
}

// PathEscapeError is returned when a file path would resolve outside the
// sandbox workspace. The check happens before any I/O.
type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("sandbox: path %q escapes the workspace", e.Path)
}
