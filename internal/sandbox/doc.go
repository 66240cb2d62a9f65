// Package sandbox provides isolated execution environments for agent tools.
//
// Two backend variants implement the same Backend contract:
//
// # Local backend
//
// DockerBackend runs commands in a Docker container on the host:
//   - NetworkMode "none": network isolation when NetworkEnabled is false
//   - CapDrop ALL and "no-new-privileges": no capability or privilege escalation
//   - Memory and CPU limits from the parsed Config sizes
//   - Tmpfs workspace: writable areas without persistence
//   - AutoRemove: automatic cleanup when the container stops
//
// # Remote backend
//
// RemoteBackend drives a cloud sandbox service over its HTTP control API.
// The service owns the machine lifecycle; the backend tracks the opaque
// sandbox ID and maps 404/410 responses to the destroyed state, since the
// service reclaims idle sandboxes on its own schedule.
//
// # Lifecycle
//
// Every backend moves through uninitialized, creating, running and the
// terminal states stopped, destroyed and failed. Only a running backend
// accepts executions and file operations; everything else yields a
// *NotReadyError. Destroy is idempotent.
//
// # Workspace
//
// Both variants share the /workspace layout (input, output, temp,
// downloads), created right after provisioning. All file paths resolve
// under /workspace; escapes are rejected with *PathEscapeError.
//
// # Usage
//
// Per-run usage goes through a Session, which provisions the backend
// lazily on first use and destroys it on Close:
//
//	cfg := sandbox.DefaultConfig().
//	    WithImage("python:3.12-slim").
//	    WithMemoryLimit("1g")
//
//	session, err := sandbox.NewSession(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close(ctx)
//
//	res, err := session.Execute(ctx, sandbox.ExecRequest{Command: "echo hello"})
//
// Direct backend construction goes through the factory:
//
//	backend, err := sandbox.New(cfg)
package sandbox
