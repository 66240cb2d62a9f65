package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// execTimeoutGrace is added to the API-call deadline on top of the
// in-container timeout wrapper, so the wrapper gets to fire first and
// report exit code 124.
const execTimeoutGrace = 5 * time.Second

// createRetryBackoff is the pause before the single provisioning retry.
const createRetryBackoff = 2 * time.Second

// DockerBackend runs commands in a Docker container on the local host.
type DockerBackend struct {
	cfg    Config
	client *client.Client

	mu          sync.Mutex
	state       State
	containerID string
	name        string
}

// NewDockerBackend creates a local backend. The container is not
// provisioned until Create is called.
func NewDockerBackend(cfg Config) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: creating Docker client: %w", err)
	}
	return NewDockerBackendWithClient(cfg, cli)
}

// NewDockerBackendWithClient creates a local backend on an existing
// Docker client. Useful for tests and for sharing a client.
func NewDockerBackendWithClient(cfg Config, cli *client.Client) (*DockerBackend, error) {
	if cli == nil {
		return nil, fmt.Errorf("sandbox: Docker client cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DockerBackend{
		cfg:    cfg,
		client: cli,
		state:  StateUninitialized,
		name:   "runbox-" + uuid.NewString()[:8],
	}, nil
}

// ID returns the container ID, empty before Create.
func (b *DockerBackend) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.containerID
}

// State returns the current lifecycle state.
func (b *DockerBackend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *DockerBackend) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Create pulls the image if needed, starts the keepalive container and
// initializes the workspace layout. A transient failure is retried once.
func (b *DockerBackend) Create(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateUninitialized {
		state := b.state
		b.mu.Unlock()
		return &NotReadyError{ID: b.containerID, State: state}
	}
	b.state = StateCreating
	b.mu.Unlock()

	err := b.provision(ctx)
	if err != nil && ctx.Err() == nil {
		log.Printf("sandbox: container provisioning failed, retrying once: %v", err)
		select {
		case <-time.After(createRetryBackoff):
		case <-ctx.Done():
			b.setState(StateFailed)
			return &CreationError{Kind: KindLocal, Err: ctx.Err()}
		}
		err = b.provision(ctx)
	}
	if err != nil {
		b.setState(StateFailed)
		return &CreationError{Kind: KindLocal, Err: err}
	}

	b.setState(StateRunning)
	return nil
}

func (b *DockerBackend) provision(ctx context.Context) error {
	if err := b.ensureImage(ctx); err != nil {
		return err
	}

	containerCfg, hostCfg, networkCfg := b.buildContainerConfig()
	resp, err := b.client.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, b.name)
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = b.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("starting container: %w", err)
	}

	b.mu.Lock()
	b.containerID = resp.ID
	b.mu.Unlock()

	if _, _, _, err := b.exec(ctx, workspaceInitCommand(), 30); err != nil {
		_ = b.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		b.mu.Lock()
		b.containerID = ""
		b.mu.Unlock()
		return fmt.Errorf("initializing workspace: %w", err)
	}
	return nil
}

// ensureImage pulls the image if it is not present locally.
func (b *DockerBackend) ensureImage(ctx context.Context) error {
	if _, _, err := b.client.ImageInspectWithRaw(ctx, b.cfg.Image); err == nil {
		return nil
	}

	reader, err := b.client.ImagePull(ctx, b.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", b.cfg.Image, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pulling image %s: %w", b.cfg.Image, err)
	}
	return nil
}

// buildContainerConfig assembles the container, host and network configs.
func (b *DockerBackend) buildContainerConfig() (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	resolved := b.cfg.ResolvedEnvironment()
	env := make([]string, 0, len(resolved))
	for k, v := range resolved {
		env = append(env, k+"="+v)
	}

	containerCfg := &container.Config{
		Image:      b.cfg.Image,
		WorkingDir: WorkspaceDir,
		Env:        env,
		Tty:        false,
		// Keepalive so repeated execs reuse one container.
		Cmd: []string{"sleep", "infinity"},
	}

	hostCfg := &container.HostConfig{
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges:true"},
		AutoRemove:  true,
		Resources: container.Resources{
			Memory:     b.cfg.MemoryBytes(),
			MemorySwap: b.cfg.MemoryBytes(),
			NanoCPUs:   int64(b.cfg.CPULimit * 1e9),
		},
		Tmpfs: map[string]string{
			"/tmp":       "rw,nosuid,size=64m",
			WorkspaceDir: "rw,nosuid,size=512m,mode=1777",
		},
	}

	if !b.cfg.NetworkEnabled {
		hostCfg.NetworkMode = "none"
	}

	for hostPath, sandboxPath := range b.cfg.VolumeMounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: hostPath,
			Target: sandboxPath,
		})
	}

	return containerCfg, hostCfg, &network.NetworkingConfig{}
}

// Execute runs a shell command inside the container. Timeouts are
// enforced twice: timeout(1) inside the container kills the process, and
// a context deadline bounds the API call in case the container hangs.
func (b *DockerBackend) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	b.mu.Lock()
	if b.state != StateRunning {
		err := &NotReadyError{ID: b.containerID, State: b.state}
		b.mu.Unlock()
		return nil, err
	}
	b.mu.Unlock()

	timeoutSecs := req.TimeoutSeconds
	if timeoutSecs <= 0 {
		timeoutSecs = int(b.cfg.ExecTimeout.Seconds())
	}

	start := time.Now()
	stdout, stderr, exitCode, err := b.exec(ctx, wrapWithTimeout(req.Command, timeoutSecs), timeoutSecs)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &ExecResult{
				ExitCode:   TimeoutExitCode,
				Stdout:     stdout,
				Stderr:     stderr,
				Truncated:  true,
				DurationMs: duration,
			}, nil
		}
		return nil, err
	}

	if exitCode == timeoutKillExitCode {
		exitCode = TimeoutExitCode
	}
	return &ExecResult{
		ExitCode:   exitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		Truncated:  exitCode == TimeoutExitCode,
		DurationMs: duration,
	}, nil
}

// exec runs a raw command line through the Docker exec API and demuxes
// the attached stream.
func (b *DockerBackend) exec(ctx context.Context, command string, timeoutSecs int) (stdout, stderr string, exitCode int, err error) {
	b.mu.Lock()
	containerID := b.containerID
	b.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second+execTimeoutGrace)
	defer cancel()

	execResp, err := b.client.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   WorkspaceDir,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("creating exec: %w", err)
	}

	attachResp, err := b.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return "", "", 0, fmt.Errorf("attaching to exec: %w", err)
	}
	defer attachResp.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	outputDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attachResp.Reader)
		outputDone <- copyErr
	}()

	select {
	case copyErr := <-outputDone:
		if copyErr != nil {
			return stdoutBuf.String(), stderrBuf.String(), 0, fmt.Errorf("reading exec output: %w", copyErr)
		}
	case <-execCtx.Done():
		return stdoutBuf.String(), stderrBuf.String(), 0, execCtx.Err()
	}

	inspectResp, err := b.client.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return stdoutBuf.String(), stderrBuf.String(), 0, fmt.Errorf("inspecting exec: %w", err)
	}

	return stdoutBuf.String(), stderrBuf.String(), inspectResp.ExitCode, nil
}

// WriteFile copies data into the container via a single-entry tar stream.
func (b *DockerBackend) WriteFile(ctx context.Context, filePath string, data []byte) error {
	abs, err := ResolveWorkspacePath(filePath)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.state != StateRunning {
		err := &NotReadyError{ID: b.containerID, State: b.state}
		b.mu.Unlock()
		return err
	}
	containerID := b.containerID
	b.mu.Unlock()

	dir := path.Dir(abs)
	if _, _, _, err := b.exec(ctx, "mkdir -p "+shellQuote(dir), 30); err != nil {
		return fmt.Errorf("sandbox: creating directory %s: %w", dir, err)
	}

	archive, err := tarFile(path.Base(abs), data)
	if err != nil {
		return err
	}
	if err := b.client.CopyToContainer(ctx, containerID, dir, archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("sandbox: copying %s to container: %w", abs, err)
	}
	return nil
}

// ReadFile copies a file out of the container and unpacks the tar stream.
func (b *DockerBackend) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	abs, err := ResolveWorkspacePath(filePath)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.state != StateRunning {
		err := &NotReadyError{ID: b.containerID, State: b.state}
		b.mu.Unlock()
		return nil, err
	}
	containerID := b.containerID
	b.mu.Unlock()

	reader, _, err := b.client.CopyFromContainer(ctx, containerID, abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: copying %s from container: %w", abs, err)
	}
	defer reader.Close()

	return untarFile(reader)
}

// DownloadArtifacts lists and reads output files matching the filter.
func (b *DockerBackend) DownloadArtifacts(ctx context.Context, exts []string) (map[string][]byte, error) {
	return collectArtifacts(ctx, b, exts)
}

// Destroy removes the container. Safe to call in any state and more than
// once.
func (b *DockerBackend) Destroy(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateDestroyed || b.state == StateDestroying {
		b.mu.Unlock()
		return nil
	}
	containerID := b.containerID
	b.state = StateDestroying
	b.mu.Unlock()

	if containerID != "" {
		if err := b.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			log.Printf("sandbox: removing container %s: %v", containerID, err)
		}
	}

	b.mu.Lock()
	b.state = StateDestroyed
	b.containerID = ""
	b.mu.Unlock()
	return nil
}

// Ping checks that the Docker daemon is reachable.
func (b *DockerBackend) Ping(ctx context.Context) error {
	_, err := b.client.Ping(ctx)
	return err
}

// tarFile packs one file into an in-memory tar archive.
func tarFile(name string, data []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}); err != nil {
		return nil, fmt.Errorf("sandbox: writing tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return nil, fmt.Errorf("sandbox: writing tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("sandbox: closing tar: %w", err)
	}
	return &buf, nil
}

// untarFile extracts the first regular file from a tar stream.
func untarFile(r io.Reader) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("sandbox: tar stream contained no regular file")
		}
		if err != nil {
			return nil, fmt.Errorf("sandbox: reading tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			return io.ReadAll(tr)
		}
	}
}
