package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RemoteBackend drives a cloud sandbox service over its HTTP control API.
// One backend maps to one remote sandbox instance.
type RemoteBackend struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string

	mu    sync.Mutex
	state State
	id    string
}

// remote API request/response shapes.
type createSandboxRequest struct {
	Image           string            `json:"image"`
	CPU             float64           `json:"cpu"`
	MemoryMB        int64             `json:"memoryMb"`
	DiskMB          int64             `json:"diskMb"`
	AutoStopSeconds int               `json:"autoStopSeconds,omitempty"`
	NetworkEnabled  bool              `json:"networkEnabled"`
	Env             map[string]string `json:"env,omitempty"`
	Target          string            `json:"target,omitempty"`
}

type createSandboxResponse struct {
	ID string `json:"id"`
}

type execSandboxRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	WorkDir        string `json:"workDir,omitempty"`
}

type execSandboxResponse struct {
	ExitCode   int    `json:"exitCode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"durationMs"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

// NewRemoteBackend creates a remote backend. No network call happens
// until Create.
func NewRemoteBackend(cfg Config) (*RemoteBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("sandbox: remote backend requires a base URL")
	}
	if cfg.Remote.APIKey == "" {
		return nil, fmt.Errorf("sandbox: remote backend requires an API key")
	}
	return &RemoteBackend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimRight(cfg.Remote.BaseURL, "/"),
		state:      StateUninitialized,
	}, nil
}

// ID returns the service-assigned sandbox ID, empty before Create.
func (b *RemoteBackend) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// State returns the current lifecycle state.
func (b *RemoteBackend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *RemoteBackend) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// markGone records an unsolicited remote stop. The service reclaims idle
// sandboxes on its own schedule; a 404 or 410 from any call means ours is
// gone.
func (b *RemoteBackend) markGone() {
	b.mu.Lock()
	b.state = StateDestroyed
	b.mu.Unlock()
}

// Create provisions a sandbox through the control plane, retrying once on
// transient failure, then initializes the workspace layout.
func (b *RemoteBackend) Create(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateUninitialized {
		state := b.state
		b.mu.Unlock()
		return &NotReadyError{ID: b.id, State: state}
	}
	b.state = StateCreating
	b.mu.Unlock()

	id, err := b.provision(ctx)
	if err != nil && ctx.Err() == nil {
		log.Printf("sandbox: remote provisioning failed, retrying once: %v", err)
		select {
		case <-time.After(createRetryBackoff):
		case <-ctx.Done():
			b.setState(StateFailed)
			return &CreationError{Kind: KindRemote, Err: ctx.Err()}
		}
		id, err = b.provision(ctx)
	}
	if err != nil {
		b.setState(StateFailed)
		return &CreationError{Kind: KindRemote, Err: err}
	}

	b.mu.Lock()
	b.id = id
	b.state = StateRunning
	b.mu.Unlock()

	res, err := b.Execute(ctx, ExecRequest{Command: workspaceInitCommand(), Kind: ExecShell})
	if err != nil {
		b.setState(StateFailed)
		return &CreationError{Kind: KindRemote, Err: fmt.Errorf("initializing workspace: %w", err)}
	}
	if res.ExitCode != 0 {
		b.setState(StateFailed)
		return &CreationError{Kind: KindRemote, Err: fmt.Errorf("initializing workspace: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))}
	}
	return nil
}

func (b *RemoteBackend) provision(ctx context.Context) (string, error) {
	reqBody := createSandboxRequest{
		Image:          b.cfg.Image,
		CPU:            b.cfg.CPULimit,
		MemoryMB:       b.cfg.MemoryBytes() >> 20,
		DiskMB:         b.cfg.DiskBytes() >> 20,
		NetworkEnabled: b.cfg.NetworkEnabled,
		Env:            b.cfg.ResolvedEnvironment(),
		Target:         b.cfg.Remote.Target,
	}
	if b.cfg.AutoStopInterval > 0 {
		reqBody.AutoStopSeconds = int(b.cfg.AutoStopInterval.Seconds())
	}

	var resp createSandboxResponse
	if err := b.call(ctx, http.MethodPost, "/v1/sandboxes", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("control plane returned empty sandbox id")
	}
	return resp.ID, nil
}

// Execute runs a command remotely. The service enforces the timeout
// in-sandbox; a context deadline bounds the HTTP call on top of it.
func (b *RemoteBackend) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	b.mu.Lock()
	if b.state != StateRunning {
		err := &NotReadyError{ID: b.id, State: b.state}
		b.mu.Unlock()
		return nil, err
	}
	id := b.id
	b.mu.Unlock()

	timeoutSecs := req.TimeoutSeconds
	if timeoutSecs <= 0 {
		timeoutSecs = int(b.cfg.ExecTimeout.Seconds())
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second+execTimeoutGrace)
	defer cancel()

	start := time.Now()
	var resp execSandboxResponse
	err := b.call(callCtx, http.MethodPost, "/v1/sandboxes/"+id+"/exec", execSandboxRequest{
		Command:        wrapWithTimeout(req.Command, timeoutSecs),
		TimeoutSeconds: timeoutSecs,
		WorkDir:        WorkspaceDir,
	}, &resp)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &ExecResult{
				ExitCode:   TimeoutExitCode,
				Truncated:  true,
				DurationMs: time.Since(start).Milliseconds(),
			}, nil
		}
		return nil, err
	}

	exitCode := resp.ExitCode
	if exitCode == timeoutKillExitCode {
		exitCode = TimeoutExitCode
	}
	durationMs := resp.DurationMs
	if durationMs == 0 {
		durationMs = time.Since(start).Milliseconds()
	}
	return &ExecResult{
		ExitCode:   exitCode,
		Stdout:     resp.Stdout,
		Stderr:     resp.Stderr,
		Truncated:  exitCode == TimeoutExitCode,
		DurationMs: durationMs,
	}, nil
}

// ReadFile fetches a workspace file through the files endpoint.
func (b *RemoteBackend) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	abs, err := ResolveWorkspacePath(filePath)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.state != StateRunning {
		err := &NotReadyError{ID: b.id, State: b.state}
		b.mu.Unlock()
		return nil, err
	}
	id := b.id
	b.mu.Unlock()

	endpoint := "/v1/sandboxes/" + id + "/files?path=" + url.QueryEscape(abs)
	req, err := b.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox: reading %s: %w", abs, err)
	}
	defer resp.Body.Close()

	if gone(resp.StatusCode) {
		b.markGone()
		return nil, &NotReadyError{ID: id, State: StateDestroyed}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// WriteFile uploads a workspace file through the files endpoint.
func (b *RemoteBackend) WriteFile(ctx context.Context, filePath string, data []byte) error {
	abs, err := ResolveWorkspacePath(filePath)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.state != StateRunning {
		err := &NotReadyError{ID: b.id, State: b.state}
		b.mu.Unlock()
		return err
	}
	id := b.id
	b.mu.Unlock()

	endpoint := "/v1/sandboxes/" + id + "/files?path=" + url.QueryEscape(abs)
	req, err := b.newRequest(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox: writing %s: %w", abs, err)
	}
	defer resp.Body.Close()

	if gone(resp.StatusCode) {
		b.markGone()
		return &NotReadyError{ID: id, State: StateDestroyed}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

// DownloadArtifacts lists and reads output files matching the filter.
func (b *RemoteBackend) DownloadArtifacts(ctx context.Context, exts []string) (map[string][]byte, error) {
	return collectArtifacts(ctx, b, exts)
}

// Destroy releases the remote sandbox. A 404 or 410 means the service
// already reclaimed it, which counts as success.
func (b *RemoteBackend) Destroy(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateDestroyed || b.state == StateDestroying {
		b.mu.Unlock()
		return nil
	}
	id := b.id
	b.state = StateDestroying
	b.mu.Unlock()

	if id != "" {
		req, err := b.newRequest(ctx, http.MethodDelete, "/v1/sandboxes/"+id, nil)
		if err != nil {
			return err
		}
		resp, err := b.httpClient.Do(req)
		if err != nil {
			b.setState(StateFailed)
			return fmt.Errorf("sandbox: destroying %s: %w", id, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && !gone(resp.StatusCode) {
			b.setState(StateFailed)
			return apiError(resp)
		}
	}

	b.setState(StateDestroyed)
	return nil
}

// call performs a JSON round trip against the control plane.
func (b *RemoteBackend) call(ctx context.Context, method, endpoint string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("sandbox: encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := b.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if gone(resp.StatusCode) {
		b.markGone()
		b.mu.Lock()
		id := b.id
		b.mu.Unlock()
		return &NotReadyError{ID: id, State: StateDestroyed}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("sandbox: decoding response: %w", err)
		}
	}
	return nil
}

func (b *RemoteBackend) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("sandbox: building request: %w", err)
	}
	req.Header.Set("X-API-Key", b.cfg.Remote.APIKey)
	return req, nil
}

// gone reports whether a status code means the sandbox no longer exists.
func gone(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}

// apiError extracts a useful message from an error response.
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed apiErrorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
		return fmt.Errorf("sandbox: control plane returned %d: %s", resp.StatusCode, parsed.Error)
	}
	return fmt.Errorf("sandbox: control plane returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
