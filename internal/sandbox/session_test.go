package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend for session and tool tests.
type fakeBackend struct {
	mu       sync.Mutex
	state    State
	files    map[string][]byte
	execs    []ExecRequest
	execFunc func(req ExecRequest) (*ExecResult, error)

	createDelay time.Duration
	createErr   error
	creates     atomic.Int32
	destroys    atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{state: StateUninitialized, files: make(map[string][]byte)}
}

func (f *fakeBackend) Create(ctx context.Context) error {
	f.creates.Add(1)
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	if f.createErr != nil {
		f.mu.Lock()
		f.state = StateFailed
		f.mu.Unlock()
		return f.createErr
	}
	f.mu.Lock()
	f.state = StateRunning
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	f.mu.Lock()
	if f.state != StateRunning {
		err := &NotReadyError{State: f.state}
		f.mu.Unlock()
		return nil, err
	}
	f.execs = append(f.execs, req)
	f.mu.Unlock()

	if f.execFunc != nil {
		return f.execFunc(req)
	}
	return &ExecResult{ExitCode: 0, Stdout: "ok\n"}, nil
}

func (f *fakeBackend) ReadFile(ctx context.Context, path string) ([]byte, error) {
	abs, err := ResolveWorkspacePath(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[abs]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", abs)
	}
	return data, nil
}

func (f *fakeBackend) WriteFile(ctx context.Context, path string, data []byte) error {
	abs, err := ResolveWorkspacePath(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[abs] = data
	return nil
}

func (f *fakeBackend) DownloadArtifacts(ctx context.Context, exts []string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]byte)
	for abs, data := range f.files {
		if strings.HasPrefix(abs, OutputDir+"/") {
			out[workspaceRelative(abs)] = data
		}
	}
	return out, nil
}

func (f *fakeBackend) Destroy(ctx context.Context) error {
	f.destroys.Add(1)
	f.mu.Lock()
	f.state = StateDestroyed
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) ID() string { return "fake-1" }

func (f *fakeBackend) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func newFakeSession(t *testing.T, fb *fakeBackend) *Session {
	t.Helper()
	s, err := NewSessionWithFactory(DefaultConfig(), func(Config) (Backend, error) {
		return fb, nil
	})
	if err != nil {
		t.Fatalf("NewSessionWithFactory() error = %v", err)
	}
	return s
}

func TestSessionLazyCreate(t *testing.T) {
	fb := newFakeBackend()
	s := newFakeSession(t, fb)

	if got := fb.creates.Load(); got != 0 {
		t.Fatalf("creates before first use = %d, want 0", got)
	}

	res, err := s.Execute(context.Background(), ExecRequest{Command: "echo hi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := fb.creates.Load(); got != 1 {
		t.Errorf("creates after first use = %d, want 1", got)
	}
}

func TestSessionCreated(t *testing.T) {
	fb := newFakeBackend()
	s := newFakeSession(t, fb)

	if s.Created() {
		t.Error("Created() = true before first use")
	}
	if _, err := s.Execute(context.Background(), ExecRequest{Command: "true"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !s.Created() {
		t.Error("Created() = false after first use")
	}
}

func TestSessionSingleFlightCreate(t *testing.T) {
	fb := newFakeBackend()
	fb.createDelay = 50 * time.Millisecond
	s := newFakeSession(t, fb)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Resolve(context.Background()); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fb.creates.Load(); got != 1 {
		t.Errorf("creates = %d, want 1 (single flight)", got)
	}
}

func TestSessionCreateFailureNotCached(t *testing.T) {
	fb := newFakeBackend()
	fb.createErr = fmt.Errorf("no capacity")
	s := newFakeSession(t, fb)

	if _, err := s.Resolve(context.Background()); err == nil {
		t.Fatal("Resolve() error = nil, want provisioning failure")
	}

	fb2 := newFakeBackend()
	s.factory = func(Config) (Backend, error) { return fb2, nil }
	if _, err := s.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve() after recovery error = %v", err)
	}
}

func TestSessionClose(t *testing.T) {
	fb := newFakeBackend()
	s := newFakeSession(t, fb)
	ctx := context.Background()

	// close before any use destroys nothing
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := fb.destroys.Load(); got != 0 {
		t.Errorf("destroys = %d, want 0", got)
	}

	if _, err := s.Resolve(ctx); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := fb.destroys.Load(); got != 1 {
		t.Errorf("destroys = %d, want 1", got)
	}
}

func TestSessionFileOps(t *testing.T) {
	fb := newFakeBackend()
	s := newFakeSession(t, fb)
	ctx := context.Background()

	if err := s.WriteFile(ctx, "output/data.json", []byte("{}")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := s.ReadFile(ctx, "output/data.json")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("ReadFile() = %q, want {}", got)
	}

	artifacts, err := s.DownloadArtifacts(ctx, nil)
	if err != nil {
		t.Fatalf("DownloadArtifacts() error = %v", err)
	}
	if len(artifacts) != 1 || string(artifacts["output/data.json"]) != "{}" {
		t.Errorf("DownloadArtifacts() = %v", artifacts)
	}
}

func TestSessionIDsUnique(t *testing.T) {
	a, err := NewSession(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	b, err := NewSession(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if a.ID() == b.ID() {
		t.Errorf("session IDs collide: %s", a.ID())
	}
}
